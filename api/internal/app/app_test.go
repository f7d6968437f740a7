package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reality-quest/api/internal/challenge"
	"reality-quest/api/internal/config"
	"reality-quest/api/internal/location"
)

func testConfig() *config.Config {
	return &config.Config{StoreDriver: "sqlite", SQLitePath: ":memory:", CaptureSeconds: 3, DeviceAccuracy: 25}
}

func TestBuildWithoutEngines(t *testing.T) {
	a, err := Build(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.False(t, a.HasEngines())
	assert.Nil(t, a.DeviceLocation())
	_, ok := a.Challenges.(*challenge.Pool)
	assert.True(t, ok)
}

func TestBuildWiresGeneratorAndEngines(t *testing.T) {
	cfg := testConfig()
	cfg.GeminiAPIKey = "k"
	cfg.GeneratorModel = "gemini-2.5-flash"
	lat, lng := 35.659482, 139.70056
	cfg.DeviceLat, cfg.DeviceLng = &lat, &lng

	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.True(t, a.HasEngines())
	assert.Nil(t, a.Engines.OpenAI)
	_, ok := a.Challenges.(*challenge.Generator)
	assert.True(t, ok)
	assert.Equal(t, location.Static{Position: location.Position{Latitude: lat, Longitude: lng, Accuracy: 25}}, a.DeviceLocation())
}

func TestBuildBadChallengesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
	cfg := testConfig()
	cfg.ChallengesFile = path
	_, err := Build(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestPlayerIsCachedAndDebugChallengeApplied(t *testing.T) {
	cfg := testConfig()
	cfg.DebugChallenge = "wave twice"
	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	o1, err := a.Player(context.Background(), "p", false)
	require.NoError(t, err)
	o2, err := a.Player(context.Background(), "p", false)
	require.NoError(t, err)
	assert.Same(t, o1, o2)

	ch := o1.Snapshot().Challenge
	assert.Equal(t, challenge.CustomID, ch.ID)
	assert.Equal(t, "wave twice", ch.Description)
	assert.Equal(t, 3, o1.CaptureSeconds())
}

func TestRoundFramesOneDirectoryPerRound(t *testing.T) {
	root := t.TempDir()
	arch := roundFrames{root: root, player: sanitizeDir("tg:42")}

	for _, id := range []string{"round-1", "round-2"} {
		sink, err := arch.Round(id)
		require.NoError(t, err)
		for tick := 0; tick < 5; tick++ {
			require.NoError(t, sink.SendFrame(context.Background(), tick, []byte{0xff, 0xd8}))
		}
	}

	rounds, err := os.ReadDir(filepath.Join(root, "tg_42"))
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, "round-1", rounds[0].Name())
	frames, err := os.ReadDir(filepath.Join(root, "tg_42", "round-1"))
	require.NoError(t, err)
	assert.Len(t, frames, 5)
}

func TestSanitizeDir(t *testing.T) {
	assert.Equal(t, "tg_42", sanitizeDir("tg:42"))
	assert.Equal(t, "a_b_c", sanitizeDir("a/b\\c"))
	assert.Equal(t, "web", sanitizeDir("web"))
}
