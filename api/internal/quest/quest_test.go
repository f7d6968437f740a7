package quest

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reality-quest/api/internal/capture"
	"reality-quest/api/internal/challenge"
	"reality-quest/api/internal/judge"
	"reality-quest/api/internal/location"
	"reality-quest/api/internal/media"
	"reality-quest/api/internal/media/mediatest"
	"reality-quest/api/internal/store"
	"reality-quest/api/internal/types"
	"reality-quest/api/internal/verdict"
)

const testPool = `
challenges:
  - id: hachiko-banana-shake
    title: Hachiko banana shake
    description: Shake a banana in front of Hachiko.
    points: 220
    location_check:
      label: Hachiko statue
      lat: 35.659482
      lng: 139.70056
      radius_meters: 180
  - id: desk-stretch
    title: Desk stretch
    description: Stretch both arms above your head.
    points: 100
`

type fakeJudge struct {
	mu    sync.Mutex
	texts []string
	err   error
	calls int
	parts [][]judge.Part
	hold  chan struct{}
}

func (f *fakeJudge) Invoke(ctx context.Context, parts []judge.Part) (judge.Invocation, error) {
	if f.hold != nil {
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts = append(f.parts, parts)
	i := f.calls
	f.calls++
	if f.err != nil {
		return judge.Invocation{}, f.err
	}
	return judge.Invocation{RawText: f.texts[i%len(f.texts)], Model: "gemini-2.5-flash"}, nil
}

type failingStore struct {
	Store
	fail atomic.Bool
}

func (s *failingStore) SaveRound(ctx context.Context, id string, st types.AppState, h []types.HistoryRecord) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.Store.SaveRound(ctx, id, st, h)
}

type harness struct {
	db     *sql.DB
	capt   *capture.Capturer
	o      *Orchestrator
	judge  *fakeJudge
	device *mediatest.Device
	repo   *store.PlayerRepo
	rounds *store.RoundRepo
	store  *failingStore
}

func newHarness(t *testing.T, pos *location.Position, answers ...string) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pool, err := challenge.LoadPool(strings.NewReader(testPool))
	require.NoError(t, err)

	dev := &mediatest.Device{New: func() *mediatest.Stream { return mediatest.NewStream(640, 480, 2) }}
	capt := capture.New(nil)
	capt.Interval = 10 * time.Millisecond

	var loc location.Provider
	if pos != nil {
		loc = location.Static{Position: *pos}
	}
	h := &harness{
		db:     db,
		capt:   capt,
		judge:  &fakeJudge{texts: answers},
		device: dev,
		repo:   store.NewPlayerRepo(db),
		rounds: store.NewRoundRepo(db),
	}
	h.store = &failingStore{Store: h.repo}
	h.o, err = New(ctx, Config{PlayerID: "p1", CaptureSeconds: 3}, Deps{
		Media:      media.NewAcquirer(dev, media.DefaultConstraints(), nil),
		Capturer:   capt,
		Judge:      h.judge,
		Parser:     verdict.NewParser(nil, nil, nil),
		Location:   loc,
		Challenges: pool,
		Store:      h.store,
		Custom:     h.repo,
		Rounds:     h.rounds,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) force(t *testing.T, id string) {
	t.Helper()
	for i := 0; i < 100 && h.o.Snapshot().Challenge.ID != id; i++ {
		_, err := h.o.NewChallenge()
		require.NoError(t, err)
	}
	require.Equal(t, id, h.o.Snapshot().Challenge.ID)
}

var hachiko = &location.Position{Latitude: 35.659482, Longitude: 139.70056, Accuracy: 10}

func TestVerifyHachikoSuccess(t *testing.T) {
	h := newHarness(t, hachiko, "success=true\nconfidence=0.92\nreason=Banana shake seen\ndetected_actions=banana|shake\nsafety_notes=")
	h.force(t, "hachiko-banana-shake")

	var ticks []int
	var phases []Phase
	out, err := h.o.Verify(context.Background(), RoundOptions{
		OnTick:  func(r int) { ticks = append(ticks, r) },
		OnPhase: func(p Phase) { phases = append(phases, p) },
	})
	require.NoError(t, err)

	assert.True(t, out.Judgement.Success)
	assert.Equal(t, 220, out.Judgement.ScoreAdded)
	assert.Equal(t, "Success (0m / radius 180m, accuracy ±10m)", out.Judgement.LocationMessage)
	assert.Equal(t, types.AppState{Score: 220, Streak: 1}, out.State)
	assert.Equal(t, "desk-stretch", out.Next.ID)
	assert.Equal(t, []int{3, 2, 1}, ticks)
	assert.Equal(t, PhaseAcquiring, phases[0])
	assert.Equal(t, PhaseIdle, phases[len(phases)-1])

	assert.Equal(t, types.SourceKeyValue, out.Debug.ParseTrace.Source)
	assert.Equal(t, 3, out.Debug.SampledFrames)
	assert.True(t, out.Debug.AudioClipSent)
	assert.Equal(t, "ok", out.Debug.Status)

	// сохранено в базе
	st, err := h.repo.LoadState(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, out.State, st)
	rows, err := h.rounds.Recent(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, out.RoundID, rows[0].ID)

	snap := h.o.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, snap.Verifying)
}

type archiveFunc func(roundID string) (capture.FrameSink, error)

func (f archiveFunc) Round(id string) (capture.FrameSink, error) { return f(id) }

func TestVerifyArchivesFramesUnderRoundID(t *testing.T) {
	h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
	root := t.TempDir()
	var ids []string
	h.capt.Archive = archiveFunc(func(id string) (capture.FrameSink, error) {
		ids = append(ids, id)
		return capture.NewDirSink(root, id)
	})

	out, err := h.o.Verify(context.Background(), RoundOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{out.RoundID}, ids)
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(filepath.Join(root, out.RoundID))
		return err == nil && len(entries) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestVerifyFarFromLocationFails(t *testing.T) {
	far := &location.Position{Latitude: 35.659482 + 0.045, Longitude: 139.70056, Accuracy: 5}
	h := newHarness(t, far, "success=true\nconfidence=0.9\nreason=Banana shake seen")
	h.force(t, "hachiko-banana-shake")

	out, err := h.o.Verify(context.Background(), RoundOptions{})
	require.NoError(t, err)
	assert.False(t, out.Judgement.Success)
	assert.Equal(t, 0, out.Judgement.ScoreAdded)
	assert.True(t, strings.HasPrefix(out.Judgement.LocationMessage, "Failed ("))
	assert.Equal(t, "Banana shake seen / location requirement not satisfied", out.Judgement.Reason)
	assert.Equal(t, types.AppState{}, out.State)
}

func TestVerifyStreakResets(t *testing.T) {
	h := newHarness(t, nil,
		"success=true\nconfidence=0.9\nreason=ok",
		"success=false\nconfidence=0.8\nreason=nope",
		"success=false\nconfidence=0.8\nreason=nope")
	h.force(t, "desk-stretch")

	out, err := h.o.Verify(context.Background(), RoundOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.AppState{Score: 100, Streak: 1}, out.State)

	for i := 0; i < 2; i++ {
		out, err = h.o.Verify(context.Background(), RoundOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, types.AppState{Score: 100, Streak: 0}, out.State)
	assert.Len(t, h.o.Snapshot().History, 3)
	assert.False(t, h.o.Snapshot().History[0].Success)
}

func TestHistoryCapped(t *testing.T) {
	h := newHarness(t, nil, "success=false\nconfidence=0.8\nreason=nope")
	for i := 0; i < types.MaxHistory+3; i++ {
		_, err := h.o.Verify(context.Background(), RoundOptions{})
		require.NoError(t, err)
	}
	assert.Len(t, h.o.Snapshot().History, types.MaxHistory)
	hist, err := h.repo.LoadHistory(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, hist, types.MaxHistory)
}

func TestVerifyBusy(t *testing.T) {
	h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
	h.judge.hold = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.o.Verify(context.Background(), RoundOptions{})
		done <- err
	}()
	require.Eventually(t, func() bool { return h.o.Snapshot().Verifying }, time.Second, time.Millisecond)

	_, err := h.o.Verify(context.Background(), RoundOptions{})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, h.o.Reset(context.Background()), ErrBusy)
	_, err = h.o.NewChallenge()
	assert.ErrorIs(t, err, ErrBusy)

	close(h.judge.hold)
	require.NoError(t, <-done)
}

func TestPhaseErrorsLeaveStateUntouched(t *testing.T) {
	t.Run("media", func(t *testing.T) {
		h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
		h.device.Err = media.ErrPermissionDenied
		_, err := h.o.Verify(context.Background(), RoundOptions{})
		var pe *PhaseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, PhaseAcquiring, pe.Phase)
		assert.ErrorIs(t, err, media.ErrPermissionDenied)
		assert.Equal(t, 0, h.judge.calls)
	})

	t.Run("judge", func(t *testing.T) {
		h := newHarness(t, nil, "unused")
		h.judge.err = &judge.AllModelsExhausted{Errors: []string{"gemini-2.5-flash: empty response"}}
		before := h.o.Snapshot().Challenge
		_, err := h.o.Verify(context.Background(), RoundOptions{})
		var pe *PhaseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, PhaseJudging, pe.Phase)

		snap := h.o.Snapshot()
		assert.Equal(t, types.AppState{}, snap.State)
		assert.Empty(t, snap.History)
		assert.Equal(t, before, snap.Challenge)
		require.NotNil(t, snap.LastDebug)
		assert.Equal(t, "error", snap.LastDebug.Status)
		assert.Equal(t, PhaseJudging, snap.LastDebug.Phase)
	})

	t.Run("persist", func(t *testing.T) {
		h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
		h.store.fail.Store(true)
		_, err := h.o.Verify(context.Background(), RoundOptions{})
		var pe *PhaseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, PhaseScoring, pe.Phase)
		assert.Equal(t, types.AppState{}, h.o.Snapshot().State)
		assert.Empty(t, h.o.Snapshot().History)
	})

	t.Run("history write", func(t *testing.T) {
		h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
		h.force(t, "desk-stretch")
		ctx := context.Background()
		_, err := h.db.ExecContext(ctx, `drop table player_history`)
		require.NoError(t, err)

		_, err = h.o.Verify(ctx, RoundOptions{})
		var pe *PhaseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, PhaseScoring, pe.Phase)
		assert.ErrorContains(t, err, "save history")
		assert.Equal(t, types.AppState{}, h.o.Snapshot().State)

		// счёт не должен попасть в базу без истории
		st, err := h.repo.LoadState(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, types.AppState{}, st)
	})
}

func TestVerifyUnparseableStillScores(t *testing.T) {
	h := newHarness(t, nil, "¯\\_(ツ)_/¯")
	out, err := h.o.Verify(context.Background(), RoundOptions{})
	require.NoError(t, err)
	assert.False(t, out.Judgement.Success)
	assert.Equal(t, types.SourceParseFailed, out.Debug.ParseTrace.Source)
	assert.Len(t, h.o.Snapshot().History, 1)
}

func TestVerifyDeviceOverride(t *testing.T) {
	h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
	var stream *mediatest.Stream
	clip := &mediatest.Device{New: func() *mediatest.Stream {
		stream = mediatest.NewStream(320, 240, 0)
		return stream
	}}

	out, err := h.o.Verify(context.Background(), RoundOptions{Device: clip})
	require.NoError(t, err)
	assert.EqualValues(t, 1, clip.Opens.Load())
	assert.EqualValues(t, 0, h.device.Opens.Load())
	assert.False(t, out.Debug.AudioClipSent)
	assert.False(t, media.HasLiveTrack(stream))
}

func TestVerifyLocationOverride(t *testing.T) {
	h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
	h.force(t, "hachiko-banana-shake")
	fixed := location.NewFixed()
	fixed.Set(*hachiko)
	out, err := h.o.Verify(context.Background(), RoundOptions{Location: fixed})
	require.NoError(t, err)
	assert.True(t, out.Judgement.Success)
	assert.Equal(t, types.LocationAvailable, out.Debug.Location.Status)
}

func TestEvidencePartsOrder(t *testing.T) {
	h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
	_, err := h.o.Verify(context.Background(), RoundOptions{})
	require.NoError(t, err)
	parts := h.judge.parts[0]
	require.Len(t, parts, 1+3+1)
	assert.False(t, parts[0].IsBlob())
	assert.Equal(t, "image/jpeg", parts[1].MIMEType)
	assert.Equal(t, "audio/wav", parts[4].MIMEType)
}

func TestResetAndReload(t *testing.T) {
	h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
	_, err := h.o.Verify(context.Background(), RoundOptions{})
	require.NoError(t, err)
	require.NotZero(t, h.o.Snapshot().State.Score)
	rows, err := h.o.Rounds(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, h.o.Reset(context.Background()))
	snap := h.o.Snapshot()
	assert.Equal(t, types.AppState{}, snap.State)
	assert.Empty(t, snap.History)

	st, err := h.repo.LoadState(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, types.AppState{}, st)

	rows, err = h.o.Rounds(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCustomChallenge(t *testing.T) {
	h := newHarness(t, nil, "success=true\nconfidence=0.9\nreason=ok")
	ch, err := h.o.SetCustomChallenge(context.Background(), "  touch your nose  ")
	require.NoError(t, err)
	assert.Equal(t, challenge.CustomID, ch.ID)
	assert.Equal(t, "touch your nose", ch.Description)

	// задание остаётся после раунда
	out, err := h.o.Verify(context.Background(), RoundOptions{})
	require.NoError(t, err)
	assert.Equal(t, challenge.CustomPoints, out.Judgement.ScoreAdded)
	assert.Equal(t, challenge.CustomID, out.Next.ID)

	txt, err := h.repo.LoadCustomChallenge(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "touch your nose", txt)

	_, err = h.o.SetCustomChallenge(context.Background(), strings.Repeat("я", challenge.CustomMaxRunes+1))
	assert.ErrorIs(t, err, ErrInvalidCustomChallenge)

	ch, err = h.o.SetCustomChallenge(context.Background(), "")
	require.NoError(t, err)
	assert.NotEqual(t, challenge.CustomID, ch.ID)
}

func TestScoring(t *testing.T) {
	ch := types.Challenge{Title: "t", Points: 120}
	f := Combine(ch, types.JudgeResult{Success: true, Reason: "r"}, "Skipped (no location requirement)")
	assert.True(t, f.Success)
	assert.Equal(t, 120, f.ScoreAdded)
	assert.Equal(t, "r", f.Reason)

	s := ApplyScore(types.AppState{Score: 10, Streak: 2}, f)
	assert.Equal(t, types.AppState{Score: 130, Streak: 3}, s)
	s = ApplyScore(s, types.FinalJudgement{})
	assert.Equal(t, types.AppState{Score: 130, Streak: 0}, s)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var h []types.HistoryRecord
	for i := 0; i < 10; i++ {
		h = PrependHistory(h, ch, f, now.Add(time.Duration(i)*time.Second))
	}
	require.Len(t, h, types.MaxHistory)
	assert.Equal(t, now.Add(9*time.Second), h[0].Timestamp)
}
