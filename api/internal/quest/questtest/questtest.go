// Package questtest - оркестраторы на sqlite :memory: и фиксированном ответе модели.
package questtest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reality-quest/api/internal/capture"
	"reality-quest/api/internal/challenge"
	"reality-quest/api/internal/judge"
	"reality-quest/api/internal/media"
	"reality-quest/api/internal/media/mediatest"
	"reality-quest/api/internal/quest"
	"reality-quest/api/internal/store"
	"reality-quest/api/internal/verdict"
)

// HachikoPool: одно задание с геоусловием у статуи Хатико.
const HachikoPool = `
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
`

const SuccessAnswer = "success=true\nconfidence=0.9\nreason=Banana shake seen"

// Judge всегда отвечает Text.
type Judge struct{ Text string }

func (j Judge) Invoke(context.Context, []judge.Part) (judge.Invocation, error) {
	return judge.Invocation{RawText: j.Text, Model: "gemini-2.5-flash"}, nil
}

// Players: кэш оркестраторов по id, как у app.App.
type Players struct {
	Repo   *store.PlayerRepo
	Rounds *store.RoundRepo
	Answer string

	t  *testing.T
	mu sync.Mutex
	m  map[string]*quest.Orchestrator
}

func NewPlayers(t *testing.T) *Players {
	t.Helper()
	db, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Players{Repo: store.NewPlayerRepo(db), Rounds: store.NewRoundRepo(db), Answer: SuccessAnswer, t: t, m: map[string]*quest.Orchestrator{}}
}

func (p *Players) Player(ctx context.Context, id string, _ bool) (*quest.Orchestrator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o, ok := p.m[id]; ok {
		return o, nil
	}
	pool, err := challenge.LoadPool(strings.NewReader(HachikoPool))
	require.NoError(p.t, err)
	capt := capture.New(nil)
	capt.Interval = 5 * time.Millisecond
	o, err := quest.New(ctx, quest.Config{PlayerID: id, CaptureSeconds: 2}, quest.Deps{
		Capturer:   capt,
		Judge:      Judge{Text: p.Answer},
		Parser:     verdict.NewParser(nil, nil, nil),
		Challenges: pool,
		Store:      p.Repo,
		Custom:     p.Repo,
		Rounds:     p.Rounds,
	})
	if err != nil {
		return nil, err
	}
	p.m[id] = o
	return o, nil
}

// ClipDevice: фейковое «видео» 320×240 без звука вместо файла.
func ClipDevice(string) media.Device {
	return &mediatest.Device{New: func() *mediatest.Stream { return mediatest.NewStream(320, 240, 0) }}
}
