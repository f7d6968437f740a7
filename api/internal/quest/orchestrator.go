// Package quest - оркестратор раунда: медиа, геопозиция, захват, судья, счёт.
package quest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reality-quest/api/internal/capture"
	"reality-quest/api/internal/challenge"
	"reality-quest/api/internal/judge"
	"reality-quest/api/internal/location"
	"reality-quest/api/internal/media"
	"reality-quest/api/internal/store"
	"reality-quest/api/internal/types"
	"reality-quest/api/internal/verdict"
)

// Store: персистентность игрока; ошибки чтения данных не считаются ошибками.
type Store interface {
	LoadState(ctx context.Context, playerID string) (types.AppState, error)
	LoadHistory(ctx context.Context, playerID string) ([]types.HistoryRecord, error)
	// SaveRound пишет состояние и историю атомарно.
	SaveRound(ctx context.Context, playerID string, s types.AppState, h []types.HistoryRecord) error
}

// CustomStore хранит отладочное задание игрока.
type CustomStore interface {
	LoadCustomChallenge(ctx context.Context, playerID string) (string, error)
	SaveCustomChallenge(ctx context.Context, playerID, text string) error
}

// RoundLog: журнал раундов, очищается при сбросе.
type RoundLog interface {
	Insert(ctx context.Context, row store.RoundRow) error
	Recent(ctx context.Context, playerID string, limit int) ([]store.RoundRow, error)
	DeletePlayer(ctx context.Context, playerID string) error
}

type Capturer interface {
	Capture(ctx context.Context, s media.Stream, r capture.Round) (types.CaptureEvidence, error)
}

type Judge interface {
	Invoke(ctx context.Context, parts []judge.Part) (judge.Invocation, error)
}

type Parser interface {
	Parse(ctx context.Context, raw string, ch types.Challenge) verdict.Output
}

type Config struct {
	PlayerID        string
	CaptureSeconds  int
	LocationTimeout time.Duration
	Constraints     media.Constraints
}

type Deps struct {
	Media      *media.Acquirer
	Capturer   Capturer
	Judge      Judge
	Parser     Parser
	Location   location.Provider
	Challenges challenge.Source
	Store      Store
	Custom     CustomStore
	Rounds     RoundLog
	Log        *zap.Logger
	Now        func() time.Time
}

// RoundOptions: переопределения на один раунд.
type RoundOptions struct {
	// Device: источник вместо камеры (например, клип из Telegram).
	Device   media.Device
	Location location.Provider
	OnTick   func(remaining int)
	OnPhase  func(Phase)
}

type Outcome struct {
	RoundID   string               `json:"roundId"`
	Challenge types.Challenge      `json:"challenge"`
	Judgement types.FinalJudgement `json:"judgement"`
	State     types.AppState       `json:"state"`
	Next      types.Challenge      `json:"next"`
	Debug     Debug                `json:"debug"`
}

// Snapshot: состояние оркестратора простыми данными.
type Snapshot struct {
	PlayerID        string                `json:"playerId"`
	State           types.AppState        `json:"state"`
	History         []types.HistoryRecord `json:"history"`
	Challenge       types.Challenge       `json:"challenge"`
	CustomChallenge string                `json:"customChallenge,omitempty"`
	Phase           Phase                 `json:"phase"`
	Verifying       bool                  `json:"verifying"`
	LastDebug       *Debug                `json:"lastDebug,omitempty"`
}

// Orchestrator: единственный владелец изменяемого состояния игрока.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	verifying atomic.Bool

	mu        sync.Mutex
	phase     Phase
	state     types.AppState
	history   []types.HistoryRecord
	current   types.Challenge
	custom    string
	lastDebug *Debug
}

// New загружает состояние игрока и выбирает первое задание.
func New(ctx context.Context, cfg Config, d Deps) (*Orchestrator, error) {
	if d.Store == nil || d.Challenges == nil || d.Capturer == nil || d.Judge == nil || d.Parser == nil {
		return nil, errors.New("quest: missing dependency")
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	cfg.CaptureSeconds = capture.ClampSeconds(cfg.CaptureSeconds)
	if cfg.LocationTimeout <= 0 {
		cfg.LocationTimeout = location.DefaultTimeout
	}
	if cfg.Constraints == (media.Constraints{}) {
		cfg.Constraints = media.DefaultConstraints()
	}

	o := &Orchestrator{
		cfg:   cfg,
		deps:  d,
		log:   d.Log.With(zap.String("player", cfg.PlayerID)),
		phase: PhaseIdle,
	}

	st, err := d.Store.LoadState(ctx, cfg.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	hist, err := d.Store.LoadHistory(ctx, cfg.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if d.Custom != nil {
		txt, err := d.Custom.LoadCustomChallenge(ctx, cfg.PlayerID)
		if err != nil {
			o.log.Warn("load custom challenge failed", zap.Error(err))
		} else if norm, ok := challenge.NormalizeCustomText(txt); ok {
			o.custom = norm
		}
	}
	o.state, o.history = st, hist
	o.current = o.pick("")
	return o, nil
}

// pick выбирает задание вне мьютекса: генератор может ходить в модель.
func (o *Orchestrator) pick(excludeID string) types.Challenge {
	o.mu.Lock()
	custom := o.custom
	o.mu.Unlock()
	if custom != "" {
		return challenge.Custom(custom)
	}
	return o.deps.Challenges.Pick(excludeID)
}

func (o *Orchestrator) setPhase(p Phase, opts RoundOptions) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	if opts.OnPhase != nil {
		opts.OnPhase(p)
	}
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{
		PlayerID:        o.cfg.PlayerID,
		State:           o.state,
		History:         append([]types.HistoryRecord{}, o.history...),
		Challenge:       o.current,
		CustomChallenge: o.custom,
		Phase:           o.phase,
		Verifying:       o.verifying.Load(),
	}
	if o.lastDebug != nil {
		d := *o.lastDebug
		s.LastDebug = &d
	}
	return s
}

func (o *Orchestrator) CaptureSeconds() int { return o.cfg.CaptureSeconds }

// Verify проводит один раунд. Состояние меняется только при успешном финальном вердикте.
func (o *Orchestrator) Verify(ctx context.Context, opts RoundOptions) (*Outcome, error) {
	if !o.verifying.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.verifying.Store(false)
	defer o.setPhase(PhaseIdle, opts)

	o.mu.Lock()
	ch := o.current
	o.mu.Unlock()

	dbg := &Debug{
		RoundID:        uuid.NewString(),
		StartedAt:      o.deps.Now(),
		Challenge:      ch,
		CaptureSeconds: o.cfg.CaptureSeconds,
	}
	log := o.log.With(zap.String("round", dbg.RoundID), zap.String("challenge", ch.ID))
	log.Info("round started")

	out, err := o.round(ctx, ch, opts, dbg, log)
	if err != nil {
		dbg.FinishedAt = o.deps.Now()
		var pe *PhaseError
		if errors.As(err, &pe) {
			dbg.Status = "error"
			dbg.Phase = pe.Phase
			dbg.Error = pe.Err.Error()
		}
		log.Warn("round failed", zap.Error(err))
		o.mu.Lock()
		o.lastDebug = dbg
		o.mu.Unlock()
		return nil, err
	}
	o.mu.Lock()
	out.Debug = *dbg
	o.mu.Unlock()
	log.Info("round finished",
		zap.Bool("success", out.Judgement.Success),
		zap.Int("score_added", out.Judgement.ScoreAdded),
		zap.String("parse_source", string(dbg.ParseTrace.Source)))
	return out, nil
}

func (o *Orchestrator) round(ctx context.Context, ch types.Challenge, opts RoundOptions, dbg *Debug, log *zap.Logger) (*Outcome, error) {
	// acquiring-media
	o.setPhase(PhaseAcquiring, opts)
	acq := o.deps.Media
	if opts.Device != nil {
		acq = media.NewAcquirer(opts.Device, o.cfg.Constraints, log)
	}
	if acq == nil {
		return nil, &PhaseError{Phase: PhaseAcquiring, Err: &media.MediaAcquisitionError{Reason: media.ErrNoDevice}}
	}
	defer acq.Release()
	stream, err := acq.Acquire(ctx)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseAcquiring, Err: err}
	}

	// locating ‖ capturing
	locProvider := o.deps.Location
	if opts.Location != nil {
		locProvider = opts.Location
	}
	var (
		snap     types.LocationSnapshot
		evidence types.CaptureEvidence
	)
	o.setPhase(PhaseLocating, opts)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap = location.Snapshot(gctx, ch, locProvider, o.cfg.LocationTimeout)
		return nil
	})
	o.setPhase(PhaseCapturing, opts)
	g.Go(func() error {
		ev, err := o.deps.Capturer.Capture(gctx, stream, capture.Round{
			ID:      dbg.RoundID,
			Seconds: o.cfg.CaptureSeconds,
			OnTick:  opts.OnTick,
		})
		if err != nil {
			return err
		}
		evidence = ev
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, &PhaseError{Phase: PhaseCapturing, Err: err}
	}
	acq.Release()
	dbg.Location = &snap
	dbg.SampledFrames = len(evidence.FrameSamples)
	dbg.VideoFramesSent = evidence.VideoFramesSent
	dbg.AudioChunksSent = evidence.AudioChunksSent
	dbg.AudioClipSent = evidence.AudioClipBase64 != nil
	dbg.AudioClipBytes = evidence.AudioClipBytes

	// judging
	o.setPhase(PhaseJudging, opts)
	inv, err := o.deps.Judge.Invoke(ctx, judge.BuildEvidenceParts(ch, snap, evidence))
	if err != nil {
		return nil, &PhaseError{Phase: PhaseJudging, Err: err}
	}
	dbg.Model = inv.Model
	dbg.RawText = inv.RawText

	// parsing
	o.setPhase(PhaseParsing, opts)
	parsed := o.deps.Parser.Parse(ctx, inv.RawText, ch)
	dbg.Parsed = &parsed.Result
	dbg.ParseTrace = parsed.Trace

	// scoring
	o.setPhase(PhaseScoring, opts)
	final := Combine(ch, parsed.Result, location.Evaluate(ch, snap))
	dbg.Final = &final
	next := o.pick(ch.ID)

	o.mu.Lock()
	defer o.mu.Unlock()
	newState := ApplyScore(o.state, final)
	newHistory := PrependHistory(o.history, ch, final, o.deps.Now())
	if err := o.persist(ctx, newState, newHistory); err != nil {
		return nil, &PhaseError{Phase: PhaseScoring, Err: err}
	}
	o.state, o.history = newState, newHistory
	o.current = next
	dbg.Status = "ok"
	dbg.FinishedAt = o.deps.Now()
	o.lastDebug = dbg

	o.logRound(ctx, ch, final, dbg, log)
	return &Outcome{
		RoundID:   dbg.RoundID,
		Challenge: ch,
		Judgement: final,
		State:     newState,
		Next:      o.current,
	}, nil
}

func (o *Orchestrator) persist(ctx context.Context, s types.AppState, h []types.HistoryRecord) error {
	return o.deps.Store.SaveRound(ctx, o.cfg.PlayerID, s, h)
}

func (o *Orchestrator) logRound(ctx context.Context, ch types.Challenge, f types.FinalJudgement, dbg *Debug, log *zap.Logger) {
	if o.deps.Rounds == nil {
		return
	}
	js, _ := json.Marshal(dbg)
	err := o.deps.Rounds.Insert(ctx, store.RoundRow{
		ID:          dbg.RoundID,
		PlayerID:    o.cfg.PlayerID,
		ChallengeID: ch.ID,
		Success:     f.Success,
		ScoreAdded:  f.ScoreAdded,
		Debug:       js,
		CreatedAt:   dbg.FinishedAt,
	})
	if err != nil {
		log.Warn("round log insert failed", zap.Error(err))
	}
}

// Reset обнуляет счёт, серию, историю и журнал раундов.
func (o *Orchestrator) Reset(ctx context.Context) error {
	if o.verifying.Load() {
		return ErrBusy
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.persist(ctx, types.AppState{}, []types.HistoryRecord{}); err != nil {
		return err
	}
	o.state = types.AppState{}
	o.history = []types.HistoryRecord{}
	if o.deps.Rounds != nil {
		if err := o.deps.Rounds.DeletePlayer(ctx, o.cfg.PlayerID); err != nil {
			o.log.Warn("round log cleanup failed", zap.Error(err))
		}
	}
	o.log.Info("state reset")
	return nil
}

// NewChallenge выдаёт новое задание вне раунда.
func (o *Orchestrator) NewChallenge() (types.Challenge, error) {
	if o.verifying.Load() {
		return types.Challenge{}, ErrBusy
	}
	o.mu.Lock()
	exclude := o.current.ID
	o.mu.Unlock()
	next := o.pick(exclude)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = next
	return next, nil
}

var ErrInvalidCustomChallenge = fmt.Errorf("quest: custom challenge must be 1..%d characters", challenge.CustomMaxRunes)

// SetCustomChallenge ставит отладочное задание; пустой текст снимает его.
func (o *Orchestrator) SetCustomChallenge(ctx context.Context, text string) (types.Challenge, error) {
	if o.verifying.Load() {
		return types.Challenge{}, ErrBusy
	}
	norm := ""
	if text != "" {
		var ok bool
		if norm, ok = challenge.NormalizeCustomText(text); !ok {
			return types.Challenge{}, ErrInvalidCustomChallenge
		}
	}
	if o.deps.Custom != nil {
		if err := o.deps.Custom.SaveCustomChallenge(ctx, o.cfg.PlayerID, norm); err != nil {
			return types.Challenge{}, fmt.Errorf("save custom challenge: %w", err)
		}
	}
	o.mu.Lock()
	o.custom = norm
	exclude := o.current.ID
	o.mu.Unlock()
	next := o.pick(exclude)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = next
	return next, nil
}

// Rounds: последние записи журнала раундов, новые первыми.
func (o *Orchestrator) Rounds(ctx context.Context, limit int) ([]store.RoundRow, error) {
	if o.deps.Rounds == nil {
		return []store.RoundRow{}, nil
	}
	rows, err := o.deps.Rounds.Recent(ctx, o.cfg.PlayerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent rounds: %w", err)
	}
	if rows == nil {
		rows = []store.RoundRow{}
	}
	return rows, nil
}
