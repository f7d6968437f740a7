// Package app собирает зависимости из конфигурации и держит оркестраторы игроков.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"reality-quest/api/internal/capture"
	"reality-quest/api/internal/challenge"
	"reality-quest/api/internal/config"
	"reality-quest/api/internal/judge"
	"reality-quest/api/internal/judge/gemini"
	"reality-quest/api/internal/judge/gpt"
	"reality-quest/api/internal/location"
	"reality-quest/api/internal/media"
	"reality-quest/api/internal/media/ffmpeg"
	"reality-quest/api/internal/quest"
	"reality-quest/api/internal/store"
	"reality-quest/api/internal/verdict"
)

type App struct {
	Cfg *config.Config
	Log *zap.Logger
	DB  *sql.DB

	Players    *store.PlayerRepo
	Rounds     *store.RoundRepo
	Engines    *judge.Engines
	Judge      *judge.Judge
	Parser     *verdict.Parser
	Challenges challenge.Source

	mu      sync.Mutex
	players map[string]*quest.Orchestrator
	camera  *media.Acquirer
}

var ErrNoEngines = errors.New("app: set GEMINI_API_KEY or OPENAI_API_KEY")

// Build открывает базу и собирает судью, парсер и пул заданий.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	driver, dsn := cfg.StoreDSN()
	db, err := store.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	log.Info("store opened", zap.String("driver", driver))

	a := &App{
		Cfg:     cfg,
		Log:     log,
		DB:      db,
		Players: store.NewPlayerRepo(db),
		Rounds:  store.NewRoundRepo(db),
		Engines: &judge.Engines{},
		players: map[string]*quest.Orchestrator{},
	}
	if cfg.GeminiAPIKey != "" {
		a.Engines.Gemini = gemini.New(cfg.GeminiAPIKey)
	}
	if cfg.OpenAIAPIKey != "" {
		a.Engines.OpenAI = gpt.New(cfg.OpenAIAPIKey)
	}

	judgeModels := cfg.JudgeModels
	if len(judgeModels) == 0 {
		judgeModels = judge.DefaultModels
	}
	a.Judge = judge.New(a.Engines, cfg.ModelsWithOverride(judgeModels), cfg.JudgeTimeout, log.Named("judge"))
	a.Judge.Accept = verdict.Structured

	normModels := cfg.NormalizerModels
	if len(normModels) == 0 {
		normModels = verdict.DefaultNormalizerModels
	}
	rules := verdict.DefaultRuleSet()
	if cfg.NarrativeRulesFile != "" {
		if rules, err = verdict.LoadRuleSetFile(cfg.NarrativeRulesFile); err != nil {
			db.Close()
			return nil, err
		}
	}
	a.Parser = verdict.NewParser(&verdict.Normalizer{
		Provider: a.Engines,
		Models:   normModels,
		Timeout:  cfg.NormalizerTimeout,
		Log:      log.Named("normalizer"),
	}, rules, log.Named("verdict"))

	pool := challenge.DefaultPool()
	if cfg.ChallengesFile != "" {
		if pool, err = challenge.LoadPoolFile(cfg.ChallengesFile); err != nil {
			db.Close()
			return nil, err
		}
	}
	a.Challenges = pool
	if cfg.GeneratorModel != "" {
		a.Challenges = &challenge.Generator{
			Provider: a.Engines,
			Model:    cfg.GeneratorModel,
			Fallback: pool,
			Log:      log.Named("generator"),
		}
	}
	return a, nil
}

func (a *App) Close() error { return a.DB.Close() }

// HasEngines: настроен хотя бы один провайдер модели.
func (a *App) HasEngines() bool { return a.Engines.Gemini != nil || a.Engines.OpenAI != nil }

// Camera: общий захват камеры/микрофона через ffmpeg (ленивая инициализация).
func (a *App) Camera() *media.Acquirer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.camera == nil {
		var surfaces []media.Surface
		if a.Cfg.PreviewPath != "" {
			surfaces = append(surfaces, media.NewSnapshotSurface(a.Cfg.PreviewPath, 0, a.Log.Named("preview")))
		}
		dev := &ffmpeg.Device{
			FFmpegPath:  a.Cfg.FFmpegPath,
			FFprobePath: a.Cfg.FFprobePath,
			Input:       a.Cfg.CameraInput,
			Format:      a.Cfg.CameraFormat,
			AudioInput:  a.Cfg.AudioInput,
			AudioFormat: a.Cfg.AudioFormat,
			Log:         a.Log.Named("ffmpeg"),
		}
		a.camera = media.NewAcquirer(dev, media.DefaultConstraints(), a.Log.Named("media"), surfaces...)
	}
	return a.camera
}

// ClipDevice: файл клипа в роли камеры.
func (a *App) ClipDevice(path string) media.Device {
	d := ffmpeg.NewFileDevice(path, a.Log.Named("ffmpeg"))
	d.FFmpegPath, d.FFprobePath = a.Cfg.FFmpegPath, a.Cfg.FFprobePath
	return d
}

// DeviceLocation: статичные координаты из DEVICE_LAT/LNG или nil.
func (a *App) DeviceLocation() location.Provider {
	if !a.Cfg.HasDeviceLocation() {
		return nil
	}
	return location.Static{Position: location.Position{
		Latitude:  *a.Cfg.DeviceLat,
		Longitude: *a.Cfg.DeviceLng,
		Accuracy:  a.Cfg.DeviceAccuracy,
	}}
}

// Player возвращает (создавая при первом обращении) оркестратор игрока.
// withCamera подключает локальную камеру как источник по умолчанию.
func (a *App) Player(ctx context.Context, playerID string, withCamera bool) (*quest.Orchestrator, error) {
	a.mu.Lock()
	o, ok := a.players[playerID]
	a.mu.Unlock()
	if ok {
		return o, nil
	}

	capt := capture.New(a.Log.Named("capture"))
	deps := quest.Deps{
		Capturer:   capt,
		Judge:      a.Judge,
		Parser:     a.Parser,
		Location:   a.DeviceLocation(),
		Challenges: a.Challenges,
		Store:      a.Players,
		Custom:     a.Players,
		Rounds:     a.Rounds,
		Log:        a.Log.Named("quest"),
	}
	if withCamera {
		deps.Media = a.Camera()
	}
	if a.Cfg.FramesDir != "" {
		capt.Archive = roundFrames{root: a.Cfg.FramesDir, player: sanitizeDir(playerID)}
	}

	o, err := quest.New(ctx, quest.Config{
		PlayerID:        playerID,
		CaptureSeconds:  a.Cfg.CaptureSeconds,
		LocationTimeout: a.Cfg.LocationTimeout,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("player %s: %w", playerID, err)
	}
	if a.Cfg.DebugChallenge != "" && o.Snapshot().CustomChallenge == "" {
		if _, err := o.SetCustomChallenge(ctx, a.Cfg.DebugChallenge); err != nil {
			a.Log.Warn("DEBUG_CHALLENGE ignored", zap.Error(err))
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.players[playerID]; ok {
		return existing, nil
	}
	a.players[playerID] = o
	return o, nil
}
