package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"reality-quest/api/internal/capture"
)

type Config struct {
	Port       string `env:"PORT" envDefault:"8000"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON    bool   `env:"LOG_JSON" envDefault:"false"`
	PlayerID   string `env:"PLAYER_ID" envDefault:"local"`
	WebhookURL string `env:"WEBHOOK_URL"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`

	JudgeModels       []string      `env:"JUDGE_MODELS" envSeparator:","`
	NormalizerModels  []string      `env:"NORMALIZER_MODELS" envSeparator:","`
	GeneratorModel    string        `env:"GENERATOR_MODEL"`
	JudgeTimeout      time.Duration `env:"JUDGE_TIMEOUT" envDefault:"20s"`
	NormalizerTimeout time.Duration `env:"NORMALIZER_TIMEOUT" envDefault:"8s"`
	LocationTimeout   time.Duration `env:"LOCATION_TIMEOUT" envDefault:"7s"`
	CaptureSeconds    int           `env:"CAPTURE_SECONDS" envDefault:"10"`

	CameraInput  string `env:"CAMERA_INPUT" envDefault:"/dev/video0"`
	CameraFormat string `env:"CAMERA_FORMAT" envDefault:"v4l2"`
	AudioInput   string `env:"AUDIO_INPUT"`
	AudioFormat  string `env:"AUDIO_FORMAT" envDefault:"pulse"`
	FFmpegPath   string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath  string `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	PreviewPath  string `env:"PREVIEW_PATH"`
	FramesDir    string `env:"FRAMES_DIR"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"reality-quest.db"`

	ChallengesFile     string `env:"CHALLENGES_FILE"`
	NarrativeRulesFile string `env:"NARRATIVE_RULES_FILE"`
	DebugChallenge     string `env:"DEBUG_CHALLENGE"`

	DeviceLat      *float64 `env:"DEVICE_LAT"`
	DeviceLng      *float64 `env:"DEVICE_LNG"`
	DeviceAccuracy float64  `env:"DEVICE_ACCURACY" envDefault:"25"`
}

// Load читает окружение. CAPTURE_SECONDS вне 1..60 становится значением по умолчанию.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.CaptureSeconds = capture.ClampSeconds(cfg.CaptureSeconds)
	cfg.JudgeModels = compact(cfg.JudgeModels)
	cfg.NormalizerModels = compact(cfg.NormalizerModels)
	return &cfg, nil
}

// StoreDSN: DATABASE_URL для pgx, иначе путь к файлу sqlite.
func (c *Config) StoreDSN() (driver, dsn string) {
	switch strings.ToLower(c.StoreDriver) {
	case "pgx", "postgres":
		return "pgx", c.DatabaseURL
	default:
		return "sqlite3", c.SQLitePath
	}
}

// HasDeviceLocation: координаты устройства заданы обе.
func (c *Config) HasDeviceLocation() bool {
	return c.DeviceLat != nil && c.DeviceLng != nil
}

// ModelsWithOverride: GEMINI_MODEL/OPENAI_MODEL встают в начало списка.
func (c *Config) ModelsWithOverride(list []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(m string) {
		m = strings.TrimSpace(m)
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	add(c.GeminiModel)
	if c.OpenAIModel != "" {
		add("openai:" + strings.TrimPrefix(c.OpenAIModel, "openai:"))
	}
	for _, m := range list {
		add(m)
	}
	return out
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
