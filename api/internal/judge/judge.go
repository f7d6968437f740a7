// Package judge вызывает мультимодальную модель-судью с перебором кандидатов.
package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Part: текст либо инлайн-блоб (base64).
type Part struct {
	Text     string
	MIMEType string
	Data     string
}

func TextPart(s string) Part { return Part{Text: s} }

func BlobPart(mime, b64 string) Part { return Part{MIMEType: mime, Data: b64} }

func (p Part) IsBlob() bool { return p.MIMEType != "" }

type Request struct {
	Model  string
	System string
	Parts  []Part
	// Schema: ограничить ответ JSON-формой JudgeResult.
	Schema      bool
	Temperature float32
}

// JudgeTemperature: судья и нормализатор отвечают детерминированно.
const JudgeTemperature float32 = 0

// Provider: один генеративный бэкенд (gemini, gpt, фейк в тестах).
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash"}

const DefaultTimeout = 20 * time.Second

// Invocation: сырой ответ и модель, которая его дала.
type Invocation struct {
	RawText string
	Model   string
}

// AllModelsExhausted: ни один кандидат не дал пригодного ответа.
type AllModelsExhausted struct {
	Errors []string
}

func (e *AllModelsExhausted) Error() string {
	return "judge: all models failed: " + strings.Join(e.Errors, " | ")
}

var ErrNoProvider = errors.New("judge: provider is nil")

type Judge struct {
	Provider Provider
	Models   []string
	Timeout  time.Duration
	// Accept решает, разбирается ли ответ. nil - годится любой непустой.
	Accept func(raw string) bool
	Log    *zap.Logger
}

func New(p Provider, models []string, timeout time.Duration, log *zap.Logger) *Judge {
	if len(models) == 0 {
		models = DefaultModels
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Judge{Provider: p, Models: models, Timeout: timeout, Log: log}
}

// Invoke пробует модели по порядку, каждую под своим таймаутом.
func (j *Judge) Invoke(ctx context.Context, parts []Part) (Invocation, error) {
	if j.Provider == nil {
		return Invocation{}, ErrNoProvider
	}
	var errs []string
	for _, model := range j.Models {
		raw, err := j.try(ctx, model, parts)
		if err != nil {
			j.Log.Warn("judge candidate failed", zap.String("model", model), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", model, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		j.Log.Info("judge answered", zap.String("model", model), zap.Int("raw_len", len(raw)))
		return Invocation{RawText: raw, Model: model}, nil
	}
	return Invocation{}, &AllModelsExhausted{Errors: errs}
}

func (j *Judge) try(ctx context.Context, model string, parts []Part) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	raw, err := j.Provider.Generate(cctx, Request{
		Model:       model,
		System:      SystemInstruction(),
		Parts:       parts,
		Schema:      true,
		Temperature: JudgeTemperature,
	})
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("timed out after %s", j.Timeout)
		}
		return "", err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty response")
	}
	if j.Accept != nil && !j.Accept(raw) {
		return "", errors.New("unparseable response")
	}
	return raw, nil
}
