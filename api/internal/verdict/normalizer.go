package verdict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"reality-quest/api/internal/judge"
	"reality-quest/api/internal/types"
)

var DefaultNormalizerModels = []string{"gemini-2.5-flash", "gemini-2.0-flash"}

const DefaultNormalizerTimeout = 8 * time.Second

// Normalizer просит модель переписать невнятный ответ судьи в JSON.
type Normalizer struct {
	Provider judge.Provider
	Models   []string
	Timeout  time.Duration
	Log      *zap.Logger
}

type Normalized struct {
	Model   string
	RawText string
	Result  types.JudgeResult
}

func NormalizerPrompt(ch types.Challenge, rawText string) string {
	return strings.Join([]string{
		"You are a judge-text normalizer. Return the specified JSON based only on the judge text below.",
		"Do not make a new judgement; extract the conclusion contained in the judge text.",
		"If the judge text is contradictory or unclear, set success=false and confidence to 0.4 or lower.",
		"Keep reason within 120 characters, only the key point.",
		"detectedActions is an array of 0 to 4 short phrases.",
		"challenge: " + ch.Description,
		"judge_text: " + rawText,
	}, "\n")
}

// Normalize: (nil, nil) - кандидатов нет; (nil, err) - все кандидаты упали.
func (n *Normalizer) Normalize(ctx context.Context, ch types.Challenge, rawText string) (*Normalized, error) {
	if n == nil || n.Provider == nil || len(n.Models) == 0 {
		return nil, nil
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultNormalizerTimeout
	}
	log := n.Log
	if log == nil {
		log = zap.NewNop()
	}

	prompt := NormalizerPrompt(ch, rawText)
	var errs []string
	for _, model := range n.Models {
		text, err := n.try(ctx, model, prompt, timeout)
		if err != nil {
			log.Debug("normalizer candidate failed", zap.String("model", model), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", model, err))
			continue
		}
		parsed := ParseJSON(text)
		if parsed == nil {
			errs = append(errs, model+": invalid json payload")
			continue
		}
		parsed.SafetyNotes = MergeSafetyNotes(parsed.SafetyNotes, "normalizer:"+model)
		return &Normalized{Model: model, RawText: text, Result: *parsed}, nil
	}
	if len(errs) > 0 {
		return nil, errors.New(strings.Join(errs, " | "))
	}
	return nil, nil
}

func (n *Normalizer) try(ctx context.Context, model, prompt string, timeout time.Duration) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	text, err := n.Provider.Generate(cctx, judge.Request{
		Model:       model,
		Parts:       []judge.Part{judge.TextPart(prompt)},
		Schema:      true,
		Temperature: judge.JudgeTemperature,
	})
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("timed out after %s", timeout)
		}
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}
