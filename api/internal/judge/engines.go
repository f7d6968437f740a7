package judge

import (
	"context"
	"fmt"
	"strings"
)

// Engines маршрутизирует модель к провайдеру по имени.
type Engines struct {
	Gemini Provider
	OpenAI Provider
}

const openAIPrefix = "openai:"

// IsOpenAIModel: gpt-*, o1/o3/o4-*, либо явный префикс openai:.
func IsOpenAIModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, openAIPrefix), strings.HasPrefix(m, "gpt-"):
		return true
	case len(m) > 1 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9':
		return true
	}
	return false
}

func (e *Engines) get(model string) (Provider, string, error) {
	if IsOpenAIModel(model) {
		if e.OpenAI == nil {
			return nil, "", fmt.Errorf("model %q needs OPENAI_API_KEY", model)
		}
		return e.OpenAI, strings.TrimPrefix(strings.TrimSpace(model), openAIPrefix), nil
	}
	if e.Gemini == nil {
		return nil, "", fmt.Errorf("model %q needs GEMINI_API_KEY", model)
	}
	return e.Gemini, model, nil
}

func (e *Engines) Generate(ctx context.Context, req Request) (string, error) {
	p, model, err := e.get(req.Model)
	if err != nil {
		return "", err
	}
	req.Model = model
	return p.Generate(ctx, req)
}
