// Package gemini - judge.Provider поверх generative-ai-go.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"reality-quest/api/internal/judge"
	"reality-quest/api/internal/util"
)

type Engine struct {
	APIKey   string
	Attempts int
}

func New(apiKey string) *Engine {
	return &Engine{APIKey: strings.TrimSpace(apiKey), Attempts: 3}
}

func (e *Engine) Name() string { return "gemini" }

func (e *Engine) Generate(ctx context.Context, req judge.Request) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	parts, err := toParts(req.Parts)
	if err != nil {
		return "", err
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(strings.TrimSpace(req.Model))
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(req.Temperature),
	}
	if req.Schema {
		m.GenerationConfig.ResponseMIMEType = "application/json"
		m.GenerationConfig.ResponseSchema = resultSchema()
	}
	if strings.TrimSpace(req.System) != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	attempts := max(e.Attempts, 1)
	// ретраи на 5xx/транзиентные сбои
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", err
			}
			select {
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			continue
		}
		return strings.TrimSpace(util.StripCodeFences(firstText(resp))), nil
	}
	return "", lastErr
}

func toParts(in []judge.Part) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(in))
	for i, p := range in {
		if !p.IsBlob() {
			out = append(out, genai.Text(p.Text))
			continue
		}
		data, mimeFromURL, err := util.DecodeBase64MaybeDataURL(p.Data)
		if err != nil {
			return nil, fmt.Errorf("gemini: part %d: bad base64: %w", i, err)
		}
		out = append(out, &genai.Blob{MIMEType: util.PickMIME(p.MIMEType, mimeFromURL, data), Data: data})
	}
	return out, nil
}

func resultSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"success":         {Type: genai.TypeBoolean},
			"confidence":      {Type: genai.TypeNumber},
			"reason":          {Type: genai.TypeString},
			"detectedActions": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"safetyNotes":     {Type: genai.TypeString},
		},
		Required: []string{"success", "confidence", "reason", "detectedActions", "safetyNotes"},
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
