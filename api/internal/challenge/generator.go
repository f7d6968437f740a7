package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reality-quest/api/internal/judge"
	"reality-quest/api/internal/types"
	"reality-quest/api/internal/util"
)

const (
	minGeneratedPoints = 100
	maxGeneratedPoints = 250
)

// Generator придумывает задание через модель; при ошибке отдаёт задание из Fallback.
type Generator struct {
	Provider judge.Provider
	Model    string
	Timeout  time.Duration
	Fallback Source
	Log      *zap.Logger
}

var generatedJSON = regexp.MustCompile(`(?s)\{.*\}`)

func generatorPrompt(exclude string) string {
	lines := []string{
		"Invent one short, safe, real-world challenge that a player can prove on camera in about ten seconds.",
		"It must be visible on video or audible; no dangerous, illegal or embarrassing actions involving strangers.",
		`Return only JSON: {"title": "<2-4 words>", "description": "<one sentence, max 200 characters>", "points": <100-250>}`,
	}
	if exclude != "" {
		lines = append(lines, "Do not repeat this challenge: "+exclude)
	}
	return strings.Join(lines, "\n")
}

func (g *Generator) Pick(excludeID string) types.Challenge {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	c, err := g.Generate(ctx, excludeID)
	if err != nil {
		if g.Log != nil {
			g.Log.Warn("challenge generation failed, using pool", zap.Error(err))
		}
		if g.Fallback == nil {
			return Custom("Wave at the camera with both hands.")
		}
		return g.Fallback.Pick(excludeID)
	}
	return c
}

func (g *Generator) Generate(ctx context.Context, exclude string) (types.Challenge, error) {
	if g.Provider == nil {
		return types.Challenge{}, errors.New("challenge generator: provider is nil")
	}
	raw, err := g.Provider.Generate(ctx, judge.Request{
		Model:       g.Model,
		Parts:       []judge.Part{judge.TextPart(generatorPrompt(exclude))},
		Temperature: 0.9,
	})
	if err != nil {
		return types.Challenge{}, fmt.Errorf("challenge generator: %w", err)
	}
	return parseGenerated(raw)
}

func parseGenerated(raw string) (types.Challenge, error) {
	body := generatedJSON.FindString(util.StripCodeFences(raw))
	if body == "" {
		return types.Challenge{}, errors.New("challenge generator: no JSON in response")
	}
	var out struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Points      float64 `json:"points"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return types.Challenge{}, fmt.Errorf("challenge generator: bad JSON: %w", err)
	}
	desc, ok := NormalizeCustomText(out.Description)
	if !ok {
		return types.Challenge{}, errors.New("challenge generator: description missing or too long")
	}
	title := strings.TrimSpace(out.Title)
	if title == "" {
		title = "AI Challenge"
	}
	points := int(out.Points)
	points = min(max(points, minGeneratedPoints), maxGeneratedPoints)
	return types.Challenge{
		ID:          "ai-" + uuid.NewString()[:8],
		Title:       util.TruncateRunes(title, 40),
		Description: desc,
		Points:      points,
	}, nil
}
