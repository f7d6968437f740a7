package judge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reality-quest/api/internal/types"
)

type scriptedProvider struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	block   map[string]bool
	calls   []Request
}

func (p *scriptedProvider) Generate(ctx context.Context, req Request) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	block := p.block[req.Model]
	err := p.errs[req.Model]
	ans := p.answers[req.Model]
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return ans, err
}

func TestInvokeFallsBackToNextModel(t *testing.T) {
	p := &scriptedProvider{
		errs:    map[string]error{"gemini-2.5-flash": errors.New("503 overloaded")},
		answers: map[string]string{"gemini-2.0-flash": "success=true;confidence=0.9"},
	}
	inv, err := New(p, nil, time.Second, nil).Invoke(context.Background(), []Part{TextPart("x")})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", inv.Model)
	assert.Equal(t, "success=true;confidence=0.9", inv.RawText)
	require.Len(t, p.calls, 2)
	assert.True(t, p.calls[0].Schema)
	assert.Equal(t, JudgeTemperature, p.calls[0].Temperature)
	assert.Equal(t, SystemInstruction(), p.calls[0].System)
}

func TestInvokeExhausted(t *testing.T) {
	p := &scriptedProvider{
		answers: map[string]string{"a": "   ", "b": "the weather is nice"},
		block:   map[string]bool{"c": true},
	}
	j := New(p, []string{"a", "b", "c"}, 10*time.Millisecond, nil)
	j.Accept = func(raw string) bool { return strings.Contains(raw, "success") }

	_, err := j.Invoke(context.Background(), nil)
	var ex *AllModelsExhausted
	require.ErrorAs(t, err, &ex)
	require.Len(t, ex.Errors, 3)
	assert.Equal(t, "a: empty response", ex.Errors[0])
	assert.Equal(t, "b: unparseable response", ex.Errors[1])
	assert.Contains(t, ex.Errors[2], "c: timed out")
	assert.Contains(t, err.Error(), " | ")
}

func TestInvokeWithoutProvider(t *testing.T) {
	_, err := (&Judge{}).Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestBuildEvidencePartsOrder(t *testing.T) {
	clip, mime := "UklGRg==", "audio/wav"
	lat, lng, acc := 35.6, 139.7, 12.0
	ch := types.Challenge{Description: "Jump three times", LocationCheck: &types.LocationCheck{Label: "Hachiko", RadiusMeters: 180}}
	loc := types.LocationSnapshot{Status: types.LocationAvailable, Latitude: &lat, Longitude: &lng, Accuracy: &acc}
	ev := types.CaptureEvidence{FrameSamples: []string{"f1", "f2"}, AudioClipBase64: &clip, AudioClipMIMEType: &mime}

	parts := BuildEvidenceParts(ch, loc, ev)
	require.Len(t, parts, 4)
	assert.False(t, parts[0].IsBlob())
	assert.Contains(t, parts[0].Text, "Challenge: Jump three times")
	assert.Contains(t, parts[0].Text, "within 180m of Hachiko")
	assert.Contains(t, parts[0].Text, "lat=35.6, lng=139.7, accuracy=12m")
	assert.Contains(t, parts[0].Text, "audio/wav clip")
	assert.Equal(t, BlobPart("image/jpeg", "f1"), parts[1])
	assert.Equal(t, BlobPart("image/jpeg", "f2"), parts[2])
	assert.Equal(t, BlobPart("audio/wav", clip), parts[3])
}

func TestEvaluationPromptWithoutClipOrLocation(t *testing.T) {
	txt := EvaluationPrompt(types.Challenge{Description: "Sing"}, types.LocationSnapshot{Status: types.LocationDenied, Message: "permission denied"}, false)
	assert.Contains(t, txt, "Location requirement: none.")
	assert.Contains(t, txt, "GPS info: permission denied")
	assert.Contains(t, txt, "No audio clip is attached")
	assert.True(t, strings.HasSuffix(txt, KeyValueFormat))

	txt = EvaluationPrompt(types.Challenge{}, types.LocationSnapshot{Status: types.LocationSkipped}, false)
	assert.Contains(t, txt, "GPS info: skipped")
}

func TestEnginesRouting(t *testing.T) {
	for model, want := range map[string]bool{
		"gpt-4o": true, "o3-mini": true, "openai:gpt-5": true, "O4-mini": true,
		"gemini-2.5-flash": false, "openrouter": false, "": false,
	} {
		assert.Equal(t, want, IsOpenAIModel(model), model)
	}

	g, o := &scriptedProvider{answers: map[string]string{"gemini-2.0-flash": "g"}}, &scriptedProvider{answers: map[string]string{"gpt-5": "o"}}
	e := &Engines{Gemini: g, OpenAI: o}
	out, err := e.Generate(context.Background(), Request{Model: "openai:gpt-5"})
	require.NoError(t, err)
	assert.Equal(t, "o", out)
	out, err = e.Generate(context.Background(), Request{Model: "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, "g", out)

	_, err = (&Engines{Gemini: g}).Generate(context.Background(), Request{Model: "gpt-4o"})
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}
