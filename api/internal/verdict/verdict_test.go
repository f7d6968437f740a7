package verdict

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reality-quest/api/internal/judge"
	"reality-quest/api/internal/types"
)

func TestNormalizeConfidence(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.5, 0.5}, {1, 1}, {85, 0.85}, {100, 1}, {100.5, 1}, {-3, 0},
		{math.NaN(), 0}, {math.Inf(1), 0}, {1.5, 0.015},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, NormalizeConfidence(c.in), 1e-9, "in=%v", c.in)
	}
	for _, v := range []float64{-1e9, -1, 0, 0.3, 2, 50, 99.9, 101, 1e12} {
		got := NormalizeConfidence(v)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestNormalizeBoolean(t *testing.T) {
	assert.True(t, NormalizeBoolean(true))
	assert.True(t, NormalizeBoolean(1.0))
	assert.True(t, NormalizeBoolean(" YES "))
	assert.True(t, NormalizeBoolean("1"))
	assert.False(t, NormalizeBoolean("no"))
	assert.False(t, NormalizeBoolean(0.0))
	assert.False(t, NormalizeBoolean(nil))
	assert.False(t, NormalizeBoolean([]any{true}))
}

func TestParseKeyValueSquats(t *testing.T) {
	r := ParseKeyValue("success=true;confidence=0.92;reason=squats detected;detected_actions=squat|jump;safety_notes=")
	require.NotNil(t, r)
	assert.True(t, r.Success)
	assert.InDelta(t, 0.92, r.Confidence, 1e-9)
	assert.Equal(t, "squats detected", r.Reason)
	assert.Equal(t, []string{"squat", "jump"}, r.DetectedActions)
	assert.Equal(t, "", r.SafetyNotes)
}

func TestParseKeyValueRequiresBothKeys(t *testing.T) {
	assert.Nil(t, ParseKeyValue("success=true;reason=x"))
	assert.Nil(t, ParseKeyValue("confidence=1"))
	assert.Nil(t, ParseKeyValue(""))
}

func TestParseKeyValueDetails(t *testing.T) {
	// ключи ищутся в нижнем регистре
	assert.Nil(t, ParseKeyValue("SUCCESS=yes;CONFIDENCE=1"))

	r := ParseKeyValue("success=yes;\nconfidence=85;reason=a=b;detected_actions=a, b、c，d| ;safety_notes=ok")
	require.NotNil(t, r)
	assert.True(t, r.Success)
	assert.InDelta(t, 0.85, r.Confidence, 1e-9)
	assert.Equal(t, "a=b", r.Reason)
	assert.Equal(t, []string{"a", "b", "c", "d"}, r.DetectedActions)
	assert.Equal(t, "ok", r.SafetyNotes)

	r = ParseKeyValue("success=true;confidence=abc")
	require.NotNil(t, r)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Equal(t, DefaultReason, r.Reason)
	assert.Empty(t, r.DetectedActions)

	r = ParseKeyValue("success=true;confidence=70%")
	require.NotNil(t, r)
	assert.InDelta(t, 0.7, r.Confidence, 1e-9)

	r = ParseKeyValue("success=true;confidence=1;detected_actions=1|2|3|4|5|6|7|8|9|10")
	require.NotNil(t, r)
	assert.Len(t, r.DetectedActions, MaxDetectedActions)
}

func TestParseKeyValueOrderAndLastWins(t *testing.T) {
	a := ParseKeyValue("success=true;confidence=0.7;reason=r;detected_actions=x|y;safety_notes=n")
	b := ParseKeyValue("safety_notes=n;detected_actions=x|y;reason=r;confidence=0.7;success=true")
	assert.Equal(t, a, b)

	dup := ParseKeyValue("success=true;confidence=0.1;success=false;confidence=0.6")
	require.NotNil(t, dup)
	assert.False(t, dup.Success)
	assert.InDelta(t, 0.6, dup.Confidence, 1e-9)
}

func TestFormatKeyValueRoundTrip(t *testing.T) {
	in := []types.JudgeResult{
		{Success: true, Confidence: 0.92, Reason: "squats detected", DetectedActions: []string{"squat", "jump"}},
		{Success: false, Confidence: 0, Reason: "nothing; really", DetectedActions: []string{}, SafetyNotes: "dark"},
		{Success: true, Confidence: 1, Reason: "ok", DetectedActions: []string{"wave, hand"}},
	}
	for _, r := range in {
		out := ParseKeyValue(FormatKeyValue(r))
		require.NotNil(t, out)
		assert.Equal(t, r.Success, out.Success)
		assert.Equal(t, r.Confidence, out.Confidence)
		assert.Len(t, out.DetectedActions, len(r.DetectedActions))
	}
	assert.Equal(t, []string{"squat", "jump"}, ParseKeyValue(FormatKeyValue(in[0])).DetectedActions)
}

func TestParseJSON(t *testing.T) {
	r := ParseJSON("Here you go: ```json\n{\"success\": \"yes\", \"confidence\": 90, \"reason\": \"ok\", \"detectedActions\": [\"wave\", 3, \"smile\"], \"safety_notes\": \"none\"}\n```")
	require.NotNil(t, r)
	assert.True(t, r.Success)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
	assert.Equal(t, []string{"wave", "smile"}, r.DetectedActions)
	assert.Equal(t, "none", r.SafetyNotes)

	r = ParseJSON(`{"success": 0, "confidence": true, "detected_actions": ["a"], "detectedActions": ["b"]}`)
	require.NotNil(t, r)
	assert.False(t, r.Success)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Equal(t, DefaultReason, r.Reason)
	assert.Equal(t, []string{"a"}, r.DetectedActions)

	assert.Nil(t, ParseJSON("no braces at all"))
	assert.Nil(t, ParseJSON("{broken"))
	assert.Nil(t, ParseJSON("{not: json}"))
}

func TestMergeSafetyNotes(t *testing.T) {
	assert.Equal(t, "normalizer:m", MergeSafetyNotes("", "normalizer:m"))
	assert.Equal(t, "x|normalizer:m", MergeSafetyNotes("x", "normalizer:m"))
	assert.Equal(t, "x|normalizer:m", MergeSafetyNotes("x|normalizer:m", "normalizer:m"))
}

func TestParseNarrative(t *testing.T) {
	r := ParseNarrative("I looked closely. The success is false because nobody jumped.", nil)
	require.NotNil(t, r)
	assert.False(t, r.Success)
	assert.Equal(t, 0.9, r.Confidence)
	assert.Equal(t, NotesExplicitFalse, r.SafetyNotes)
	assert.Equal(t, "I looked closely.", r.Reason)

	r = ParseNarrative("Verdict: success: true", nil)
	require.NotNil(t, r)
	assert.True(t, r.Success)
	assert.Equal(t, 0.85, r.Confidence)
	assert.Equal(t, NotesExplicitTrue, r.SafetyNotes)

	r = ParseNarrative("The challenge was completed and the criteria were met.", nil)
	require.NotNil(t, r)
	assert.True(t, r.Success)
	assert.InDelta(t, 0.71, r.Confidence, 1e-9)
	assert.Equal(t, NotesHeuristicTrue, r.SafetyNotes)

	r = ParseNarrative("The challenge was completed, but I cannot confirm the audio.", nil)
	require.NotNil(t, r, "tie")
	assert.False(t, r.Success)
	assert.InDelta(t, 0.55, r.Confidence, 1e-9)
	assert.Equal(t, NotesHeuristicFalse, r.SafetyNotes)

	assert.Nil(t, ParseNarrative("A person stands near a statue.", nil))
	assert.Nil(t, ParseNarrative("   ", nil))
}

func TestParseNarrativeConfidenceBounds(t *testing.T) {
	text := strings.Repeat("insufficient. ", 20)
	r := ParseNarrative(text, nil)
	require.NotNil(t, r)
	assert.False(t, r.Success)
	assert.InDelta(t, 0.85, r.Confidence, 1e-9)
}

func TestSummarizeTruncates(t *testing.T) {
	long := strings.Repeat("あ", 300)
	assert.Len(t, []rune(summarize(long)), 220)
	assert.Equal(t, "完了！", summarize("完了！ 次へ"))
}

func TestLoadRuleSet(t *testing.T) {
	rs, err := LoadRuleSet(strings.NewReader(`
rules:
  - {pattern: 'thumbs up', polarity: positive, weight: 3}
  - {pattern: 'blurry', polarity: negative}
`))
	require.NoError(t, err)
	s := rs.Score("Thumbs up but blurry")
	assert.Equal(t, 3, s.Positive)
	assert.Equal(t, 1, s.Negative)

	r := ParseNarrative("thumbs up, blurry", rs)
	require.NotNil(t, r)
	assert.True(t, r.Success)

	_, err = LoadRuleSet(strings.NewReader(`rules: [{pattern: 'x', polarity: maybe}]`))
	assert.Error(t, err)
	_, err = LoadRuleSet(strings.NewReader(`rules: [{pattern: '(', polarity: positive}]`))
	assert.Error(t, err)
	_, err = LoadRuleSet(strings.NewReader(`rules: []`))
	assert.Error(t, err)
}

type fakeProvider struct {
	answers map[string]string
	errs    map[string]error
	calls   int
	reqs    []judge.Request
}

func (f *fakeProvider) Generate(_ context.Context, req judge.Request) (string, error) {
	f.calls++
	f.reqs = append(f.reqs, req)
	return f.answers[req.Model], f.errs[req.Model]
}

func TestParserKeyValueWinsOverJSON(t *testing.T) {
	p := NewParser(nil, nil, nil)
	out := p.Parse(context.Background(), `success=true;confidence=0.8;reason={"success":false}`, types.Challenge{})
	assert.Equal(t, types.SourceKeyValue, out.Trace.Source)
	assert.True(t, out.Result.Success)

	out = p.Parse(context.Background(), `{"success":true,"confidence":0.8}`, types.Challenge{})
	assert.Equal(t, types.SourceJSON, out.Trace.Source)
}

func TestParserNormalizer(t *testing.T) {
	prov := &fakeProvider{
		errs:    map[string]error{"m1": errors.New("boom")},
		answers: map[string]string{"m2": `{"success":false,"confidence":0.3,"reason":"unclear","detectedActions":[],"safetyNotes":""}`},
	}
	p := NewParser(&Normalizer{Provider: prov, Models: []string{"m1", "m2"}}, nil, nil)
	out := p.Parse(context.Background(), "The person maybe did it", types.Challenge{Description: "wave"})

	assert.Equal(t, types.SourceNormalizer, out.Trace.Source)
	assert.Equal(t, "m2", out.Trace.NormalizerModel)
	assert.Equal(t, "normalizer:m2", out.Result.SafetyNotes)
	assert.InDelta(t, 0.3, out.Result.Confidence, 1e-9)
	assert.Equal(t, 2, prov.calls)
	for _, req := range prov.reqs {
		assert.True(t, req.Schema)
		assert.Equal(t, judge.JudgeTemperature, req.Temperature)
	}
}

func TestParserNarrativeAfterNormalizerFailure(t *testing.T) {
	prov := &fakeProvider{answers: map[string]string{"m1": "not json"}, errs: map[string]error{"m2": errors.New("quota")}}
	p := NewParser(&Normalizer{Provider: prov, Models: []string{"m1", "m2"}}, nil, nil)

	out := p.Parse(context.Background(), "Unable to confirm any jumping.", types.Challenge{})
	assert.Equal(t, types.SourceNarrative, out.Trace.Source)
	assert.Equal(t, "m1: invalid json payload | m2: quota", out.Trace.NormalizerError)
	assert.False(t, out.Result.Success)
}

func TestParserParseFailed(t *testing.T) {
	raw := strings.Repeat("x", 300)
	out := NewParser(nil, nil, nil).Parse(context.Background(), raw, types.Challenge{})
	assert.Equal(t, types.SourceParseFailed, out.Trace.Source)
	assert.False(t, out.Result.Success)
	assert.Equal(t, 0.0, out.Result.Confidence)
	assert.Equal(t, "parse failed: "+raw[:240], out.Result.Reason)
	assert.Empty(t, out.Trace.NormalizerError)
}

func TestStructured(t *testing.T) {
	assert.True(t, Structured("success=false;confidence=0"))
	assert.True(t, Structured(`{"success":true}`))
	assert.False(t, Structured("hello"))
}
