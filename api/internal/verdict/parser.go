package verdict

import (
	"context"

	"go.uber.org/zap"

	"reality-quest/api/internal/types"
	"reality-quest/api/internal/util"
)

const failedPreviewRunes = 240

type Output struct {
	Result types.JudgeResult
	Trace  types.JudgeParseTrace
}

// Parser: каскад: key-value, JSON, нормализатор, нарратив, провал.
type Parser struct {
	Normalizer *Normalizer
	Rules      *RuleSet
	Log        *zap.Logger
}

func NewParser(n *Normalizer, rules *RuleSet, log *zap.Logger) *Parser {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{Normalizer: n, Rules: rules, Log: log}
}

// Structured: ответ разбирается без модели (key-value или JSON).
func Structured(raw string) bool {
	return ParseJSON(raw) != nil || ParseKeyValue(raw) != nil
}

// Parse никогда не возвращает ошибку: худший исход - вердикт parse-failed.
func (p *Parser) Parse(ctx context.Context, raw string, ch types.Challenge) Output {
	if r := ParseKeyValue(raw); r != nil {
		return Output{Result: *r, Trace: types.JudgeParseTrace{Source: types.SourceKeyValue}}
	}
	if r := ParseJSON(raw); r != nil {
		return Output{Result: *r, Trace: types.JudgeParseTrace{Source: types.SourceJSON}}
	}

	var normErr string
	norm, err := p.Normalizer.Normalize(ctx, ch, raw)
	switch {
	case err != nil:
		normErr = err.Error()
		p.Log.Warn("normalizer failed", zap.Error(err))
	case norm != nil:
		return Output{Result: norm.Result, Trace: types.JudgeParseTrace{
			Source:            types.SourceNormalizer,
			NormalizerModel:   norm.Model,
			NormalizerRawText: norm.RawText,
		}}
	}

	if r := ParseNarrative(raw, p.Rules); r != nil {
		return Output{Result: *r, Trace: types.JudgeParseTrace{Source: types.SourceNarrative, NormalizerError: normErr}}
	}
	p.Log.Warn("judge response could not be parsed", zap.String("preview", util.TruncateRunes(raw, 80)))
	return Output{Result: FailureResult(raw), Trace: types.JudgeParseTrace{Source: types.SourceParseFailed, NormalizerError: normErr}}
}

func FailureResult(raw string) types.JudgeResult {
	return types.JudgeResult{
		Reason:          "parse failed: " + util.TruncateRunes(raw, failedPreviewRunes),
		DetectedActions: []string{},
	}
}
