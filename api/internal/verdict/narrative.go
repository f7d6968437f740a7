package verdict

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"reality-quest/api/internal/types"
	"reality-quest/api/internal/util"
)

type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
)

type Rule struct {
	Pattern  string   `yaml:"pattern"`
	Polarity Polarity `yaml:"polarity"`
	Weight   int      `yaml:"weight"`
	Explicit bool     `yaml:"explicit"`

	re *regexp.Regexp
}

// RuleSet: таблица правил нарративного разбора. Без состояния после компиляции.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

//go:embed rules/narrative.yaml
var defaultRulesYAML []byte

var defaultRules = mustLoad(defaultRulesYAML)

func DefaultRuleSet() *RuleSet { return defaultRules }

func mustLoad(b []byte) *RuleSet {
	rs, err := LoadRuleSet(bytes.NewReader(b))
	if err != nil {
		panic(err)
	}
	return rs
}

func LoadRuleSet(r io.Reader) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.NewDecoder(r).Decode(&rs); err != nil {
		return nil, fmt.Errorf("narrative rules: %w", err)
	}
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}

func LoadRuleSetFile(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadRuleSet(f)
}

func (rs *RuleSet) compile() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("narrative rules: empty rule set")
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Polarity != Positive && r.Polarity != Negative {
			return fmt.Errorf("narrative rules: rule %d: bad polarity %q", i, r.Polarity)
		}
		if r.Weight <= 0 {
			r.Weight = 1
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return fmt.Errorf("narrative rules: rule %d: %w", i, err)
		}
		r.re = re
	}
	return nil
}

// Score: итог применения правил к тексту.
type Score struct {
	ExplicitTrue  bool
	ExplicitFalse bool
	Positive      int
	Negative      int
}

func (rs *RuleSet) Score(text string) Score {
	var s Score
	for _, r := range rs.Rules {
		if r.Explicit {
			if r.re.MatchString(text) {
				if r.Polarity == Positive {
					s.ExplicitTrue = true
				} else {
					s.ExplicitFalse = true
				}
			}
			continue
		}
		hits := len(r.re.FindAllStringIndex(text, -1)) * r.Weight
		if r.Polarity == Positive {
			s.Positive += hits
		} else {
			s.Negative += hits
		}
	}
	return s
}

const (
	narrativeReasonRunes = 220

	NotesExplicitFalse  = "fallback:narrative-explicit-false"
	NotesExplicitTrue   = "fallback:narrative-explicit-true"
	NotesHeuristicTrue  = "fallback:narrative-heuristic-true"
	NotesHeuristicFalse = "fallback:narrative-heuristic-false"
)

// ParseNarrative: последняя эвристика перед провалом разбора. nil, если сигналов нет.
func ParseNarrative(raw string, rs *RuleSet) *types.JudgeResult {
	if rs == nil {
		rs = DefaultRuleSet()
	}
	text := util.CollapseSpaces(raw)
	if text == "" {
		return nil
	}
	s := rs.Score(text)
	reason := summarize(text)

	switch {
	case s.ExplicitFalse && !s.ExplicitTrue:
		return &types.JudgeResult{Confidence: 0.9, Reason: reason, DetectedActions: []string{}, SafetyNotes: NotesExplicitFalse}
	case s.ExplicitTrue && !s.ExplicitFalse:
		return &types.JudgeResult{Success: true, Confidence: 0.85, Reason: reason, DetectedActions: []string{}, SafetyNotes: NotesExplicitTrue}
	}

	if s.Positive == 0 && s.Negative == 0 {
		return nil
	}
	// ничья: провал
	success := s.Positive > s.Negative
	delta := s.Positive - s.Negative
	if delta < 0 {
		delta = -delta
	}
	notes := NotesHeuristicFalse
	if success {
		notes = NotesHeuristicTrue
	}
	return &types.JudgeResult{
		Success:         success,
		Confidence:      clamp(0.55+min(0.3, float64(delta)*0.08), 0.5, 0.85),
		Reason:          reason,
		DetectedActions: []string{},
		SafetyNotes:     notes,
	}
}

// summarize: первое предложение, не длиннее 220 рун.
func summarize(text string) string {
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if strings.ContainsRune(".!?。！？", runes[i]) && isSpace(runes[i+1]) {
			return util.TruncateRunes(string(runes[:i+1]), narrativeReasonRunes)
		}
	}
	return util.TruncateRunes(text, narrativeReasonRunes)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '　'
}
