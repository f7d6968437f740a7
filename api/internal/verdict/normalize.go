// Package verdict превращает свободный ответ судьи в каноничный JudgeResult.
package verdict

import (
	"math"
	"strconv"
	"strings"
)

const (
	MaxDetectedActions = 8
	DefaultReason      = "No reason was returned."
)

// NormalizeConfidence: NaN/Inf → 0, (1,100] → проценты, затем [0,1].
func NormalizeConfidence(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > 1 && v <= 100 {
		v /= 100
	}
	return clamp(v, 0, 1)
}

// NormalizeBoolean принимает bool, число (> 0) или строку true/1/yes.
func NormalizeBoolean(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x > 0
	case int:
		return x > 0
	case string:
		return truthy(x)
	}
	return false
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// parseConfidence: число из строки; хвостовой % допускается.
func parseConfidence(s string) float64 {
	s = strings.TrimSpace(s)
	pct := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if pct {
		return clamp(f/100, 0, 1)
	}
	return NormalizeConfidence(f)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// MergeSafetyNotes добавляет extra через '|', если его ещё нет.
func MergeSafetyNotes(base, extra string) string {
	if base == "" {
		return extra
	}
	if strings.Contains(base, extra) {
		return base
	}
	return base + "|" + extra
}
