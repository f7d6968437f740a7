package verdict

import (
	"regexp"
	"strconv"
	"strings"

	"reality-quest/api/internal/types"
)

var actionSep = regexp.MustCompile(`[|,、，]`)

// ParseKeyValue разбирает строку success=..;confidence=..;... Нужны оба ключа success= и confidence=.
func ParseKeyValue(raw string) *types.JudgeResult {
	line := strings.TrimSpace(strings.ReplaceAll(raw, "\n", " "))
	if !strings.Contains(line, "success=") || !strings.Contains(line, "confidence=") {
		return nil
	}

	fields := map[string]string{}
	for _, seg := range strings.Split(line, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(seg), "=")
		if !ok || key == "" {
			continue
		}
		fields[strings.ToLower(key)] = strings.TrimSpace(val)
	}

	reason, ok := fields["reason"]
	if !ok {
		reason = DefaultReason
	}
	return &types.JudgeResult{
		Success:         truthy(fields["success"]),
		Confidence:      parseConfidence(fields["confidence"]),
		Reason:          reason,
		DetectedActions: splitActions(fields["detected_actions"]),
		SafetyNotes:     fields["safety_notes"],
	}
}

func splitActions(s string) []string {
	out := []string{}
	for _, a := range actionSep.Split(s, -1) {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
		if len(out) == MaxDetectedActions {
			break
		}
	}
	return out
}

// FormatKeyValue: обратная к ParseKeyValue запись (разделители в значениях заменяются).
func FormatKeyValue(r types.JudgeResult) string {
	clean := func(s string) string {
		return strings.NewReplacer(";", ",", "\n", " ").Replace(s)
	}
	actions := make([]string, 0, len(r.DetectedActions))
	for _, a := range r.DetectedActions {
		a = strings.TrimSpace(actionSep.ReplaceAllString(clean(a), " "))
		if a != "" {
			actions = append(actions, a)
		}
	}
	return strings.Join([]string{
		"success=" + strconv.FormatBool(r.Success),
		"confidence=" + strconv.FormatFloat(r.Confidence, 'f', -1, 64),
		"reason=" + clean(r.Reason),
		"detected_actions=" + strings.Join(actions, "|"),
		"safety_notes=" + clean(r.SafetyNotes),
	}, ";")
}
