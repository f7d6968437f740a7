package verdict

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"reality-quest/api/internal/types"
)

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseJSON ищет первый '{' … последний '}' и читает snake_case или camelCase поля.
func ParseJSON(raw string) *types.JudgeResult {
	candidate := jsonObject.FindString(raw)
	if candidate == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil
	}

	reason := DefaultReason
	if s, ok := obj["reason"].(string); ok {
		reason = s
	}
	notes, _ := pick(obj, "safety_notes", "safetyNotes").(string)

	return &types.JudgeResult{
		Success:         NormalizeBoolean(obj["success"]),
		Confidence:      jsonConfidence(obj["confidence"]),
		Reason:          reason,
		DetectedActions: jsonActions(pick(obj, "detected_actions", "detectedActions")),
		SafetyNotes:     notes,
	}
}

func pick(obj map[string]any, snake, camel string) any {
	if v, ok := obj[snake]; ok && v != nil {
		return v
	}
	return obj[camel]
}

func jsonConfidence(v any) float64 {
	switch x := v.(type) {
	case float64:
		return NormalizeConfidence(x)
	case string:
		// числовая строка от небрежной модели
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return NormalizeConfidence(f)
		}
	}
	return 0
}

func jsonActions(v any) []string {
	out := []string{}
	arr, ok := v.([]any)
	if !ok {
		return out
	}
	for _, a := range arr {
		if s, ok := a.(string); ok {
			out = append(out, s)
			if len(out) == MaxDetectedActions {
				break
			}
		}
	}
	return out
}
