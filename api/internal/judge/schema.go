package judge

// ResultSchema: JSON Schema ответа судьи (camelCase, все поля обязательны).
func ResultSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"success":         map[string]any{"type": "boolean"},
			"confidence":      map[string]any{"type": "number"},
			"reason":          map[string]any{"type": "string"},
			"detectedActions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"safetyNotes":     map[string]any{"type": "string"},
		},
		"required": []string{"success", "confidence", "reason", "detectedActions", "safetyNotes"},
	}
}
