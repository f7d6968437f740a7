package challenge

import (
	"strings"
	"unicode/utf8"

	"reality-quest/api/internal/types"
)

const (
	CustomID       = "custom-debug-challenge"
	CustomTitle    = "DEBUG custom challenge"
	CustomPoints   = 150
	CustomMaxRunes = 220
)

// NormalizeCustomText: обрезка пробелов, 1..220 символов.
func NormalizeCustomText(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(s)
	if n < 1 || n > CustomMaxRunes {
		return "", false
	}
	return s, true
}

func Custom(text string) types.Challenge {
	return types.Challenge{
		ID:          CustomID,
		Title:       CustomTitle,
		Description: text,
		Points:      CustomPoints,
	}
}
