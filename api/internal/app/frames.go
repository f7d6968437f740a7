package app

import (
	"path/filepath"
	"strings"

	"reality-quest/api/internal/capture"
)

// roundFrames раскладывает кадры раунда в <root>/<player>/<round id>/frame-XX.jpg.
// Каталог совпадает с id записи в журнале раундов.
type roundFrames struct {
	root   string
	player string
}

func (r roundFrames) Round(roundID string) (capture.FrameSink, error) {
	return capture.NewDirSink(filepath.Join(r.root, r.player), sanitizeDir(roundID))
}

// sanitizeDir: "tg:42" -> "tg_42", без разделителей пути.
func sanitizeDir(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			return r
		}
		return '_'
	}, s)
}
