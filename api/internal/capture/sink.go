package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirSink складывает кадры попытки в каталог доказательств.
type DirSink struct {
	Dir string
}

func NewDirSink(root, roundID string) (*DirSink, error) {
	dir := filepath.Join(root, roundID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence dir: %w", err)
	}
	return &DirSink{Dir: dir}, nil
}

func (d *DirSink) SendFrame(_ context.Context, tick int, jpegData []byte) error {
	return os.WriteFile(filepath.Join(d.Dir, fmt.Sprintf("frame-%02d.jpg", tick)), jpegData, 0o644)
}
