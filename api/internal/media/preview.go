package media

import (
	"bytes"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SnapshotSurface пишет последний кадр в JPEG-файл, пока поток прицеплен.
// Замена <video>-превью для терминала: файл можно открыть в любом просмотрщике.
type SnapshotSurface struct {
	Path     string
	Interval time.Duration
	Log      *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewSnapshotSurface(path string, interval time.Duration, log *zap.Logger) *SnapshotSurface {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SnapshotSurface{Path: path, Interval: interval, Log: log}
}

func (s *SnapshotSurface) Attach(st Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()

	vts := st.VideoTracks()
	if len(vts) == 0 {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(vts[0], s.stop, s.done)
}

func (s *SnapshotSurface) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()
}

func (s *SnapshotSurface) detachLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}

func (s *SnapshotSurface) run(vt VideoTrack, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if vt.ReadyState() != StateLive {
				continue
			}
			if err := s.write(vt); err != nil {
				s.Log.Debug("preview snapshot failed", zap.Error(err))
			}
		}
	}
}

func (s *SnapshotSurface) write(vt VideoTrack) error {
	img, err := vt.Frame()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return err
	}
	// пишем во временный файл и переименовываем, чтобы просмотрщик не видел половину кадра
	tmp := filepath.Join(filepath.Dir(s.Path), "."+filepath.Base(s.Path)+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}
