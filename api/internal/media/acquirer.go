package media

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Acquirer кэширует поток и раздаёт его превью и захвату.
type Acquirer struct {
	log         *zap.Logger
	constraints Constraints

	mu       sync.Mutex
	device   Device
	stream   Stream
	surfaces []Surface
}

func NewAcquirer(device Device, c Constraints, log *zap.Logger, surfaces ...Surface) *Acquirer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Acquirer{log: log, device: device, constraints: c, surfaces: surfaces}
}

// Acquire возвращает живой поток. Закэшированный переиспользуется, только если все его треки live;
// поток с частично остановленными треками останавливается целиком и открывается заново.
func (a *Acquirer) Acquire(ctx context.Context) (Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if AllTracksLive(a.stream) {
		a.log.Debug("reusing live media stream")
		a.attachLocked()
		return a.stream, nil
	}
	if a.stream != nil {
		// остатки прошлого потока
		StopAll(a.stream)
		a.stream = nil
	}
	if a.device == nil {
		return nil, &MediaAcquisitionError{Reason: ErrNoDevice}
	}

	s, err := a.device.Open(ctx, a.constraints)
	if err != nil {
		var mae *MediaAcquisitionError
		if errors.As(err, &mae) {
			return nil, mae
		}
		reason := ErrNoDevice
		if errors.Is(err, ErrPermissionDenied) {
			reason = ErrPermissionDenied
		}
		return nil, &MediaAcquisitionError{Reason: reason, Err: err}
	}
	if !AllTracksLive(s) {
		StopAll(s)
		return nil, &MediaAcquisitionError{Reason: ErrNoDevice, Err: errors.New("device returned ended tracks")}
	}

	a.stream = s
	a.log.Info("media stream acquired",
		zap.Int("video_tracks", len(s.VideoTracks())),
		zap.Int("audio_tracks", len(s.AudioTracks())))
	a.attachLocked()
	return s, nil
}

func (a *Acquirer) attachLocked() {
	for _, sf := range a.surfaces {
		sf.Attach(a.stream)
	}
}

// Release останавливает все треки и отцепляет превью. Повторный вызов безопасен.
func (a *Acquirer) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
}

func (a *Acquirer) releaseLocked() {
	for _, sf := range a.surfaces {
		sf.Detach()
	}
	if a.stream != nil {
		StopAll(a.stream)
		a.stream = nil
		a.log.Debug("media stream released")
	}
}
