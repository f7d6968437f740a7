package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reality-quest/api/internal/types"
)

var (
	ErrPermissionDenied = errors.New("location: permission denied")
	ErrUnsupported      = errors.New("location: geolocation unsupported")
)

const DefaultTimeout = 7 * time.Second

type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

type Provider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// Snapshot снимает позицию для задания с геоусловием. Ошибки превращаются в статус.
func Snapshot(ctx context.Context, ch types.Challenge, p Provider, timeout time.Duration) types.LocationSnapshot {
	if ch.LocationCheck == nil {
		return types.LocationSnapshot{Status: types.LocationSkipped}
	}
	if p == nil {
		return types.LocationSnapshot{Status: types.LocationUnsupported, Message: "this device does not support geolocation"}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := p.CurrentPosition(cctx)
	switch {
	case err == nil:
		return types.LocationSnapshot{
			Status:    types.LocationAvailable,
			Latitude:  &pos.Latitude,
			Longitude: &pos.Longitude,
			Accuracy:  &pos.Accuracy,
		}
	case errors.Is(err, ErrPermissionDenied):
		return types.LocationSnapshot{Status: types.LocationDenied, Message: "location permission was not granted"}
	case errors.Is(err, ErrUnsupported):
		return types.LocationSnapshot{Status: types.LocationUnsupported, Message: "this device does not support geolocation"}
	default:
		return types.LocationSnapshot{Status: types.LocationError, Message: "could not get location"}
	}
}

// Static: координаты устройства из конфигурации.
type Static struct {
	Position Position
}

func (s Static) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return s.Position, nil
}

// Fixed: одноразовая позиция, присланная игроком (Telegram, HTTP).
// Без позиции ждёт её до дедлайна контекста.
type Fixed struct {
	mu  sync.Mutex
	pos *Position
	set chan struct{}
}

func NewFixed() *Fixed { return &Fixed{set: make(chan struct{})} }

func (f *Fixed) Set(p Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := f.pos == nil
	f.pos = &p
	if first {
		close(f.set)
	}
}

func (f *Fixed) Get() (Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos == nil {
		return Position{}, false
	}
	return *f.pos, true
}

func (f *Fixed) CurrentPosition(ctx context.Context) (Position, error) {
	if p, ok := f.Get(); ok {
		return p, nil
	}
	select {
	case <-f.set:
		p, _ := f.Get()
		return p, nil
	case <-ctx.Done():
		return Position{}, fmt.Errorf("location: no position shared: %w", ctx.Err())
	}
}
