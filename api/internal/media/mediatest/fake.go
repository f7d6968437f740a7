// Package mediatest - управляемые потоки и устройства для тестов.
package mediatest

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"

	"reality-quest/api/internal/media"
)

type VideoTrack struct {
	mu      sync.Mutex
	w, h    int
	img     image.Image
	ready   chan struct{}
	once    sync.Once
	stopped atomic.Bool
	calls   int
	Frames  atomic.Int64
	// Fail: при true вызов Frame номер call (с нуля) завершается ошибкой.
	Fail func(call int) bool
}

var ErrFrameUnavailable = errors.New("mediatest: frame unavailable")

// NewVideoTrack: трек с однотонным кадром w×h. При w=0/h=0 трек ещё «не готов».
func NewVideoTrack(w, h int) *VideoTrack {
	v := &VideoTrack{ready: make(chan struct{})}
	if w > 0 && h > 0 {
		v.SetSize(w, h)
	}
	return v
}

func (v *VideoTrack) SetSize(w, h int) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	v.mu.Lock()
	v.w, v.h, v.img = w, h, img
	v.mu.Unlock()
	v.once.Do(func() { close(v.ready) })
}

func (v *VideoTrack) Kind() media.TrackKind { return media.KindVideo }

func (v *VideoTrack) ReadyState() media.ReadyState {
	if v.stopped.Load() {
		return media.StateEnded
	}
	return media.StateLive
}

func (v *VideoTrack) Stop() { v.stopped.Store(true) }

func (v *VideoTrack) Dimensions() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.w, v.h
}

func (v *VideoTrack) Ready() <-chan struct{} { return v.ready }

func (v *VideoTrack) Frame() (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.img == nil {
		return nil, io.ErrNoProgress
	}
	call := v.calls
	v.calls++
	if v.Fail != nil && v.Fail(call) {
		return nil, ErrFrameUnavailable
	}
	v.Frames.Add(1)
	return v.img, nil
}

// AudioTrack отдаёт Buffers полных буферов константного сигнала, затем io.EOF.
type AudioTrack struct {
	Rate    int
	Buffers int
	Level   float32

	mu      sync.Mutex
	read    int
	stopped atomic.Bool
}

func (a *AudioTrack) Kind() media.TrackKind { return media.KindAudio }

func (a *AudioTrack) ReadyState() media.ReadyState {
	if a.stopped.Load() {
		return media.StateEnded
	}
	return media.StateLive
}

func (a *AudioTrack) Stop() { a.stopped.Store(true) }

func (a *AudioTrack) SampleRate() int { return a.Rate }

func (a *AudioTrack) Read(buf []float32) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped.Load() || a.read >= a.Buffers {
		return 0, io.EOF
	}
	a.read++
	for i := range buf {
		buf[i] = a.Level
	}
	return len(buf), nil
}

type Stream struct {
	Video []*VideoTrack
	Audio []*AudioTrack
}

func (s *Stream) VideoTracks() []media.VideoTrack {
	out := make([]media.VideoTrack, 0, len(s.Video))
	for _, v := range s.Video {
		out = append(out, v)
	}
	return out
}

func (s *Stream) AudioTracks() []media.AudioTrack {
	out := make([]media.AudioTrack, 0, len(s.Audio))
	for _, a := range s.Audio {
		out = append(out, a)
	}
	return out
}

func (s *Stream) Tracks() []media.Track {
	out := make([]media.Track, 0, len(s.Video)+len(s.Audio))
	for _, v := range s.Video {
		out = append(out, v)
	}
	for _, a := range s.Audio {
		out = append(out, a)
	}
	return out
}

// NewStream: видео w×h и (если audioBuffers > 0) 48 kHz аудио.
func NewStream(w, h, audioBuffers int) *Stream {
	s := &Stream{Video: []*VideoTrack{NewVideoTrack(w, h)}}
	if audioBuffers > 0 {
		s.Audio = []*AudioTrack{{Rate: 48000, Buffers: audioBuffers, Level: 0.1}}
	}
	return s
}

// Device возвращает новый поток от New на каждый Open либо Err.
type Device struct {
	New   func() *Stream
	Err   error
	Opens atomic.Int64
}

func (d *Device) Open(ctx context.Context, _ media.Constraints) (media.Stream, error) {
	d.Opens.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.New(), nil
}
