// Package media описывает живой поток камеры/микрофона и его повторное использование.
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
)

type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

type ReadyState string

const (
	StateLive  ReadyState = "live"
	StateEnded ReadyState = "ended"
)

type Track interface {
	Kind() TrackKind
	ReadyState() ReadyState
	Stop()
}

type VideoTrack interface {
	Track
	// Dimensions: нативный размер кадра; 0×0 пока первый кадр не декодирован.
	Dimensions() (width, height int)
	// Ready закрывается, когда известен размер кадра.
	Ready() <-chan struct{}
	// Frame: последний декодированный кадр.
	Frame() (image.Image, error)
}

type AudioTrack interface {
	Track
	SampleRate() int
	Read(buf []float32) (int, error)
}

type Stream interface {
	VideoTracks() []VideoTrack
	AudioTracks() []AudioTrack
	Tracks() []Track
}

type FacingMode string

const (
	FacingEnvironment FacingMode = "environment"
	FacingUser        FacingMode = "user"
)

// Constraints: пожелания к устройству (как getUserMedia).
type Constraints struct {
	Width            int
	Height           int
	Facing           FacingMode
	AudioChannels    int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

func DefaultConstraints() Constraints {
	return Constraints{
		Width:            1280,
		Height:           720,
		Facing:           FacingEnvironment,
		AudioChannels:    1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Surface: превью, к которому можно прицепить поток.
type Surface interface {
	Attach(s Stream)
	Detach()
}

var (
	ErrPermissionDenied = errors.New("media: permission denied")
	ErrNoDevice         = errors.New("media: no device available")
	ErrNoVideoTrack     = errors.New("media: stream has no video track")
)

// MediaAcquisitionError: не удалось получить камеру/микрофон.
type MediaAcquisitionError struct {
	Reason error // ErrPermissionDenied | ErrNoDevice | иная причина
	Err    error
}

func (e *MediaAcquisitionError) Error() string {
	if e.Err == nil || errors.Is(e.Err, e.Reason) {
		return fmt.Sprintf("media acquisition failed: %v", e.Reason)
	}
	return fmt.Sprintf("media acquisition failed: %v: %v", e.Reason, e.Err)
}

func (e *MediaAcquisitionError) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{e.Reason, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// AllTracksLive: поток пригоден к повторному использованию, ни один трек не остановлен.
func AllTracksLive(s Stream) bool {
	if s == nil {
		return false
	}
	tracks := s.Tracks()
	if len(tracks) == 0 {
		return false
	}
	for _, t := range tracks {
		if t.ReadyState() != StateLive {
			return false
		}
	}
	return true
}

// HasLiveTrack: хотя бы один трек ещё live.
func HasLiveTrack(s Stream) bool {
	if s == nil {
		return false
	}
	for _, t := range s.Tracks() {
		if t.ReadyState() == StateLive {
			return true
		}
	}
	return false
}

func StopAll(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
