// Package capture снимает посекундные кадры и аудиоклип для одной попытки.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"time"

	"go.uber.org/zap"

	"reality-quest/api/internal/audio"
	"reality-quest/api/internal/media"
	"reality-quest/api/internal/types"
)

const (
	MaxSamples   = 12
	ScaleFactor  = 0.4
	MinWidth     = 320
	MinHeight    = 240
	JPEGQuality  = 80
	ReadyTimeout = 5 * time.Second

	DefaultSeconds = 10
	MaxSeconds     = 60
)

var (
	ErrVideoInitTimeout = errors.New("capture: video did not become ready in time")
	ErrNoFramesCaptured = errors.New("capture: no evaluation frames captured")
)

// FrameSink получает JPEG каждого тика. Отправка не блокирует захват, ошибки глотаются.
type FrameSink interface {
	SendFrame(ctx context.Context, tick int, jpegData []byte) error
}

// FrameArchive открывает отдельный FrameSink на каждый раунд.
type FrameArchive interface {
	Round(roundID string) (FrameSink, error)
}

// Round: параметры одного захвата.
type Round struct {
	ID      string
	Seconds int
	OnTick  func(remaining int)
}

type Capturer struct {
	Log          *zap.Logger
	Interval     time.Duration
	ReadyTimeout time.Duration
	// Archive: необязательный архив кадров, свой приёмник на каждый раунд.
	Archive FrameArchive
}

func New(log *zap.Logger) *Capturer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Capturer{Log: log, Interval: time.Second, ReadyTimeout: ReadyTimeout}
}

// ClampSeconds: длительность вне 1..60 - значение по умолчанию.
func ClampSeconds(n int) int {
	if n < 1 || n > MaxSeconds {
		return DefaultSeconds
	}
	return n
}

// Stride: шаг отбора кадров для оценки.
func Stride(durationSeconds int) int {
	return max(1, durationSeconds/MaxSamples)
}

// WaitForVideoReady ждёт ненулевой размер кадра.
func WaitForVideoReady(ctx context.Context, v media.VideoTrack, timeout time.Duration) error {
	if w, h := v.Dimensions(); w > 0 && h > 0 {
		return nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-v.Ready():
		return nil
	case <-t.C:
		return ErrVideoInitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Capturer) Capture(ctx context.Context, s media.Stream, r Round) (types.CaptureEvidence, error) {
	var ev types.CaptureEvidence
	durationSeconds := r.Seconds
	if s == nil {
		return ev, fmt.Errorf("capture: %w", media.ErrNoVideoTrack)
	}
	videos := s.VideoTracks()
	if len(videos) == 0 {
		return ev, fmt.Errorf("capture: %w", media.ErrNoVideoTrack)
	}
	video := videos[0]

	readyTimeout := c.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = ReadyTimeout
	}
	if err := WaitForVideoReady(ctx, video, readyTimeout); err != nil {
		return ev, err
	}

	rec := audio.NewRecorder(c.Log)
	if tracks := s.AudioTracks(); len(tracks) > 0 {
		if err := rec.Start(tracks[0]); err != nil {
			c.Log.Warn("audio recorder failed to start, continuing video-only", zap.Error(err))
		}
	}

	samples, sent, err := c.loop(ctx, video, durationSeconds, r.OnTick, c.roundSink(r.ID))
	clip := rec.Stop()
	if err != nil {
		return ev, err
	}
	if len(samples) == 0 {
		return ev, ErrNoFramesCaptured
	}

	ev = types.CaptureEvidence{
		FrameSamples:      samples,
		VideoFramesSent:   sent,
		AudioChunksSent:   clip.SentChunks,
		AudioClipBase64:   clip.ClipBase64,
		AudioClipMIMEType: clip.ClipMIME,
		AudioClipBytes:    clip.ClipBytes,
	}
	c.Log.Info("capture finished",
		zap.Int("ticks", durationSeconds),
		zap.Int("frames_sent", sent),
		zap.Int("samples", len(samples)),
		zap.Int("audio_chunks", clip.SentChunks),
		zap.Int("audio_bytes", clip.ClipBytes))
	return ev, nil
}

// roundSink: приёмник раунда из архива; без id раунда кадры не архивируются.
func (c *Capturer) roundSink(roundID string) FrameSink {
	if c.Archive == nil || roundID == "" {
		return nil
	}
	s, err := c.Archive.Round(roundID)
	if err != nil {
		c.Log.Warn("frame archive unavailable", zap.String("round", roundID), zap.Error(err))
		return nil
	}
	return s
}

func (c *Capturer) loop(ctx context.Context, video media.VideoTrack, seconds int, onTick func(int), sink FrameSink) ([]string, int, error) {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Second
	}
	stride := Stride(seconds)
	samples := make([]string, 0, MaxSamples)
	sent := 0
	var lastGood []byte

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for elapsed := 0; elapsed < seconds; elapsed++ {
		if onTick != nil {
			onTick(seconds - elapsed)
		}

		// каждый тик считается отправленным; при сбое кадра берётся последний удачный
		sent++
		data, err := grabJPEG(video)
		fresh := err == nil
		if fresh {
			lastGood = data
			c.forward(ctx, sink, elapsed, data)
		} else {
			c.Log.Warn("frame grab failed", zap.Int("tick", elapsed), zap.Error(err))
			data = lastGood
		}

		last := elapsed == seconds-1
		if data != nil && (elapsed%stride == 0 || last) {
			b64 := base64.StdEncoding.EncodeToString(data)
			switch {
			case !fresh && len(samples) > 0 && samples[len(samples)-1] == b64:
				// тот же кадр уже в выборке
			case len(samples) < MaxSamples:
				samples = append(samples, b64)
			case last:
				// финальный тик важнее промежуточного
				samples[len(samples)-1] = b64
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, sent, ctx.Err()
		}
	}
	return samples, sent, nil
}

func (c *Capturer) forward(ctx context.Context, sink FrameSink, tick int, data []byte) {
	if sink == nil {
		return
	}
	go func() {
		if err := sink.SendFrame(ctx, tick, data); err != nil {
			c.Log.Debug("frame sink send failed", zap.Int("tick", tick), zap.Error(err))
		}
	}()
}

// TargetSize: 40% от нативного размера, не меньше 320×240.
func TargetSize(w, h int) (int, int) {
	return max(int(math.Round(float64(w)*ScaleFactor)), MinWidth),
		max(int(math.Round(float64(h)*ScaleFactor)), MinHeight)
}

func grabJPEG(v media.VideoTrack) ([]byte, error) {
	img, err := v.Frame()
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy())
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaleNN(img, w, h), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleNN: масштабирование ближайшим соседом.
func scaleNN(src image.Image, newW, newH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()
	for y := 0; y < newH; y++ {
		sy := sb.Min.Y + (y*srcH)/newH
		for x := 0; x < newW; x++ {
			sx := sb.Min.X + (x*srcW)/newW
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
