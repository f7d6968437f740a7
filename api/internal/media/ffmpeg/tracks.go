package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"reality-quest/api/internal/media"
)

// proc: один процесс ffmpeg, пишущий сырые данные в stdout.
type proc struct {
	cancel context.CancelFunc
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr bytes.Buffer
	ended  atomic.Bool
	once   sync.Once
}

func startProc(bin string, args []string) (*proc, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &proc{cancel: cancel}
	p.cmd = exec.CommandContext(ctx, bin, args...)
	p.cmd.Stderr = &p.stderr
	out, err := p.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	p.out = out
	if err := p.cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}
	return p, nil
}

func (p *proc) stop() {
	p.ended.Store(true)
	p.once.Do(func() {
		p.cancel()
		_ = p.cmd.Wait()
	})
}

func (p *proc) state() media.ReadyState {
	if p.ended.Load() {
		return media.StateEnded
	}
	return media.StateLive
}

type videoTrack struct {
	p    *proc
	w, h int
	log  *zap.Logger

	mu     sync.Mutex
	latest *image.RGBA

	ready     chan struct{}
	readyOnce sync.Once
}

func startVideo(bin string, args []string, w, h int, log *zap.Logger) (*videoTrack, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid frame size %dx%d", w, h)
	}
	p, err := startProc(bin, args)
	if err != nil {
		return nil, err
	}
	v := &videoTrack{p: p, w: w, h: h, log: log, ready: make(chan struct{})}
	go v.loop()
	return v, nil
}

func (v *videoTrack) loop() {
	frameSize := v.w * v.h * 4
	for {
		img := image.NewRGBA(image.Rect(0, 0, v.w, v.h))
		if _, err := io.ReadFull(v.p.out, img.Pix[:frameSize]); err != nil {
			stopped := v.p.ended.Load()
			v.p.stop()
			if !stopped && !errors.Is(err, io.EOF) {
				v.log.Warn("ffmpeg video read", zap.Error(err), zap.String("stderr", strings.TrimSpace(v.p.stderr.String())))
			}
			return
		}
		v.mu.Lock()
		v.latest = img
		v.mu.Unlock()
		v.readyOnce.Do(func() { close(v.ready) })
	}
}

func (v *videoTrack) Kind() media.TrackKind        { return media.KindVideo }
func (v *videoTrack) ReadyState() media.ReadyState { return v.p.state() }
func (v *videoTrack) Stop()                        { v.p.stop() }
func (v *videoTrack) Ready() <-chan struct{}       { return v.ready }

func (v *videoTrack) Dimensions() (int, int) {
	select {
	case <-v.ready:
		return v.w, v.h
	default:
		return 0, 0
	}
}

var errNoFrame = errors.New("ffmpeg: no frame decoded yet")

func (v *videoTrack) Frame() (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.latest == nil {
		return nil, errNoFrame
	}
	return v.latest, nil
}

type audioTrack struct {
	p    *proc
	rate int

	mu  sync.Mutex
	raw []byte
}

func startAudio(bin string, args []string, rate int, log *zap.Logger) (*audioTrack, error) {
	p, err := startProc(bin, args)
	if err != nil {
		return nil, err
	}
	log.Debug("ffmpeg audio started", zap.Int("sample_rate", rate))
	return &audioTrack{p: p, rate: rate}, nil
}

func (a *audioTrack) Kind() media.TrackKind        { return media.KindAudio }
func (a *audioTrack) ReadyState() media.ReadyState { return a.p.state() }
func (a *audioTrack) Stop()                        { a.p.stop() }
func (a *audioTrack) SampleRate() int              { return a.rate }

// Read блокируется до заполнения buf; хвост отдаётся частично вместе с io.EOF.
func (a *audioTrack) Read(buf []float32) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if need := len(buf) * 4; cap(a.raw) < need {
		a.raw = make([]byte, need)
	}
	raw := a.raw[:len(buf)*4]
	n, err := io.ReadFull(a.p.out, raw)
	samples := decodeF32LE(raw[:n-n%4], buf)
	if err != nil {
		a.p.stop()
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return samples, err
	}
	return samples, nil
}

func decodeF32LE(raw []byte, dst []float32) int {
	n := len(raw) / 4
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return n
}
