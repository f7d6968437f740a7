package audio

import (
	"encoding/base64"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// BufferSize: размер буфера, которым читается трек (как ScriptProcessor 4096).
const BufferSize = 4096

const ClipMIMEType = "audio/wav"

// Source: живой аудиотрек: блокирующее чтение буферов фиксированного размера.
type Source interface {
	SampleRate() int
	Read(buf []float32) (int, error)
}

// Capture: итог записи.
type Capture struct {
	SentChunks  int
	ClipBase64  *string
	ClipMIME    *string
	ClipBytes   int
	SampleCount int
}

// Recorder владеет накопленным PCM до первого Stop.
type Recorder struct {
	log *zap.Logger

	mu      sync.Mutex
	chunks  [][]int16
	total   int
	sent    int
	stopped bool
	done    chan struct{}
}

var ErrNilSource = errors.New("audio: nil source")

func NewRecorder(log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{log: log}
}

// Start запускает чтение трека в отдельной горутине.
func (r *Recorder) Start(src Source) error {
	if src == nil {
		return ErrNilSource
	}
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return errors.New("audio: recorder already started")
	}
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(src)
	return nil
}

func (r *Recorder) loop(src Source) {
	defer close(r.done)
	buf := make([]float32, BufferSize)
	rate := src.SampleRate()
	for {
		n, err := src.Read(buf)
		if n > 0 {
			pcm := Downsample(buf[:n], rate, TargetSampleRate)
			if !r.push(pcm) {
				return
			}
		}
		if err != nil {
			r.log.Debug("audio track read finished", zap.Error(err))
			return
		}
	}
}

func (r *Recorder) push(pcm []int16) bool {
	if len(pcm) == 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.chunks = append(r.chunks, pcm)
	r.total += len(pcm)
	r.sent++
	return true
}

// Stop склеивает чанки и кодирует WAV. Повторный вызов возвращает только счётчик.
func (r *Recorder) Stop() Capture {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return Capture{SentChunks: r.sent}
	}
	r.stopped = true

	if r.total <= 0 {
		return Capture{SentChunks: r.sent}
	}

	merged := mergeChunks(r.chunks, r.total)
	r.chunks = nil
	wav := EncodeWAV(merged, TargetSampleRate, 1)
	b64 := base64.StdEncoding.EncodeToString(wav)
	mime := ClipMIMEType
	return Capture{
		SentChunks:  r.sent,
		ClipBase64:  &b64,
		ClipMIME:    &mime,
		ClipBytes:   len(wav),
		SampleCount: len(merged),
	}
}
