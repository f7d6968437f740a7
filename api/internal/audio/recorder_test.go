package audio

import (
	"encoding/base64"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	rate    int
	buffers int

	mu   sync.Mutex
	read int
}

func (f *fakeSource) SampleRate() int { return f.rate }

func (f *fakeSource) Read(buf []float32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.read >= f.buffers {
		return 0, io.EOF
	}
	f.read++
	for i := range buf {
		buf[i] = 0.25
	}
	return len(buf), nil
}

func waitDone(t *testing.T, r *Recorder) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder loop did not finish")
	}
}

func TestRecorderEncodesAccumulatedChunks(t *testing.T) {
	r := NewRecorder(nil)
	require.NoError(t, r.Start(&fakeSource{rate: 16000, buffers: 3}))
	waitDone(t, r)

	c := r.Stop()
	assert.Equal(t, 3, c.SentChunks)
	require.NotNil(t, c.ClipBase64)
	require.NotNil(t, c.ClipMIME)
	assert.Equal(t, "audio/wav", *c.ClipMIME)
	assert.Equal(t, 3*BufferSize, c.SampleCount)
	assert.Equal(t, 44+2*3*BufferSize, c.ClipBytes)

	wav, err := base64.StdEncoding.DecodeString(*c.ClipBase64)
	require.NoError(t, err)
	assert.Len(t, wav, c.ClipBytes)
}

func TestRecorderSecondStopReturnsCountOnly(t *testing.T) {
	r := NewRecorder(nil)
	require.NoError(t, r.Start(&fakeSource{rate: 48000, buffers: 2}))
	waitDone(t, r)

	first := r.Stop()
	require.NotNil(t, first.ClipBase64)

	second := r.Stop()
	assert.Equal(t, first.SentChunks, second.SentChunks)
	assert.Nil(t, second.ClipBase64)
	assert.Nil(t, second.ClipMIME)
	assert.Zero(t, second.ClipBytes)
}

func TestRecorderNoAudioYieldsNilClip(t *testing.T) {
	r := NewRecorder(nil)
	require.NoError(t, r.Start(&fakeSource{rate: 48000}))
	waitDone(t, r)

	c := r.Stop()
	assert.Zero(t, c.SentChunks)
	assert.Nil(t, c.ClipBase64)
}

func TestRecorderStopWithoutStart(t *testing.T) {
	c := NewRecorder(nil).Stop()
	assert.Nil(t, c.ClipBase64)
	assert.Zero(t, c.SentChunks)
}

func TestRecorderRejectsNilSourceAndDoubleStart(t *testing.T) {
	r := NewRecorder(nil)
	assert.ErrorIs(t, r.Start(nil), ErrNilSource)
	require.NoError(t, r.Start(&fakeSource{rate: 16000}))
	assert.Error(t, r.Start(&fakeSource{rate: 16000}))
}
