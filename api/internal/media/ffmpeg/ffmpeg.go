// Package ffmpeg - media.Device поверх ffmpeg: камера (v4l2/avfoundation/...) или файл клипа.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"reality-quest/api/internal/media"
)

const AudioSampleRate = 48000

type Device struct {
	FFmpegPath  string
	FFprobePath string

	// Input: путь к файлу или имя устройства, Format - демуксер (-f), пусто для файлов.
	Input  string
	Format string

	// AudioInput: отдельный микрофон. Пусто: аудио берётся из Input, если оно там есть.
	AudioInput  string
	AudioFormat string

	// Realtime читает файл со скоростью воспроизведения (-re).
	Realtime bool

	Log *zap.Logger
}

// NewFileDevice: клип как «камера»: кадры идут в реальном времени.
func NewFileDevice(path string, log *zap.Logger) *Device {
	return &Device{Input: path, Realtime: true, Log: log}
}

func (d *Device) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func lookup(explicit, name string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return p, nil
}

func (d *Device) Open(ctx context.Context, c media.Constraints) (media.Stream, error) {
	if d.Input == "" {
		return nil, &media.MediaAcquisitionError{Reason: media.ErrNoDevice, Err: fmt.Errorf("ffmpeg: empty input")}
	}
	ffmpegBin, err := lookup(d.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, &media.MediaAcquisitionError{Reason: media.ErrNoDevice, Err: err}
	}
	ffprobeBin, err := lookup(d.FFprobePath, "ffprobe")
	if err != nil {
		return nil, &media.MediaAcquisitionError{Reason: media.ErrNoDevice, Err: err}
	}

	info, err := probe(ctx, ffprobeBin, d.Format, d.Input)
	if err != nil {
		return nil, err
	}
	if !info.HasVideo {
		return nil, &media.MediaAcquisitionError{Reason: media.ErrNoDevice, Err: media.ErrNoVideoTrack}
	}

	w, h := info.Width, info.Height
	if d.Format != "" || w <= 0 || h <= 0 {
		// живое устройство: размер задаём сами
		w, h = c.Width, c.Height
	}
	log := d.logger()
	log.Info("ffmpeg device opened",
		zap.String("input", d.Input),
		zap.String("format", d.Format),
		zap.Int("width", w), zap.Int("height", h),
		zap.Bool("has_audio", info.HasAudio))

	s := &stream{}
	vt, err := startVideo(ffmpegBin, d.videoArgs(w, h), w, h, log)
	if err != nil {
		return nil, &media.MediaAcquisitionError{Reason: media.ErrNoDevice, Err: err}
	}
	s.video = vt

	if args, ok := d.audioArgs(info.HasAudio, c); ok {
		at, err := startAudio(ffmpegBin, args, AudioSampleRate, log)
		if err != nil {
			// без звука всё равно можно играть
			log.Warn("ffmpeg audio start failed", zap.Error(err))
		} else {
			s.audio = at
		}
	}
	return s, nil
}

func (d *Device) inputArgs(format string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if d.Realtime {
		args = append(args, "-re")
	}
	if format != "" {
		args = append(args, "-f", format)
	}
	return args
}

func (d *Device) videoArgs(w, h int) []string {
	args := d.inputArgs(d.Format)
	if d.Format != "" {
		args = append(args, "-video_size", strconv.Itoa(w)+"x"+strconv.Itoa(h))
	}
	return append(args,
		"-i", d.Input,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", w, h),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1")
}

func (d *Device) audioArgs(inputHasAudio bool, c media.Constraints) ([]string, bool) {
	var args []string
	switch {
	case d.AudioInput != "":
		args = d.inputArgs(d.AudioFormat)
		args = append(args, "-i", d.AudioInput)
	case inputHasAudio:
		args = d.inputArgs(d.Format)
		args = append(args, "-i", d.Input)
	default:
		return nil, false
	}
	args = append(args, "-vn")
	if c.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	return append(args,
		"-ac", "1", // AudioTrack всегда моно
		"-ar", strconv.Itoa(AudioSampleRate),
		"-f", "f32le",
		"pipe:1"), true
}

type stream struct {
	video *videoTrack
	audio *audioTrack
}

func (s *stream) VideoTracks() []media.VideoTrack {
	if s.video == nil {
		return nil
	}
	return []media.VideoTrack{s.video}
}

func (s *stream) AudioTracks() []media.AudioTrack {
	if s.audio == nil {
		return nil
	}
	return []media.AudioTrack{s.audio}
}

func (s *stream) Tracks() []media.Track {
	var out []media.Track
	if s.video != nil {
		out = append(out, s.video)
	}
	if s.audio != nil {
		out = append(out, s.audio)
	}
	return out
}
