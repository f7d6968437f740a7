package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"reality-quest/api/internal/media"
)

type probeInfo struct {
	Width    int
	Height   int
	HasVideo bool
	HasAudio bool
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func parseProbe(raw []byte) (probeInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return probeInfo{}, fmt.Errorf("ffprobe output: %w", err)
	}
	var info probeInfo
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if !info.HasVideo {
				info.HasVideo = true
				info.Width, info.Height = s.Width, s.Height
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

func probeArgs(format, input string) []string {
	args := []string{"-v", "error"}
	if format != "" {
		args = append(args, "-f", format)
	}
	return append(args,
		"-show_entries", "stream=codec_type,width,height",
		"-of", "json",
		input)
}

func probe(ctx context.Context, ffprobe, format, input string) (probeInfo, error) {
	cmd := exec.CommandContext(ctx, ffprobe, probeArgs(format, input)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return probeInfo{}, classify(fmt.Errorf("ffprobe %s: %w: %s", input, err, strings.TrimSpace(stderr.String())), stderr.String())
	}
	return parseProbe(stdout.Bytes())
}

// classify сводит ошибку ffmpeg/ffprobe к MediaAcquisitionError.
func classify(err error, stderr string) error {
	low := strings.ToLower(stderr)
	if strings.Contains(low, "permission denied") || strings.Contains(low, "operation not permitted") {
		return &media.MediaAcquisitionError{Reason: media.ErrPermissionDenied, Err: err}
	}
	return &media.MediaAcquisitionError{Reason: media.ErrNoDevice, Err: err}
}
