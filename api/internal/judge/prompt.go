package judge

import (
	"fmt"
	"strings"

	"reality-quest/api/internal/types"
)

// KeyValueFormat: единственный допустимый формат ответа судьи.
const KeyValueFormat = "success=<true|false>;confidence=<0-1>;reason=<short text>;detected_actions=<a|b|c>;safety_notes=<short text>"

func SystemInstruction() string {
	return strings.Join([]string{
		"You are a strict judge of real-world missions.",
		"Base your judgement only on the submitted video frames and audio; if something is not confirmed, the verdict must be a failure.",
		"Answer with exactly one line. No explanations.",
		"Use only this format: " + KeyValueFormat,
		"confidence is a real number between 0 and 1.",
	}, " ")
}

// EvaluationPrompt: текст задания для судьи.
func EvaluationPrompt(ch types.Challenge, loc types.LocationSnapshot, hasAudioClip bool) string {
	locationDetails := "Location requirement: none."
	if lc := ch.LocationCheck; lc != nil {
		locationDetails = fmt.Sprintf("Location requirement: within %gm of %s.", lc.RadiusMeters, lc.Label)
	}

	var measurement string
	if loc.Status == types.LocationAvailable && loc.Latitude != nil && loc.Longitude != nil {
		acc := 0.0
		if loc.Accuracy != nil {
			acc = *loc.Accuracy
		}
		measurement = fmt.Sprintf("Measured GPS: lat=%g, lng=%g, accuracy=%gm", *loc.Latitude, *loc.Longitude, acc)
	} else {
		msg := loc.Message
		if msg == "" {
			msg = string(loc.Status)
		}
		measurement = "GPS info: " + msg
	}

	audio := "Video frames and the audio stream were sent. No audio clip is attached. Judge singing, speaking and other audio conditions only from the audio that was received."
	if hasAudioClip {
		audio = "Video frames and audio (realtime + audio/wav clip) were sent. Judge singing, speaking and other audio conditions from the audio."
	}

	return strings.Join([]string{
		"Decide whether the following challenge was completed.",
		"Challenge: " + ch.Description,
		locationDetails,
		measurement,
		audio,
		"List 1 to 4 concrete actions you could confirm on screen in detected_actions.",
		"Return the final answer in this single-line format only.",
		KeyValueFormat,
	}, "\n")
}

// BuildEvidenceParts: промпт, затем кадры по порядку, затем WAV-клип.
func BuildEvidenceParts(ch types.Challenge, loc types.LocationSnapshot, ev types.CaptureEvidence) []Part {
	hasClip := ev.AudioClipBase64 != nil && *ev.AudioClipBase64 != ""
	parts := make([]Part, 0, len(ev.FrameSamples)+2)
	parts = append(parts, TextPart(EvaluationPrompt(ch, loc, hasClip)))
	for _, f := range ev.FrameSamples {
		parts = append(parts, BlobPart("image/jpeg", f))
	}
	if hasClip {
		mime := "audio/wav"
		if ev.AudioClipMIMEType != nil && *ev.AudioClipMIMEType != "" {
			mime = *ev.AudioClipMIMEType
		}
		parts = append(parts, BlobPart(mime, *ev.AudioClipBase64))
	}
	return parts
}
