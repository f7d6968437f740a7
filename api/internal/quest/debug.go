package quest

import (
	"time"

	"reality-quest/api/internal/types"
)

// Debug: полная диагностика раунда (успешного или упавшего).
type Debug struct {
	RoundID         string                  `json:"roundId"`
	Status          string                  `json:"status"`
	Phase           Phase                   `json:"phase,omitempty"`
	Error           string                  `json:"error,omitempty"`
	StartedAt       time.Time               `json:"startedAt"`
	FinishedAt      time.Time               `json:"finishedAt"`
	Challenge       types.Challenge         `json:"challenge"`
	CaptureSeconds  int                     `json:"captureSeconds"`
	SampledFrames   int                     `json:"sampledFrames"`
	VideoFramesSent int                     `json:"videoFramesSent"`
	AudioChunksSent int                     `json:"audioChunksSent"`
	AudioClipSent   bool                    `json:"audioClipSent"`
	AudioClipBytes  int                     `json:"audioClipBytes"`
	Model           string                  `json:"judgeModelUsed,omitempty"`
	RawText         string                  `json:"rawModelText,omitempty"`
	Parsed          *types.JudgeResult      `json:"parsedJudgeResult,omitempty"`
	ParseTrace      types.JudgeParseTrace   `json:"judgeParseTrace"`
	Final           *types.FinalJudgement   `json:"finalJudgement,omitempty"`
	Location        *types.LocationSnapshot `json:"locationSnapshot,omitempty"`
}
