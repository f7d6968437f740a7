package types

import "time"

// CaptureEvidence: кадры и аудио одной попытки. Живёт до вызова модели.
type CaptureEvidence struct {
	FrameSamples      []string `json:"frameSamples"` // base64 JPEG
	VideoFramesSent   int      `json:"videoFramesSent"`
	AudioChunksSent   int      `json:"audioChunksSent"`
	AudioClipBase64   *string  `json:"audioClipBase64"`
	AudioClipMIMEType *string  `json:"audioClipMimeType"`
	AudioClipBytes    int      `json:"audioClipBytes"`
}

// JudgeResult: каноничный вердикт, независимо от стратегии разбора.
type JudgeResult struct {
	Success         bool     `json:"success"`
	Confidence      float64  `json:"confidence"`
	Reason          string   `json:"reason"`
	DetectedActions []string `json:"detectedActions"`
	SafetyNotes     string   `json:"safetyNotes"`
}

type ParseSource string

const (
	SourceKeyValue    ParseSource = "live-key-value"
	SourceJSON        ParseSource = "live-json"
	SourceNormalizer  ParseSource = "normalizer-json"
	SourceNarrative   ParseSource = "narrative-fallback"
	SourceParseFailed ParseSource = "parse-failed"
)

// JudgeParseTrace: диагностика: какая стратегия дала результат.
type JudgeParseTrace struct {
	Source            ParseSource `json:"source"`
	NormalizerModel   string      `json:"normalizerModel,omitempty"`
	NormalizerRawText string      `json:"normalizerRawText,omitempty"`
	NormalizerError   string      `json:"normalizerError,omitempty"`
}

// FinalJudgement: вердикт модели после учёта геопроверки.
type FinalJudgement struct {
	JudgeResult
	ScoreAdded      int    `json:"scoreAdded"`
	LocationMessage string `json:"locationMessage"`
}

type AppState struct {
	Score  int `json:"score"`
	Streak int `json:"streak"`
}

type HistoryRecord struct {
	ChallengeTitle string    `json:"challengeTitle"`
	Success        bool      `json:"success"`
	ScoreAdded     int       `json:"scoreAdded"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// MaxHistory: размер кольца истории.
const MaxHistory = 8
