// Package gpt - judge.Provider поверх OpenAI Responses API.
package gpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"reality-quest/api/internal/judge"
	"reality-quest/api/internal/util"
)

const DefaultEndpoint = "https://api.openai.com/v1/responses"

type Engine struct {
	APIKey   string
	Endpoint string
	httpc    *http.Client
}

func New(key string) *Engine {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	return &Engine{
		APIKey:   strings.TrimSpace(key),
		Endpoint: DefaultEndpoint,
		// Timeout=0: дедлайн задаёт контекст вызова
		httpc: &http.Client{Timeout: 0, Transport: tr},
	}
}

// WithHTTPClient подменяет HTTP-клиент (тесты, трассировка).
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string { return "gpt" }

func (e *Engine) Generate(ctx context.Context, req judge.Request) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY is empty")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}

	body, err := buildBody(model, req)
	if err != nil {
		return "", err
	}
	payload, _ := json.Marshal(body)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(hreq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai %d: %s", resp.StatusCode, truncateBytes(bytes.TrimSpace(raw), 400))
	}
	return strings.TrimSpace(util.StripCodeFences(extractResponsesText(raw))), nil
}

func buildBody(model string, req judge.Request) (map[string]any, error) {
	content := make([]any, 0, len(req.Parts))
	skippedAudio := false
	for i, p := range req.Parts {
		if !p.IsBlob() {
			content = append(content, map[string]any{"type": "input_text", "text": p.Text})
			continue
		}
		if !isOpenAIImageMIME(p.MIMEType) {
			// Responses API не принимает WAV инлайном
			skippedAudio = true
			continue
		}
		data, _, err := util.DecodeBase64MaybeDataURL(p.Data)
		if err != nil || len(data) == 0 {
			return nil, fmt.Errorf("openai: part %d: invalid base64", i)
		}
		content = append(content, map[string]any{
			"type":      "input_image",
			"image_url": util.MakeDataURL(p.MIMEType, p.Data),
		})
	}
	if skippedAudio {
		content = append(content, map[string]any{"type": "input_text", "text": "Note: the audio clip could not be attached for this model."})
	}

	input := make([]any, 0, 2)
	if s := strings.TrimSpace(req.System); s != "" {
		input = append(input, map[string]any{
			"role":    "system",
			"content": []any{map[string]any{"type": "input_text", "text": s}},
		})
	}
	input = append(input, map[string]any{"type": "message", "role": "user", "content": content})

	body := map[string]any{
		"model": model,
		"input": input,
	}
	if supportsTemperature(model) {
		body["temperature"] = req.Temperature
	}
	if req.Schema {
		body["text"] = map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   "judge_result",
				"strict": true,
				"schema": judge.ResultSchema(),
			},
		}
	}
	return body, nil
}

// reasoning-модели отклоняют temperature
func supportsTemperature(model string) bool {
	m := strings.ToLower(model)
	return !strings.HasPrefix(m, "gpt-5") && !(len(m) > 1 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9')
}

// extractResponsesText достаёт текст из конверта Responses API:
// сначала output_text, иначе склеивает output[i].content[j].text.
func extractResponsesText(raw []byte) string {
	type content struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	type output struct {
		Content []content `json:"content"`
		Role    string    `json:"role,omitempty"`
	}
	var env struct {
		Output     []output `json:"output"`
		OutputText string   `json:"output_text"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	if s := strings.TrimSpace(env.OutputText); s != "" {
		return s
	}

	var b strings.Builder
	for _, o := range env.Output {
		for _, c := range o.Content {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			if c.Type == "output_text" || c.Type == "text" || c.Type == "" {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(c.Text)
			}
		}
	}
	return b.String()
}

func truncateBytes(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func isOpenAIImageMIME(m string) bool {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	}
	return false
}
