package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"reality-quest/api/internal/location"
	"reality-quest/api/internal/quest"
)

const maxClipBytes = 20 << 20 // лимит getFile у Bot API

// acceptClip скачивает видео и запускает раунд в фоне.
func (r *Router) acceptClip(ctx context.Context, chatID int64, fileID string) {
	o, ok := r.player(ctx, chatID)
	if !ok {
		return
	}
	if o.Snapshot().Verifying {
		r.sendError(chatID, quest.ErrBusy)
		return
	}
	var loc location.Provider
	if pos, ok := r.locations.take(chatID); ok {
		fixed := location.NewFixed()
		fixed.Set(pos)
		loc = fixed
	}

	r.send(chatID, fmt.Sprintf("🎬 Got it. Checking %d seconds of your clip…", o.CaptureSeconds()))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.verifyClip(ctx, o, chatID, fileID, loc)
	}()
}

func (r *Router) verifyClip(ctx context.Context, o *quest.Orchestrator, chatID int64, fileID string, loc location.Provider) {
	log := r.logger().With(zap.Int64("chat_id", chatID))
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		log.Warn("get file url", zap.Error(err))
		r.sendError(chatID, err)
		return
	}
	dl := r.Download
	if dl == nil {
		dl = download
	}
	p, err := dl(ctx, url)
	if err != nil {
		log.Warn("download clip", zap.Error(err))
		r.sendError(chatID, fmt.Errorf("download: %w", err))
		return
	}
	defer os.Remove(p)

	out, err := o.Verify(ctx, quest.RoundOptions{Device: r.ClipDevice(p), Location: loc})
	if err != nil {
		r.sendError(chatID, err)
		return
	}
	r.send(chatID, verdictText(out))
	r.sendMsg(challengeMessage(chatID, out.Next))
}

// Wait дожидается фоновых раундов (для остановки).
func (r *Router) Wait() { r.wg.Wait() }

func download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}

	f, err := os.CreateTemp("", "reality-quest-tg-*"+path.Ext(req.URL.Path))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxClipBytes)); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
