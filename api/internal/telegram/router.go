// Package telegram - игра через бота: команды, геопозиция, видео как доказательство.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"reality-quest/api/internal/media"
	"reality-quest/api/internal/quest"
)

// Sender: часть BotAPI, нужная роутеру.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Players interface {
	Player(ctx context.Context, playerID string, withCamera bool) (*quest.Orchestrator, error)
}

type Router struct {
	Bot        Sender
	Players    Players
	ClipDevice func(path string) media.Device
	Log        *zap.Logger

	// Download сохраняет файл по URL во временный путь (подменяется в тестах).
	Download func(ctx context.Context, url string) (string, error)

	locations locationBook
	wg        sync.WaitGroup
}

func PlayerID(chatID int64) string { return "tg:" + strconv.FormatInt(chatID, 10) }

func (r *Router) logger() *zap.Logger {
	if r.Log == nil {
		r.Log = zap.NewNop()
	}
	return r.Log
}

// HandleUpdate разбирает апдейт. Раунд проверки идёт в фоне, остальное синхронно.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		r.handleCommand(ctx, msg)
	case msg.Location != nil:
		r.acceptLocation(cid, *msg.Location)
	case msg.Video != nil:
		r.acceptClip(ctx, cid, msg.Video.FileID)
	case msg.VideoNote != nil:
		r.acceptClip(ctx, cid, msg.VideoNote.FileID)
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "video/"):
		r.acceptClip(ctx, cid, msg.Document.FileID)
	case msg.Text != "":
		r.send(cid, "Send a video (or a round video note) of you doing the challenge. /help lists commands.")
	}
}

func (r *Router) player(ctx context.Context, cid int64) (*quest.Orchestrator, bool) {
	o, err := r.Players.Player(ctx, PlayerID(cid), false)
	if err != nil {
		r.logger().Error("load player", zap.Int64("chat_id", cid), zap.Error(err))
		r.send(cid, "❌ Could not load your game, try again later.")
		return nil, false
	}
	return o, true
}

func (r *Router) send(chatID int64, text string) {
	r.sendMsg(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendMsg(msg tgbotapi.MessageConfig) {
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
}

// sendError: ответ на ошибку раунда или команды.
func (r *Router) sendError(chatID int64, err error) {
	var pe *quest.PhaseError
	switch {
	case errors.Is(err, quest.ErrBusy):
		r.send(chatID, "⏳ A verification is already running. Wait for the verdict.")
	case errors.Is(err, quest.ErrInvalidCustomChallenge):
		r.send(chatID, "❌ "+err.Error())
	case errors.As(err, &pe):
		r.send(chatID, fmt.Sprintf("❌ Verification failed while %s: %v", pe.Phase, pe.Err))
	default:
		r.send(chatID, fmt.Sprintf("❌ Error: %v", err))
	}
}
