package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const helpText = `Reality Quest: do the challenge in real life, film it, send the video.

/challenge — show the current challenge
/next — skip to another challenge
/score — score and streak
/history — last rounds
/custom <text> — set your own challenge (/custom alone clears it)
/reset — reset score, streak and history

Share your location before the video when a challenge needs a place.`

func (r *Router) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
		if o, ok := r.player(ctx, cid); ok {
			r.sendMsg(challengeMessage(cid, o.Snapshot().Challenge))
		}
	case "challenge":
		if o, ok := r.player(ctx, cid); ok {
			r.sendMsg(challengeMessage(cid, o.Snapshot().Challenge))
		}
	case "next":
		r.nextChallenge(ctx, cid)
	case "score":
		if o, ok := r.player(ctx, cid); ok {
			r.send(cid, scoreText(o.Snapshot().State))
		}
	case "history":
		if o, ok := r.player(ctx, cid); ok {
			r.send(cid, historyText(o.Snapshot().History))
		}
	case "reset":
		o, ok := r.player(ctx, cid)
		if !ok {
			return
		}
		if err := o.Reset(ctx); err != nil {
			r.sendError(cid, err)
			return
		}
		r.send(cid, "🔄 Score, streak and history were reset.")
	case "custom":
		o, ok := r.player(ctx, cid)
		if !ok {
			return
		}
		ch, err := o.SetCustomChallenge(ctx, strings.TrimSpace(msg.CommandArguments()))
		if err != nil {
			r.sendError(cid, err)
			return
		}
		r.sendMsg(challengeMessage(cid, ch))
	default:
		r.send(cid, "Unknown command. /help lists commands.")
	}
}

func (r *Router) nextChallenge(ctx context.Context, cid int64) {
	o, ok := r.player(ctx, cid)
	if !ok {
		return
	}
	ch, err := o.NewChallenge()
	if err != nil {
		r.sendError(cid, err)
		return
	}
	r.sendMsg(challengeMessage(cid, ch))
}

func (r *Router) handleCallback(ctx context.Context, cq tgbotapi.CallbackQuery) {
	if _, err := r.Bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		r.logger().Debug("callback ack failed", zap.Error(err))
	}
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	switch cq.Data {
	case cbNextChallenge:
		r.nextChallenge(ctx, cq.Message.Chat.ID)
	}
}
