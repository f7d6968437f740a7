package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reality-quest/api/internal/app"
	"reality-quest/api/internal/httpserver"
	"reality-quest/api/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API (and the Telegram bot when TELEGRAM_BOT_TOKEN is set)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServers(cmd.Context(), false)
	},
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot (webhook when WEBHOOK_URL is set, otherwise polling)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServers(cmd.Context(), true)
	},
}

// runServers: HTTP API всегда, бот при наличии токена (для bot обязателен).
func runServers(ctx context.Context, requireBot bool) error {
	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if !a.HasEngines() {
		return app.ErrNoEngines
	}
	log := a.Log

	h := &httpserver.Handler{
		Players:    a,
		ClipDevice: a.ClipDevice,
		Ping:       a.DB.PingContext,
		Log:        log.Named("http"),
	}
	routes := h.Routes()

	g, gctx := errgroup.WithContext(ctx)

	var tg *telegram.Router
	if a.Cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(a.Cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		tg = &telegram.Router{Bot: bot, Players: a, ClipDevice: a.ClipDevice, Log: log.Named("telegram")}
		handle := func(upd tgbotapi.Update) { tg.HandleUpdate(gctx, upd) }

		if webhook := strings.TrimSpace(a.Cfg.WebhookURL); webhook != "" {
			if err := mountWebhook(routes, bot, webhook, log, handle); err != nil {
				return err
			}
		} else {
			g.Go(func() error { return telegram.RunPolling(gctx, bot, log.Named("polling"), handle) })
		}
	} else if requireBot {
		return errNoToken
	}

	srv := httpserver.New("0.0.0.0:"+a.Cfg.Port, routes, log.Named("http"))
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		err := srv.Shutdown(context.Background())
		if tg != nil {
			tg.Wait()
		}
		return err
	})
	return g.Wait()
}

// mountWebhook: путь из хэша токена, обработчик на общем chi-роутере.
func mountWebhook(r chi.Router, bot *tgbotapi.BotAPI, baseURL string, log *zap.Logger, handle func(tgbotapi.Update)) error {
	path := telegram.WebhookPath(bot.Token)
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}
	r.Post(path, func(w http.ResponseWriter, req *http.Request) {
		upd, err := bot.HandleUpdate(req)
		if err != nil {
			log.Warn("bad webhook update", zap.Error(err))
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		handle(*upd)
		w.WriteHeader(http.StatusOK)
	})
	log.Info("webhook registered", zap.String("path", path))
	return nil
}
