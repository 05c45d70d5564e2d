// Command dispatcher runs one channel's poll -> rate-gate -> deliver
// loop (spec.md §4.7). It takes the channel name as its sole
// positional argument; every other setting is sourced from the
// environment (spec.md §6).
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/engyne/nodecore/internal/config"
	"github.com/engyne/nodecore/internal/dispatcher"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		log.Fatalf("usage: dispatcher <channel>")
	}
	channel := dispatcher.Channel(os.Args[1])
	if !validChannel(channel) {
		log.Fatalf("unknown channel %q, want one of whatsapp|telegram|email|sheets|push", channel)
	}

	cfg, err := config.LoadDispatcherConfig()
	if err != nil {
		log.Fatalf("load dispatcher config: %v", err)
	}

	webhookURL, webhookSecret := config.ChannelWebhook(string(channel))
	client := &http.Client{Timeout: cfg.DeliveryTimeout()}

	var waha *dispatcher.WahaTransport
	if channel == dispatcher.ChannelWhatsApp {
		if base := os.Getenv("WAHA_BASE_URL"); base != "" {
			waha = &dispatcher.WahaTransport{
				BaseURL:       base,
				Session:       os.Getenv("WAHA_SESSION"),
				SessionPrefix: os.Getenv("WAHA_SESSION_PREFIX"),
				Token:         os.Getenv("WAHA_TOKEN"),
				SendPath:      os.Getenv("WAHA_SEND_PATH"),
				ChatSuffix:    os.Getenv("WAHA_CHAT_SUFFIX"),
				AuthHeader:    os.Getenv("WAHA_AUTH_HEADER"),
				AuthPrefix:    os.Getenv("WAHA_AUTH_PREFIX"),
			}
		}
	}
	transport := dispatcher.SelectTransport(channel, webhookURL, webhookSecret, waha, client)

	d := dispatcher.New(dispatcher.Config{
		Channel:         channel,
		RuntimeRoot:     cfg.RuntimeRoot,
		PollInterval:    cfg.PollInterval(),
		RatePerMinute:   cfg.RatePerMinute,
		DryRun:          cfg.DryRun,
		DryRunAdvance:   cfg.DryRunAdvance,
		DeliveryTimeout: cfg.DeliveryTimeout(),
	}, transport, logger)

	logger.Info("dispatcher starting",
		slog.String("channel", string(channel)),
		slog.Bool("has_transport", transport != nil),
		slog.Int("rate_per_minute", cfg.RatePerMinute),
		slog.Bool("dry_run", cfg.DryRun),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := d.Run(ctx); err != nil {
		logger.Error("dispatcher exited with error", slog.String("channel", string(channel)), slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("dispatcher stopped", slog.String("channel", string(channel)))
}

func validChannel(c dispatcher.Channel) bool {
	switch c {
	case dispatcher.ChannelWhatsApp, dispatcher.ChannelTelegram, dispatcher.ChannelEmail, dispatcher.ChannelSheets, dispatcher.ChannelPush:
		return true
	default:
		return false
	}
}
