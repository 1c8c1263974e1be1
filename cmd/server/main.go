package main

import (
	"context"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"telegram-feedback-bot/internal/bot"
	"telegram-feedback-bot/internal/scheduler"
	"telegram-feedback-bot/internal/server"
	"telegram-feedback-bot/internal/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap.NewProduction: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	if err := godotenv.Load(); err != nil {
		sugar.Info("No .env file found, relying on environment variables")
	}

	botCfg := bot.Config{}
	if err := env.Parse(&botCfg); err != nil {
		sugar.Fatalf("Cannot parse bot env config: %v", err)
	}

	storeCfg := storage.Config{}
	if err := env.Parse(&storeCfg); err != nil {
		sugar.Fatalf("Cannot parse storage env config: %v", err)
	}

	schedCfg := scheduler.Config{}
	if err := env.Parse(&schedCfg); err != nil {
		sugar.Fatalf("Cannot parse scheduler env config: %v", err)
	}

	srvCfg := server.Config{}
	if err := env.Parse(&srvCfg); err != nil {
		sugar.Fatalf("Cannot parse server env config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(ctx, sugar, storeCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	api, err := tgbotapi.NewBotAPI(botCfg.Token)
	if err != nil {
		sugar.Fatalf("Cannot connect to Telegram: %v", err)
	}
	sugar.Infof("Authorized on account %s", api.Self.UserName)

	b := bot.New(sugar, api, store, botCfg)

	sched := scheduler.New(sugar, store, api, schedCfg)
	sched.Start(ctx)

	// One update stream feeds the dispatcher regardless of the source:
	// webhook deliveries when enabled, long polling otherwise.
	updates := make(chan tgbotapi.Update, 16)
	go b.Run(ctx, updates)

	var webhookUpdates chan<- tgbotapi.Update
	if srvCfg.WebhookEnabled {
		webhookUpdates = updates
	} else {
		go func() {
			cfg := tgbotapi.NewUpdate(0)
			cfg.Timeout = 60
			for update := range api.GetUpdatesChan(cfg) {
				select {
				case updates <- update:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	srv := server.New(sugar, srvCfg, webhookUpdates,
		server.ReadTimeout(5*time.Second),
		server.AfterShutdown(cancel),
		server.AfterShutdown(api.StopReceivingUpdates),
		server.AfterShutdown(store.Close),
	)

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
