package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/enrollgate/internal/audit"
	clientbot "github.com/xela07ax/enrollgate/internal/bot/client"
	"github.com/xela07ax/enrollgate/internal/infra"
	"github.com/xela07ax/enrollgate/internal/metrics"
	"github.com/xela07ax/enrollgate/internal/repository/sheets"
	"github.com/xela07ax/enrollgate/internal/workflow"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		logger.Info("metrics endpoint started", zap.String("addr", cfg.Metrics.Addr))
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	// 3. Хранилище: Google Sheets за обвязкой надежности
	sheetsClient, err := sheets.NewClient(appCtx, cfg.Sheets)
	if err != nil {
		logger.Fatal("failed to init sheets client", zap.Error(err))
	}
	api := sheets.NewReliableAPI(sheetsClient, cfg.Sheets, m)
	repo := sheets.NewRequestRepo(api, cfg.Sheets.Worksheet, cfg.Sheets.AuditWorksheet, cfg.Sheets.LookupCacheSize, logger)

	// 4. Журнал действий (пишется пачками в отдельный лист)
	trail := audit.NewTrail(repo, logger, m.AuditBufferFill)
	trail.Start()
	defer trail.Stop()

	// 5. Ядро и бот
	svc := workflow.NewService(repo, trail, nil, cfg.Links.Committees, m, logger)

	botAPI, err := tgbotapi.NewBotAPI(cfg.ClientBot.Token)
	if err != nil {
		logger.Fatal("failed to init client bot api", zap.Error(err))
	}
	limiter := clientbot.NewLimiter(
		cfg.ClientBot.MaxLoggedRequests, cfg.ClientBot.LoggedWindow,
		cfg.ClientBot.MaxUnknownAttempts, cfg.ClientBot.UnknownBanWindow,
	)
	bot := clientbot.NewBot(botAPI, svc, limiter, logger)

	go bot.Run(appCtx)

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("client bot stopping...")
	cancel()
	// trail.Stop() дольет хвост журнала в таблицу
}
