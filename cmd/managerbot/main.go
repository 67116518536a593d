package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/enrollgate/internal/audit"
	managerbot "github.com/xela07ax/enrollgate/internal/bot/manager"
	"github.com/xela07ax/enrollgate/internal/console/handler"
	"github.com/xela07ax/enrollgate/internal/console/server"
	"github.com/xela07ax/enrollgate/internal/console/service"
	"github.com/xela07ax/enrollgate/internal/infra"
	"github.com/xela07ax/enrollgate/internal/metrics"
	"github.com/xela07ax/enrollgate/internal/notify"
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

	// 4. Журнал действий
	trail := audit.NewTrail(repo, logger, m.AuditBufferFill)
	trail.Start()
	defer trail.Stop()

	// 5. Уведомления заявителям идут через токен клиентского бота:
	// только с ним у заявителя уже открыт диалог
	var notifier workflow.Notifier
	if cfg.ClientBot.Token != "" {
		clientAPI, err := tgbotapi.NewBotAPI(cfg.ClientBot.Token)
		if err != nil {
			logger.Fatal("failed to init notifier bot api", zap.Error(err))
		}
		notifier = notify.NewTelegramNotifier(clientAPI, cfg.Links.ExecutiveTeam, logger)
	} else {
		logger.Warn("client bot token is empty, decision notifications disabled")
	}

	// 6. Ядро
	svc := workflow.NewService(repo, trail, notifier, cfg.Links.Committees, m, logger)

	// 7. Бот операторов
	botAPI, err := tgbotapi.NewBotAPI(cfg.ManagerBot.Token)
	if err != nil {
		logger.Fatal("failed to init manager bot api", zap.Error(err))
	}
	bot := managerbot.NewBot(botAPI, svc, cfg.ManagerBot.AdminIDs, logger)
	go bot.Run(appCtx)

	// 8. HTTP-консоль операторов
	authService, err := service.NewAuthService(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}
	consoleSrv := server.NewConsoleServer(
		logger,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewRequestHandler(svc),
		handler.NewStatsHandler(svc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("console started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("manager bot stopping...")
	cancel()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
