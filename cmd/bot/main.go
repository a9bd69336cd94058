package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_bridge_bot/internal/config"
	"tg_bridge_bot/internal/domain"
	"tg_bridge_bot/internal/feature/apex"
	"tg_bridge_bot/internal/feature/support"
	"tg_bridge_bot/internal/health"
	"tg_bridge_bot/internal/logging"
	"tg_bridge_bot/internal/runner"
	"tg_bridge_bot/internal/store"
	"tg_bridge_bot/internal/telegram"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoIndexTimeout      = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	pollShutdownTimeout    = 35 * time.Second
	healthShutdownTimeout  = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	supportClient, err := telegram.NewClient(cfg.SupportBotToken, logger.WithField("bot", "support"))
	if err != nil {
		logger.WithError(err).Error("support bot client setup error")
		fmt.Fprintf(os.Stderr, "support bot client setup error: %v\n", err)
		os.Exit(1)
	}

	apexClient, err := telegram.NewClient(cfg.ApexBotToken, logger.WithField("bot", "apex"))
	if err != nil {
		logger.WithError(err).Error("apex bot client setup error")
		fmt.Fprintf(os.Stderr, "apex bot client setup error: %v\n", err)
		os.Exit(1)
	}

	verifications := domain.NewVerificationRepository(mongoManager.Verifications())
	statsProvider := store.NewStatsProvider(mongoManager.Verifications())

	supportHandler := support.NewHandler(supportClient, cfg.AdminChatID, statsProvider, logger)
	apexHandler := apex.NewHandler(apexClient, verifications, logger)

	supportSession := runner.NewSession("support", supportClient, supportHandler, logger)
	apexSession := runner.NewSession("apex", apexClient, apexHandler, logger)
	supervisor := runner.NewSupervisor(logger, supportSession, apexSession)

	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, supportSession, apexSession, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor.StartAll(signalCtx)
	logger.WithField("event", "bots_started").Info("both bot poll loops started")

	<-signalCtx.Done()
	logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping poll loops")

	waitCtx, cancelWait := context.WithTimeout(context.Background(), pollShutdownTimeout)
	supervisor.Shutdown(waitCtx)
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
