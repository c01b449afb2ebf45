package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bot-trading-go/internal/binance"
	"bot-trading-go/internal/config"
	"bot-trading-go/internal/database"
	"bot-trading-go/internal/logger"
	"bot-trading-go/internal/models"
	"bot-trading-go/internal/trader"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Exchange clients are built per account: paper accounts get simulated
	// execution on top of live market data, live accounts get the signed
	// REST client with their own keys.
	factory := func(account *models.ExchangeAccount) binance.Client {
		rest := binance.NewRestClientForAccount(account.APIKey, account.APISecret, &cfg.Binance, log)
		if account.Paper || cfg.Trading.PaperTrading {
			log.Warn("Account running in paper trading mode",
				zap.Uint("account_id", account.ID), zap.String("name", account.Name))
			return binance.NewPaperClient(rest, cfg.Trading.PaperBalanceUSDT, log)
		}
		return rest
	}

	// Verify exchange connectivity before starting the engine.
	probe := binance.NewRestClient(&cfg.Binance, log)
	if _, err := probe.GetServerTime(context.Background()); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	registry := trader.NewRegistry()
	engine := trader.NewEngine(log, &cfg, db, registry, factory)
	bots := trader.NewBotManager(db, log)

	apiServer := trader.NewAPIServer(engine, bots, cfg.Server.Port, log)
	apiServer.Start()

	// Setup context for graceful shutdown. The engine lets an in-flight
	// cycle finish before returning.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	engine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
