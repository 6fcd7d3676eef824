package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/taxfolio/portfolio/src/config"
	"github.com/username/taxfolio/portfolio/src/database"
	"github.com/username/taxfolio/portfolio/src/handlers"
	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/processors"
	"github.com/username/taxfolio/portfolio/src/security"
	"github.com/username/taxfolio/portfolio/src/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Portfolio backend server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Initializing exchange rates...", "path", config.Cfg.HistoricalDataPath)
	rates, err := processors.LoadRateTable(config.Cfg.HistoricalDataPath)
	if err != nil {
		logger.L.Warn("Failed to load historical rates, foreign amounts fall back to a rate of 1.0", "error", err)
		rates = processors.NewRateTable()
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	if err := database.InitDB(config.Cfg.DatabasePath); err != nil {
		logger.L.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.DB.Close()
	logger.L.Info("Database initialized successfully.")

	reportCache := cache.New(config.Cfg.CacheExpiry, services.CacheCleanupInterval)

	var priceService services.PriceService
	if config.Cfg.PriceLookupEnabled {
		priceService = services.NewPriceService(database.DB, rates, services.PriceServiceOptions{
			RequestDelay: 250 * time.Millisecond,
		})
		logger.L.Info("Live price lookup enabled.")
	}

	portfolioService := services.NewPortfolioService(
		database.DB,
		processors.NewTransactionProcessor(rates),
		processors.NewStockProcessor(),
		processors.NewOptionProcessor(),
		processors.NewDividendProcessor(),
		processors.NewFeeProcessor(),
		processors.NewCashFlowProcessor(),
		priceService,
		reportCache,
		services.PortfolioServiceConfig{
			ReturnOptions: processors.ReturnOptions{
				MinDenominator:     config.Cfg.ReturnsMinDenominator,
				MaxDailyReturn:     config.Cfg.ReturnsMaxDailyReturn,
				DietzMinStartValue: config.Cfg.DietzMinStartValue,
			},
			CacheExpiry: config.Cfg.CacheExpiry,
		},
	)

	router := handlers.NewRouter(handlers.RouterConfig{
		AllowedOrigins:     config.Cfg.AllowedOrigins,
		MaxImportSizeBytes: config.Cfg.MaxImportSizeBytes,
		RateLimitPerSecond: config.Cfg.RateLimitPerSecond,
		RateLimitBurst:     config.Cfg.RateLimitBurst,
	}, security.NewAuthService(config.Cfg.JWTSecret), portfolioService)

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.L.Info("Server starting", "address", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.L.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.L.Error("Graceful shutdown failed", "error", err)
		return
	}
	logger.L.Info("Server stopped gracefully.")
}
