package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"option-ledger/config"
	"option-ledger/controllers"
	"option-ledger/database"
	"option-ledger/interfaces"
	"option-ledger/services"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the option ledger HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, fmt.Errorf("error getting env-file: %w", err)
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	log.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func serve(cfg *config.Config) error {
	gin.SetMode(cfg.GinMode)
	clock := interfaces.SystemClock{}

	storage, err := database.NewLocalStorage(cfg.DatabasePath, clock)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer storage.Close()
	storage.SetLogLevel(cfg.LogLevel)

	activityLogger := services.NewActivityLogger(cfg.ActivityLogDir, clock)
	activityLogger.SetLogLevel(cfg.LogLevel)
	optionService := services.NewOptionService(storage, activityLogger, clock)
	optionService.SetLogLevel(cfg.LogLevel)

	auth := controllers.RequireSignature(clock, cfg.SignatureWindow)
	if !cfg.RequireSignatures {
		log.Warn("Signature verification disabled; X-Caller-Key is trusted as is")
		auth = controllers.TrustCallerHeader()
	}

	router := controllers.SetupRouter(
		controllers.NewOptionController(optionService, clock, cfg.PriceDecimals),
		controllers.NewActivityController(activityLogger),
		auth,
		log.StandardLogger(),
	)

	srv := &http.Server{
		Handler:           router,
		Addr:              cfg.Addr(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":     cfg.Addr(),
			"database": cfg.DatabasePath,
		}).Info("Option ledger listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http: failed to listen and serve: %w", err)
		}
		return nil
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	log.Info("Server gracefully stopped")
	return nil
}
