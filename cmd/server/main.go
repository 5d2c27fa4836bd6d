package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imagine-chat/internal/api/handlers"
	"imagine-chat/internal/app"
	"imagine-chat/internal/config"
	"imagine-chat/internal/logger"
	"imagine-chat/internal/repository/postgres"
	"imagine-chat/internal/scheduler"
	"imagine-chat/internal/service/llm"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		logger.Log.WithError(err).Fatal("Server stopped")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appConfig, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Initialize database
	database, err := postgres.NewPostgresDB(ctx, appConfig.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	provider := llm.NewOpenAIProvider(appConfig.AI)
	container := app.NewConfig(database, appConfig, provider, provider)
	defer container.Close()

	sched, err := scheduler.New()
	if err != nil {
		return err
	}
	err = sched.AddJob("cascade-sweep", appConfig.Sync.CascadeSweepCron, func(ctx context.Context) error {
		_, err := container.Policy.Sweep(ctx)
		return err
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           handlers.NewHandlers(container).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.WithFields(logrus.Fields{
			"port":        appConfig.Server.Port,
			"text_model":  appConfig.AI.TextModel,
			"image_model": appConfig.AI.ImageModel,
		}).Info("Server starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		return sched.Stop()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
