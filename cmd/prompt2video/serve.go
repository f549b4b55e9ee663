package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/jobs"
	"github.com/ivlev/prompt2video/internal/logging"
	"github.com/ivlev/prompt2video/internal/system"
	"github.com/ivlev/prompt2video/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr      string
		dbPath    string
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web form and job API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(addr, dbPath, outputDir)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&dbPath, "jobs-db", "jobs.db", "SQLite database with job state")
	cmd.Flags().StringVar(&outputDir, "output-dir", "output/web", "where finished videos are stored")
	return cmd
}

func (a *app) runServe(addr, dbPath, outputDir string) error {
	logger := a.logger
	if !a.verbose {
		gin.SetMode(gin.ReleaseMode)
		jsonLogger, err := logging.NewJSON()
		if err != nil {
			return err
		}
		defer jsonLogger.Sync()
		logger = jsonLogger
	}

	store, err := jobs.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	runner := system.NewExecRunner(logger)
	broker := jobs.NewBroker()
	worker := jobs.NewWorker(store, broker, web.EngineRunner(a.cfg, runner, logger, outputDir), logger)
	if err := worker.Resume(ctx); err != nil {
		return err
	}
	go worker.Start(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: web.NewServer(store, worker, broker, logger).Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Сервер запущен", zap.String("addr", addr), zap.String("db", dbPath), zap.String("output", outputDir))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Сервер остановлен")
	return nil
}
