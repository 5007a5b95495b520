package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchstats/internal/app"
	"matchstats/internal/aws"
	"matchstats/internal/config"
	"matchstats/internal/controller"
	"matchstats/internal/rabbitmq"
	"matchstats/internal/server"
	"matchstats/internal/snapshot"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.SetupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, *cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize statistics core")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close connections")
		}
	}()

	var publisher controller.ReportPublisher
	var rabbit rabbitmq.Client
	if cfg.RabbitMQ.Host != "" {
		rabbit, err = rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
		if err != nil {
			log.Warn().Err(err).Msg("RabbitMQ unavailable, asynchronous report submission disabled")
		} else if err := rabbit.Setup(); err != nil {
			log.Warn().Err(err).Msg("Failed to declare report queue, asynchronous report submission disabled")
			rabbit.Close()
			rabbit = nil
		} else {
			defer rabbit.Close()
			publisher = rabbitmq.NewReportPublisher(rabbit, cfg.RabbitMQ)
		}
	}

	var files aws.FileService
	if cfg.S3.Enabled {
		files, err = aws.NewFileService(ctx, cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("S3 unavailable, leaderboard snapshots will not be exported")
			files = nil
		}
	}

	if cfg.Snapshot.Enabled {
		var uploader snapshot.Uploader
		if files != nil {
			uploader = files
		}
		exporter := snapshot.NewExporter(a.Statistics, uploader, cfg.Snapshot.TopN, nil)
		sched, err := snapshot.Start(ctx, exporter, cfg.Snapshot)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start snapshot scheduler")
		}
		defer sched.Stop()
	}

	var (
		archivePinger controller.Pinger
		reportArchive controller.ReportArchive
	)
	if a.Archive != nil {
		archivePinger = a.Archive
		reportArchive = a.Archive
	}

	sc := controller.NewServer(a.DB, a.Cache, rabbit, archivePinger, files)
	stc := controller.NewStatisticsController(a.Statistics, a.Ingestor, a.Reports, a.MatchConfigs, a.Resolver, publisher, reportArchive)
	srv := server.New(*cfg, sc, stc)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
