package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"matchstats/internal/app"
	"matchstats/internal/config"
	"matchstats/internal/rabbitmq"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to the configuration file")
	workers := flag.Int("workers", 4, "number of reports applied concurrently")
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
	defer a.Close()

	client, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer client.Close()

	if err := client.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to declare report queue")
	}

	consumer := rabbitmq.NewReportConsumer(client, cfg.RabbitMQ.QueueName, a.Reports, *workers)
	log.Info().Str("queue", cfg.RabbitMQ.QueueName).Int("workers", *workers).Msg("Waiting for round reports. Press CTRL+C to exit.")

	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Report consumer failed")
	}
}
