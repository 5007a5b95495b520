// Command publish queues round report files for the ingest workers, for
// replaying reports a game server failed to deliver.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"matchstats/internal/config"
	"matchstats/internal/ingest"
	"matchstats/internal/rabbitmq"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to the configuration file")
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal().Msg("Usage: publish [-config path] <report.json>...")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.SetupLogger(cfg.Logging)

	client, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer client.Close()

	if err := client.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to declare report queue")
	}

	publisher := rabbitmq.NewReportPublisher(client, cfg.RabbitMQ)

	published := 0
	for _, path := range flag.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to read report")
			continue
		}

		var report ingest.RoundReport
		if err := json.Unmarshal(raw, &report); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to parse report")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = publisher.PublishReport(ctx, report)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to publish report")
			continue
		}
		published++
	}

	log.Info().Int("published", published).Int("files", flag.NArg()).Msg("Done")
}
