package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"matchstats/internal/apperr"
	"matchstats/internal/config"
	"matchstats/internal/ingest"
	"matchstats/internal/processor"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ReportPublisher queues round reports for the ingest workers
type ReportPublisher struct {
	client     Client
	exchange   string
	routingKey string
}

func NewReportPublisher(client Client, cfg config.RabbitMQConfig) *ReportPublisher {
	return &ReportPublisher{client: client, exchange: cfg.ExchangeName, routingKey: cfg.RoutingKey}
}

func (p *ReportPublisher) PublishReport(ctx context.Context, report ingest.RoundReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return apperr.Validation("rabbitmq.publish_report", "report cannot be encoded: %v", err)
	}
	return p.client.Publish(ctx, p.exchange, p.routingKey, body, amqp.Table{
		"game_id": report.Game.ID,
	})
}

// ReportApplier stores one report
type ReportApplier interface {
	Apply(ctx context.Context, report ingest.RoundReport) (ingest.ReportResult, error)
}

const defaultApplyTimeout = 2 * time.Minute

// ReportConsumer applies queued round reports on a fixed number of workers
type ReportConsumer struct {
	client       Client
	queue        string
	applier      ReportApplier
	workers      int
	applyTimeout time.Duration

	mu      sync.Mutex
	metrics processor.BatchMetrics
}

func NewReportConsumer(client Client, queue string, applier ReportApplier, workers int) *ReportConsumer {
	if workers <= 0 {
		workers = 1
	}
	return &ReportConsumer{
		client:       client,
		queue:        queue,
		applier:      applier,
		workers:      workers,
		applyTimeout: defaultApplyTimeout,
	}
}

// Run consumes until ctx is cancelled. A closed delivery channel, which
// happens when the broker connection drops, starts a new consumer after a
// short pause.
func (c *ReportConsumer) Run(ctx context.Context) error {
	const pause = 2 * time.Second

	for {
		deliveries, err := c.client.Consume(c.queue, "")
		if err != nil {
			log.Error().Err(err).Str("queue", c.queue).Msg("Failed to start report consumer")
		} else {
			c.drain(ctx, deliveries)
		}

		select {
		case <-ctx.Done():
			m := c.Metrics()
			log.Info().
				Int("success", m.SuccessCount).
				Int("warning", m.WarningCount).
				Int("failure", m.FailureCount).
				Int("requeued", m.SkippedCount).
				Msg("Report consumer stopped")
			return nil
		case <-time.After(pause):
		}
	}
}

func (c *ReportConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var g errgroup.Group
	for range c.workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return nil
					}
					c.Handle(ctx, d)
				}
			}
		})
	}
	_ = g.Wait()
}

// Handle applies one delivery and settles it. Reports that can never be
// applied are rejected; other failures are requeued once and rejected when
// they fail again. The apply itself is detached from ctx so shutdown lets
// an in-flight report finish; one that still fails while ctx is done is
// requeued without counting against it.
func (c *ReportConsumer) Handle(ctx context.Context, d amqp.Delivery) processor.StatusError {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.applyTimeout)
	status := c.apply(actx, d)
	cancel()

	if status.Status() == processor.StatusFailure && ctx.Err() != nil {
		status = processor.NewSkippedError("interrupted by shutdown: " + status.Message())
	}

	c.mu.Lock()
	c.metrics.Add(status)
	c.mu.Unlock()

	var err error
	switch status.Status() {
	case processor.StatusSuccess:
		err = d.Ack(false)
	case processor.StatusWarning:
		log.Warn().Str("reason", status.Message()).Uint64("delivery_tag", d.DeliveryTag).Msg("Dropping round report")
		err = d.Reject(false)
	case processor.StatusSkipped:
		log.Info().Str("reason", status.Message()).Uint64("delivery_tag", d.DeliveryTag).Msg("Requeueing round report")
		err = d.Nack(false, true)
	default:
		requeue := !d.Redelivered
		log.Error().
			Str("reason", status.Message()).
			Bool("requeue", requeue).
			Uint64("delivery_tag", d.DeliveryTag).
			Msg("Failed to apply round report")
		err = d.Nack(false, requeue)
	}
	if err != nil {
		log.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("Failed to settle delivery")
	}
	return status
}

func (c *ReportConsumer) apply(ctx context.Context, d amqp.Delivery) processor.StatusError {
	var report ingest.RoundReport
	if err := json.Unmarshal(d.Body, &report); err != nil {
		return processor.NewWarningError("malformed report: " + err.Error())
	}

	result, err := c.applier.Apply(ctx, report)
	if err != nil {
		return processor.FromError(err)
	}

	log.Debug().Str("game_id", result.GameID).Uint("round_id", result.RoundID).Msg("Consumed round report")
	return processor.NewSuccessError(result.GameID)
}

func (c *ReportConsumer) Metrics() processor.BatchMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}
