// Package snapshot periodically exports the leaderboard to object storage
// and keeps the cached counters warm between requests.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"matchstats/internal/config"
	"matchstats/internal/statistics"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Leaderboard interface {
	GetPlayerStatistics(ctx context.Context, filter statistics.Filter) (statistics.PlayerPage, error)
	GetCountsCached(ctx context.Context) (statistics.Counts, error)
}

type Uploader interface {
	UploadFile(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Export is the document written for each run
type Export struct {
	GeneratedAt time.Time                     `json:"generated_at"`
	Counts      statistics.Counts             `json:"counts"`
	TotalCount  int64                         `json:"total_count"`
	Players     []statistics.PlayerStatistics `json:"players"`
}

type Exporter struct {
	board    Leaderboard
	uploader Uploader
	topN     int
	clock    clockwork.Clock
}

// NewExporter returns an exporter; uploader may be nil, in which case runs
// only warm the counters.
func NewExporter(board Leaderboard, uploader Uploader, topN int, clock clockwork.Clock) *Exporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if topN <= 0 {
		topN = statistics.MaxPageSize
	}
	return &Exporter{board: board, uploader: uploader, topN: topN, clock: clock}
}

// Collect gathers the counters and the first topN leaderboard rows
func (e *Exporter) Collect(ctx context.Context) (Export, error) {
	counts, err := e.board.GetCountsCached(ctx)
	if err != nil {
		return Export{}, err
	}

	export := Export{GeneratedAt: e.clock.Now().UTC(), Counts: counts}
	for page := 1; len(export.Players) < e.topN; page++ {
		result, err := e.board.GetPlayerStatistics(ctx, statistics.Filter{
			Page:     page,
			PageSize: min(statistics.MaxPageSize, e.topN),
		})
		if err != nil {
			return Export{}, err
		}
		export.TotalCount = result.TotalCount
		export.Players = append(export.Players, result.Rows...)
		if len(result.Rows) < result.PageSize || int64(page) >= result.PageCount {
			break
		}
	}
	if len(export.Players) > e.topN {
		export.Players = export.Players[:e.topN]
	}
	return export, nil
}

// Run collects one export and uploads it. It returns the object URL, or an
// empty string when no uploader is configured.
func (e *Exporter) Run(ctx context.Context) (string, error) {
	export, err := e.Collect(ctx)
	if err != nil {
		return "", fmt.Errorf("collect leaderboard: %w", err)
	}
	if e.uploader == nil {
		return "", nil
	}

	payload, err := json.Marshal(export)
	if err != nil {
		return "", err
	}

	key := objectKey(export.GeneratedAt)
	url, err := e.uploader.UploadFile(ctx, key, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	log.Info().
		Str("key", key).
		Int("players", len(export.Players)).
		Int64("total_count", export.TotalCount).
		Msg("Leaderboard snapshot exported")

	return url, nil
}

func objectKey(at time.Time) string {
	return fmt.Sprintf("leaderboards/%s-%s.json", at.Format("20060102T150405Z"), uuid.NewString())
}

type Scheduler struct {
	sched gocron.Scheduler
}

// Start schedules exporter to run every cfg.IntervalMin minutes. The first
// run happens immediately.
func Start(ctx context.Context, exporter *Exporter, cfg config.SnapshotConfig) (*Scheduler, error) {
	interval := time.Duration(cfg.IntervalMin) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(exporter.clock))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()
			if _, err := exporter.Run(runCtx); err != nil {
				log.Error().Err(err).Msg("Leaderboard snapshot failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	log.Info().Dur("interval", interval).Int("top_n", exporter.topN).Msg("Snapshot scheduler started")

	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}
