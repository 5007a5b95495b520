package controller

import (
	"context"
	"strings"
	"time"

	"matchstats/internal/apperr"
	"matchstats/internal/archive"
	"matchstats/internal/ingest"
	"matchstats/internal/matchconfig"
	"matchstats/internal/model"
	"matchstats/internal/processor"
	"matchstats/internal/statistics"

	"github.com/rs/zerolog/log"
)

// batchConcurrency bounds how many reports of one backlog are applied at once
const batchConcurrency = 4

// ReportPublisher queues a report for asynchronous ingestion
type ReportPublisher interface {
	PublishReport(ctx context.Context, report ingest.RoundReport) error
}

// GameModeLookup finds an existing game mode by name
type GameModeLookup interface {
	LookupGameMode(ctx context.Context, name string) (uint, error)
}

// ReportArchive reads back the raw reports applied for a game
type ReportArchive interface {
	ReportsForGame(ctx context.Context, gameID string) ([]archive.Document, error)
}

type StatisticsController interface {
	PlayerStatistics(ctx context.Context, filter statistics.Filter) (statistics.PlayerPage, error)
	PlayerWeaponStatistics(ctx context.Context, filter statistics.Filter) ([]statistics.WeaponStatistics, error)
	Counts(ctx context.Context) (statistics.Counts, error)

	// SubmitReport applies report now, or queues it when async is set. A
	// queued report has no result yet.
	SubmitReport(ctx context.Context, report ingest.RoundReport, async bool) (*ingest.ReportResult, error)
	// SubmitReports applies a backlog of reports independently
	SubmitReports(ctx context.Context, reports []ingest.RoundReport) processor.BatchMetrics
	FinishGame(ctx context.Context, gameID string, endedAt time.Time) error
	DeleteGame(ctx context.Context, gameID string) error
	// GameReports returns the archived raw reports of a game, oldest first
	GameReports(ctx context.Context, gameID string) ([]archive.Document, error)

	SaveMatchConfig(ctx context.Context, cfg model.MatchConfig) (model.MatchConfig, error)
	MatchConfig(ctx context.Context, id uint) (model.MatchConfig, error)

	CreateBan(ctx context.Context, req statistics.BanRequest) (model.Ban, error)
}

type statisticsController struct {
	stats     *statistics.Service
	ingestor  *ingest.Ingestor
	reports   *ingest.ReportProcessor
	configs   *matchconfig.Store
	modes     GameModeLookup
	publisher ReportPublisher
	archive   ReportArchive
}

// NewStatisticsController wires the statistics core together. publisher may
// be nil, in which case asynchronous submission is refused; archive may be
// nil, in which case no game has archived reports.
func NewStatisticsController(
	stats *statistics.Service,
	ingestor *ingest.Ingestor,
	reports *ingest.ReportProcessor,
	configs *matchconfig.Store,
	modes GameModeLookup,
	publisher ReportPublisher,
	reportArchive ReportArchive,
) StatisticsController {
	return &statisticsController{
		stats:     stats,
		ingestor:  ingestor,
		reports:   reports,
		configs:   configs,
		modes:     modes,
		publisher: publisher,
		archive:   reportArchive,
	}
}

func (c *statisticsController) PlayerStatistics(ctx context.Context, filter statistics.Filter) (statistics.PlayerPage, error) {
	filter, err := c.resolveGameMode(ctx, filter)
	if err != nil {
		return statistics.PlayerPage{}, err
	}
	return c.stats.GetPlayerStatistics(ctx, filter)
}

func (c *statisticsController) PlayerWeaponStatistics(ctx context.Context, filter statistics.Filter) ([]statistics.WeaponStatistics, error) {
	filter, err := c.resolveGameMode(ctx, filter)
	if err != nil {
		return nil, err
	}
	return c.stats.GetPlayerWeaponStatistics(ctx, filter)
}

// resolveGameMode turns a game mode name into its id so an unknown mode is
// reported as not found instead of an empty result
func (c *statisticsController) resolveGameMode(ctx context.Context, filter statistics.Filter) (statistics.Filter, error) {
	if c.modes == nil || filter.GameModeID != 0 || strings.TrimSpace(filter.GameModeName) == "" {
		return filter, nil
	}
	id, err := c.modes.LookupGameMode(ctx, filter.GameModeName)
	if err != nil {
		return filter, err
	}
	filter.GameModeID = id
	filter.GameModeName = ""
	return filter, nil
}

func (c *statisticsController) Counts(ctx context.Context) (statistics.Counts, error) {
	return c.stats.GetCountsCached(ctx)
}

func (c *statisticsController) SubmitReport(ctx context.Context, report ingest.RoundReport, async bool) (*ingest.ReportResult, error) {
	if !async {
		result, err := c.reports.Apply(ctx, report)
		if err != nil {
			return nil, err
		}
		return &result, nil
	}

	if c.publisher == nil {
		return nil, apperr.Validation("controller.submit_report", "asynchronous submission is disabled")
	}
	if err := c.publisher.PublishReport(ctx, report); err != nil {
		log.Error().Err(err).Str("game_id", report.Game.ID).Msg("Failed to queue round report")
		return nil, err
	}
	return nil, nil
}

func (c *statisticsController) SubmitReports(ctx context.Context, reports []ingest.RoundReport) processor.BatchMetrics {
	return c.reports.ApplyBatch(ctx, reports, batchConcurrency)
}

func (c *statisticsController) FinishGame(ctx context.Context, gameID string, endedAt time.Time) error {
	return c.ingestor.FinishGame(ctx, gameID, endedAt)
}

func (c *statisticsController) DeleteGame(ctx context.Context, gameID string) error {
	return c.ingestor.DeleteGame(ctx, gameID)
}

func (c *statisticsController) GameReports(ctx context.Context, gameID string) ([]archive.Document, error) {
	const op = "controller.game_reports"
	if c.archive == nil {
		return nil, apperr.NotFound(op, "report archive is disabled")
	}
	docs, err := c.archive.ReportsForGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperr.NotFound(op, "no archived reports for game %q", gameID)
	}
	return docs, nil
}

func (c *statisticsController) SaveMatchConfig(ctx context.Context, cfg model.MatchConfig) (model.MatchConfig, error) {
	return c.configs.CreateUpdate(ctx, cfg)
}

func (c *statisticsController) MatchConfig(ctx context.Context, id uint) (model.MatchConfig, error) {
	return c.configs.Get(ctx, id)
}

func (c *statisticsController) CreateBan(ctx context.Context, req statistics.BanRequest) (model.Ban, error) {
	return c.stats.CreateBan(ctx, req)
}
