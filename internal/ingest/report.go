package ingest

import (
	"context"

	"matchstats/internal/apperr"
	"matchstats/internal/database"
	"matchstats/internal/processor"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RoundReport is everything a game server sends at the end of a round
type RoundReport struct {
	Game    GameRecord       `json:"game"`
	Round   RoundRecord      `json:"round"`
	Players []PlayerStatsRow `json:"players"`
	Weapons []WeaponStatsRow `json:"weapons"`
}

type ReportResult struct {
	GameID  string `json:"game_id"`
	RoundID uint   `json:"round_id"`
	Players int    `json:"players"`
	Weapons int    `json:"weapons"`
}

// Archiver keeps the raw report after it has been applied
type Archiver interface {
	ArchiveReport(ctx context.Context, report RoundReport, result ReportResult) error
}

type ReportProcessor struct {
	ingestor *Ingestor
	archiver Archiver
}

// NewReportProcessor returns a processor; archiver may be nil
func NewReportProcessor(ingestor *Ingestor, archiver Archiver) *ReportProcessor {
	return &ReportProcessor{ingestor: ingestor, archiver: archiver}
}

// Apply records the game and round and ingests every fact row in one
// transaction, so a rejected row leaves nothing behind. Rows reference the
// round by the id assigned here, whatever the reporter put in them.
func (p *ReportProcessor) Apply(ctx context.Context, report RoundReport) (ReportResult, error) {
	const op = "ingest.apply_report"

	if len(report.Players) == 0 && len(report.Weapons) == 0 {
		return ReportResult{}, apperr.Validation(op, "report carries no player rows")
	}

	var result ReportResult
	err := p.ingestor.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := database.WithTx(ctx, tx)

		gameID, err := p.ingestor.RecordGame(txCtx, report.Game)
		if err != nil {
			return err
		}

		round := report.Round
		round.GameID = gameID
		roundID, err := p.ingestor.RecordRound(txCtx, round)
		if err != nil {
			return err
		}

		players := make([]PlayerStatsRow, len(report.Players))
		for i, row := range report.Players {
			row.RoundID = roundID
			players[i] = row
		}
		weapons := make([]WeaponStatsRow, len(report.Weapons))
		for i, row := range report.Weapons {
			row.RoundID = roundID
			weapons[i] = row
		}

		if err := p.ingestor.Ingest(txCtx, players); err != nil {
			return err
		}
		if err := p.ingestor.IngestWeaponStats(txCtx, weapons); err != nil {
			return err
		}

		result = ReportResult{GameID: gameID, RoundID: roundID, Players: len(players), Weapons: len(weapons)}
		return nil
	})
	if err != nil {
		return ReportResult{}, database.Classify(op, err)
	}

	log.Info().
		Str("game_id", result.GameID).
		Uint("round_id", result.RoundID).
		Int("players", result.Players).
		Int("weapons", result.Weapons).
		Msg("Applied round report")

	if p.archiver != nil {
		if err := p.archiver.ArchiveReport(ctx, report, result); err != nil {
			log.Warn().Err(err).Str("game_id", result.GameID).Msg("Failed to archive round report")
		}
	}

	return result, nil
}

// ApplyBatch applies each report on its own, on up to maxConcurrency
// workers. One rejected report does not affect the others.
func (p *ReportProcessor) ApplyBatch(ctx context.Context, reports []RoundReport, maxConcurrency int) processor.BatchMetrics {
	metrics := processor.ProcessBatch(reports, func(report RoundReport) processor.StatusError {
		_, err := p.Apply(ctx, report)
		if err != nil {
			log.Warn().Err(err).Str("game_id", report.Game.ID).Msg("Rejected round report in batch")
		}
		return processor.FromError(err)
	}, maxConcurrency)

	log.Info().
		Int("reports", len(reports)).
		Int("success", metrics.SuccessCount).
		Int("warning", metrics.WarningCount).
		Int("failure", metrics.FailureCount).
		Msg("Applied round report batch")

	return metrics
}
