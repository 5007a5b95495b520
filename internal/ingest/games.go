package ingest

import (
	"context"
	"strings"
	"time"

	"matchstats/internal/apperr"
	"matchstats/internal/database"
	"matchstats/internal/dimension"
	"matchstats/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/clause"
)

// DimensionRef names a game mode or map either by id or by name. A non-zero
// ID wins; otherwise the trimmed Name is resolved, creating the row if new.
type DimensionRef struct {
	ID   uint   `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type GameRecord struct {
	ID            string       `json:"id"`
	GameserverID  string       `json:"gameserver_id"`
	Map           DimensionRef `json:"map"`
	GameMode      DimensionRef `json:"game_mode"`
	MatchConfigID *uint        `json:"match_config_id,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       *time.Time   `json:"ended_at,omitempty"`
}

type RoundRecord struct {
	ID        uint       `json:"id,omitempty"`
	GameID    string     `json:"game_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	ScoreA    int        `json:"score_a"`
	ScoreB    int        `json:"score_b"`
}

// RecordGame creates or updates a game and returns its id. Reporters that
// omit the id get a generated one.
func (i *Ingestor) RecordGame(ctx context.Context, rec GameRecord) (string, error) {
	const op = "ingest.record_game"

	rec.GameserverID = strings.TrimSpace(rec.GameserverID)
	if rec.GameserverID == "" {
		return "", apperr.Validation(op, "gameserver id is required")
	}
	if rec.StartedAt.IsZero() {
		return "", apperr.Validation(op, "game start time is required")
	}

	mapID, err := i.resolveRef(ctx, op, dimension.KindMap, rec.Map)
	if err != nil {
		return "", err
	}
	modeID, err := i.resolveRef(ctx, op, dimension.KindGameMode, rec.GameMode)
	if err != nil {
		return "", err
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = uuid.NewString()
	}

	game := model.Game{
		ID:            id,
		GameserverID:  rec.GameserverID,
		MapID:         mapID,
		GameModeID:    modeID,
		MatchConfigID: rec.MatchConfigID,
		StartedAt:     truncate(rec.StartedAt),
		EndedAt:       truncatePtr(rec.EndedAt),
	}

	err = database.Conn(ctx, i.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"gameserver_id", "map_id", "game_mode_id", "match_config_id", "started_at", "ended_at", "updated_at",
			}),
		}).
		Create(&game).Error
	if err != nil {
		return "", database.Classify(op, err)
	}

	log.Debug().Str("game_id", id).Str("gameserver_id", rec.GameserverID).Msg("Recorded game")
	return id, nil
}

func (i *Ingestor) resolveRef(ctx context.Context, op string, kind dimension.Kind, ref DimensionRef) (uint, error) {
	if ref.ID != 0 {
		return ref.ID, nil
	}
	if strings.TrimSpace(ref.Name) == "" {
		return 0, apperr.Validation(op, "%s id or name is required", kind)
	}
	switch kind {
	case dimension.KindMap:
		return i.dims.ResolveMap(ctx, ref.Name, dimension.MapAttributes{})
	default:
		return i.dims.ResolveGameMode(ctx, ref.Name, dimension.GameModeAttributes{})
	}
}

// RecordRound creates a round, or updates it when rec.ID is set, and returns
// its id. Timestamps are stored at second precision.
func (i *Ingestor) RecordRound(ctx context.Context, rec RoundRecord) (uint, error) {
	const op = "ingest.record_round"

	if strings.TrimSpace(rec.GameID) == "" {
		return 0, apperr.Validation(op, "game id is required")
	}
	if rec.StartedAt.IsZero() {
		return 0, apperr.Validation(op, "round start time is required")
	}
	if rec.EndedAt != nil && rec.EndedAt.Before(rec.StartedAt) {
		return 0, apperr.Validation(op, "round ends before it starts")
	}

	round := model.Round{
		ID:        rec.ID,
		GameID:    strings.TrimSpace(rec.GameID),
		StartedAt: truncate(rec.StartedAt),
		EndedAt:   truncatePtr(rec.EndedAt),
		ScoreA:    clampInt(rec.ScoreA),
		ScoreB:    clampInt(rec.ScoreB),
	}

	db := database.Conn(ctx, i.db)
	if round.ID == 0 {
		if err := db.Create(&round).Error; err != nil {
			return 0, database.Classify(op, err)
		}
		return round.ID, nil
	}

	res := db.Model(&model.Round{}).
		Where("id = ?", round.ID).
		Updates(map[string]any{
			"game_id":    round.GameID,
			"started_at": round.StartedAt,
			"ended_at":   round.EndedAt,
			"score_a":    round.ScoreA,
			"score_b":    round.ScoreB,
		})
	if res.Error != nil {
		return 0, database.Classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		if err := db.Create(&round).Error; err != nil {
			return 0, database.Classify(op, err)
		}
	}
	return round.ID, nil
}

// FinishGame stamps the game's end time
func (i *Ingestor) FinishGame(ctx context.Context, gameID string, endedAt time.Time) error {
	const op = "ingest.finish_game"

	res := database.Conn(ctx, i.db).
		Model(&model.Game{}).
		Where("id = ?", gameID).
		Update("ended_at", truncate(endedAt))
	if res.Error != nil {
		return database.Classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(op, "game %q does not exist", gameID)
	}
	return nil
}

// DeleteGame removes a game together with its rounds and their fact rows
func (i *Ingestor) DeleteGame(ctx context.Context, gameID string) error {
	const op = "ingest.delete_game"

	res := database.Conn(ctx, i.db).Where("id = ?", gameID).Delete(&model.Game{})
	if res.Error != nil {
		return database.Classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(op, "game %q does not exist", gameID)
	}

	log.Info().Str("game_id", gameID).Msg("Deleted game")
	return nil
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func truncatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := truncate(*t)
	return &v
}
