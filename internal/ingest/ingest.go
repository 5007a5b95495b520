// Package ingest validates and bulk-writes per-round telemetry.
package ingest

import (
	"context"
	"strings"

	"matchstats/internal/apperr"
	"matchstats/internal/database"
	"matchstats/internal/dimension"
	"matchstats/internal/model"
	"matchstats/internal/playerid"
	"matchstats/internal/processor"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultChunkSize      = 160
	DefaultMaxConcurrency = 4
)

// PlayerStatsRow is one player's line for one round as a game server reports it
type PlayerStatsRow struct {
	RoundID     uint       `json:"round_id"`
	PlayerID    uint64     `json:"player_id"`
	Team        model.Team `json:"team"`
	Kills       int        `json:"kills"`
	Deaths      int        `json:"deaths"`
	Suicides    int        `json:"suicides"`
	Score       int        `json:"score"`
	TotalDamage float64    `json:"total_damage"`
}

// WeaponStatsRow is one player's use of one weapon during one round
type WeaponStatsRow struct {
	RoundID           uint    `json:"round_id"`
	PlayerID          uint64  `json:"player_id"`
	Weapon            string  `json:"weapon"`
	WeaponDisplayName string  `json:"weapon_display_name,omitempty"`
	WeaponCategory    string  `json:"weapon_category,omitempty"`
	Kills             int     `json:"kills"`
	TotalDamage       float64 `json:"total_damage"`
	ShotsFired        int     `json:"shots_fired"`
	ShotsHit          int     `json:"shots_hit"`
	Headshots         int     `json:"headshots"`
}

// Resolver maps dimension names to ids, creating rows on first reference
type Resolver interface {
	ResolveGameMode(ctx context.Context, name string, attrs dimension.GameModeAttributes) (uint, error)
	ResolveMap(ctx context.Context, name string, attrs dimension.MapAttributes) (uint, error)
	ResolveWeapon(ctx context.Context, name string, attrs dimension.WeaponAttributes) (uint, error)
}

type Options struct {
	ChunkSize      int
	MaxConcurrency int
}

type Ingestor struct {
	db             *gorm.DB
	dims           Resolver
	chunkSize      int
	maxConcurrency int
}

func NewIngestor(db *gorm.DB, dims Resolver, opts Options) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Ingestor{
		db:             db,
		dims:           dims,
		chunkSize:      opts.ChunkSize,
		maxConcurrency: opts.MaxConcurrency,
	}
}

// Ingest validates every row, then writes them in concurrent chunks. A row
// with a malformed player id rejects the whole batch before anything is written.
func (i *Ingestor) Ingest(ctx context.Context, rows []PlayerStatsRow) error {
	const op = "ingest.player_stats"

	facts, err := preparePlayerStats(op, rows)
	if err != nil {
		return err
	}
	if len(facts) == 0 {
		return nil
	}

	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "round_id"}, {Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"team", "kills", "deaths", "suicides", "score", "total_damage"}),
	}

	if err := writeChunks(ctx, i, op, facts, upsert); err != nil {
		return err
	}

	log.Debug().Int("rows", len(facts)).Msg("Ingested player round stats")
	return nil
}

// IngestWeaponStats resolves each distinct weapon name once, then writes the
// rows the same way Ingest does
func (i *Ingestor) IngestWeaponStats(ctx context.Context, rows []WeaponStatsRow) error {
	const op = "ingest.weapon_stats"

	if err := validateWeaponRows(op, rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	weaponIDs, err := i.resolveWeapons(ctx, rows)
	if err != nil {
		return err
	}

	facts := prepareWeaponStats(rows, weaponIDs)

	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "round_id"}, {Name: "player_id"}, {Name: "weapon_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kills", "total_damage", "shots_fired", "shots_hit", "headshots"}),
	}

	if err := writeChunks(ctx, i, op, facts, upsert); err != nil {
		return err
	}

	log.Debug().
		Int("rows", len(facts)).
		Int("weapons", len(weaponIDs)).
		Msg("Ingested player round weapon stats")
	return nil
}

func (i *Ingestor) resolveWeapons(ctx context.Context, rows []WeaponStatsRow) (map[string]uint, error) {
	attrs := make(map[string]dimension.WeaponAttributes)
	for _, row := range rows {
		name := strings.TrimSpace(row.Weapon)
		a := attrs[name]
		if a.DisplayName == "" {
			a.DisplayName = row.WeaponDisplayName
		}
		if a.Category == "" {
			a.Category = row.WeaponCategory
		}
		attrs[name] = a
	}

	ids := make(map[string]uint, len(attrs))
	for name, a := range attrs {
		id, err := i.dims.ResolveWeapon(ctx, name, a)
		if err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, nil
}

// writeChunks issues chunks concurrently inside the caller's transaction when
// ctx carries one, otherwise inside a single read-uncommitted transaction
func writeChunks[T any](ctx context.Context, i *Ingestor, op string, facts []T, upsert clause.OnConflict) error {
	write := func(tx *gorm.DB) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(i.maxConcurrency)

		for _, chunk := range processor.SplitIntoBatches(facts, i.chunkSize) {
			g.Go(func() error {
				return tx.WithContext(gctx).Clauses(upsert).Create(&chunk).Error
			})
		}
		return g.Wait()
	}

	var err error
	if tx, ok := database.TxFromContext(ctx); ok {
		err = write(tx)
	} else {
		err = i.db.WithContext(ctx).Transaction(write, database.ReadUncommitted)
	}
	if err != nil {
		log.Error().Err(err).Str("op", op).Int("rows", len(facts)).Msg("Failed to write fact rows")
		return database.Classify(op, err)
	}
	return nil
}

type playerKey struct {
	roundID  uint
	playerID int64
}

// preparePlayerStats decodes and clamps every row. Repeated (round, player)
// pairs are summed so a single statement never touches the same key twice.
func preparePlayerStats(op string, rows []PlayerStatsRow) ([]model.PlayerRoundStats, error) {
	for idx, row := range rows {
		if row.RoundID == 0 {
			return nil, apperr.Validation(op, "row %d: round id is required", idx)
		}
		if _, ok := playerid.Decode(row.PlayerID); !ok {
			return nil, apperr.Validation(op, "row %d: malformed player id %d", idx, row.PlayerID)
		}
		if !row.Team.Valid() {
			return nil, apperr.Validation(op, "row %d: unknown team %d", idx, row.Team)
		}
	}

	byKey := make(map[playerKey]int, len(rows))
	facts := make([]model.PlayerRoundStats, 0, len(rows))
	for _, row := range rows {
		account, _ := playerid.Decode(row.PlayerID)
		key := playerKey{roundID: row.RoundID, playerID: int64(account)}

		fact := model.PlayerRoundStats{
			RoundID:     row.RoundID,
			PlayerID:    key.playerID,
			Team:        row.Team,
			Kills:       clampInt(row.Kills),
			Deaths:      clampInt(row.Deaths),
			Suicides:    clampInt(row.Suicides),
			Score:       clampInt(row.Score),
			TotalDamage: clampFloat(row.TotalDamage),
		}

		if at, seen := byKey[key]; seen {
			prev := &facts[at]
			prev.Team = fact.Team
			prev.Kills += fact.Kills
			prev.Deaths += fact.Deaths
			prev.Suicides += fact.Suicides
			prev.Score += fact.Score
			prev.TotalDamage += fact.TotalDamage
			continue
		}
		byKey[key] = len(facts)
		facts = append(facts, fact)
	}
	return facts, nil
}

func validateWeaponRows(op string, rows []WeaponStatsRow) error {
	for idx, row := range rows {
		if row.RoundID == 0 {
			return apperr.Validation(op, "row %d: round id is required", idx)
		}
		if _, ok := playerid.Decode(row.PlayerID); !ok {
			return apperr.Validation(op, "row %d: malformed player id %d", idx, row.PlayerID)
		}
		if strings.TrimSpace(row.Weapon) == "" {
			return apperr.Validation(op, "row %d: weapon name is required", idx)
		}
	}
	return nil
}

type weaponKey struct {
	playerKey
	weaponID uint
}

func prepareWeaponStats(rows []WeaponStatsRow, weaponIDs map[string]uint) []model.PlayerRoundWeaponStats {
	byKey := make(map[weaponKey]int, len(rows))
	facts := make([]model.PlayerRoundWeaponStats, 0, len(rows))
	for _, row := range rows {
		account, _ := playerid.Decode(row.PlayerID)
		key := weaponKey{
			playerKey: playerKey{roundID: row.RoundID, playerID: int64(account)},
			weaponID:  weaponIDs[strings.TrimSpace(row.Weapon)],
		}

		fact := model.PlayerRoundWeaponStats{
			RoundID:     row.RoundID,
			PlayerID:    key.playerID,
			WeaponID:    key.weaponID,
			Kills:       clampInt(row.Kills),
			TotalDamage: clampFloat(row.TotalDamage),
			ShotsFired:  clampInt(row.ShotsFired),
			ShotsHit:    clampInt(row.ShotsHit),
			Headshots:   clampInt(row.Headshots),
		}

		if at, seen := byKey[key]; seen {
			prev := &facts[at]
			prev.Kills += fact.Kills
			prev.TotalDamage += fact.TotalDamage
			prev.ShotsFired += fact.ShotsFired
			prev.ShotsHit += fact.ShotsHit
			prev.Headshots += fact.Headshots
			continue
		}
		byKey[key] = len(facts)
		facts = append(facts, fact)
	}
	return facts
}

func clampInt(v int) int {
	return max(v, 0)
}

// clampFloat also maps NaN to zero
func clampFloat(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	return v
}
