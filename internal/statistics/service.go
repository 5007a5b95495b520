// Package statistics serves ranked, filtered aggregates over recorded rounds.
package statistics

import (
	"context"

	"matchstats/internal/apperr"
	"matchstats/internal/counters"
	"matchstats/internal/database"
	"matchstats/internal/playerid"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Counter keys shared with anything that warms or inspects the cache
const (
	CounterUniquePlayers = "unique_players"
	CounterRounds        = "rounds"
	CounterGames         = "games"
	CounterActiveBans    = "active_bans"
)

type PlayerStatistics struct {
	Rank              int64   `json:"rank" gorm:"column:player_rank"`
	PlayerID          uint64  `json:"player_id" gorm:"-"`
	AccountID         int64   `json:"-" gorm:"column:player_id"`
	Kills             int64   `json:"kills"`
	Deaths            int64   `json:"deaths"`
	Suicides          int64   `json:"suicides"`
	TotalDamage       float64 `json:"total_damage"`
	Score             int64   `json:"score"`
	RoundsPlayed      int64   `json:"number_rounds_played"`
	GamesPlayed       int64   `json:"number_games_played"`
	KillDeathRatio    float64 `json:"kill_death_ratio"`
	AvgDamagePerRound float64 `json:"avg_damage_per_round"`
	AvgScorePerRound  float64 `json:"avg_score_per_round"`
}

type PlayerPage struct {
	Rows       []PlayerStatistics `json:"rows"`
	TotalCount int64              `json:"total_count"`
	PageCount  int64              `json:"page_count"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
}

type WeaponStatistics struct {
	WeaponID     uint    `json:"weapon_id"`
	WeaponName   string  `json:"weapon_name"`
	DisplayName  string  `json:"display_name"`
	Category     string  `json:"category"`
	Kills        int64   `json:"kills"`
	TotalDamage  float64 `json:"total_damage"`
	ShotsFired   int64   `json:"shots_fired"`
	ShotsHit     int64   `json:"shots_hit"`
	Headshots    int64   `json:"headshots"`
	RoundsPlayed int64   `json:"number_rounds_played"`
	Accuracy     float64 `json:"accuracy"`
}

type Service struct {
	db       *gorm.DB
	dialect  Dialect
	counters *counters.Cache
	clock    clockwork.Clock
}

// NewService binds the engine to db. The dialect follows db's dialector.
func NewService(db *gorm.DB, cache *counters.Cache, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cache == nil {
		cache = counters.New(counters.Options{Clock: clock})
	}
	return &Service{
		db:       db,
		dialect:  DialectFor(db.Dialector.Name()),
		counters: cache,
		clock:    clock,
	}
}

// GetPlayerStatistics returns one page of ranked player aggregates, or the
// single row of filter.PlayerID with its rank among all matching players
func (s *Service) GetPlayerStatistics(ctx context.Context, filter Filter) (PlayerPage, error) {
	const op = "statistics.player_statistics"

	q, err := filter.normalize(op)
	if err != nil {
		return PlayerPage{}, err
	}

	sql, args := buildPlayerStatsQuery(s.dialect, q)

	var rows []PlayerStatistics
	if err := database.Conn(ctx, s.db).Raw(sql, args...).Scan(&rows).Error; err != nil {
		log.Error().Err(err).Str("op", op).Msg("Player statistics query failed")
		return PlayerPage{}, database.Classify(op, err)
	}
	for i := range rows {
		rows[i].PlayerID = playerid.Encode(uint32(rows[i].AccountID))
	}

	page := PlayerPage{Rows: rows, Page: q.page, PageSize: q.pageSize}
	if rows == nil {
		page.Rows = []PlayerStatistics{}
	}

	if q.accountID != 0 {
		page.TotalCount = int64(len(rows))
	} else {
		total, err := s.counters.Get(ctx, q.countKey(), func(ctx context.Context) (int64, error) {
			sql, args := buildPlayerCountQuery(q)
			return s.scalar(ctx, op, sql, args...)
		})
		if err != nil {
			return PlayerPage{}, err
		}
		page.TotalCount = total
	}
	page.PageCount = pageCount(page.TotalCount, q.pageSize)

	return page, nil
}

// GetPlayerWeaponStatistics aggregates filter.PlayerID's weapon rows, one per
// weapon. Sort and paging fields are ignored.
func (s *Service) GetPlayerWeaponStatistics(ctx context.Context, filter Filter) ([]WeaponStatistics, error) {
	const op = "statistics.weapon_statistics"

	q, err := filter.normalize(op)
	if err != nil {
		return nil, err
	}
	if q.accountID == 0 {
		return nil, apperr.Validation(op, "player id is required")
	}

	sql, args := buildWeaponStatsQuery(s.dialect, q)

	rows := []WeaponStatistics{}
	if err := database.Conn(ctx, s.db).Raw(sql, args...).Scan(&rows).Error; err != nil {
		log.Error().Err(err).Str("op", op).Msg("Weapon statistics query failed")
		return nil, database.Classify(op, err)
	}
	return rows, nil
}

func (s *Service) GetCountUniquePlayersCached(ctx context.Context) (int64, error) {
	return s.counters.Get(ctx, CounterUniquePlayers, s.CountUniquePlayers)
}

func (s *Service) GetNumberOfRoundsCached(ctx context.Context) (int64, error) {
	return s.counters.Get(ctx, CounterRounds, s.CountRounds)
}

func (s *Service) GetNumberOfGamesCached(ctx context.Context) (int64, error) {
	return s.counters.Get(ctx, CounterGames, s.CountGames)
}

func (s *Service) GetCountActiveBansCached(ctx context.Context) (int64, error) {
	return s.counters.Get(ctx, CounterActiveBans, s.CountActiveBans)
}

// CountUniquePlayers counts every player with at least one recorded round
func (s *Service) CountUniquePlayers(ctx context.Context) (int64, error) {
	return s.scalar(ctx, "statistics.count_unique_players", "SELECT COUNT(DISTINCT player_id) FROM player_round_stats")
}

func (s *Service) CountRounds(ctx context.Context) (int64, error) {
	return s.scalar(ctx, "statistics.count_rounds", "SELECT COUNT(*) FROM rounds")
}

func (s *Service) CountGames(ctx context.Context) (int64, error) {
	return s.scalar(ctx, "statistics.count_games", "SELECT COUNT(*) FROM games")
}

// Counts is the bundle served to dashboards
type Counts struct {
	UniquePlayers int64 `json:"unique_players"`
	Rounds        int64 `json:"rounds"`
	Games         int64 `json:"games"`
	ActiveBans    int64 `json:"active_bans"`
}

func (s *Service) GetCountsCached(ctx context.Context) (Counts, error) {
	var (
		c   Counts
		err error
	)
	if c.UniquePlayers, err = s.GetCountUniquePlayersCached(ctx); err != nil {
		return Counts{}, err
	}
	if c.Rounds, err = s.GetNumberOfRoundsCached(ctx); err != nil {
		return Counts{}, err
	}
	if c.Games, err = s.GetNumberOfGamesCached(ctx); err != nil {
		return Counts{}, err
	}
	if c.ActiveBans, err = s.GetCountActiveBansCached(ctx); err != nil {
		return Counts{}, err
	}
	return c, nil
}

func (s *Service) scalar(ctx context.Context, op, sql string, args ...any) (int64, error) {
	var n int64
	if err := database.Conn(ctx, s.db).Raw(sql, args...).Scan(&n).Error; err != nil {
		return 0, database.Classify(op, err)
	}
	return n, nil
}

func pageCount(total int64, pageSize int) int64 {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	size := int64(pageSize)
	return (total + size - 1) / size
}
