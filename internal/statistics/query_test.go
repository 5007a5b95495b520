package statistics

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"matchstats/internal/apperr"
	"matchstats/internal/playerid"

	"github.com/bmizerany/assert"
)

func mustNormalize(t *testing.T, f Filter) query {
	t.Helper()
	q, err := f.normalize("test")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return q
}

func TestCountQueryDefaultsToFinishedRounds(t *testing.T) {
	sql, args := buildPlayerCountQuery(mustNormalize(t, Filter{}))

	assert.Equal(t, "SELECT COUNT(DISTINCT prs.player_id) FROM player_round_stats prs"+
		" JOIN rounds r ON r.id = prs.round_id"+
		" JOIN games g ON g.id = r.game_id"+
		" JOIN game_modes gm ON gm.id = g.game_mode_id"+
		" LEFT JOIN match_configs mc ON mc.id = g.match_config_id"+
		" WHERE r.ended_at IS NOT NULL", sql)
	assert.Equal(t, 0, len(args))
}

func TestFilterPredicatesAndArgs(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	unfinished := false

	q := mustNormalize(t, Filter{
		From:               &from,
		To:                 &to,
		RoundID:            9,
		GameID:             " g-1 ",
		GameModeName:       " Classic ",
		RankedOnly:         true,
		OnlyFinishedRounds: &unfinished,
	})
	sql, args := buildPlayerCountQuery(q)

	assert.T(t, !strings.Contains(sql, "ended_at IS NOT NULL"))
	assert.T(t, strings.Contains(sql, "WHERE r.started_at >= ? AND r.ended_at < ? AND r.id = ? AND g.id = ? AND gm.name = ? AND mc.ranked = ?"))
	assert.Equal(t, []any{from, to, uint(9), "g-1", "Classic", true}, args)
}

func TestPlayerStatsQueryPostgres(t *testing.T) {
	q := mustNormalize(t, Filter{Sort: SortKillDeathRatio, Direction: Ascending, Page: 3, PageSize: 10, GameModeID: 4})
	sql, args := buildPlayerStatsQuery(Postgres, q)

	assert.T(t, strings.Contains(sql, "CAST(a.kills AS DOUBLE PRECISION) / GREATEST(1, a.deaths + a.suicides) AS kill_death_ratio"))
	assert.T(t, strings.Contains(sql, "CAST(a.total_damage AS DOUBLE PRECISION) / GREATEST(1, a.rounds_played) AS avg_damage_per_round"))
	assert.T(t, strings.Contains(sql, "ROW_NUMBER() OVER (ORDER BY s.kill_death_ratio ASC, s.score ASC, s.total_damage ASC, s.player_id ASC) AS player_rank"))
	assert.T(t, strings.Contains(sql, "GROUP BY prs.player_id"))
	assert.T(t, strings.HasSuffix(sql, "WHERE ranked.player_rank > ? AND ranked.player_rank <= ? ORDER BY ranked.player_rank"))

	// subquery args come first
	assert.Equal(t, []any{uint(4), 20, 30}, args)
}

func TestPlayerStatsQueryForOnePlayer(t *testing.T) {
	q := mustNormalize(t, Filter{PlayerID: playerid.Encode(22202), Page: 5})
	sql, args := buildPlayerStatsQuery(Postgres, q)

	assert.T(t, strings.HasSuffix(sql, "WHERE ranked.player_id = ? ORDER BY ranked.player_rank"))
	assert.T(t, !strings.Contains(sql, "player_rank >"))
	assert.T(t, strings.Contains(sql, "ORDER BY s.kills DESC, s.score DESC, s.total_damage DESC"))
	assert.Equal(t, []any{int64(22202)}, args)
}

func TestSQLiteDialectUsesScalarMax(t *testing.T) {
	q := mustNormalize(t, Filter{})
	sql, _ := buildPlayerStatsQuery(SQLite, q)

	assert.T(t, strings.Contains(sql, "CAST(a.kills AS REAL) / MAX(1, a.deaths + a.suicides)"))
	assert.T(t, !strings.Contains(sql, "GREATEST"))
	assert.Equal(t, SQLite, DialectFor("sqlite"))
	assert.Equal(t, Postgres, DialectFor("postgres"))
}

func TestWeaponStatsQuery(t *testing.T) {
	q := mustNormalize(t, Filter{PlayerID: playerid.Encode(7), GameModeName: "Classic"})
	sql, args := buildWeaponStatsQuery(Postgres, q)

	assert.T(t, strings.Contains(sql, "JOIN weapons w ON w.id = prws.weapon_id JOIN rounds r ON r.id = prws.round_id"))
	assert.T(t, strings.Contains(sql, "CAST(SUM(prws.shots_hit) AS DOUBLE PRECISION) / GREATEST(1, SUM(prws.shots_fired)) AS accuracy"))
	assert.T(t, strings.Contains(sql, "WHERE r.ended_at IS NOT NULL AND gm.name = ? AND prws.player_id = ?"))
	assert.Equal(t, []any{"Classic", int64(7)}, args)
}

func TestNormalizeDefaultsAndClamps(t *testing.T) {
	q := mustNormalize(t, Filter{})
	assert.Equal(t, "kills", q.sortColumn)
	assert.Equal(t, Descending, q.direction)
	assert.Equal(t, 1, q.page)
	assert.Equal(t, DefaultPageSize, q.pageSize)
	assert.T(t, q.finishedOnly)

	assert.Equal(t, MaxPageSize, mustNormalize(t, Filter{PageSize: 5000}).pageSize)
	assert.Equal(t, 1, mustNormalize(t, Filter{PageSize: -3}).pageSize)
	assert.Equal(t, 1, mustNormalize(t, Filter{Page: -1}).page)
}

func TestNormalizeClampsHugePage(t *testing.T) {
	q := mustNormalize(t, Filter{Page: math.MaxInt, PageSize: MaxPageSize})
	assert.Equal(t, MaxPage, q.page)

	lower, upper := (q.page-1)*q.pageSize, q.page*q.pageSize
	assert.T(t, lower > 0)
	assert.T(t, upper > lower)
}

func TestNormalizeRejects(t *testing.T) {
	from := time.Now()
	cases := map[string]Filter{
		"malformed player": {PlayerID: 12345},
		"unknown sort":     {Sort: "elo"},
		"unknown dir":      {Direction: "sideways"},
		"empty range":      {From: &from, To: &from},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.normalize("test")
			assert.T(t, errors.Is(err, apperr.ErrValidation))
		})
	}
}

func TestCountKeyIgnoresSortAndPage(t *testing.T) {
	a := mustNormalize(t, Filter{GameModeName: "Classic", Sort: SortScore, Page: 1})
	b := mustNormalize(t, Filter{GameModeName: " Classic", Sort: SortDeaths, Direction: Ascending, Page: 7, PageSize: 50})
	c := mustNormalize(t, Filter{GameModeName: "Classic", RankedOnly: true})

	assert.Equal(t, a.countKey(), b.countKey())
	assert.NotEqual(t, a.countKey(), c.countKey())
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, int64(0), pageCount(0, 25))
	assert.Equal(t, int64(1), pageCount(25, 25))
	assert.Equal(t, int64(2), pageCount(26, 25))
}
