package statistics

import (
	"strings"
)

// selectQuery assembles one SELECT statement with positional ? arguments.
// Subqueries are embedded with From, which also carries their arguments.
type selectQuery struct {
	columns []string
	from    string
	joins   []string
	where   []string
	groupBy []string
	orderBy []string
	args    []any
}

func newSelect(columns ...string) *selectQuery {
	return &selectQuery{columns: columns}
}

func (q *selectQuery) From(table string) *selectQuery {
	q.from = table
	return q
}

// FromSubquery selects from sub aliased as alias
func (q *selectQuery) FromSubquery(sub *selectQuery, alias string) *selectQuery {
	sql, args := sub.Build()
	q.from = "(" + sql + ") " + alias
	q.args = append(append([]any{}, args...), q.args...)
	return q
}

func (q *selectQuery) Join(clause string) *selectQuery {
	q.joins = append(q.joins, clause)
	return q
}

func (q *selectQuery) Where(cond string, args ...any) *selectQuery {
	q.where = append(q.where, cond)
	q.args = append(q.args, args...)
	return q
}

func (q *selectQuery) GroupBy(cols ...string) *selectQuery {
	q.groupBy = append(q.groupBy, cols...)
	return q
}

func (q *selectQuery) OrderBy(terms ...string) *selectQuery {
	q.orderBy = append(q.orderBy, terms...)
	return q
}

func (q *selectQuery) Build() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.from)
	for _, j := range q.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	if len(q.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.groupBy, ", "))
	}
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orderBy, ", "))
	}
	return b.String(), q.args
}

// scoped joins a fact table to rounds, games, game modes and match configs
// and applies every predicate of q except the player
func scoped(sq *selectQuery, factAlias string, q query) *selectQuery {
	sq.Join("JOIN rounds r ON r.id = " + factAlias + ".round_id").
		Join("JOIN games g ON g.id = r.game_id").
		Join("JOIN game_modes gm ON gm.id = g.game_mode_id").
		Join("LEFT JOIN match_configs mc ON mc.id = g.match_config_id")

	if q.finishedOnly {
		sq.Where("r.ended_at IS NOT NULL")
	}
	if q.from != nil {
		sq.Where("r.started_at >= ?", *q.from)
	}
	if q.to != nil {
		sq.Where("r.ended_at < ?", *q.to)
	}
	if q.roundID != 0 {
		sq.Where("r.id = ?", q.roundID)
	}
	if q.gameID != "" {
		sq.Where("g.id = ?", q.gameID)
	}
	if q.gameModeID != 0 {
		sq.Where("gm.id = ?", q.gameModeID)
	}
	if q.gameModeName != "" {
		sq.Where("gm.name = ?", q.gameModeName)
	}
	if q.rankedOnly {
		sq.Where("mc.ranked = ?", true)
	}
	return sq
}

// buildPlayerStatsQuery returns the ranked, sliced player statistics query.
// Ranks follow the requested key, then score, then damage in the same
// direction, then player id ascending, so no two rows share a rank.
func buildPlayerStatsQuery(d Dialect, q query) (string, []any) {
	grouped := newSelect(
		"prs.player_id AS player_id",
		"SUM(prs.kills) AS kills",
		"SUM(prs.deaths) AS deaths",
		"SUM(prs.suicides) AS suicides",
		"SUM(prs.total_damage) AS total_damage",
		"SUM(prs.score) AS score",
		"COUNT(DISTINCT prs.round_id) AS rounds_played",
		"COUNT(DISTINCT r.game_id) AS games_played",
	).From("player_round_stats prs")
	scoped(grouped, "prs", q).GroupBy("prs.player_id")

	derived := newSelect(
		"a.player_id", "a.kills", "a.deaths", "a.suicides", "a.total_damage", "a.score",
		"a.rounds_played", "a.games_played",
		d.Float("a.kills")+" / "+d.Greatest("1", "a.deaths + a.suicides")+" AS kill_death_ratio",
		d.Float("a.total_damage")+" / "+d.Greatest("1", "a.rounds_played")+" AS avg_damage_per_round",
		d.Float("a.score")+" / "+d.Greatest("1", "a.rounds_played")+" AS avg_score_per_round",
	).FromSubquery(grouped, "a")

	dir := q.direction.sql()
	window := "ROW_NUMBER() OVER (ORDER BY s." + q.sortColumn + " " + dir +
		", s.score " + dir +
		", s.total_damage " + dir +
		", s.player_id ASC) AS player_rank"
	ranked := newSelect("s.*", window).FromSubquery(derived, "s")

	outer := newSelect("ranked.*").FromSubquery(ranked, "ranked")
	if q.accountID != 0 {
		outer.Where("ranked.player_id = ?", q.accountID)
	} else {
		outer.Where("ranked.player_rank > ?", (q.page-1)*q.pageSize).
			Where("ranked.player_rank <= ?", q.page*q.pageSize)
	}
	outer.OrderBy("ranked.player_rank")

	return outer.Build()
}

// buildPlayerCountQuery counts the distinct players the filter matches
func buildPlayerCountQuery(q query) (string, []any) {
	sq := newSelect("COUNT(DISTINCT prs.player_id)").From("player_round_stats prs")
	return scoped(sq, "prs", q).Build()
}

// buildWeaponStatsQuery aggregates one player's weapon rows per weapon
func buildWeaponStatsQuery(d Dialect, q query) (string, []any) {
	sq := newSelect(
		"w.id AS weapon_id",
		"w.name AS weapon_name",
		"w.display_name AS display_name",
		"w.category AS category",
		"SUM(prws.kills) AS kills",
		"SUM(prws.total_damage) AS total_damage",
		"SUM(prws.shots_fired) AS shots_fired",
		"SUM(prws.shots_hit) AS shots_hit",
		"SUM(prws.headshots) AS headshots",
		"COUNT(DISTINCT prws.round_id) AS rounds_played",
		d.Float("SUM(prws.shots_hit)")+" / "+d.Greatest("1", "SUM(prws.shots_fired)")+" AS accuracy",
	).From("player_round_weapon_stats prws").
		Join("JOIN weapons w ON w.id = prws.weapon_id")

	scoped(sq, "prws", q).
		Where("prws.player_id = ?", q.accountID).
		GroupBy("w.id", "w.name", "w.display_name", "w.category").
		OrderBy("kills DESC", "total_damage DESC", "w.name ASC")

	return sq.Build()
}
