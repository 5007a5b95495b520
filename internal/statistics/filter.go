package statistics

import (
	"fmt"
	"math"
	"strings"
	"time"

	"matchstats/internal/apperr"
	"matchstats/internal/playerid"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100

	// MaxPage keeps page*pageSize within int
	MaxPage = math.MaxInt / MaxPageSize
)

type SortField string

const (
	SortKills          SortField = "kills"
	SortDeaths         SortField = "deaths"
	SortSuicides       SortField = "suicides"
	SortDamage         SortField = "damage"
	SortScore          SortField = "score"
	SortKillDeathRatio SortField = "kd"
	SortAvgDamage      SortField = "avg_damage"
	SortAvgScore       SortField = "avg_score"
	SortRoundsPlayed   SortField = "rounds"
	SortGamesPlayed    SortField = "games"
)

// sortColumns maps each sort field to a column of the derived result
var sortColumns = map[SortField]string{
	SortKills:          "kills",
	SortDeaths:         "deaths",
	SortSuicides:       "suicides",
	SortDamage:         "total_damage",
	SortScore:          "score",
	SortKillDeathRatio: "kill_death_ratio",
	SortAvgDamage:      "avg_damage_per_round",
	SortAvgScore:       "avg_score_per_round",
	SortRoundsPlayed:   "rounds_played",
	SortGamesPlayed:    "games_played",
}

type Direction string

const (
	Descending Direction = "desc"
	Ascending  Direction = "asc"
)

func (d Direction) sql() string {
	if d == Ascending {
		return "ASC"
	}
	return "DESC"
}

// Filter selects the fact rows a statistics query aggregates. Zero values
// mean "no restriction", except OnlyFinishedRounds which defaults to true.
type Filter struct {
	// PlayerID is the public 64-bit id. When set the result is that one
	// player's row, ranked against everyone else matching the filter.
	PlayerID uint64

	// From bounds round start inclusively, To bounds round end exclusively
	From *time.Time
	To   *time.Time

	RoundID      uint
	GameID       string
	GameModeID   uint
	GameModeName string

	RankedOnly         bool
	OnlyFinishedRounds *bool

	Sort      SortField
	Direction Direction
	Page      int
	PageSize  int
}

// query is a validated Filter
type query struct {
	accountID    int64
	from         *time.Time
	to           *time.Time
	roundID      uint
	gameID       string
	gameModeID   uint
	gameModeName string
	rankedOnly   bool
	finishedOnly bool
	sortColumn   string
	direction    Direction
	page         int
	pageSize     int
}

func (f Filter) normalize(op string) (query, error) {
	q := query{
		from:         f.From,
		to:           f.To,
		roundID:      f.RoundID,
		gameID:       strings.TrimSpace(f.GameID),
		gameModeID:   f.GameModeID,
		gameModeName: strings.TrimSpace(f.GameModeName),
		rankedOnly:   f.RankedOnly,
		finishedOnly: f.OnlyFinishedRounds == nil || *f.OnlyFinishedRounds,
		direction:    f.Direction,
		page:         min(max(f.Page, 1), MaxPage),
		pageSize:     clampPageSize(f.PageSize),
	}

	if f.PlayerID != playerid.None {
		account, ok := playerid.Decode(f.PlayerID)
		if !ok {
			return query{}, apperr.Validation(op, "malformed player id %d", f.PlayerID)
		}
		q.accountID = int64(account)
	}

	sort := f.Sort
	if sort == "" {
		sort = SortKills
	}
	col, ok := sortColumns[sort]
	if !ok {
		return query{}, apperr.Validation(op, "unknown sort field %q", f.Sort)
	}
	q.sortColumn = col

	switch q.direction {
	case "":
		q.direction = Descending
	case Ascending, Descending:
	default:
		return query{}, apperr.Validation(op, "unknown sort direction %q", f.Direction)
	}

	if q.from != nil && q.to != nil && !q.from.Before(*q.to) {
		return query{}, apperr.Validation(op, "empty date range")
	}

	return q, nil
}

func clampPageSize(size int) int {
	switch {
	case size == 0:
		return DefaultPageSize
	case size < 1:
		return 1
	case size > MaxPageSize:
		return MaxPageSize
	}
	return size
}

// countKey identifies the set of players a filter matches, ignoring sort and
// page, so every page of one listing shares one cached total
func (q query) countKey() string {
	var b strings.Builder
	b.WriteString("players")
	if q.from != nil {
		fmt.Fprintf(&b, "|from=%d", q.from.Unix())
	}
	if q.to != nil {
		fmt.Fprintf(&b, "|to=%d", q.to.Unix())
	}
	if q.roundID != 0 {
		fmt.Fprintf(&b, "|round=%d", q.roundID)
	}
	if q.gameID != "" {
		fmt.Fprintf(&b, "|game=%s", q.gameID)
	}
	if q.gameModeID != 0 {
		fmt.Fprintf(&b, "|mode=%d", q.gameModeID)
	}
	if q.gameModeName != "" {
		fmt.Fprintf(&b, "|mode_name=%s", q.gameModeName)
	}
	fmt.Fprintf(&b, "|ranked=%t|finished=%t", q.rankedOnly, q.finishedOnly)
	return b.String()
}
