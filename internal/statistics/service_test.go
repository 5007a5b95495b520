package statistics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"matchstats/internal/apperr"
	"matchstats/internal/counters"
	"matchstats/internal/database"
	"matchstats/internal/database/dbtest"
	"matchstats/internal/dimension"
	"matchstats/internal/ingest"
	"matchstats/internal/model"
	"matchstats/internal/playerid"
	"matchstats/internal/retry"

	"github.com/bmizerany/assert"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	ingestor *ingest.Ingestor
	service  *Service
	clock    *clockwork.FakeClock
	start    time.Time
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.Open(t)
	resolver := dimension.NewResolver(db, dimension.NewCache(), retry.Default(database.IsRetryable))
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	return &fixture{
		db:       db,
		ingestor: ingest.NewIngestor(db, resolver, ingest.Options{}),
		service:  NewService(db, counters.New(counters.Options{Clock: clock}), clock),
		clock:    clock,
		start:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// round records one finished round in its own game and returns the round id
func (f *fixture) round(t *testing.T, mode string, offset time.Duration, players []ingest.PlayerStatsRow, weapons []ingest.WeaponStatsRow) uint {
	t.Helper()
	start := f.start.Add(offset)
	end := start.Add(2 * time.Minute)

	result, err := ingest.NewReportProcessor(f.ingestor, nil).Apply(context.Background(), ingest.RoundReport{
		Game: ingest.GameRecord{
			GameserverID: "srv-1",
			Map:          ingest.DimensionRef{Name: "de_dust2"},
			GameMode:     ingest.DimensionRef{Name: mode},
			StartedAt:    start,
		},
		Round:   ingest.RoundRecord{StartedAt: start, EndedAt: &end},
		Players: players,
		Weapons: weapons,
	})
	if err != nil {
		t.Fatalf("apply report: %v", err)
	}
	return result.RoundID
}

func TestClassicScenario(t *testing.T) {
	f := newFixture(t)
	p := playerid.Encode(1001)

	for i, kills := range []int{5, 3, 2} {
		f.round(t, "Classic", time.Duration(i)*time.Hour, []ingest.PlayerStatsRow{{PlayerID: p, Kills: kills}}, nil)
	}
	f.round(t, "Deathmatch", 5*time.Hour, []ingest.PlayerStatsRow{{PlayerID: p, Kills: 40}}, nil)

	page, err := f.service.GetPlayerStatistics(context.Background(), Filter{PlayerID: p, GameModeName: "Classic"})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(page.Rows))
	assert.Equal(t, int64(10), page.Rows[0].Kills)
	assert.Equal(t, int64(3), page.Rows[0].RoundsPlayed)
	assert.Equal(t, int64(3), page.Rows[0].GamesPlayed)
	assert.Equal(t, p, page.Rows[0].PlayerID)
	assert.Equal(t, int64(1), page.TotalCount)
}

func TestKillDeathRatioFloorsDenominator(t *testing.T) {
	f := newFixture(t)
	flawless := playerid.Encode(1)
	unlucky := playerid.Encode(2)

	f.round(t, "Classic", 0, []ingest.PlayerStatsRow{
		{PlayerID: flawless, Kills: 4, TotalDamage: 300},
		{PlayerID: unlucky, Kills: 3, Deaths: 4, Suicides: 2},
	}, nil)

	page, err := f.service.GetPlayerStatistics(context.Background(), Filter{Sort: SortKillDeathRatio})
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(page.Rows))
	assert.Equal(t, flawless, page.Rows[0].PlayerID)
	assert.Equal(t, 4.0, page.Rows[0].KillDeathRatio)
	assert.Equal(t, 0.5, page.Rows[1].KillDeathRatio)
	assert.Equal(t, 300.0, page.Rows[0].AvgDamagePerRound)
}

func TestRanksArePermutationAndPagesPartition(t *testing.T) {
	f := newFixture(t)

	const players = 23
	var rows []ingest.PlayerStatsRow
	for n := uint32(1); n <= players; n++ {
		// many ties on kills and score force the player id tie-breaker
		rows = append(rows, ingest.PlayerStatsRow{PlayerID: playerid.Encode(n), Kills: int(n % 4), Score: int(n % 2)})
	}
	f.round(t, "Classic", 0, rows, nil)
	f.round(t, "Classic", time.Hour, rows[:10], nil)

	const pageSize = 5
	first, err := f.service.GetPlayerStatistics(context.Background(), Filter{PageSize: pageSize})
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(players), first.TotalCount)
	assert.Equal(t, int64(5), first.PageCount)

	seenRanks := map[int64]bool{}
	seenPlayers := map[uint64]bool{}
	var previous *PlayerStatistics
	for page := 1; page <= int(first.PageCount); page++ {
		res, err := f.service.GetPlayerStatistics(context.Background(), Filter{PageSize: pageSize, Page: page})
		assert.Equal(t, nil, err)

		for i := range res.Rows {
			row := res.Rows[i]
			assert.T(t, !seenRanks[row.Rank])
			assert.T(t, !seenPlayers[row.PlayerID])
			seenRanks[row.Rank] = true
			seenPlayers[row.PlayerID] = true

			if previous != nil {
				assert.Equal(t, previous.Rank+1, row.Rank)
				assert.T(t, previous.Kills >= row.Kills)
			}
			previous = &row
		}
	}

	assert.Equal(t, players, len(seenRanks))
	for r := int64(1); r <= players; r++ {
		assert.T(t, seenRanks[r])
	}
}

func TestSinglePlayerKeepsGlobalRank(t *testing.T) {
	f := newFixture(t)

	var rows []ingest.PlayerStatsRow
	for n := uint32(1); n <= 8; n++ {
		rows = append(rows, ingest.PlayerStatsRow{PlayerID: playerid.Encode(n), Kills: int(n)})
	}
	f.round(t, "Classic", 0, rows, nil)

	page, err := f.service.GetPlayerStatistics(context.Background(), Filter{PlayerID: playerid.Encode(6)})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(page.Rows))
	assert.Equal(t, int64(3), page.Rows[0].Rank)

	page, err = f.service.GetPlayerStatistics(context.Background(), Filter{PlayerID: playerid.Encode(99)})
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(page.Rows))
	assert.Equal(t, int64(0), page.TotalCount)
}

func TestSumsMatchFactRows(t *testing.T) {
	f := newFixture(t)
	p := playerid.Encode(77)

	var want int64
	for i := range 6 {
		kills := i*3 + 1
		want += int64(kills)
		f.round(t, "Classic", time.Duration(i)*time.Hour, []ingest.PlayerStatsRow{
			{PlayerID: p, Kills: kills, Deaths: 1},
			{PlayerID: playerid.Encode(78), Kills: 1},
		}, nil)
	}

	var raw int64
	f.db.Model(&model.PlayerRoundStats{}).Where("player_id = ?", 77).Select("SUM(kills)").Scan(&raw)
	assert.Equal(t, want, raw)

	page, err := f.service.GetPlayerStatistics(context.Background(), Filter{PlayerID: p})
	assert.Equal(t, nil, err)
	assert.Equal(t, want, page.Rows[0].Kills)
	assert.Equal(t, int64(6), page.Rows[0].Deaths)
}

func TestDateRangeBounds(t *testing.T) {
	f := newFixture(t)
	p := playerid.Encode(5)

	f.round(t, "Classic", 0, []ingest.PlayerStatsRow{{PlayerID: p, Kills: 1}}, nil)
	f.round(t, "Classic", time.Hour, []ingest.PlayerStatsRow{{PlayerID: p, Kills: 10}}, nil)

	from := f.start.Add(time.Hour)
	page, err := f.service.GetPlayerStatistics(context.Background(), Filter{PlayerID: p, From: &from})
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(10), page.Rows[0].Kills)

	// the first round ends at start+2m, exactly at To, and is excluded
	to := f.start.Add(2 * time.Minute)
	page, err = f.service.GetPlayerStatistics(context.Background(), Filter{PlayerID: p, To: &to})
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(page.Rows))
}

func TestWeaponStatistics(t *testing.T) {
	f := newFixture(t)
	p := playerid.Encode(9)

	f.round(t, "Classic", 0, []ingest.PlayerStatsRow{{PlayerID: p, Kills: 3}}, []ingest.WeaponStatsRow{
		{PlayerID: p, Weapon: "ak47", Kills: 2, TotalDamage: 200, ShotsFired: 10, ShotsHit: 5},
		{PlayerID: p, Weapon: "knife", Kills: 1, TotalDamage: 55},
	})
	f.round(t, "Classic", time.Hour, []ingest.PlayerStatsRow{{PlayerID: p, Kills: 1}}, []ingest.WeaponStatsRow{
		{PlayerID: p, Weapon: "ak47", Kills: 1, TotalDamage: 90, ShotsFired: 10, ShotsHit: 3},
	})

	rows, err := f.service.GetPlayerWeaponStatistics(context.Background(), Filter{PlayerID: p})
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(rows))
	assert.Equal(t, "ak47", rows[0].WeaponName)
	assert.Equal(t, int64(3), rows[0].Kills)
	assert.Equal(t, 290.0, rows[0].TotalDamage)
	assert.Equal(t, int64(2), rows[0].RoundsPlayed)
	assert.Equal(t, 0.4, rows[0].Accuracy)
	assert.Equal(t, 0.0, rows[1].Accuracy)

	_, err = f.service.GetPlayerWeaponStatistics(context.Background(), Filter{})
	assert.T(t, errors.Is(err, apperr.ErrValidation))
}

func TestCachedCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := range 3 {
		f.round(t, "Classic", time.Duration(i)*time.Hour, []ingest.PlayerStatsRow{
			{PlayerID: playerid.Encode(uint32(i + 1))},
			{PlayerID: playerid.Encode(100)},
		}, nil)
	}

	counts, err := f.service.GetCountsCached(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, Counts{UniquePlayers: 4, Rounds: 3, Games: 3, ActiveBans: 0}, counts)

	// served from cache until the TTL passes
	f.round(t, "Classic", 9*time.Hour, []ingest.PlayerStatsRow{{PlayerID: playerid.Encode(200)}}, nil)
	n, _ := f.service.GetNumberOfRoundsCached(ctx)
	assert.Equal(t, int64(3), n)

	f.clock.Advance(counters.DefaultTTL + time.Second)
	n, _ = f.service.GetNumberOfRoundsCached(ctx)
	assert.Equal(t, int64(4), n)
}

func TestBans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateBan(ctx, BanRequest{PlayerID: playerid.Encode(1), Reason: "cheating"})
	assert.T(t, errors.Is(err, apperr.ErrValidation))

	for i, d := range []time.Duration{time.Hour, 48 * time.Hour, -time.Hour} {
		expires := f.clock.Now().Add(d)
		_, err := f.service.CreateBan(ctx, BanRequest{PlayerID: playerid.Encode(uint32(i + 1)), ExpiresAt: &expires})
		assert.Equal(t, nil, err, fmt.Sprintf("ban %d", i))
	}

	n, err := f.service.GetCountActiveBansCached(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(2), n)
}
