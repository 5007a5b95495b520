package controller

import (
	"context"
	"errors"
	"testing"

	"matchstats/internal/apperr"
	"matchstats/internal/archive"
	"matchstats/internal/statistics"

	"github.com/bmizerany/assert"
)

type modesFunc func(ctx context.Context, name string) (uint, error)

func (f modesFunc) LookupGameMode(ctx context.Context, name string) (uint, error) { return f(ctx, name) }

type archiveFunc func(ctx context.Context, gameID string) ([]archive.Document, error)

func (f archiveFunc) ReportsForGame(ctx context.Context, gameID string) ([]archive.Document, error) {
	return f(ctx, gameID)
}

func TestUnknownGameModeIsNotFound(t *testing.T) {
	var looked string
	modes := modesFunc(func(_ context.Context, name string) (uint, error) {
		looked = name
		return 0, apperr.NotFound("dimension.lookup", "game_mode %q does not exist", name)
	})
	// a nil statistics service: reaching the query would panic
	c := NewStatisticsController(nil, nil, nil, nil, modes, nil, nil)

	_, err := c.PlayerStatistics(context.Background(), statistics.Filter{GameModeName: "Nonexistent"})
	assert.T(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, "Nonexistent", looked)

	_, err = c.PlayerWeaponStatistics(context.Background(), statistics.Filter{PlayerID: 76561197960265729, GameModeName: "Nonexistent"})
	assert.T(t, errors.Is(err, apperr.ErrNotFound))
}

func TestResolveGameModeReplacesName(t *testing.T) {
	sc := &statisticsController{modes: modesFunc(func(context.Context, string) (uint, error) { return 4, nil })}

	f, err := sc.resolveGameMode(context.Background(), statistics.Filter{GameModeName: "Classic"})
	assert.Equal(t, nil, err)
	assert.Equal(t, uint(4), f.GameModeID)
	assert.Equal(t, "", f.GameModeName)

	// an explicit id wins and no lookup happens
	sc.modes = modesFunc(func(context.Context, string) (uint, error) { return 0, errors.New("unexpected lookup") })
	f, err = sc.resolveGameMode(context.Background(), statistics.Filter{GameModeID: 2, GameModeName: "Classic"})
	assert.Equal(t, nil, err)
	assert.Equal(t, uint(2), f.GameModeID)
}

func TestGameReports(t *testing.T) {
	ctx := context.Background()

	disabled := NewStatisticsController(nil, nil, nil, nil, nil, nil, nil)
	_, err := disabled.GameReports(ctx, "g-1")
	assert.T(t, errors.Is(err, apperr.ErrNotFound))

	c := NewStatisticsController(nil, nil, nil, nil, nil, nil, archiveFunc(func(_ context.Context, gameID string) ([]archive.Document, error) {
		if gameID != "g-1" {
			return nil, nil
		}
		return []archive.Document{{GameID: "g-1", RoundID: 1}, {GameID: "g-1", RoundID: 2}}, nil
	}))

	docs, err := c.GameReports(ctx, "g-1")
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(docs))
	assert.Equal(t, uint(2), docs[1].RoundID)

	_, err = c.GameReports(ctx, "g-2")
	assert.T(t, errors.Is(err, apperr.ErrNotFound))
}
