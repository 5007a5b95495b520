package controller

import (
	"context"
	"errors"
	"testing"

	"matchstats/internal/ingest"

	"github.com/bmizerany/assert"
)

type pingerFunc func(context.Context) error

func (f pingerFunc) Health(ctx context.Context) error { return f(ctx) }

func TestReadinessWithoutDatabase(t *testing.T) {
	sc := NewServer(nil, nil, nil, pingerFunc(func(context.Context) error { return nil }), nil)

	res, ready := sc.Readiness(context.Background())
	assert.T(t, !ready)
	assert.Equal(t, StateDisabled, res["database"])
	assert.Equal(t, StateDisabled, res["cache"])
	assert.Equal(t, StateUp, res["archive"])
}

func TestReadinessReportsDownComponents(t *testing.T) {
	sc := NewServer(nil, nil, nil, pingerFunc(func(context.Context) error { return errors.New("no primary") }), nil)

	res, _ := sc.Readiness(context.Background())
	assert.Equal(t, StateDown, res["archive"])
	assert.Equal(t, "Online", sc.Online())
}

func TestState(t *testing.T) {
	called := false
	assert.Equal(t, StateDisabled, state(false, func() error { called = true; return nil }))
	assert.T(t, !called)
	assert.Equal(t, StateUp, state(true, func() error { return nil }))
	assert.Equal(t, StateDown, state(true, func() error { return errors.New("x") }))
}

func TestAsyncSubmitWithoutPublisher(t *testing.T) {
	c := NewStatisticsController(nil, nil, nil, nil, nil, nil, nil)
	_, err := c.SubmitReport(context.Background(), ingest.RoundReport{}, true)
	assert.NotEqual(t, nil, err)
}
