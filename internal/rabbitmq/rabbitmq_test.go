package rabbitmq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"matchstats/internal/config"

	"github.com/bmizerany/assert"
	amqp "github.com/rabbitmq/amqp091-go"
)

// within fails the test when f does not return in time
func within(t *testing.T, d time.Duration, what string, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		f()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", what, d)
	}
}

func TestReconnectReleasesLockAndStopsOnClose(t *testing.T) {
	var dials atomic.Int64
	c := newClient(config.RabbitMQConfig{Host: "localhost", Port: 5672})
	c.dial = func(string, amqp.Config) (*amqp.Connection, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	}
	c.backoff, c.maxBackoff = time.Millisecond, 5*time.Millisecond

	stopped := make(chan struct{})
	go func() {
		c.reconnect()
		close(stopped)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for dials.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.T(t, dials.Load() >= 3)

	var healthErr, closeErr error
	within(t, time.Second, "Health", func() { healthErr = c.Health() })
	within(t, time.Second, "Close", func() { closeErr = c.Close() })
	assert.NotEqual(t, nil, healthErr)
	assert.Equal(t, nil, closeErr)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect kept retrying after Close")
	}

	err := c.Publish(context.Background(), "matchstats", "round.report", []byte("{}"), nil)
	assert.T(t, errors.Is(err, errClientClosed))
}

func TestReconnectAfterCloseIsNoop(t *testing.T) {
	var dials atomic.Int64
	c := newClient(config.RabbitMQConfig{})
	c.dial = func(string, amqp.Config) (*amqp.Connection, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	}

	assert.Equal(t, nil, c.Close())
	within(t, time.Second, "reconnect", c.reconnect)
	assert.Equal(t, int64(0), dials.Load())
}
