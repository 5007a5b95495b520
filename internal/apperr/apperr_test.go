package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bmizerany/assert"
)

func TestSentinelMatching(t *testing.T) {
	err := Validation("ingest", "row %d has invalid player id", 3)

	assert.T(t, errors.Is(err, ErrValidation))
	assert.T(t, !errors.Is(err, ErrConflict))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "ingest: validation: row 3 has invalid player id", err.Error())
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	cause := errors.New("could not serialize access")
	err := fmt.Errorf("resolve map: %w", Exhausted("dimension.resolve", 5, Conflict("dimension.resolve", cause)))

	assert.T(t, errors.Is(err, ErrExhausted))
	assert.T(t, errors.Is(err, ErrConflict))
	assert.T(t, errors.Is(err, cause))
	assert.Equal(t, KindExhausted, KindOf(err))
}

func TestConfigInUse(t *testing.T) {
	err := ConfigInUse("matchconfig.create_update", 7)

	assert.T(t, errors.Is(err, ErrConfigInUse))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
