package aws

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestObjectURL(t *testing.T) {
	assert.Equal(t,
		"https://stats-exports.s3.eu-central-1.amazonaws.com/leaderboards/x.json",
		objectURL("stats-exports", "eu-central-1", "leaderboards/x.json"))
}
