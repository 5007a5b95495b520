package archive

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"matchstats/internal/config"
	"matchstats/internal/ingest"

	"github.com/bmizerany/assert"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

const envMongoURI = "MATCHSTATS_TEST_MONGO_URI"

func TestDocumentEncoding(t *testing.T) {
	report := ingest.RoundReport{
		Game:    ingest.GameRecord{ID: "g-1", GameserverID: "srv-9"},
		Players: []ingest.PlayerStatsRow{{PlayerID: 76561197960287930, Kills: 3}},
	}
	result := ingest.ReportResult{GameID: "g-1", RoundID: 12, Players: 1}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	doc := newDocument(report, result, now)
	assert.Equal(t, "srv-9", doc.Gameserver)
	assert.Equal(t, time.UTC, doc.ArchivedAt.Location())

	raw, err := bson.Marshal(doc)
	assert.Equal(t, nil, err)

	var decoded bson.M
	assert.Equal(t, nil, bson.Unmarshal(raw, &decoded))
	assert.Equal(t, "g-1", decoded["game_id"])
	assert.Equal(t, int64(12), decoded["round_id"])
}

func TestReportsForGame(t *testing.T) {
	uri := os.Getenv(envMongoURI)
	if uri == "" {
		t.Skipf("%s not set, skipping archive-backed test", envMongoURI)
	}
	ctx := context.Background()

	cfg := config.MongoDBConfig{
		URI:        uri,
		DB:         "matchstats_test",
		Collection: "reports_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	a, err := NewMongoArchive(ctx, cfg)
	assert.Equal(t, nil, err)
	t.Cleanup(func() {
		a.reports.Drop(ctx)
		a.Close(ctx)
	})

	for round := uint(1); round <= 3; round++ {
		report := ingest.RoundReport{Game: ingest.GameRecord{ID: "g-1", GameserverID: "srv-1"}}
		assert.Equal(t, nil, a.ArchiveReport(ctx, report, ingest.ReportResult{GameID: "g-1", RoundID: round}))
	}
	other := ingest.RoundReport{Game: ingest.GameRecord{ID: "g-2"}}
	assert.Equal(t, nil, a.ArchiveReport(ctx, other, ingest.ReportResult{GameID: "g-2", RoundID: 9}))

	docs, err := a.ReportsForGame(ctx, "g-1")
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, len(docs))
	for i, doc := range docs {
		assert.Equal(t, "g-1", doc.GameID)
		assert.Equal(t, uint(i+1), doc.RoundID)
		assert.Equal(t, "srv-1", doc.Gameserver)
	}

	docs, err = a.ReportsForGame(ctx, "missing")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(docs))
}
