// Package archive keeps the raw round reports that were applied, so they can
// be inspected or replayed after the fact.
package archive

import (
	"context"
	"fmt"
	"time"

	"matchstats/internal/config"
	"matchstats/internal/ingest"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Document is the stored form of an applied report
type Document struct {
	GameID     string             `bson:"game_id" json:"game_id"`
	RoundID    uint               `bson:"round_id" json:"round_id"`
	Gameserver string             `bson:"gameserver_id" json:"gameserver_id"`
	Players    int                `bson:"players" json:"players"`
	Weapons    int                `bson:"weapons" json:"weapons"`
	ArchivedAt time.Time          `bson:"archived_at" json:"archived_at"`
	Report     ingest.RoundReport `bson:"report" json:"report"`
}

func newDocument(report ingest.RoundReport, result ingest.ReportResult, now time.Time) Document {
	return Document{
		GameID:     result.GameID,
		RoundID:    result.RoundID,
		Gameserver: report.Game.GameserverID,
		Players:    result.Players,
		Weapons:    result.Weapons,
		ArchivedAt: now.UTC(),
		Report:     report,
	}
}

type MongoArchive struct {
	client  *mongo.Client
	reports *mongo.Collection
}

func NewMongoArchive(ctx context.Context, cfg config.MongoDBConfig) (*MongoArchive, error) {
	clientOptions := options.Client().ApplyURI(cfg.URI)
	if cfg.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	reports := client.Database(cfg.DB).Collection(cfg.Collection)

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "game_id", Value: 1}, {Key: "round_id", Value: 1}},
			Options: options.Index(),
		},
		{
			// raw reports are kept for 90 days
			Keys:    bson.D{{Key: "archived_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(60 * 60 * 24 * 90),
		},
	}
	if _, err := reports.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Str("collection", cfg.Collection).Msg("Error creating indexes")
	}

	log.Info().Str("db", cfg.DB).Str("collection", cfg.Collection).Msg("Report archive connected")

	return &MongoArchive{client: client, reports: reports}, nil
}

func (a *MongoArchive) ArchiveReport(ctx context.Context, report ingest.RoundReport, result ingest.ReportResult) error {
	_, err := a.reports.InsertOne(ctx, newDocument(report, result, time.Now()))
	if err != nil {
		return fmt.Errorf("archive report for game %s: %w", result.GameID, err)
	}
	return nil
}

// ReportsForGame returns the archived reports of a game, oldest first
func (a *MongoArchive) ReportsForGame(ctx context.Context, gameID string) ([]Document, error) {
	cursor, err := a.reports.Find(ctx,
		bson.M{"game_id": gameID},
		options.Find().SetSort(bson.D{{Key: "archived_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (a *MongoArchive) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := a.client.Ping(ctx, nil); err != nil {
		log.Error().Err(err).Msg("Archive health error")
		return err
	}
	return nil
}

func (a *MongoArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
