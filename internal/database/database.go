package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"matchstats/internal/config"
	"matchstats/internal/model"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Isolation levels used by the statistics core. Dimension and match config
// writes run serializable; bulk fact ingestion runs at the weakest level the
// store offers since fact rows are never mutated after insert.
var (
	Serializable    = &sql.TxOptions{Isolation: sql.LevelSerializable}
	ReadUncommitted = &sql.TxOptions{Isolation: sql.LevelReadUncommitted}
)

type Database interface {
	Health(ctx context.Context) error
	Gorm() *gorm.DB
	Close() error
}

type postgresDB struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

func New(cfg config.DatabaseConfig) (Database, error) {
	slow := time.Duration(cfg.LogSlowQueryMs) * time.Millisecond
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: NewLogger(slow),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	log.Info().
		Int("max_open_conns", cfg.MaxOpenConns).
		Bool("auto_migrate", cfg.AutoMigrate).
		Msg("Database connection established")

	return &postgresDB{db: db, sqlDB: sqlDB}, nil
}

// Migrate creates or updates every table the statistics core owns
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.All()...); err != nil {
		log.Error().Err(err).Msg("Failed to migrate database")
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (p *postgresDB) Gorm() *gorm.DB {
	return p.db
}

// Health implements Database interface
func (p *postgresDB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := p.sqlDB.PingContext(ctx); err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}

func (p *postgresDB) Close() error {
	log.Info().Msg("Closing database connection pool")
	return p.sqlDB.Close()
}
