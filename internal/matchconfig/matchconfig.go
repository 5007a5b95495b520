// Package matchconfig stores gameplay configurations and keeps configs that
// recorded games point at from changing in ways that alter those games.
package matchconfig

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"matchstats/internal/apperr"
	"matchstats/internal/database"
	"matchstats/internal/model"
	"matchstats/internal/retry"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Hash digests the gameplay-affecting fields of cfg. The name, the end of
// round and end of match display times, and vote thresholds while voting is
// off do not contribute.
func Hash(cfg model.MatchConfig) string {
	voteKick, voteMap := cfg.VoteKickThreshold, cfg.VoteMapThreshold
	if !cfg.VotingEnabled {
		voteKick, voteMap = 0, 0
	}

	// encoding/json writes map keys sorted, which fixes the field order
	fields := map[string]any{
		"ranked":              cfg.Ranked,
		"private":             cfg.Private,
		"round_length_sec":    cfg.RoundLengthSec,
		"rounds_to_win":       cfg.RoundsToWin,
		"warmup_length_sec":   cfg.WarmupLengthSec,
		"team_size":           cfg.TeamSize,
		"respawn_delay_sec":   cfg.RespawnDelaySec,
		"friendly_fire":       cfg.FriendlyFire,
		"friendly_fire_scale": finite(cfg.FriendlyFireScale),
		"starting_money":      cfg.StartingMoney,
		"voting_enabled":      cfg.VotingEnabled,
		"vote_kick_threshold": finite(voteKick),
		"vote_map_threshold":  finite(voteMap),
	}

	payload, _ := json.Marshal(fields)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type Store struct {
	db     *gorm.DB
	policy retry.Policy
}

func NewStore(db *gorm.DB, policy retry.Policy) *Store {
	if policy.Retryable == nil {
		policy.Retryable = database.IsRetryable
	}
	return &Store{db: db, policy: policy}
}

// CreateUpdate inserts cfg, or updates the config with cfg.ID (or, when ID is
// zero, with the same name). An update that changes the hash of a config
// some game already references fails with apperr.KindConfigInUse.
func (s *Store) CreateUpdate(ctx context.Context, cfg model.MatchConfig) (model.MatchConfig, error) {
	const op = "matchconfig.create_update"

	cfg.ConfigName = strings.TrimSpace(cfg.ConfigName)
	if err := validate(op, cfg); err != nil {
		return model.MatchConfig{}, err
	}
	cfg.Hash = Hash(cfg)

	var saved model.MatchConfig
	err := s.policy.Do(ctx, op, func(ctx context.Context, _ int) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			row := cfg

			var existing model.MatchConfig
			var err error
			if row.ID != 0 {
				err = tx.Take(&existing, row.ID).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound(op, "match config %d does not exist", row.ID)
				}
			} else {
				err = tx.Where("config_name = ?", row.ConfigName).Take(&existing).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					err = nil
				}
			}
			if err != nil {
				return err
			}

			if existing.ID == 0 {
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			} else {
				if err := s.checkUpdate(tx, op, existing, row); err != nil {
					return err
				}
				row.ID = existing.ID
				row.CreatedAt = existing.CreatedAt
				if err := tx.Save(&row).Error; err != nil {
					return err
				}
			}

			return tx.Take(&saved, row.ID).Error
		}, database.Serializable)
	})
	if err != nil {
		return model.MatchConfig{}, database.Classify(op, err)
	}

	log.Info().
		Uint("config_id", saved.ID).
		Str("config_name", saved.ConfigName).
		Str("hash", saved.Hash).
		Msg("Match config saved")

	return saved, nil
}

func (s *Store) checkUpdate(tx *gorm.DB, op string, existing, next model.MatchConfig) error {
	if next.ConfigName != existing.ConfigName {
		var taken int64
		err := tx.Model(&model.MatchConfig{}).
			Where("config_name = ? AND id <> ?", next.ConfigName, existing.ID).
			Count(&taken).Error
		if err != nil {
			return err
		}
		if taken > 0 {
			return apperr.Validation(op, "config name %q is already used", next.ConfigName)
		}
	}

	if next.Hash == existing.Hash {
		return nil
	}

	var games int64
	if err := tx.Model(&model.Game{}).Where("match_config_id = ?", existing.ID).Count(&games).Error; err != nil {
		return err
	}
	if games > 0 {
		log.Warn().
			Uint("config_id", existing.ID).
			Int64("games", games).
			Msg("Rejected gameplay change to match config in use")
		return apperr.ConfigInUse(op, existing.ID)
	}
	return nil
}

// Get returns the config with id
func (s *Store) Get(ctx context.Context, id uint) (model.MatchConfig, error) {
	const op = "matchconfig.get"

	var cfg model.MatchConfig
	err := database.Conn(ctx, s.db).Take(&cfg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.MatchConfig{}, apperr.NotFound(op, "match config %d does not exist", id)
	}
	if err != nil {
		return model.MatchConfig{}, database.Classify(op, err)
	}
	return cfg, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func validate(op string, cfg model.MatchConfig) error {
	switch {
	case cfg.ConfigName == "":
		return apperr.Validation(op, "config name is required")
	case cfg.RoundLengthSec <= 0:
		return apperr.Validation(op, "round length must be positive")
	case cfg.RoundsToWin <= 0:
		return apperr.Validation(op, "rounds to win must be positive")
	case cfg.TeamSize <= 0:
		return apperr.Validation(op, "team size must be positive")
	case !(cfg.FriendlyFireScale >= 0) || !(cfg.VoteKickThreshold >= 0) || !(cfg.VoteMapThreshold >= 0):
		return apperr.Validation(op, "scales and thresholds must be non-negative numbers")
	case math.IsInf(cfg.FriendlyFireScale, 1) || math.IsInf(cfg.VoteKickThreshold, 1) || math.IsInf(cfg.VoteMapThreshold, 1):
		return apperr.Validation(op, "scales and thresholds must be finite")
	}
	return nil
}
