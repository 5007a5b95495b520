package statistics

import (
	"context"
	"strings"
	"time"

	"matchstats/internal/apperr"
	"matchstats/internal/database"
	"matchstats/internal/model"
	"matchstats/internal/playerid"

	"github.com/rs/zerolog/log"
)

type BanRequest struct {
	PlayerID  uint64     `json:"player_id"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// CreateBan stores a ban. Bans without an expiry are rejected: permanent
// bans belong to the ban management service, not to this counter.
func (s *Service) CreateBan(ctx context.Context, req BanRequest) (model.Ban, error) {
	const op = "statistics.create_ban"

	account, ok := playerid.Decode(req.PlayerID)
	if !ok {
		return model.Ban{}, apperr.Validation(op, "malformed player id %d", req.PlayerID)
	}
	if req.ExpiresAt == nil || req.ExpiresAt.IsZero() {
		return model.Ban{}, apperr.Validation(op, "expiration is required")
	}

	ban := model.Ban{
		PlayerID:  int64(account),
		Reason:    strings.TrimSpace(req.Reason),
		ExpiresAt: req.ExpiresAt.UTC().Truncate(time.Second),
	}
	if err := database.Conn(ctx, s.db).Create(&ban).Error; err != nil {
		return model.Ban{}, database.Classify(op, err)
	}

	s.counters.Invalidate(ctx, CounterActiveBans)

	log.Info().
		Uint32("account_id", account).
		Time("expires_at", ban.ExpiresAt).
		Msg("Ban created")

	return ban, nil
}

// CountActiveBans counts bans that have not expired yet
func (s *Service) CountActiveBans(ctx context.Context) (int64, error) {
	return s.scalar(ctx, "statistics.count_active_bans",
		"SELECT COUNT(*) FROM bans WHERE expires_at > ?", s.clock.Now().UTC())
}
