package model

import (
	"time"
)

// Team is the side a player fought on during a round
type Team int16

const (
	TeamUnassigned Team = 0
	TeamA          Team = 1
	TeamB          Team = 2
	TeamSpectator  Team = 3
)

func (t Team) Valid() bool {
	return t >= TeamUnassigned && t <= TeamSpectator
}

// GameMode, Map and Weapon are dimension rows: one row per distinct name,
// created lazily on first reference and never deleted by the statistics core.
type GameMode struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:128;uniqueIndex;not null" json:"name"`
	Description string `gorm:"size:512" json:"description"`
	Timestamps
}

type Map struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:128;uniqueIndex;not null" json:"name"`
	DisplayName string `gorm:"size:128" json:"display_name"`
	Timestamps
}

type Weapon struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:128;uniqueIndex;not null" json:"name"`
	DisplayName string `gorm:"size:128" json:"display_name"`
	Category    string `gorm:"size:64" json:"category"`
	Timestamps
}

// MatchConfig is a named bundle of gameplay parameters. Once a game
// references it, only updates that keep Hash unchanged are accepted.
type MatchConfig struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ConfigName string `gorm:"size:128;uniqueIndex;not null" json:"config_name"`
	Hash       string `gorm:"size:64;index;not null" json:"hash"`

	Ranked  bool `gorm:"not null;default:false" json:"ranked"`
	Private bool `gorm:"not null;default:false" json:"private"`

	RoundLengthSec    int     `gorm:"not null" json:"round_length_sec"`
	RoundsToWin       int     `gorm:"not null" json:"rounds_to_win"`
	WarmupLengthSec   int     `gorm:"not null;default:0" json:"warmup_length_sec"`
	TeamSize          int     `gorm:"not null" json:"team_size"`
	RespawnDelaySec   int     `gorm:"not null;default:0" json:"respawn_delay_sec"`
	FriendlyFire      bool    `gorm:"not null;default:false" json:"friendly_fire"`
	FriendlyFireScale float64 `gorm:"not null;default:0" json:"friendly_fire_scale"`
	StartingMoney     int     `gorm:"not null;default:0" json:"starting_money"`

	VotingEnabled     bool    `gorm:"not null;default:false" json:"voting_enabled"`
	VoteKickThreshold float64 `gorm:"not null;default:0" json:"vote_kick_threshold"`
	VoteMapThreshold  float64 `gorm:"not null;default:0" json:"vote_map_threshold"`

	RoundEndDisplaySec int `gorm:"not null;default:0" json:"round_end_display_sec"`
	MatchEndDisplaySec int `gorm:"not null;default:0" json:"match_end_display_sec"`

	Timestamps
}

// Game is one match on a game server. Its id is chosen by the reporting
// server so it can be created without a round trip.
type Game struct {
	ID            string       `gorm:"primaryKey;size:64" json:"id"`
	GameserverID  string       `gorm:"size:64;index;not null" json:"gameserver_id"`
	MapID         uint         `gorm:"not null;index" json:"map_id"`
	Map           *Map         `gorm:"constraint:OnDelete:RESTRICT" json:"map,omitempty"`
	GameModeID    uint         `gorm:"not null;index" json:"game_mode_id"`
	GameMode      *GameMode    `gorm:"constraint:OnDelete:RESTRICT" json:"game_mode,omitempty"`
	MatchConfigID *uint        `gorm:"index" json:"match_config_id,omitempty"`
	MatchConfig   *MatchConfig `gorm:"constraint:OnDelete:SET NULL" json:"match_config,omitempty"`
	StartedAt     time.Time    `gorm:"not null;index" json:"started_at"`
	EndedAt       *time.Time   `json:"ended_at,omitempty"`
	Rounds        []Round      `gorm:"constraint:OnDelete:CASCADE" json:"rounds,omitempty"`
	Timestamps
}

// Round belongs to exactly one game and is deleted with it
type Round struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	GameID    string     `gorm:"size:64;not null;index" json:"game_id"`
	StartedAt time.Time  `gorm:"not null;index" json:"started_at"`
	EndedAt   *time.Time `gorm:"index" json:"ended_at,omitempty"`
	ScoreA    int        `gorm:"not null;default:0" json:"score_a"`
	ScoreB    int        `gorm:"not null;default:0" json:"score_b"`

	PlayerStats []PlayerRoundStats       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	WeaponStats []PlayerRoundWeaponStats `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Timestamps
}

// PlayerRoundStats is a fact row keyed by (round, player account id)
type PlayerRoundStats struct {
	RoundID     uint    `gorm:"primaryKey;autoIncrement:false" json:"round_id"`
	PlayerID    int64   `gorm:"primaryKey;autoIncrement:false;index" json:"player_id"`
	Team        Team    `gorm:"not null;default:0" json:"team"`
	Kills       int     `gorm:"not null;default:0" json:"kills"`
	Deaths      int     `gorm:"not null;default:0" json:"deaths"`
	Suicides    int     `gorm:"not null;default:0" json:"suicides"`
	Score       int     `gorm:"not null;default:0" json:"score"`
	TotalDamage float64 `gorm:"not null;default:0" json:"total_damage"`
}

// PlayerRoundWeaponStats is a fact row keyed by (round, player, weapon)
type PlayerRoundWeaponStats struct {
	RoundID     uint    `gorm:"primaryKey;autoIncrement:false" json:"round_id"`
	PlayerID    int64   `gorm:"primaryKey;autoIncrement:false;index" json:"player_id"`
	WeaponID    uint    `gorm:"primaryKey;autoIncrement:false;index" json:"weapon_id"`
	Weapon      *Weapon `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Kills       int     `gorm:"not null;default:0" json:"kills"`
	TotalDamage float64 `gorm:"not null;default:0" json:"total_damage"`
	ShotsFired  int     `gorm:"not null;default:0" json:"shots_fired"`
	ShotsHit    int     `gorm:"not null;default:0" json:"shots_hit"`
	Headshots   int     `gorm:"not null;default:0" json:"headshots"`
}

// Ban is owned by the ban management collaborator; the statistics core only
// creates and counts them.
type Ban struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PlayerID  int64     `gorm:"not null;index" json:"player_id"`
	Reason    string    `gorm:"size:512" json:"reason"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// All lists every model for migration, parents before children
func All() []any {
	return []any{
		&GameMode{},
		&Map{},
		&Weapon{},
		&MatchConfig{},
		&Game{},
		&Round{},
		&PlayerRoundStats{},
		&PlayerRoundWeaponStats{},
		&Ban{},
	}
}
