package dimension

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"

	"matchstats/internal/apperr"
	"matchstats/internal/database"
	"matchstats/internal/model"
	"matchstats/internal/retry"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Kind names a dimension table
type Kind string

const (
	KindGameMode Kind = "game_mode"
	KindMap      Kind = "map"
	KindWeapon   Kind = "weapon"
)

type GameModeAttributes struct {
	Description string
}

type MapAttributes struct {
	DisplayName string
}

type WeaponAttributes struct {
	DisplayName string
	Category    string
}

// Resolver is a race-safe get-or-create for uniquely named dimension rows
type Resolver struct {
	db     *gorm.DB
	cache  *Cache
	policy retry.Policy
}

func NewResolver(db *gorm.DB, cache *Cache, policy retry.Policy) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	if policy.Retryable == nil {
		policy.Retryable = database.IsRetryable
	}
	return &Resolver{db: db, cache: cache, policy: policy}
}

func (r *Resolver) ResolveGameMode(ctx context.Context, name string, attrs GameModeAttributes) (uint, error) {
	updates := map[string]any{}
	if attrs.Description != "" {
		updates["description"] = attrs.Description
	}
	return resolve(ctx, r, KindGameMode, name, updates,
		func(name string) *model.GameMode {
			return &model.GameMode{Name: name, Description: attrs.Description}
		},
		func(row *model.GameMode) uint { return row.ID },
	)
}

func (r *Resolver) ResolveMap(ctx context.Context, name string, attrs MapAttributes) (uint, error) {
	updates := map[string]any{}
	if attrs.DisplayName != "" {
		updates["display_name"] = attrs.DisplayName
	}
	return resolve(ctx, r, KindMap, name, updates,
		func(name string) *model.Map {
			return &model.Map{Name: name, DisplayName: attrs.DisplayName}
		},
		func(row *model.Map) uint { return row.ID },
	)
}

func (r *Resolver) ResolveWeapon(ctx context.Context, name string, attrs WeaponAttributes) (uint, error) {
	updates := map[string]any{}
	if attrs.DisplayName != "" {
		updates["display_name"] = attrs.DisplayName
	}
	if attrs.Category != "" {
		updates["category"] = attrs.Category
	}
	return resolve(ctx, r, KindWeapon, name, updates,
		func(name string) *model.Weapon {
			return &model.Weapon{Name: name, DisplayName: attrs.DisplayName, Category: attrs.Category}
		},
		func(row *model.Weapon) uint { return row.ID },
	)
}

// LookupGameMode finds a game mode by trimmed name without creating it
func (r *Resolver) LookupGameMode(ctx context.Context, name string) (uint, error) {
	return lookup[model.GameMode](ctx, r, KindGameMode, name, func(row *model.GameMode) uint { return row.ID })
}

func lookup[T any](ctx context.Context, r *Resolver, kind Kind, name string, idOf func(*T) uint) (uint, error) {
	name = strings.TrimSpace(name)
	if id, ok := r.cache.Get(kind, name); ok {
		return id, nil
	}

	var row T
	err := database.Conn(ctx, r.db).Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperr.NotFound("dimension.lookup", "%s %q does not exist", kind, name)
	}
	if err != nil {
		return 0, database.Classify("dimension.lookup", err)
	}

	id := idOf(&row)
	r.cache.Put(kind, name, id)
	return id, nil
}

func resolve[T any](
	ctx context.Context,
	r *Resolver,
	kind Kind,
	name string,
	updates map[string]any,
	newRow func(name string) *T,
	idOf func(*T) uint,
) (uint, error) {
	op := "dimension.resolve_" + string(kind)

	name = strings.TrimSpace(name)
	if name == "" {
		return 0, apperr.Validation(op, "%s name is required", kind)
	}

	if id, ok := r.cache.Get(kind, name); ok {
		if len(updates) == 0 || r.cache.HasAttributes(kind, name, updates) {
			return id, nil
		}
		err := r.policy.Do(ctx, op, func(ctx context.Context, _ int) error {
			return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return updateChanged[T](tx, id, updates)
			}, database.Serializable)
		})
		if err != nil {
			return 0, database.Classify(op, err)
		}
		r.cache.PutAttributes(kind, name, updates)
		return id, nil
	}

	var id uint
	err := r.policy.Do(ctx, op, func(ctx context.Context, attempt int) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing T
			err := tx.Where("name = ?", name).Take(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				row := newRow(name)
				if err := tx.Create(row).Error; err != nil {
					return err
				}
				id = idOf(row)
			case err != nil:
				return err
			default:
				id = idOf(&existing)
				if len(updates) > 0 {
					if err := updateChanged[T](tx, id, updates); err != nil {
						return err
					}
				}
			}

			var saved T
			if err := tx.Take(&saved, id).Error; err != nil {
				return err
			}
			id = idOf(&saved)
			return nil
		}, database.Serializable)
	})
	if err != nil {
		return 0, database.Classify(op, err)
	}

	r.cache.Put(kind, name, id)
	r.cache.PutAttributes(kind, name, updates)

	log.Debug().
		Str("kind", string(kind)).
		Str("name", name).
		Uint("id", id).
		Msg("Resolved dimension")

	return id, nil
}

// updateChanged writes updates to row id only when at least one column
// differs, so resolving an unchanged row never takes a write lock on it
func updateChanged[T any](tx *gorm.DB, id uint, updates map[string]any) error {
	cols := slices.Sorted(maps.Keys(updates))
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		conds[i] = col + " IS DISTINCT FROM ?"
		args[i] = updates[col]
	}

	res := tx.Model(new(T)).
		Where("id = ?", id).
		Where("("+strings.Join(conds, " OR ")+")", args...).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Debug().Uint("id", id).Strs("columns", cols).Msg("Updated dimension attributes")
	}
	return nil
}
