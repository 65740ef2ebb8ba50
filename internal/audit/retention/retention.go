// Package retention keeps the store's expiry index in line with the
// configured TTL, and drives periodic purges for stores that only emulate
// expiry.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// IndexName is the expiry index name every store uses.
const IndexName = "events_ttl"

// MaxTTL is the longest expiry an index can hold; expireAfterSeconds is an
// int32.
const MaxTTL = math.MaxInt32 * time.Second

// ExpiryField is the timestamp the expiry index is built on.
const ExpiryField = "received"

// ExpiryIndex describes an existing expiry index.
type ExpiryIndex struct {
	Name        string
	Field       string
	ExpireAfter time.Duration
}

// IndexStore is the index surface a store exposes for reconciliation.
type IndexStore interface {
	CollectionExists(ctx context.Context) (bool, error)
	// ExpiryIndex returns the current expiry index, or nil when there is none.
	ExpiryIndex(ctx context.Context) (*ExpiryIndex, error)
	CreateExpiryIndex(ctx context.Context, expireAfter time.Duration) error
	DropExpiryIndex(ctx context.Context) error
}

// Action is what a reconciliation did.
type Action string

const (
	ActionNone     Action = "none"
	ActionCreated  Action = "created"
	ActionReplaced Action = "replaced"
	ActionDropped  Action = "dropped"
)

// Manager reconciles the expiry index against configuration.
type Manager struct {
	store  IndexStore
	logger *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(store IndexStore, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("index store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}, nil
}

// Reconcile ensures an expiry index with ttl exists when ttl is positive and
// that none exists otherwise. Repeating a call with the same ttl is a no-op.
// With no ttl and no collection there is nothing to drop.
func (m *Manager) Reconcile(ctx context.Context, ttl time.Duration) (Action, error) {
	if ttl < 0 {
		return ActionNone, fmt.Errorf("retention ttl must not be negative: %s", ttl)
	}
	if ttl > MaxTTL {
		return ActionNone, fmt.Errorf("retention ttl exceeds %d seconds: %s", int64(MaxTTL/time.Second), ttl)
	}

	exists, err := m.store.CollectionExists(ctx)
	if err != nil {
		return ActionNone, fmt.Errorf("check collection: %w", err)
	}

	var current *ExpiryIndex
	if exists {
		current, err = m.store.ExpiryIndex(ctx)
		if err != nil {
			return ActionNone, fmt.Errorf("read expiry index: %w", err)
		}
	}

	action, err := m.apply(ctx, current, ttl)
	if err != nil {
		return ActionNone, err
	}
	if action != ActionNone {
		m.logger.InfoContext(ctx, "retention index reconciled",
			"action", string(action),
			"index", IndexName,
			"expire_after_seconds", int64(ttl/time.Second),
		)
	}
	return action, nil
}

func (m *Manager) apply(ctx context.Context, current *ExpiryIndex, ttl time.Duration) (Action, error) {
	switch {
	case ttl == 0 && current == nil:
		return ActionNone, nil
	case ttl == 0:
		if err := m.store.DropExpiryIndex(ctx); err != nil {
			return ActionNone, fmt.Errorf("drop expiry index: %w", err)
		}
		return ActionDropped, nil
	case current == nil:
		if err := m.store.CreateExpiryIndex(ctx, ttl); err != nil {
			return ActionNone, fmt.Errorf("create expiry index: %w", err)
		}
		return ActionCreated, nil
	case current.ExpireAfter == ttl:
		return ActionNone, nil
	default:
		if err := m.store.DropExpiryIndex(ctx); err != nil {
			return ActionNone, fmt.Errorf("drop stale expiry index: %w", err)
		}
		if err := m.store.CreateExpiryIndex(ctx, ttl); err != nil {
			return ActionNone, fmt.Errorf("create expiry index: %w", err)
		}
		return ActionReplaced, nil
	}
}
