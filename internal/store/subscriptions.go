package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/logging"
)

// Subscriptions persists autojoin flags keyed by scope ("<server>.<character>").
// Channel names are stored lowercase.
type Subscriptions interface {
	Load(ctx context.Context, scope string) (map[string]bool, error)
	Save(ctx context.Context, scope, name string, autoJoin bool) error
	Scopes(ctx context.Context) ([]string, error)
	List(ctx context.Context, scope string) ([]domain.Subscription, error)
	Close() error
}

// Open returns the subscription store selected by cfg. path is the resolved
// database location and is ignored by the memory store.
func Open(cfg config.SubscriptionsConfig, path string, log *logging.Logger) (Subscriptions, error) {
	switch cfg.Store {
	case "", "sqlite":
		db, err := OpenDB(path, log)
		if err != nil {
			return nil, err
		}
		return db.Subscriptions(), nil
	case "bolt":
		return OpenBolt(path, log)
	case "memory":
		return NewMemorySubscriptions(), nil
	default:
		return nil, fmt.Errorf("unknown subscription store %q", cfg.Store)
	}
}

// SQLiteSubscriptions stores flags in the channel_subscriptions table.
type SQLiteSubscriptions struct {
	db *DB
}

// Load returns every flag stored for scope.
func (s *SQLiteSubscriptions) Load(ctx context.Context, scope string) (map[string]bool, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT channel, autojoin FROM channel_subscriptions WHERE scope = ?`, scope)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	flags := make(map[string]bool)
	for rows.Next() {
		var name string
		var auto bool
		if err := rows.Scan(&name, &auto); err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		flags[name] = auto
	}
	return flags, rows.Err()
}

// Save upserts the flag for name under scope.
func (s *SQLiteSubscriptions) Save(ctx context.Context, scope, name string, autoJoin bool) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO channel_subscriptions (scope, channel, autojoin, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope, channel) DO UPDATE SET autojoin = excluded.autojoin, updated_at = excluded.updated_at`,
		scope, strings.ToLower(name), autoJoin, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("saving subscription %s/%s: %w", scope, name, err)
	}
	return nil
}

// Scopes lists every scope with at least one stored flag.
func (s *SQLiteSubscriptions) Scopes(ctx context.Context) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT DISTINCT scope FROM channel_subscriptions ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("querying scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("scanning scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

// List returns the flags of scope sorted by channel name.
func (s *SQLiteSubscriptions) List(ctx context.Context, scope string) ([]domain.Subscription, error) {
	flags, err := s.Load(ctx, scope)
	if err != nil {
		return nil, err
	}
	return toList(scope, flags), nil
}

// Close closes the underlying database.
func (s *SQLiteSubscriptions) Close() error { return s.db.Close() }

// MemorySubscriptions keeps flags in process memory.
type MemorySubscriptions struct {
	mu    sync.RWMutex
	flags map[string]map[string]bool
}

// NewMemorySubscriptions returns an empty in-memory store.
func NewMemorySubscriptions() *MemorySubscriptions {
	return &MemorySubscriptions{flags: make(map[string]map[string]bool)}
}

func (m *MemorySubscriptions) Load(_ context.Context, scope string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.flags[scope]))
	for k, v := range m.flags[scope] {
		out[k] = v
	}
	return out, nil
}

func (m *MemorySubscriptions) Save(_ context.Context, scope, name string, autoJoin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flags[scope] == nil {
		m.flags[scope] = make(map[string]bool)
	}
	m.flags[scope][strings.ToLower(name)] = autoJoin
	return nil
}

func (m *MemorySubscriptions) Scopes(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scopes := make([]string, 0, len(m.flags))
	for s := range m.flags {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes, nil
}

func (m *MemorySubscriptions) List(ctx context.Context, scope string) ([]domain.Subscription, error) {
	flags, _ := m.Load(ctx, scope)
	return toList(scope, flags), nil
}

func (m *MemorySubscriptions) Close() error { return nil }

func toList(scope string, flags map[string]bool) []domain.Subscription {
	out := make([]domain.Subscription, 0, len(flags))
	for name, auto := range flags {
		out = append(out, domain.Subscription{Scope: scope, Channel: name, AutoJoin: auto})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
