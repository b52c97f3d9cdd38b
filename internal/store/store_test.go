package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := OpenDB(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)

	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	var name string
	err := db.sql.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", "channel_subscriptions",
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "channel_subscriptions", name)
}

// --- Subscription store contract, run against every backend ---

func backends(t *testing.T) map[string]Subscriptions {
	t.Helper()
	log := logging.New(nil, "silent")
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "subs.bolt"), log)
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]Subscriptions{
		"sqlite": testDB(t).Subscriptions(),
		"bolt":   bolt,
		"memory": NewMemorySubscriptions(),
	}
}

func TestSubscriptions_Contract(t *testing.T) {
	ctx := context.Background()
	for name, subs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			flags, err := subs.Load(ctx, "Tarew.Bob")
			require.NoError(t, err)
			assert.Empty(t, flags)

			require.NoError(t, subs.Save(ctx, "Tarew.Bob", "Ops", true))
			require.NoError(t, subs.Save(ctx, "Tarew.Bob", "trade", false))
			require.NoError(t, subs.Save(ctx, "Tarew.Alice", "ops", true))

			flags, err = subs.Load(ctx, "Tarew.Bob")
			require.NoError(t, err)
			assert.Equal(t, map[string]bool{"ops": true, "trade": false}, flags)

			// overwrite
			require.NoError(t, subs.Save(ctx, "Tarew.Bob", "ops", false))
			flags, err = subs.Load(ctx, "Tarew.Bob")
			require.NoError(t, err)
			assert.False(t, flags["ops"])
			assert.Len(t, flags, 2)

			scopes, err := subs.Scopes(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Tarew.Alice", "Tarew.Bob"}, scopes)

			list, err := subs.List(ctx, "Tarew.Bob")
			require.NoError(t, err)
			assert.Equal(t, []domain.Subscription{
				{Scope: "Tarew.Bob", Channel: "ops", AutoJoin: false},
				{Scope: "Tarew.Bob", Channel: "trade", AutoJoin: false},
			}, list)
		})
	}
}

func TestBolt_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	log := logging.New(nil, "silent")
	path := filepath.Join(t.TempDir(), "nested", "subs.bolt")

	b, err := OpenBolt(path, log)
	require.NoError(t, err)
	require.NoError(t, b.Save(ctx, "Tarew.Bob", "ops", true))
	assert.Equal(t, path, b.Path())
	require.NoError(t, b.Close())

	b, err = OpenBolt(path, log)
	require.NoError(t, err)
	defer b.Close()
	flags, err := b.Load(ctx, "Tarew.Bob")
	require.NoError(t, err)
	assert.True(t, flags["ops"])
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	log := logging.New(nil, "silent")
	path := filepath.Join(t.TempDir(), "rcmesh.db")

	db, err := OpenDB(path, log)
	require.NoError(t, err)
	require.NoError(t, db.Subscriptions().Save(ctx, "Tarew.Bob", "ops", true))
	require.NoError(t, db.Close())

	db, err = OpenDB(path, log)
	require.NoError(t, err)
	defer db.Close()
	flags, err := db.Subscriptions().Load(ctx, "Tarew.Bob")
	require.NoError(t, err)
	assert.True(t, flags["ops"])
}

func TestOpen_SelectsBackend(t *testing.T) {
	log := logging.New(nil, "silent")
	dir := t.TempDir()

	s, err := Open(config.SubscriptionsConfig{Store: "memory"}, "", log)
	require.NoError(t, err)
	assert.IsType(t, &MemorySubscriptions{}, s)

	s, err = Open(config.SubscriptionsConfig{Store: "bolt"}, filepath.Join(dir, "s.bolt"), log)
	require.NoError(t, err)
	assert.IsType(t, &BoltSubscriptions{}, s)
	require.NoError(t, s.Close())

	s, err = Open(config.SubscriptionsConfig{}, filepath.Join(dir, "s.db"), log)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteSubscriptions{}, s)
	require.NoError(t, s.Close())

	_, err = Open(config.SubscriptionsConfig{Store: "redis"}, "", log)
	assert.ErrorContains(t, err, "redis")
}
