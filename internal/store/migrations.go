package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create channel subscriptions",
		SQL: `
			CREATE TABLE channel_subscriptions (
				scope       TEXT NOT NULL,
				channel     TEXT NOT NULL,
				autojoin    INTEGER NOT NULL DEFAULT 1,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (scope, channel)
			);

			CREATE INDEX idx_subscriptions_scope ON channel_subscriptions (scope);
		`,
	},
}
