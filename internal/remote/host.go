package remote

import (
	"context"

	"github.com/soyeahso/rcmesh/internal/domain"
)

// Session is the read-only view of the host's live state. Implementations
// must be safe for concurrent use: inbound handlers query State from
// transport goroutines.
type Session interface {
	State() domain.SessionState
	Server() string
	Character() string
	ClassCode() string
	Zone() string
	GroupLeader() string
	RaidLeader() string
}

// Executor runs a received command locally. Execute is called from
// transport goroutines and must not block on the manager.
type Executor interface {
	Execute(command string)
}

// Notifier writes one line of text to the user.
type Notifier interface {
	Notify(line string)
}

// Subscriptions persists autojoin flags for custom channels, keyed by scope.
type Subscriptions interface {
	Load(ctx context.Context, scope string) (map[string]bool, error)
	Save(ctx context.Context, scope, name string, autoJoin bool) error
}
