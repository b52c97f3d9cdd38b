package routing

import (
	"context"

	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/soyeahso/rcmesh/internal/session"
)

// Executor runs remotely received commands as console lines on the session
// loop. Execute never blocks: it is called from transport goroutines.
type Executor struct {
	loop   *session.Loop
	router *Router
	log    *logging.Logger
}

// NewExecutor returns an executor feeding loop. Bind the router before any
// channel is opened.
func NewExecutor(loop *session.Loop, log *logging.Logger) *Executor {
	return &Executor{loop: loop, log: log.Sub("executor")}
}

// Bind sets the router that runs commands.
func (e *Executor) Bind(r *Router) { e.router = r }

func (e *Executor) Execute(command string) {
	if e.router == nil {
		e.log.Warn().Str("command", command).Msg("no router bound, dropping remote command")
		return
	}
	router := e.router
	err := e.loop.TryPost(func(ctx context.Context) {
		if err := router.HandleLine(ctx, command); err != nil {
			e.log.Error().Err(err).Str("command", command).Msg("remote command failed")
		}
	})
	if err != nil {
		e.log.Warn().Err(err).Str("command", command).Msg("dropping remote command")
	}
}
