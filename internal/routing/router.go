// Package routing interprets console lines and remotely executed commands
// for one client process.
package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/soyeahso/rcmesh/internal/remote"
	"github.com/soyeahso/rcmesh/internal/session"
)

const rcSyntax = "Syntax: /rc [+self] <channel> <message>"

// Router dispatches console lines to the channel manager and the simulated
// session. HandleLine must run on the session loop.
type Router struct {
	mgr      *remote.Manager
	state    *session.State
	notifier remote.Notifier
	log      *logging.Logger
}

// NewRouter creates a router over mgr and state.
func NewRouter(mgr *remote.Manager, state *session.State, notifier remote.Notifier, log *logging.Logger) *Router {
	return &Router{
		mgr:      mgr,
		state:    state,
		notifier: notifier,
		log:      log.Sub("routing"),
	}
}

// HandleLine runs one console line. Lines that are not rcmesh commands are
// treated as host commands and executed locally.
func (r *Router) HandleLine(ctx context.Context, line string) error {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil
	}
	cmd, args := splitCommand(line)

	switch cmd {
	case "/rc":
		return r.remoteCommand(args)
	case "/rcjoin":
		name, auto := twoArgs(args)
		return r.mgr.JoinCustomChannel(ctx, name, auto)
	case "/rcleave":
		name, auto := twoArgs(args)
		return r.mgr.LeaveCustomChannel(ctx, name, auto)
	case "/rclist":
		r.list(ctx)
		return nil
	case "/state":
		return r.setState(ctx, args)
	case "/zone":
		return r.zone(args)
	case "/group":
		r.state.SetGroupLeader(leaderArg(args))
		return r.mgr.OnPulse()
	case "/raid":
		r.state.SetRaidLeader(leaderArg(args))
		return r.mgr.OnPulse()
	case "/echo":
		r.notifier.Notify(args)
		return nil
	default:
		r.execute(line)
		return nil
	}
}

func (r *Router) remoteCommand(args string) error {
	rc, ok := parseRemoteArgs(args)
	if !ok {
		r.notifier.Notify(rcSyntax)
		return nil
	}
	msg := unescape(rc.message)

	if ch := r.mgr.FindChannel(rc.channel); ch != nil {
		return ch.SendBroadcast(msg, rc.includeSelf)
	}
	if server := r.mgr.Builtin(remote.Server); server != nil {
		return server.SendPersonal(rc.channel, msg)
	}
	r.log.Debug().Str("target", rc.channel).Msg("no channel and no server link")
	r.notifier.Notify(fmt.Sprintf("No channel named %s", rc.channel))
	return nil
}

func (r *Router) list(ctx context.Context) {
	channels := r.mgr.Channels(ctx)
	if len(channels) == 0 {
		r.notifier.Notify("No channels joined")
		return
	}
	for _, ch := range channels {
		auto := ""
		if ch.AutoJoin {
			auto = " (autojoin)"
		}
		r.notifier.Notify(fmt.Sprintf("%s%s: %s", ch.Canonical, auto, strings.ReplaceAll(ch.Usage, "\n", " | ")))
	}
}

func (r *Router) setState(ctx context.Context, args string) error {
	st, err := domain.ParseSessionState(args)
	if err != nil {
		r.notifier.Notify("Syntax: /state <nosession|precharselect|charselect|ingame>")
		return nil
	}
	r.state.SetState(st)
	if err := r.mgr.SetSessionState(ctx, st); err != nil {
		return err
	}
	if st == domain.StateInGame {
		return r.mgr.OnEndZone()
	}
	return nil
}

func (r *Router) zone(args string) error {
	code := strings.TrimSpace(args)
	if code == "" {
		r.notifier.Notify("Syntax: /zone <shortname>")
		return nil
	}
	r.mgr.OnBeginZone()
	r.state.SetZone(code)
	return r.mgr.OnEndZone()
}

// execute stands in for the host running a command.
func (r *Router) execute(line string) {
	r.log.Debug().Str("command", line).Msg("executing")
	r.notifier.Notify(fmt.Sprintf("executing: %s", line))
}

func twoArgs(args string) (string, string) {
	toks := tokenize(args)
	var a, b string
	if len(toks) > 0 {
		a = toks[0].text
	}
	if len(toks) > 1 {
		b = toks[1].text
	}
	return a, b
}

// leaderArg maps "-" or nothing to no leader.
func leaderArg(args string) string {
	leader := strings.TrimSpace(args)
	if leader == "-" {
		return ""
	}
	return leader
}
