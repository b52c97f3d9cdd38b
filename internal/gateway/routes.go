package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/soyeahso/rcmesh/internal/postoffice"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.metrics.Handler())
	}

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle(postoffice.MethodHealth, s.rpcHealth)
	s.Handle(postoffice.MethodMailboxAdd, s.rpcMailboxAdd)
	s.Handle(postoffice.MethodMailboxRemove, s.rpcMailboxRemove)
	s.Handle(postoffice.MethodPost, s.rpcPost)
	s.Handle(postoffice.MethodReply, s.rpcReply)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	var uptime int64
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Milliseconds()
	}
	rc.Respond(HealthResponse{
		Status:    "ok",
		Version:   s.version,
		Clients:   s.clients.Count(),
		Mailboxes: s.exchange.Mailboxes(),
		UptimeMs:  uptime,
		Servers:   s.clients.PerServer(),
	})
}

func (s *Server) rpcMailboxAdd(rc *RequestContext) {
	var p postoffice.MailboxParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if err := s.exchange.Add(rc.Client, p.Name); err != nil {
		if errors.Is(err, postoffice.ErrMailboxTaken) {
			rc.RespondError("mailbox_taken", "mailbox already registered: "+p.Name)
			return
		}
		rc.RespondError("internal", err.Error())
		return
	}
	rc.Respond(map[string]any{"name": p.Name})
}

func (s *Server) rpcMailboxRemove(rc *RequestContext) {
	var p postoffice.MailboxParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	s.exchange.Remove(rc.Client, p.Name)
	rc.Respond(map[string]any{"name": p.Name})
}

func (s *Server) rpcPost(rc *RequestContext) {
	var p postoffice.PostParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.To.Server == "" {
		rc.RespondError("invalid_params", "to.server is required")
		return
	}
	s.exchange.Post(rc.Client, rc.Frame.ID, p)
}

func (s *Server) rpcReply(rc *RequestContext) {
	var p postoffice.ReplyParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.ReplyTo == "" {
		rc.RespondError("invalid_params", "replyTo is required")
		return
	}
	s.exchange.Reply(rc.Client, rc.Frame.ID, p)
	rc.Respond(map[string]any{"replyTo": p.ReplyTo})
}
