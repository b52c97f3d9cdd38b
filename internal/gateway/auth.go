package gateway

import (
	"crypto/subtle"
	"os"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/postoffice"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "token" | "none"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the post office.
type ResolvedAuth struct {
	Mode  string // "token" | "none"
	Token string
}

// ResolveAuth resolves the shared token from config and environment.
// Precedence: config value → env variable → open access.
func ResolveAuth(cfg config.PostOfficeAuth) ResolvedAuth {
	auth := ResolvedAuth{Token: cfg.Token}
	if auth.Token == "" {
		auth.Token = os.Getenv("RCMESH_POSTOFFICE_TOKEN")
	}
	if auth.Token != "" {
		auth.Mode = "token"
	} else {
		auth.Mode = "none"
	}
	return auth
}

// Authorize checks the provided ConnectAuth against the resolved server auth.
func Authorize(serverAuth ResolvedAuth, clientAuth *postoffice.ConnectAuth) AuthResult {
	switch serverAuth.Mode {
	case "none":
		return AuthResult{OK: true, Method: "none"}

	case "token":
		if clientAuth == nil || clientAuth.Token == "" {
			return AuthResult{OK: false, Reason: "token required"}
		}
		if !safeEqual(clientAuth.Token, serverAuth.Token) {
			return AuthResult{OK: false, Reason: "token_mismatch"}
		}
		return AuthResult{OK: true, Method: "token"}

	default:
		return AuthResult{OK: false, Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// safeEqual performs a constant-time string comparison.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
