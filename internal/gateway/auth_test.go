package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/postoffice"
	"github.com/stretchr/testify/assert"
)

// --- safeEqual tests ---

func TestSafeEqual_Match(t *testing.T) {
	assert.True(t, safeEqual("secret", "secret"))
}

func TestSafeEqual_Mismatch(t *testing.T) {
	assert.False(t, safeEqual("secret", "wrong"))
}

func TestSafeEqual_DifferentLengths(t *testing.T) {
	assert.False(t, safeEqual("short", "longer-string"))
}

func TestSafeEqual_BothEmpty(t *testing.T) {
	assert.True(t, safeEqual("", ""))
}

func TestSafeEqual_OneEmpty(t *testing.T) {
	assert.False(t, safeEqual("secret", ""))
	assert.False(t, safeEqual("", "secret"))
}

// --- ResolveAuth tests ---

func TestResolveAuth_TokenFromConfig(t *testing.T) {
	auth := ResolveAuth(config.PostOfficeAuth{Token: "config-token"})
	assert.Equal(t, "token", auth.Mode)
	assert.Equal(t, "config-token", auth.Token)
}

func TestResolveAuth_NoneWithoutToken(t *testing.T) {
	t.Setenv("RCMESH_POSTOFFICE_TOKEN", "")
	auth := ResolveAuth(config.PostOfficeAuth{})
	assert.Equal(t, "none", auth.Mode)
	assert.Empty(t, auth.Token)
}

func TestResolveAuth_TokenFromEnv(t *testing.T) {
	t.Setenv("RCMESH_POSTOFFICE_TOKEN", "env-token")
	auth := ResolveAuth(config.PostOfficeAuth{})
	assert.Equal(t, "token", auth.Mode)
	assert.Equal(t, "env-token", auth.Token)
}

func TestResolveAuth_ConfigOverridesEnv(t *testing.T) {
	t.Setenv("RCMESH_POSTOFFICE_TOKEN", "env-token")
	auth := ResolveAuth(config.PostOfficeAuth{Token: "config-token"})
	assert.Equal(t, "config-token", auth.Token)
}

// --- Authorize tests ---

func TestAuthorize_TokenSuccess(t *testing.T) {
	result := Authorize(
		ResolvedAuth{Mode: "token", Token: "secret"},
		&postoffice.ConnectAuth{Token: "secret"},
	)
	assert.True(t, result.OK)
	assert.Equal(t, "token", result.Method)
}

func TestAuthorize_TokenMismatch(t *testing.T) {
	result := Authorize(
		ResolvedAuth{Mode: "token", Token: "secret"},
		&postoffice.ConnectAuth{Token: "wrong"},
	)
	assert.False(t, result.OK)
	assert.Equal(t, "token_mismatch", result.Reason)
}

func TestAuthorize_TokenEmpty(t *testing.T) {
	result := Authorize(
		ResolvedAuth{Mode: "token", Token: "secret"},
		&postoffice.ConnectAuth{},
	)
	assert.False(t, result.OK)
	assert.Equal(t, "token required", result.Reason)
}

func TestAuthorize_NilCredentials(t *testing.T) {
	result := Authorize(ResolvedAuth{Mode: "token", Token: "secret"}, nil)
	assert.False(t, result.OK)
}

func TestAuthorize_OpenAccess(t *testing.T) {
	result := Authorize(ResolvedAuth{Mode: "none"}, nil)
	assert.True(t, result.OK)
	assert.Equal(t, "none", result.Method)
}

func TestAuthorize_UnknownAuthMode(t *testing.T) {
	result := Authorize(
		ResolvedAuth{Mode: "oauth"},
		&postoffice.ConnectAuth{Token: "whatever"},
	)
	assert.False(t, result.OK)
	assert.Contains(t, result.Reason, "unknown auth mode")
}

// --- authRateLimiter tests ---

func TestAuthRateLimiter_AllowInitial(t *testing.T) {
	limiter := newAuthRateLimiter()
	assert.True(t, limiter.allow("192.168.1.1:12345"))
}

func TestAuthRateLimiter_AllowAfterFewFailures(t *testing.T) {
	limiter := newAuthRateLimiter()

	for i := 0; i < 5; i++ {
		limiter.recordFailure("192.168.1.1:12345")
	}
	assert.True(t, limiter.allow("192.168.1.1:12345"))
}

func TestAuthRateLimiter_BlockAfterMaxFailures(t *testing.T) {
	limiter := newAuthRateLimiter()

	for i := 0; i < authRateMaxFails; i++ {
		limiter.recordFailure("192.168.1.1:12345")
	}
	assert.False(t, limiter.allow("192.168.1.1:12345"))
}

func TestAuthRateLimiter_DifferentIPs(t *testing.T) {
	limiter := newAuthRateLimiter()

	for i := 0; i < authRateMaxFails; i++ {
		limiter.recordFailure("192.168.1.1:12345")
	}

	// Different IP should still be allowed
	assert.True(t, limiter.allow("192.168.1.2:12345"))
}

func TestAuthRateLimiter_IPWithoutPort(t *testing.T) {
	limiter := newAuthRateLimiter()

	for i := 0; i < authRateMaxFails; i++ {
		limiter.recordFailure("192.168.1.1")
	}
	assert.False(t, limiter.allow("192.168.1.1"))
}

func TestAuthRateLimiter_ExpiredFailures(t *testing.T) {
	limiter := newAuthRateLimiter()

	// Add old failures (before the window)
	limiter.mu.Lock()
	host := "192.168.1.1"
	oldTime := time.Now().Add(-authRateWindow - time.Minute)
	for i := 0; i < authRateMaxFails; i++ {
		limiter.failures[host] = append(limiter.failures[host], oldTime)
	}
	limiter.mu.Unlock()

	// Old failures should be cleaned up, so allow should return true
	assert.True(t, limiter.allow("192.168.1.1:12345"))
}

// --- checkWebSocketOrigin tests ---

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest("GET", "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCheckWebSocketOrigin_NoOriginHeader(t *testing.T) {
	check := checkWebSocketOrigin(nil)
	assert.True(t, check(originRequest("")))
}

func TestCheckWebSocketOrigin_EmptyAllowedList(t *testing.T) {
	check := checkWebSocketOrigin(nil)
	assert.False(t, check(originRequest("http://evil.com")))
}

func TestCheckWebSocketOrigin_Wildcard(t *testing.T) {
	check := checkWebSocketOrigin([]string{"*"})
	assert.True(t, check(originRequest("http://anything.com")))
}

func TestCheckWebSocketOrigin_SpecificMatch(t *testing.T) {
	check := checkWebSocketOrigin([]string{"http://allowed.com"})
	assert.True(t, check(originRequest("http://allowed.com")))
}

func TestCheckWebSocketOrigin_SpecificNoMatch(t *testing.T) {
	check := checkWebSocketOrigin([]string{"http://allowed.com"})
	assert.False(t, check(originRequest("http://evil.com")))
}

func TestCheckWebSocketOrigin_MultipleAllowed(t *testing.T) {
	check := checkWebSocketOrigin([]string{"http://one.com", "http://two.com"})
	assert.True(t, check(originRequest("http://one.com")))
	assert.True(t, check(originRequest("http://two.com")))
	assert.False(t, check(originRequest("http://three.com")))
}
