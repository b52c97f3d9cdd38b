package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestNewState_FromIdentity(t *testing.T) {
	s := NewState(config.IdentityConfig{Server: "Tarew", Character: "Bob", Class: "WAR", Zone: "pok", InGame: true})
	assert.Equal(t, domain.StateInGame, s.State())
	assert.Equal(t, "Tarew", s.Server())
	assert.Equal(t, "Bob", s.Character())
	assert.Equal(t, "WAR", s.ClassCode())
	assert.Equal(t, "pok", s.Zone())
	assert.Equal(t, domain.Identity{Server: "Tarew", Character: "Bob"}, s.Identity())

	s = NewState(config.IdentityConfig{Server: "Tarew", Character: "Bob"})
	assert.Equal(t, domain.StateNoSession, s.State())
}

func TestState_LeavingGameClearsLeaders(t *testing.T) {
	s := NewState(config.IdentityConfig{InGame: true})
	s.SetGroupLeader("Alice")
	s.SetRaidLeader("Carl")
	assert.Equal(t, "Alice", s.GroupLeader())
	assert.Equal(t, "Carl", s.RaidLeader())

	s.SetState(domain.StateCharSelect)
	assert.Empty(t, s.GroupLeader())
	assert.Empty(t, s.RaidLeader())

	s.SetZone("gfay")
	s.SetClass("CLR")
	assert.Equal(t, "gfay", s.Zone())
	assert.Equal(t, "CLR", s.ClassCode())
}

func runLoop(t *testing.T, l *Loop, onPulse func(context.Context)) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx, onPulse)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return cancel
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l := NewLoop(0, testLogger())
	runLoop(t, l, nil)

	var got []int
	for i := range 5 {
		require.NoError(t, l.Post(context.Background(), func(context.Context) { got = append(got, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func(context.Context) {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_Pulses(t *testing.T) {
	l := NewLoop(5*time.Millisecond, testLogger())
	var pulses atomic.Int32
	runLoop(t, l, func(context.Context) { pulses.Add(1) })

	assert.Eventually(t, func() bool { return pulses.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestLoop_TryPostFull(t *testing.T) {
	l := NewLoop(0, testLogger())
	for range queueSize {
		require.NoError(t, l.TryPost(func(context.Context) {}))
	}
	assert.ErrorIs(t, l.TryPost(func(context.Context) {}), ErrQueueFull)
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := NewLoop(0, testLogger())
	cancel := runLoop(t, l, nil)
	cancel()
	<-l.Done()

	assert.ErrorIs(t, l.Post(context.Background(), func(context.Context) {}), ErrStopped)
	assert.ErrorIs(t, l.TryPost(func(context.Context) {}), ErrStopped)
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	l := NewLoop(0, testLogger())
	runLoop(t, l, nil)

	require.NoError(t, l.Post(context.Background(), func(context.Context) { panic("boom") }))
	ran := false
	require.NoError(t, l.Call(context.Background(), func(context.Context) { ran = true }))
	assert.True(t, ran)
}

func TestLoop_PostRespectsContext(t *testing.T) {
	l := NewLoop(0, testLogger())
	for range queueSize {
		require.NoError(t, l.TryPost(func(context.Context) {}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Post(ctx, func(context.Context) {}), context.Canceled)
}
