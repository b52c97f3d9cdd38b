package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/postoffice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(t *testing.T, p *process, subs *memSubs, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(p.env, subs, opts...)
	t.Cleanup(m.Shutdown)
	return m
}

func inGame(s *fakeSession) {
	s.state = domain.StateInGame
	s.server = "Al'Kabor"
	s.character = "Zaela"
	s.class = "WAR"
	s.zone = "PoK"
}

func canonicals(m *Manager) []string {
	var out []string
	for _, ch := range m.Channels(context.Background()) {
		out = append(out, ch.Canonical)
	}
	return out
}

func TestManager_InitializeWithoutSession(t *testing.T) {
	office := newOffice(t)
	p := newProcess(t, office, "Tarew", "Bob")
	p.session.set(func(s *fakeSession) { s.state = domain.StateNoSession })
	m := newManager(t, p, newMemSubs())

	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, []string{"global"}, canonicals(m))
	assert.Nil(t, m.FindChannel("server"))
	assert.NotNil(t, m.FindChannel("global"))
	assert.Empty(t, m.Scope())
}

func TestManager_InitializeInGame(t *testing.T) {
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	subs := newMemSubs()
	require.NoError(t, subs.Save(context.Background(), "Al'Kabor.Zaela", "ops", true))
	require.NoError(t, subs.Save(context.Background(), "Al'Kabor.Zaela", "old", false))
	m := newManager(t, p, subs)

	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, []string{"global", "server.al'kabor", "zone.pok", "class.war", "custom.ops"}, canonicals(m))
	assert.Equal(t, "Al'Kabor.Zaela", m.Scope())
	assert.Nil(t, m.Custom("old"))
}

func TestManager_ClassRequiresThreeLetters(t *testing.T) {
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(func(s *fakeSession) {
		inGame(s)
		s.class = "WARRIOR"
	})
	m := newManager(t, p, newMemSubs())

	require.NoError(t, m.Initialize(context.Background()))
	assert.Nil(t, m.Builtin(Class))
}

func TestManager_SessionStateTransitions(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(func(s *fakeSession) {
		inGame(s)
		s.state = domain.StateNoSession
	})
	subs := newMemSubs()
	require.NoError(t, subs.Save(ctx, "Al'Kabor.Zaela", "ops", true))
	m := newManager(t, p, subs)
	require.NoError(t, m.Initialize(ctx))

	p.session.set(func(s *fakeSession) { s.state = domain.StateCharSelect })
	require.NoError(t, m.SetSessionState(ctx, domain.StateCharSelect))
	assert.Equal(t, []string{"global"}, canonicals(m))

	p.session.set(func(s *fakeSession) { s.state = domain.StateInGame })
	require.NoError(t, m.SetSessionState(ctx, domain.StateInGame))
	assert.Equal(t, []string{"global", "server.al'kabor", "class.war", "custom.ops"}, canonicals(m))
	assert.Equal(t, "Al'Kabor.Zaela", m.Scope())

	require.NoError(t, m.OnEndZone())
	assert.NotNil(t, m.Builtin(Zone))

	// dropping to character select leaves only global
	p.session.set(func(s *fakeSession) { s.state = domain.StateCharSelect })
	require.NoError(t, m.SetSessionState(ctx, domain.StateCharSelect))
	assert.Equal(t, []string{"global"}, canonicals(m))
	assert.Nil(t, m.Builtin(Server))
	assert.Empty(t, m.Scope())
	assert.Equal(t, 1, office.Mailboxes())

	p.session.set(func(s *fakeSession) { s.state = domain.StateNoSession })
	require.NoError(t, m.SetSessionState(ctx, domain.StateNoSession))
	assert.Equal(t, []string{"global"}, canonicals(m))
	assert.Equal(t, 1, office.Mailboxes())
}

func TestManager_ServerChangeAcrossCharSelect(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	m := newManager(t, p, newMemSubs())
	require.NoError(t, m.Initialize(ctx))
	require.Equal(t, "server.al'kabor", m.Builtin(Server).CanonicalName())

	p.session.set(func(s *fakeSession) { s.state = domain.StateCharSelect })
	require.NoError(t, m.SetSessionState(ctx, domain.StateCharSelect))
	assert.Nil(t, m.Builtin(Server))

	p.session.set(func(s *fakeSession) {
		s.state = domain.StateInGame
		s.server = "Tarew"
	})
	require.NoError(t, m.SetSessionState(ctx, domain.StateInGame))
	require.NotNil(t, m.Builtin(Server))
	assert.Equal(t, "server.tarew", m.Builtin(Server).CanonicalName())
}

func TestManager_JoinCustomChannel(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	subs := newMemSubs()
	m := newManager(t, p, subs)
	require.NoError(t, m.Initialize(ctx))
	before := office.Mailboxes()

	require.NoError(t, m.JoinCustomChannel(ctx, "Ops", "auto"))
	ch := m.Custom("ops")
	require.NotNil(t, ch)
	assert.Equal(t, "custom.ops", ch.CanonicalName())
	assert.Same(t, ch, m.FindChannel("ops"))
	assert.Equal(t, []saveCall{{"Al'Kabor.Zaela", "ops", true}}, subs.savedCalls())
	assert.Equal(t, []string{"Enable autojoin for: ops"}, p.notifier.all())

	p.notifier.reset()
	require.NoError(t, m.JoinCustomChannel(ctx, "ops", ""))
	assert.Equal(t, []string{"Already joined channel ops"}, p.notifier.all())
	assert.Same(t, ch, m.Custom("ops"))
	assert.Equal(t, before+1, office.Mailboxes())
	assert.Len(t, subs.savedCalls(), 1)
}

func TestManager_JoinNoAutoDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	subs := newMemSubs()
	m := newManager(t, p, subs)
	require.NoError(t, m.Initialize(ctx))

	require.NoError(t, m.JoinCustomChannel(ctx, "trade", "noauto"))
	assert.NotNil(t, m.Custom("trade"))
	assert.Empty(t, subs.savedCalls())
	assert.Empty(t, p.notifier.all())
}

func TestManager_JoinWithoutScope(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(func(s *fakeSession) { s.state = domain.StateNoSession })
	subs := newMemSubs()
	m := newManager(t, p, subs)
	require.NoError(t, m.Initialize(ctx))

	require.NoError(t, m.JoinCustomChannel(ctx, "ops", "auto"))
	assert.NotNil(t, m.Custom("ops"))
	assert.Empty(t, subs.savedCalls())
}

func TestManager_SyntaxHints(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	m := newManager(t, p, newMemSubs())

	require.NoError(t, m.JoinCustomChannel(ctx, "", ""))
	require.NoError(t, m.LeaveCustomChannel(ctx, "", "noauto"))
	assert.Equal(t, []string{
		"Syntax: /rcjoin <channel>  [auto|noauto] -- join channel",
		"Syntax: /rcleave <channel>  [auto|noauto] -- leave channel",
	}, p.notifier.all())
}

func TestManager_LeaveCustomChannel(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	subs := newMemSubs()
	m := newManager(t, p, subs)
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.JoinCustomChannel(ctx, "ops", ""))
	p.notifier.reset()

	require.NoError(t, m.LeaveCustomChannel(ctx, "OPS", ""))
	assert.Nil(t, m.Custom("ops"))
	assert.Equal(t, []string{"Left channel: custom.ops"}, p.notifier.all())
	flags, _ := subs.Load(ctx, "Al'Kabor.Zaela")
	assert.True(t, flags["ops"])

	// not joined, but the flag still exists
	p.notifier.reset()
	require.NoError(t, m.LeaveCustomChannel(ctx, "ops", "noauto"))
	assert.Equal(t, []string{"Disable autojoin for: ops"}, p.notifier.all())
	flags, _ = subs.Load(ctx, "Al'Kabor.Zaela")
	assert.False(t, flags["ops"])

	// no flag stored: nothing to clear
	p.notifier.reset()
	require.NoError(t, m.LeaveCustomChannel(ctx, "never", "noauto"))
	assert.Empty(t, p.notifier.all())
}

func TestManager_LeaveLoadError(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	subs := newMemSubs()
	m := newManager(t, p, subs)
	require.NoError(t, m.Initialize(ctx))

	subs.loadErr = errors.New("disk gone")
	err := m.LeaveCustomChannel(ctx, "ops", "noauto")
	assert.ErrorContains(t, err, "disk gone")
}

func TestManager_GroupLeaderPulse(t *testing.T) {
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newManager(t, p, newMemSubs(), WithClock(clock.now))
	require.NoError(t, m.Initialize(context.Background()))

	p.session.set(func(s *fakeSession) { s.groupLeader = "Bob" })
	require.NoError(t, m.OnPulse())
	first := m.FindChannel("group")
	require.NotNil(t, first)
	assert.Equal(t, "group.bob", first.CanonicalName())

	// throttled
	p.session.set(func(s *fakeSession) { s.groupLeader = "Alice" })
	clock.advance(500 * time.Millisecond)
	require.NoError(t, m.OnPulse())
	assert.Same(t, first, m.FindChannel("group"))

	clock.advance(500 * time.Millisecond)
	require.NoError(t, m.OnPulse())
	second := m.FindChannel("group")
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, "group.alice", second.CanonicalName())
	assert.ErrorIs(t, first.SendBroadcast("/sit", true), postoffice.ErrClosed)

	// case-only change keeps the channel
	p.session.set(func(s *fakeSession) { s.groupLeader = "ALICE" })
	clock.advance(time.Second)
	require.NoError(t, m.OnPulse())
	assert.Same(t, second, m.FindChannel("group"))

	p.session.set(func(s *fakeSession) { s.groupLeader = "" })
	clock.advance(time.Second)
	require.NoError(t, m.OnPulse())
	assert.Nil(t, m.FindChannel("group"))
}

func TestManager_RaidLeaderPulse(t *testing.T) {
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(func(s *fakeSession) {
		inGame(s)
		s.raidLeader = "Tank"
	})
	m := newManager(t, p, newMemSubs(), WithPulseInterval(time.Millisecond))
	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.OnPulse())
	require.NotNil(t, m.FindChannel("raid"))
	assert.Equal(t, "raid.tank", m.FindChannel("raid").CanonicalName())
	assert.Nil(t, m.FindChannel("group"))
}

func TestManager_PulseIgnoredOutsideGame(t *testing.T) {
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(func(s *fakeSession) {
		s.state = domain.StateCharSelect
		s.groupLeader = "Bob"
	})
	m := newManager(t, p, newMemSubs())
	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.OnPulse())
	assert.Nil(t, m.FindChannel("group"))
}

func TestManager_Zoning(t *testing.T) {
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	m := newManager(t, p, newMemSubs())
	require.NoError(t, m.Initialize(context.Background()))
	require.Equal(t, "zone.pok", m.FindChannel("zone").CanonicalName())

	m.OnBeginZone()
	assert.Nil(t, m.FindChannel("zone"))

	p.session.set(func(s *fakeSession) { s.zone = "GFay" })
	require.NoError(t, m.OnEndZone())
	assert.Equal(t, "zone.gfay", m.FindChannel("zone").CanonicalName())

	m.OnBeginZone()
	p.session.set(func(s *fakeSession) { s.state = domain.StateCharSelect })
	require.NoError(t, m.OnEndZone())
	assert.Nil(t, m.FindChannel("zone"))
}

func TestManager_FindChannel(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	m := newManager(t, p, newMemSubs())
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.JoinCustomChannel(ctx, "ops", "noauto"))

	assert.Same(t, m.Builtin(Global), m.FindChannel("global"))
	assert.Same(t, m.Builtin(Server), m.FindChannel("server"))
	assert.Same(t, m.Builtin(Class), m.FindChannel("war"))
	assert.Nil(t, m.FindChannel("class"))
	assert.Same(t, m.Custom("ops"), m.FindChannel("ops"))
	assert.Nil(t, m.FindChannel("custom"))
	assert.Nil(t, m.FindChannel("alice"))
}

func TestManager_ChannelsListing(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	m := newManager(t, p, newMemSubs())
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.JoinCustomChannel(ctx, "ops", "auto"))
	require.NoError(t, m.JoinCustomChannel(ctx, "trade", "noauto"))

	list := m.Channels(ctx)
	require.Len(t, list, 6)

	byCanonical := make(map[string]domain.ChannelInfo)
	for _, ch := range list {
		byCanonical[ch.Canonical] = ch
	}
	assert.Equal(t, "/rc [+self] war <message>", byCanonical["class.war"].Usage)
	assert.Equal(t, "/rc [+self] server <message>\n/rc <character> <message>", byCanonical["server.al'kabor"].Usage)
	assert.True(t, byCanonical["custom.ops"].AutoJoin)
	assert.False(t, byCanonical["custom.trade"].AutoJoin)
	assert.Equal(t, "custom", byCanonical["custom.trade"].Kind)
}

func TestManager_ShutdownReleasesEverything(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(func(s *fakeSession) {
		inGame(s)
		s.groupLeader = "Bob"
	})
	m := NewManager(p.env, newMemSubs())
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.OnPulse())
	require.NoError(t, m.JoinCustomChannel(ctx, "ops", ""))
	require.Positive(t, office.Mailboxes())

	m.Shutdown()
	assert.Equal(t, 0, office.Mailboxes())
	assert.Empty(t, m.Channels(ctx))
}

func TestManager_CustomCollisionRefused(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.session.set(inGame)
	kinds := NewKinds()
	m := newManager(t, p, newMemSubs(), WithKinds(kinds))
	require.NoError(t, m.Initialize(ctx))
	assert.Same(t, kinds, m.Kinds())

	_, err := m.open(kinds.Builtin(Zone), "pok")
	assert.ErrorIs(t, err, ErrChannelExists)
}

func TestManager_RegistrationFailureReported(t *testing.T) {
	office := newOffice(t)
	p := newProcess(t, office, "Al'Kabor", "Zaela")
	p.env.Transport = failingTransport{}
	m := NewManager(p.env, newMemSubs())

	err := m.Initialize(context.Background())
	assert.ErrorIs(t, err, errRegister)
	assert.Nil(t, m.FindChannel("global"))
}

func TestManager_GroupBroadcastBetweenMembers(t *testing.T) {
	ctx := context.Background()
	office := newOffice(t)
	leader := newProcess(t, office, "Al'Kabor", "Bob")
	member := newProcess(t, office, "Al'Kabor", "Alice")
	for _, p := range []*process{leader, member} {
		p.session.set(func(s *fakeSession) { s.groupLeader = "Bob" })
	}
	lm := newManager(t, leader, newMemSubs())
	mm := newManager(t, member, newMemSubs())
	require.NoError(t, lm.Initialize(ctx))
	require.NoError(t, mm.Initialize(ctx))
	require.NoError(t, lm.OnPulse())
	require.NoError(t, mm.OnPulse())

	require.NoError(t, lm.FindChannel("group").SendBroadcast("/assist", false))
	office.Drain()
	assert.Equal(t, []string{"/assist"}, member.executor.all())
	assert.Empty(t, leader.executor.all())
}
