package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/hooks"
	"github.com/soyeahso/rcmesh/internal/logging"
)

// DefaultPulseInterval is how often OnPulse re-evaluates group and raid
// leaders.
const DefaultPulseInterval = time.Second

// ErrChannelExists is returned when a channel would reuse a canonical name
// that is already live.
var ErrChannelExists = errors.New("channel already live")

// Manager owns every live channel of one process. All methods must be
// called from a single goroutine.
type Manager struct {
	env   *Env
	subs  Subscriptions
	kinds *Kinds
	log   *logging.Logger

	pulseInterval time.Duration
	now           func() time.Time
	nextPulse     time.Time

	builtins map[Builtin]*Channel
	custom   map[string]*Channel
	live     map[string]*Channel // canonical name → channel
	scope    string
}

// Option configures a Manager.
type Option func(*Manager)

// WithKinds injects the kind interner. By default the manager creates its own.
func WithKinds(k *Kinds) Option {
	return func(m *Manager) { m.kinds = k }
}

// WithPulseInterval overrides DefaultPulseInterval.
func WithPulseInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pulseInterval = d
		}
	}
}

// WithClock overrides time.Now for pulse throttling.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager with no live channels. Call Initialize next.
func NewManager(env *Env, subs Subscriptions, opts ...Option) *Manager {
	m := &Manager{
		env:           env,
		subs:          subs,
		log:           env.Log.Sub("manager"),
		pulseInterval: DefaultPulseInterval,
		now:           time.Now,
		builtins:      make(map[Builtin]*Channel),
		custom:        make(map[string]*Channel),
		live:          make(map[string]*Channel),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.kinds == nil {
		m.kinds = NewKinds()
	}
	return m
}

// Kinds returns the interner used for channel kinds.
func (m *Manager) Kinds() *Kinds { return m.kinds }

// Scope returns the current autojoin scope, or "" outside the game.
func (m *Manager) Scope() string { return m.scope }

// Builtin returns the live built-in channel of kind b, or nil.
func (m *Manager) Builtin(b Builtin) *Channel { return m.builtins[b] }

// Custom returns the live custom channel keyed name, or nil.
func (m *Manager) Custom(name string) *Channel { return m.custom[strings.ToLower(name)] }

// Initialize creates the global channel and, when a game session is already
// active, the server, zone and class channels plus persisted customs.
func (m *Manager) Initialize(ctx context.Context) error {
	var errs []error
	if err := m.ensure(Global, ""); err != nil {
		errs = append(errs, err)
	}

	if m.env.Session.State() == domain.StateInGame {
		errs = append(errs,
			m.ensureServer(),
			m.ensureZone(),
			m.ensureClass(),
		)
		m.scope = ConfigScope(m.env.Session.Server(), m.env.Session.Character())
		errs = append(errs, m.LoadPersistentChannels(ctx))
	}
	return errors.Join(errs...)
}

// Shutdown destroys every channel including global.
func (m *Manager) Shutdown() {
	for _, name := range m.customKeys() {
		m.destroyCustom(name)
	}
	for i := len(builtinOrder) - 1; i >= 0; i-- {
		m.destroy(builtinOrder[i])
	}
	m.scope = ""
}

// SetSessionState applies a host session transition.
func (m *Manager) SetSessionState(ctx context.Context, state domain.SessionState) error {
	if m.env.Hooks != nil {
		m.env.Hooks.Emit(ctx, hooks.EventSessionState, map[string]any{"state": state.String()})
	}

	if state != domain.StateInGame {
		for _, b := range []Builtin{Server, Group, Raid, Zone, Class} {
			m.destroy(b)
		}
		for _, name := range m.customKeys() {
			m.destroyCustom(name)
		}
		m.scope = ""
		return nil
	}

	m.scope = ConfigScope(m.env.Session.Server(), m.env.Session.Character())
	errs := []error{m.ensureServer(), m.ensureClass(), m.LoadPersistentChannels(ctx)}
	return errors.Join(errs...)
}

// OnPulse re-evaluates group and raid leaders, at most once per pulse
// interval and only while in game.
func (m *Manager) OnPulse() error {
	if m.env.Session.State() != domain.StateInGame {
		return nil
	}
	now := m.now()
	if now.Before(m.nextPulse) {
		return nil
	}
	m.nextPulse = now.Add(m.pulseInterval)

	return errors.Join(
		m.updateLeader(Group, m.env.Session.GroupLeader()),
		m.updateLeader(Raid, m.env.Session.RaidLeader()),
	)
}

// OnBeginZone destroys the zone channel.
func (m *Manager) OnBeginZone() {
	m.destroy(Zone)
}

// OnEndZone recreates the zone channel for the new zone while in game.
func (m *Manager) OnEndZone() error {
	if m.env.Session.State() != domain.StateInGame {
		return nil
	}
	return m.ensureZone()
}

// JoinCustomChannel joins the topic channel name. autoArg is "", "auto" or
// "noauto"; unless it is "noauto" the channel is also flagged for autojoin.
func (m *Manager) JoinCustomChannel(ctx context.Context, name, autoArg string) error {
	autoJoin := ParseAutoJoin(autoArg)
	if name == "" {
		m.notify("Syntax: /rcjoin <channel>  [auto|noauto] -- join channel")
		return nil
	}

	key := strings.ToLower(name)
	if _, ok := m.custom[key]; ok {
		m.notify(fmt.Sprintf("Already joined channel %s", key))
		return nil
	}
	if err := m.openCustom(key); err != nil {
		return err
	}

	if autoJoin && m.scope != "" {
		if err := m.subs.Save(ctx, m.scope, key, true); err != nil {
			return fmt.Errorf("saving autojoin for %s: %w", key, err)
		}
		m.notify(fmt.Sprintf("Enable autojoin for: %s", key))
	}
	return nil
}

// LeaveCustomChannel leaves the topic channel name if joined. Independently,
// "noauto" clears an existing autojoin flag.
func (m *Manager) LeaveCustomChannel(ctx context.Context, name, autoArg string) error {
	autoJoin := ParseAutoJoin(autoArg)
	if name == "" {
		m.notify("Syntax: /rcleave <channel>  [auto|noauto] -- leave channel")
		return nil
	}

	key := strings.ToLower(name)
	if ch, ok := m.custom[key]; ok {
		canonical := ch.CanonicalName()
		m.destroyCustom(key)
		m.notify(fmt.Sprintf("Left channel: %s", canonical))
	}

	if autoJoin || m.scope == "" {
		return nil
	}
	flags, err := m.subs.Load(ctx, m.scope)
	if err != nil {
		return fmt.Errorf("loading autojoin flags: %w", err)
	}
	if _, ok := flags[key]; !ok {
		return nil
	}
	if err := m.subs.Save(ctx, m.scope, key, false); err != nil {
		return fmt.Errorf("clearing autojoin for %s: %w", key, err)
	}
	m.notify(fmt.Sprintf("Disable autojoin for: %s", key))
	return nil
}

// FindChannel resolves a user token: built-in kind names first, then the
// class code, then custom topic names. It returns nil if nothing matches.
func (m *Manager) FindChannel(token string) *Channel {
	for _, b := range []Builtin{Global, Server, Group, Raid, Zone} {
		if ch := m.builtins[b]; ch != nil && ch.Name() == token {
			return ch
		}
	}
	if ch := m.builtins[Class]; ch != nil && ch.SubName() == token {
		return ch
	}
	return m.custom[token]
}

// LoadPersistentChannels joins every custom channel flagged for autojoin
// under the current scope.
func (m *Manager) LoadPersistentChannels(ctx context.Context) error {
	if m.scope == "" {
		return nil
	}
	flags, err := m.subs.Load(ctx, m.scope)
	if err != nil {
		return fmt.Errorf("loading autojoin flags for %s: %w", m.scope, err)
	}

	names := make([]string, 0, len(flags))
	for name, auto := range flags {
		if auto {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		key := strings.ToLower(name)
		if _, ok := m.custom[key]; ok {
			continue
		}
		errs = append(errs, m.openCustom(key))
	}
	return errors.Join(errs...)
}

// Channels lists live channels: built-ins in resolution order, then customs
// by name.
func (m *Manager) Channels(ctx context.Context) []domain.ChannelInfo {
	var flags map[string]bool
	if m.scope != "" {
		var err error
		if flags, err = m.subs.Load(ctx, m.scope); err != nil {
			m.log.Warn().Err(err).Str("scope", m.scope).Msg("listing without autojoin flags")
		}
	}

	var out []domain.ChannelInfo
	for _, b := range builtinOrder {
		ch := m.builtins[b]
		if ch == nil {
			continue
		}
		token := ch.Name()
		if b == Class {
			token = ch.SubName()
		}
		out = append(out, info(ch, token, false))
	}
	for _, key := range m.customKeys() {
		out = append(out, info(m.custom[key], key, flags[key]))
	}
	return out
}

func info(ch *Channel, token string, autoJoin bool) domain.ChannelInfo {
	return domain.ChannelInfo{
		Name:      ch.Name(),
		SubName:   ch.SubName(),
		Canonical: ch.CanonicalName(),
		Kind:      ch.Kind().Name,
		Usage:     ch.Kind().UsageFor(token),
		AutoJoin:  autoJoin,
	}
}

func (m *Manager) ensureServer() error {
	server := strings.ToLower(m.env.Session.Server())
	if server == "" || m.builtins[Server] != nil {
		return nil
	}
	return m.ensure(Server, server)
}

func (m *Manager) ensureZone() error {
	zone := strings.ToLower(m.env.Session.Zone())
	if zone == "" || m.builtins[Zone] != nil {
		return nil
	}
	return m.ensure(Zone, zone)
}

func (m *Manager) ensureClass() error {
	class := m.env.Session.ClassCode()
	if len(class) != 3 || m.builtins[Class] != nil {
		return nil
	}
	return m.ensure(Class, strings.ToLower(class))
}

// updateLeader destroys and recreates a leader-bound channel when the
// leader changes; it is never renamed in place.
func (m *Manager) updateLeader(b Builtin, leader string) error {
	cur := m.builtins[b]
	if leader == "" {
		m.destroy(b)
		return nil
	}
	if cur != nil && strings.EqualFold(cur.SubName(), leader) {
		return nil
	}
	m.destroy(b)
	return m.ensure(b, strings.ToLower(leader))
}

// ensure creates built-in b with subName unless one is already live.
func (m *Manager) ensure(b Builtin, subName string) error {
	if m.builtins[b] != nil {
		return nil
	}
	ch, err := m.open(m.kinds.Builtin(b), subName)
	if err != nil {
		return err
	}
	m.builtins[b] = ch
	return nil
}

func (m *Manager) openCustom(key string) error {
	ch, err := m.open(m.kinds.Intern(CustomKind), key)
	if err != nil {
		return err
	}
	m.custom[key] = ch
	return nil
}

func (m *Manager) open(kind *KindInfo, subName string) (*Channel, error) {
	canonical := CanonicalName(kind.Name, subName)
	if _, ok := m.live[canonical]; ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelExists, canonical)
	}
	ch, err := NewChannel(m.env, kind, subName)
	if err != nil {
		m.log.Category(logging.FlagError).Err(err).Str("channel", canonical).Msg("channel create failed")
		return nil, err
	}
	m.live[canonical] = ch
	return ch, nil
}

func (m *Manager) destroy(b Builtin) {
	ch := m.builtins[b]
	if ch == nil {
		return
	}
	delete(m.builtins, b)
	m.close(ch)
}

func (m *Manager) destroyCustom(key string) {
	ch := m.custom[key]
	if ch == nil {
		return
	}
	delete(m.custom, key)
	m.close(ch)
}

// close unregisters the mailbox before the channel is forgotten.
func (m *Manager) close(ch *Channel) {
	ch.Close()
	delete(m.live, ch.CanonicalName())
}

func (m *Manager) customKeys() []string {
	keys := make([]string, 0, len(m.custom))
	for k := range m.custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) notify(line string) {
	m.env.Notifier.Notify(line)
}
