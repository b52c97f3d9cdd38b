package remote

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/soyeahso/rcmesh/internal/postoffice"
)

type fakeSession struct {
	mu                      sync.Mutex
	state                   domain.SessionState
	server, character       string
	class, zone             string
	groupLeader, raidLeader string
}

func (s *fakeSession) set(fn func(s *fakeSession)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *fakeSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSession) Server() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

func (s *fakeSession) Character() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.character
}

func (s *fakeSession) ClassCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.class
}

func (s *fakeSession) Zone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zone
}

func (s *fakeSession) GroupLeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupLeader
}

func (s *fakeSession) RaidLeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raidLeader
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, s)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
}

type recordingExecutor struct{ recorder }

func (e *recordingExecutor) Execute(command string) { e.add(command) }

type recordingNotifier struct{ recorder }

func (n *recordingNotifier) Notify(line string) { n.add(line) }

type saveCall struct {
	scope, name string
	autoJoin    bool
}

type memSubs struct {
	mu      sync.Mutex
	flags   map[string]map[string]bool
	saves   []saveCall
	loadErr error
}

func newMemSubs() *memSubs {
	return &memSubs{flags: make(map[string]map[string]bool)}
}

func (m *memSubs) Load(_ context.Context, scope string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]bool)
	for k, v := range m.flags[scope] {
		out[k] = v
	}
	return out, nil
}

func (m *memSubs) Save(_ context.Context, scope, name string, autoJoin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flags[scope] == nil {
		m.flags[scope] = make(map[string]bool)
	}
	m.flags[scope][name] = autoJoin
	m.saves = append(m.saves, saveCall{scope, name, autoJoin})
	return nil
}

func (m *memSubs) savedCalls() []saveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]saveCall(nil), m.saves...)
}

// process is one simulated client on a shared Local post office.
type process struct {
	session  *fakeSession
	executor *recordingExecutor
	notifier *recordingNotifier
	env      *Env
}

func newProcess(t *testing.T, office *postoffice.Local, server, character string) *process {
	t.Helper()
	s := &fakeSession{state: domain.StateInGame, server: server, character: character}
	p := &process{
		session:  s,
		executor: &recordingExecutor{},
		notifier: &recordingNotifier{},
	}
	p.env = &Env{
		Transport: office.Endpoint(domain.Identity{Server: server, Character: character}),
		Session:   s,
		Executor:  p.executor,
		Notifier:  p.notifier,
		Log:       logging.New(nil, "silent"),
	}
	return p
}

func newOffice(t *testing.T) *postoffice.Local {
	t.Helper()
	office := postoffice.NewLocal(logging.New(nil, "silent"))
	t.Cleanup(office.Close)
	return office
}

var errRegister = errors.New("register refused")

type failingTransport struct{}

func (failingTransport) Register(string, postoffice.Handler) (postoffice.Dropbox, error) {
	return nil, errRegister
}

// eagerTransport delivers its queued messages from inside Register,
// before the dropbox is handed back.
type eagerTransport struct {
	deliver []*postoffice.Message
	box     *recordingBox
}

func (t *eagerTransport) Register(name string, h postoffice.Handler) (postoffice.Dropbox, error) {
	for _, m := range t.deliver {
		h(m)
	}
	t.box = &recordingBox{name: name}
	return t.box, nil
}

type recordingBox struct {
	name string

	mu      sync.Mutex
	replies []*postoffice.Message
}

func (b *recordingBox) Name() string { return b.name }
func (b *recordingBox) Post(postoffice.Address, []byte) error { return nil }
func (b *recordingBox) PostCallback(postoffice.Address, []byte, postoffice.Callback) error { return nil }
func (b *recordingBox) Remove() {}

func (b *recordingBox) PostReply(original *postoffice.Message, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, original)
	return nil
}

func (b *recordingBox) replied() []*postoffice.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*postoffice.Message(nil), b.replies...)
}
