// Package session simulates the host game session and runs the single
// loop that drives the channel manager.
package session

import (
	"sync"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/domain"
)

// State is the simulated host session. Queries are safe from any goroutine;
// setters are called from the loop.
type State struct {
	mu          sync.RWMutex
	state       domain.SessionState
	server      string
	character   string
	class       string
	zone        string
	groupLeader string
	raidLeader  string
}

// NewState seeds a session from the configured identity.
func NewState(id config.IdentityConfig) *State {
	s := &State{
		server:    id.Server,
		character: id.Character,
		class:     id.Class,
		zone:      id.Zone,
	}
	if id.InGame {
		s.state = domain.StateInGame
	}
	return s
}

func (s *State) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *State) Server() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

func (s *State) Character() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.character
}

func (s *State) ClassCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.class
}

func (s *State) Zone() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zone
}

func (s *State) GroupLeader() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupLeader
}

func (s *State) RaidLeader() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raidLeader
}

// Identity returns the server and character this session plays as.
func (s *State) Identity() domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Identity{Server: s.server, Character: s.character}
}

// SetState moves the session to st. Leaving the game clears group and
// raid membership.
func (s *State) SetState(st domain.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	if st != domain.StateInGame {
		s.groupLeader = ""
		s.raidLeader = ""
	}
}

func (s *State) SetZone(zone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zone = zone
}

func (s *State) SetClass(class string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.class = class
}

func (s *State) SetGroupLeader(leader string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupLeader = leader
}

func (s *State) SetRaidLeader(leader string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raidLeader = leader
}
