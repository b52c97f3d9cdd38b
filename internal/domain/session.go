package domain

import (
	"fmt"
	"strings"
)

// SessionState is the host's connection state. The values are ordered:
// comparisons such as state > StatePreCharSelect are meaningful.
type SessionState int

const (
	StateNoSession SessionState = iota
	StatePreCharSelect
	StateCharSelect
	StateInGame
)

var stateNames = [...]string{
	StateNoSession:     "nosession",
	StatePreCharSelect: "precharselect",
	StateCharSelect:    "charselect",
	StateInGame:        "ingame",
}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseSessionState converts a state name (case-insensitive) into a SessionState.
func ParseSessionState(name string) (SessionState, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range stateNames {
		if s == n {
			return SessionState(i), nil
		}
	}
	return StateNoSession, fmt.Errorf("unknown session state %q", name)
}

// Identity names one client process on the mesh.
type Identity struct {
	Server    string `json:"server"`
	Character string `json:"character"`
}

func (id Identity) String() string {
	return id.Server + "/" + id.Character
}
