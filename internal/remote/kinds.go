package remote

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Builtin enumerates the channels the manager creates on its own.
type Builtin int

const (
	Global Builtin = iota
	Server
	Group
	Raid
	Zone
	Class
)

// builtinOrder is the resolution and listing order.
var builtinOrder = []Builtin{Global, Server, Group, Raid, Zone, Class}

var builtinNames = [...]string{
	Global: "global",
	Server: "server",
	Group:  "group",
	Raid:   "raid",
	Zone:   "zone",
	Class:  "class",
}

func (b Builtin) String() string {
	if b < 0 || int(b) >= len(builtinNames) {
		return fmt.Sprintf("builtin(%d)", int(b))
	}
	return builtinNames[b]
}

// CustomKind is the kind name of user-joined topic channels.
const CustomKind = "custom"

// usageToken is replaced by the channel's resolvable token in KindInfo.Usage.
const usageToken = "<token>"

// KindInfo describes a kind of channel. Values are immutable once interned.
type KindInfo struct {
	Name        string
	Usage       string
	LeaderBound bool
	Builtin     bool
}

// UsageFor renders the usage text for a channel resolved by token.
func (k *KindInfo) UsageFor(token string) string {
	return strings.ReplaceAll(k.Usage, usageToken, token)
}

// Kinds interns channel kinds by name. It is safe for concurrent use.
type Kinds struct {
	mu     sync.Mutex
	byName map[string]*KindInfo
}

// NewKinds returns an interner with the built-in kinds and the custom kind
// registered.
func NewKinds() *Kinds {
	k := &Kinds{byName: make(map[string]*KindInfo)}
	for _, b := range builtinOrder {
		k.byName[b.String()] = &KindInfo{
			Name:        b.String(),
			Usage:       "/rc [+self] " + usageToken + " <message>",
			LeaderBound: b == Group || b == Raid,
			Builtin:     true,
		}
	}
	k.byName[Server.String()].Usage = "/rc [+self] " + usageToken + " <message>\n/rc <character> <message>"
	k.byName[CustomKind] = &KindInfo{
		Name:  CustomKind,
		Usage: "/rc [+self] " + usageToken + " <message>",
	}
	return k
}

// Builtin returns the descriptor of a built-in kind.
func (k *Kinds) Builtin(b Builtin) *KindInfo {
	return k.Intern(b.String())
}

// Intern returns the descriptor registered under name, creating a plain
// non-builtin kind on first use.
func (k *Kinds) Intern(name string) *KindInfo {
	name = strings.ToLower(name)
	k.mu.Lock()
	defer k.mu.Unlock()
	if info, ok := k.byName[name]; ok {
		return info
	}
	info := &KindInfo{Name: name, Usage: "/rc [+self] " + usageToken + " <message>"}
	k.byName[name] = info
	return info
}

// Lookup returns the descriptor for name without creating one.
func (k *Kinds) Lookup(name string) (*KindInfo, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	info, ok := k.byName[strings.ToLower(name)]
	return info, ok
}

// Names returns the interned kind names in sorted order.
func (k *Kinds) Names() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	names := make([]string, 0, len(k.byName))
	for n := range k.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
