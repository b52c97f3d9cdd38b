package remote

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinString(t *testing.T) {
	assert.Equal(t, "global", Global.String())
	assert.Equal(t, "class", Class.String())
	assert.Equal(t, "builtin(42)", Builtin(42).String())
}

func TestKinds_Builtins(t *testing.T) {
	k := NewKinds()
	for _, b := range builtinOrder {
		info := k.Builtin(b)
		require.NotNil(t, info)
		assert.Equal(t, b.String(), info.Name)
		assert.True(t, info.Builtin)
		assert.Equal(t, b == Group || b == Raid, info.LeaderBound, b.String())
	}

	custom, ok := k.Lookup(CustomKind)
	require.True(t, ok)
	assert.False(t, custom.Builtin)
	assert.False(t, custom.LeaderBound)
}

func TestKinds_InternCreatesOnce(t *testing.T) {
	k := NewKinds()
	_, ok := k.Lookup("guild")
	assert.False(t, ok)

	a := k.Intern("Guild")
	b := k.Intern("guild")
	assert.Same(t, a, b)
	assert.Equal(t, "guild", a.Name)
	assert.False(t, a.Builtin)
	assert.Contains(t, k.Names(), "guild")
}

func TestKinds_InternConcurrent(t *testing.T) {
	k := NewKinds()
	var wg sync.WaitGroup
	got := make([]*KindInfo, 16)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = k.Intern("fellowship")
		}()
	}
	wg.Wait()
	for _, info := range got {
		assert.Same(t, got[0], info)
	}
}

func TestKindInfo_UsageFor(t *testing.T) {
	k := NewKinds()
	assert.Equal(t, "/rc [+self] war <message>", k.Builtin(Class).UsageFor("war"))
	assert.Equal(t, "/rc [+self] server <message>\n/rc <character> <message>", k.Builtin(Server).UsageFor("server"))
}

func TestKinds_NamesSorted(t *testing.T) {
	names := NewKinds().Names()
	assert.Equal(t, []string{"class", "custom", "global", "group", "raid", "server", "zone"}, names)
}
