package postoffice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressMatches(t *testing.T) {
	tests := []struct {
		name      string
		addr      Address
		server    string
		mailbox   string
		character string
		want      bool
	}{
		{"broadcast same mailbox", Address{Server: "tarew", Mailbox: "global"}, "tarew", "global", "Bob", true},
		{"server case-insensitive", Address{Server: "Tarew", Mailbox: "global"}, "tarew", "global", "Bob", true},
		{"other server", Address{Server: "povar", Mailbox: "global"}, "tarew", "global", "Bob", false},
		{"mailbox is exact", Address{Server: "tarew", Mailbox: "group.Bob"}, "tarew", "group.bob", "Bob", false},
		{"personal match", Address{Server: "tarew", Mailbox: "server.tarew", Character: "bob"}, "tarew", "server.tarew", "Bob", true},
		{"personal other character", Address{Server: "tarew", Mailbox: "server.tarew", Character: "alice"}, "tarew", "server.tarew", "Bob", false},
		{"default mailbox", Address{Server: "tarew"}, "tarew", "", "Bob", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.addr.Matches(tt.server, tt.mailbox, tt.character))
		})
	}
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "tarew/global", Address{Server: "tarew", Mailbox: "global"}.String())
	assert.Equal(t, "tarew/server.tarew@Bob", Address{Server: "tarew", Mailbox: "server.tarew", Character: "Bob"}.String())
	assert.True(t, Address{Character: "x"}.Personal())
	assert.False(t, Address{}.Personal())
}
