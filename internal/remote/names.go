package remote

import "strings"

// CanonicalName is the mailbox name of a channel: name alone when subName is
// empty, otherwise name + "." + subName. Callers lowercase subName first.
func CanonicalName(name, subName string) string {
	if subName == "" {
		return name
	}
	return name + "." + subName
}

// ConfigScope is the key autojoin flags are stored under for one character
// on one server.
func ConfigScope(server, character string) string {
	return server + "." + character
}

// ParseAutoJoin resolves the optional auto argument of join and leave.
// Absent or unrecognised values mean true; only "noauto" means false.
func ParseAutoJoin(arg string) bool {
	return !strings.EqualFold(strings.TrimSpace(arg), "noauto")
}
