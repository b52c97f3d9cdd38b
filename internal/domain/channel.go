package domain

// ChannelInfo describes one live channel for listings.
type ChannelInfo struct {
	Name      string `json:"name"`
	SubName   string `json:"subName,omitempty"`
	Canonical string `json:"canonical"`
	Kind      string `json:"kind"`
	Usage     string `json:"usage,omitempty"`
	AutoJoin  bool   `json:"autoJoin,omitempty"`
}

// Subscription is one persisted autojoin flag.
type Subscription struct {
	Scope    string `json:"scope"`
	Channel  string `json:"channel"`
	AutoJoin bool   `json:"autoJoin"`
}
