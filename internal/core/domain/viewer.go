package domain

import "time"

type ViewerID string

// Viewer is a registered audience member.
type Viewer struct {
	ID           ViewerID  `json:"id"`
	FullName     string    `json:"fullName"`
	PhoneNumber  string    `json:"phoneNumber"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// ChannelStats summarizes engagement on one channel for the broadcaster panel.
type ChannelStats struct {
	Channel       ChannelID `json:"channel"`
	ActiveViewers int       `json:"activeViewers"`
	PeakViewers   int       `json:"peakViewers"`
	TotalJoins    int       `json:"totalJoins"`
	CollectedAt   time.Time `json:"collectedAt"`
}
