// Package models defines the domain types for seedkeeper.
package models

import (
	"strings"
	"time"
)

// Torrent is one item managed by the download client.
type Torrent struct {
	Hash        string        `json:"hash"`
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Tags        []string      `json:"tags"`
	Tracker     string        `json:"tracker"`
	ContentPath string        `json:"content_path"`
	Progress    float64       `json:"progress"`
	Ratio       float64       `json:"ratio"`
	TotalSize   int64         `json:"total_size"`
	AddedOn     time.Time     `json:"added_on"`
	CompletedOn time.Time     `json:"completed_on"` // zero while incomplete
	SeedingTime time.Duration `json:"seeding_time"`
}

// Completed reports whether the download has finished.
func (t Torrent) Completed() bool {
	return !t.CompletedOn.IsZero() && t.Progress >= 1
}

// HasTag reports whether the torrent carries tag, compared case-insensitively.
func (t Torrent) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	for _, have := range t.Tags {
		if strings.EqualFold(strings.TrimSpace(have), tag) {
			return true
		}
	}
	return false
}

// SeedingDays returns the seeding time in fractional days.
func (t Torrent) SeedingDays() float64 {
	return t.SeedingTime.Hours() / 24
}

// TrackerStatus mirrors the download client's tracker status codes.
type TrackerStatus int

const (
	TrackerDisabled     TrackerStatus = 0
	TrackerNotContacted TrackerStatus = 1
	TrackerWorking      TrackerStatus = 2
	TrackerUpdating     TrackerStatus = 3
	TrackerNotWorking   TrackerStatus = 4
)

// String returns a human-readable status.
func (s TrackerStatus) String() string {
	switch s {
	case TrackerDisabled:
		return "Disabled"
	case TrackerNotContacted:
		return "Not contacted yet"
	case TrackerWorking:
		return "Working"
	case TrackerUpdating:
		return "Updating"
	case TrackerNotWorking:
		return "Not working"
	}
	return "Unknown"
}

// Tracker is one announce endpoint of a torrent.
type Tracker struct {
	URL     string        `json:"url"`
	Status  TrackerStatus `json:"status"`
	Message string        `json:"message"`
}

// Pseudo reports whether the entry is a DHT, PeX or LSD pseudo-tracker.
func (tr Tracker) Pseudo() bool {
	u := strings.ToLower(tr.URL)
	return strings.Contains(u, "dht") || strings.Contains(u, "pex") || strings.Contains(u, "lsd")
}
