package qbit

import (
	"path/filepath"
	"strings"
	"time"

	qbittorrent "github.com/autobrr/go-qbittorrent"

	"github.com/starford/seedkeeper/internal/models"
)

// Mapping rewrites a path prefix as seen by the download client into the
// prefix seen by this process, e.g. /downloads -> /data/torrents.
type Mapping struct {
	From string
	To   string
}

// Apply rewrites p when it starts with From on a path boundary.
func (m Mapping) Apply(p string) string {
	if m.From == "" || p == "" {
		return p
	}
	from := strings.TrimRight(m.From, "/")
	switch {
	case p == from:
		return filepath.Clean(m.To)
	case strings.HasPrefix(p, from+"/"):
		return filepath.Join(m.To, filepath.FromSlash(strings.TrimPrefix(p, from+"/")))
	}
	return p
}

func convertTorrent(t qbittorrent.Torrent, m Mapping) models.Torrent {
	size := t.TotalSize
	if size == 0 {
		size = t.Size
	}
	return models.Torrent{
		Hash:        t.Hash,
		Name:        t.Name,
		Category:    t.Category,
		Tags:        splitTags(t.Tags),
		Tracker:     t.Tracker,
		ContentPath: m.Apply(t.ContentPath),
		Progress:    t.Progress,
		Ratio:       t.Ratio,
		TotalSize:   size,
		AddedOn:     unixTime(t.AddedOn),
		CompletedOn: unixTime(t.CompletionOn),
		SeedingTime: time.Duration(t.SeedingTime) * time.Second,
	}
}

func convertTracker(tr qbittorrent.TorrentTracker) models.Tracker {
	return models.Tracker{
		URL:     tr.Url,
		Status:  models.TrackerStatus(tr.Status),
		Message: tr.Message,
	}
}

// unixTime treats zero and the client's -1 sentinel as "never".
func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
