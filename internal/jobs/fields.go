package jobs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/starford/seedkeeper/internal/models"
	"github.com/starford/seedkeeper/internal/notify"
	"github.com/starford/seedkeeper/internal/storage"
)

const readableTime = "2006-01-02 15:04:05"

func readable(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(readableTime)
}

// sizeGiB formats n as "1.5GiB | 1.61GB".
func sizeGiB(n int64) string {
	gib := float64(n) / (1 << 30)
	gb := float64(n) / 1e9
	return fmt.Sprintf("%sGiB | %sGB", round2(gib), round2(gb))
}

func round2(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func torrentEvent(title, action string, t models.Torrent) notify.Event {
	return notify.Event{
		Level: notify.Info,
		Title: title,
		Fields: []notify.Field{
			{Name: "Action", Value: action},
			{Name: "Name", Value: orDash(t.Name)},
			{Name: "Tracker", Value: orDash(t.Tracker)},
			{Name: "Category", Value: orDash(t.Category), Inline: true},
			{Name: "Tags", Value: orDash(strings.Join(t.Tags, ", ")), Inline: true},
			{Name: "Total Size", Value: sizeGiB(t.TotalSize), Inline: true},
			{Name: "Ratio", Value: round2(t.Ratio), Inline: true},
			{Name: "Added", Value: readable(t.AddedOn), Inline: true},
			{Name: "Completed", Value: readable(t.CompletedOn), Inline: true},
			{Name: "Seeding Days", Value: round2(t.SeedingDays()), Inline: true},
		},
	}
}

// maxTrackerFields keeps a tracker event within Discord's 25 embed fields.
const maxTrackerFields = 23

func trackerEvent(action string, t models.Torrent, trackers []models.Tracker) notify.Event {
	fields := []notify.Field{
		{Name: "Action", Value: action},
		{Name: "Torrent", Value: orDash(t.Name)},
	}
	shown := trackers
	if len(shown) > maxTrackerFields {
		shown = shown[:maxTrackerFields-1]
	}
	for _, tr := range shown {
		fields = append(fields, notify.Field{
			Name:  "Tracker",
			Value: fmt.Sprintf("URL: %s\nStatus: %s\nMessage: %s", tr.URL, tr.Status, orDash(tr.Message)),
		})
	}
	if rest := len(trackers) - len(shown); rest > 0 {
		fields = append(fields, notify.Field{Name: "Tracker", Value: fmt.Sprintf("+%d more", rest)})
	}
	return notify.Event{Level: notify.Error, Title: "Trackers not working", Fields: fields}
}

func orphanEvent(action string, e storage.Entry) notify.Event {
	return notify.Event{
		Level: notify.Info,
		Title: "Found orphaned file",
		Fields: []notify.Field{
			{Name: "Action", Value: action},
			{Name: "File", Value: e.Path},
			{Name: "Size", Value: sizeGiB(e.Size)},
			{Name: "Created", Value: readable(e.Changed)},
			{Name: "Modified", Value: readable(e.ModTime)},
		},
	}
}
