package api

import (
	"time"

	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/scheduler"
)

// JobDTO is the API representation of a scheduled job.
type JobDTO struct {
	Name          string     `json:"name"`
	IntervalHours float64    `json:"interval_hours"`
	NextRun       time.Time  `json:"next_run"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Queued        bool       `json:"queued"`
	Running       bool       `json:"running"`
}

// JobListResponse is the response of GET /api/jobs.
type JobListResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

// StrikeListResponse is the response of GET /api/strikes/{kind}.
type StrikeListResponse struct {
	Kind            string         `json:"kind"`
	RequiredStrikes int            `json:"required_strikes"`
	MinStrikeDays   int            `json:"min_strike_days"`
	Entries         []ledger.Entry `json:"entries"`
}

func toJobDTOs(in []scheduler.Status) []JobDTO {
	out := make([]JobDTO, 0, len(in))
	for _, s := range in {
		dto := JobDTO{
			Name:          s.Name,
			IntervalHours: s.Interval.Hours(),
			NextRun:       s.Next,
			LastError:     s.LastErr,
			Queued:        s.Queued,
			Running:       s.Running,
		}
		if !s.LastRun.IsZero() {
			last := s.LastRun
			dto.LastRun = &last
		}
		out = append(out, dto)
	}
	return out
}
