package ledger

import "context"

// Recorder defines the strike operations a retention policy needs.
// Policies depend on this interface rather than the concrete *Ledger so
// that storage failures can be simulated in tests.
type Recorder interface {
	Kind() Kind
	Thresholds() Thresholds
	Strike(ctx context.Context, id string) (bool, State, error)
	Reset(ctx context.Context, id string) error
	StrikeCount(ctx context.Context, id string) (int, error)
	ConsecutiveDays(ctx context.Context, id string) (int, error)
	State(ctx context.Context, id string) (State, error)
	Cleanup(ctx context.Context, known map[string]struct{}) (int, error)
	Entries(ctx context.Context) ([]Entry, error)
}

// Verify *Ledger satisfies Recorder at compile time.
var _ Recorder = (*Ledger)(nil)
