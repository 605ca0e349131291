package capture

import (
	"context"
	"math/rand/v2"
	"time"

	"smartattend/internal/roster"
)

const (
	// DefaultDelay is the simulated latency of one detection run.
	DefaultDelay = 3 * time.Second
	// MinDetected and MaxDetected bound the simulated head count.
	MinDetected = 5
	MaxDetected = 7
)

// Detector finds which roster entries are present in front of the camera.
type Detector interface {
	Detect(ctx context.Context, ids []roster.Identity) ([]roster.Identity, error)
}

// Simulator stands in for real face detection. After Delay it reports a prefix
// of the roster whose length is drawn uniformly from [Min, Max].
type Simulator struct {
	Delay time.Duration
	Min   int
	Max   int
	// Intn returns a value in [0, n). Defaults to math/rand/v2.
	Intn func(n int) int
}

// NewSimulator returns a simulator with the given delay and the default 5-7 range.
func NewSimulator(delay time.Duration) *Simulator {
	return &Simulator{Delay: delay, Min: MinDetected, Max: MaxDetected}
}

// Detect waits for Delay or until ctx is done.
func (s *Simulator) Detect(ctx context.Context, ids []roster.Identity) ([]roster.Identity, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fromContext(ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, fromContext(err)
	}
	return SelectPrefix(ids, s.Count()), nil
}

// Count draws the number of identities the next run will report.
func (s *Simulator) Count() int {
	intn := s.Intn
	if intn == nil {
		intn = rand.IntN
	}
	return RandomCount(s.Min, s.Max, intn)
}

// RandomCount returns lo + intn(hi-lo+1). A hi at or below lo yields lo.
func RandomCount(lo, hi int, intn func(n int) int) int {
	if hi <= lo {
		return lo
	}
	return lo + intn(hi-lo+1)
}

// SelectPrefix returns a copy of the first n identities, clamped to the roster
// length. Selection is positional: the same roster and n always give the same
// result.
func SelectPrefix(ids []roster.Identity, n int) []roster.Identity {
	if n < 0 {
		n = 0
	}
	if n > len(ids) {
		n = len(ids)
	}
	return append([]roster.Identity(nil), ids[:n]...)
}
