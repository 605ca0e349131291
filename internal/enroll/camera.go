package enroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCameraUnavailable is returned when a camera stream cannot be acquired.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Facing modes understood by Camera implementations.
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

// Constraints selects which camera to open.
type Constraints struct {
	FacingMode string
}

// Stream is an open camera stream. Stop releases every track.
type Stream interface {
	Frame(ctx context.Context) ([]byte, error)
	Stop()
}

// Camera opens streams.
type Camera interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Snapshot acquires a stream, grabs one frame and always stops the stream.
func Snapshot(ctx context.Context, cam Camera, c Constraints) ([]byte, error) {
	if cam == nil {
		return nil, ErrCameraUnavailable
	}
	stream, err := cam.Acquire(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	defer stream.Stop()
	return stream.Frame(ctx)
}

// SimulatedCamera serves a fixed still. It stands in for real hardware in
// development and tests.
type SimulatedCamera struct {
	Still  []byte
	Denied bool

	mu       sync.Mutex
	acquired int
	stopped  int
}

// NewSimulatedCamera returns a camera that always produces still.
func NewSimulatedCamera(still []byte) *SimulatedCamera {
	return &SimulatedCamera{Still: still}
}

// Acquire opens a simulated stream, or fails when the camera is denied.
func (c *SimulatedCamera) Acquire(ctx context.Context, _ Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Denied {
		return nil, errors.New("permission denied")
	}
	c.acquired++
	return &simStream{cam: c}, nil
}

// Open reports how many streams are acquired and not yet stopped.
func (c *SimulatedCamera) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired - c.stopped
}

type simStream struct {
	cam  *SimulatedCamera
	once sync.Once
}

func (s *simStream) Frame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]byte, len(s.cam.Still))
	copy(out, s.cam.Still)
	return out, nil
}

func (s *simStream) Stop() {
	s.once.Do(func() {
		s.cam.mu.Lock()
		s.cam.stopped++
		s.cam.mu.Unlock()
	})
}
