package attendance

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"smartattend/internal/capture"
	"smartattend/internal/metrics"
	"smartattend/internal/queue"
	"smartattend/internal/roster"
)

// EventSettled is the queue message type emitted when a detection lands.
const EventSettled = "attendance.settled"

// SettledEvent is the body of an EventSettled message.
type SettledEvent struct {
	RecordID    string            `json:"recordId"`
	LectureKey  string            `json:"lectureId"`
	LectureName string            `json:"lectureName"`
	Date        time.Time         `json:"date"`
	Attended    []roster.Identity `json:"attendedStudents"`
	Absent      []roster.Identity `json:"absentStudents"`
	SettledAt   time.Time         `json:"settledAt"`
}

// Publisher is the part of queue.Queue the service needs.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Options configures a Service. Repo, Roster and Detector are required.
type Options struct {
	Repo          Repository
	Roster        *roster.Store
	Detector      capture.Detector
	Publisher     Publisher
	Metrics       metrics.Recorder
	Logger        *slog.Logger
	DetectTimeout time.Duration
	// Now and Intn are injectable for tests.
	Now  func() time.Time
	Intn func(n int) int
}

type task struct {
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// Service owns the session records. Every transition is persisted as a full
// collection write before it becomes visible; a failed write leaves the
// in-memory state untouched.
type Service struct {
	repo     Repository
	roster   *roster.Store
	detector capture.Detector
	pub      Publisher
	metrics  metrics.Recorder
	log      *slog.Logger
	timeout  time.Duration
	now      func() time.Time
	intn     func(n int) int

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	loaded  bool
	records []Record
	tasks   map[string]*task
	// live holds every detection goroutine still running per record,
	// including cancelled ones whose result will be dropped.
	live map[string][]*task
}

// NewService creates a service. Call Bootstrap before use.
func NewService(opts Options) *Service {
	s := &Service{
		repo:     opts.Repo,
		roster:   opts.Roster,
		detector: opts.Detector,
		pub:      opts.Publisher,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		timeout:  opts.DetectTimeout,
		now:      opts.Now,
		intn:     opts.Intn,
		tasks:    make(map[string]*task),
		live:     make(map[string][]*task),
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.intn == nil {
		s.intn = rand.IntN
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	return s
}

// Bootstrap rehydrates persisted records, or synthesizes one closed record
// per lecture when nothing has been stored yet. Once loaded it returns the
// current records unchanged.
func (s *Service) Bootstrap(ctx context.Context, lectures []string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return cloneAll(s.records), nil
	}

	records, found, err := s.repo.Load(ctx)
	if err != nil {
		s.metrics.PersistenceFailed(kindLabel(err))
		return nil, err
	}
	if found {
		for i := range records {
			// no task survives a restart
			if records[i].Detection == DetectionScanning {
				records[i].Detection = DetectionIdle
			}
		}
		s.log.Info("attendance records rehydrated", "count", len(records))
	} else {
		records = Synthesize(lectures, s.roster, s.now(), s.intn)
		if err := s.repo.Save(ctx, records); err != nil {
			s.metrics.PersistenceFailed(kindLabel(err))
			return nil, err
		}
		s.log.Info("attendance records synthesized", "count", len(records))
	}

	s.records = records
	s.loaded = true
	return cloneAll(records), nil
}

// Synthesize builds the initial demo records: one per lecture, dated one day
// apart going back from now, with a 5-7 prefix of the roster attended.
func Synthesize(lectures []string, rs *roster.Store, now time.Time, intn func(n int) int) []Record {
	now = now.UTC().Truncate(time.Millisecond)
	out := make([]Record, 0, len(lectures))
	for i, lecture := range lectures {
		ids := rs.Lookup(lecture)
		detected := capture.SelectPrefix(ids, capture.RandomCount(capture.MinDetected, capture.MaxDetected, intn))
		attended, absent := Partition(ids, detected)
		out = append(out, Record{
			ID:           ulid.Make().String(),
			LectureKey:   lecture,
			LectureName:  lecture,
			Date:         now.Add(-time.Duration(i) * 24 * time.Hour),
			Attended:     attended,
			Absent:       absent,
			CameraStatus: CameraClosed,
			Detection:    DetectionIdle,
		})
	}
	return out
}

// Loaded reports whether Bootstrap has succeeded.
func (s *Service) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// List returns a copy of every record in order.
func (s *Service) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, ErrNotBootstrapped
	}
	return cloneAll(s.records), nil
}

// Get returns a copy of one record.
func (s *Service) Get(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.indexLocked(id)
	if err != nil {
		return Record{}, err
	}
	return s.records[i].clone(), nil
}

// Toggle flips the camera for record id. Opening starts a detection task;
// closing cancels any task still in flight so its result is never applied.
func (s *Service) Toggle(ctx context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.indexLocked(id)
	if err != nil {
		return Record{}, err
	}

	next := s.records[i].clone()
	if next.CameraStatus == CameraOpen {
		next.CameraStatus = CameraClosed
		if next.Detection == DetectionScanning {
			next.Detection = DetectionIdle
		}
	} else {
		next.CameraStatus = CameraOpen
		next.Detection = DetectionScanning
	}

	if err := s.commitLocked(ctx, i, next); err != nil {
		return Record{}, err
	}

	if next.CameraStatus == CameraOpen {
		s.startLocked(next)
		s.log.Info("camera opened, detection started", "record_id", id, "lecture", next.LectureName)
	} else {
		s.cancelLocked(id)
		s.log.Info("camera closed", "record_id", id, "lecture", next.LectureName)
	}
	s.metrics.CameraToggled(string(next.CameraStatus))
	return next.clone(), nil
}

// Wait blocks until every detection goroutine started for id has exited,
// cancelled ones included.
func (s *Service) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	pending := append([]*task(nil), s.live[id]...)
	s.mu.Unlock()
	for _, t := range pending {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close cancels all in-flight detections and waits for them to exit.
func (s *Service) Close() {
	s.baseCancel()
	s.wg.Wait()
}

func (s *Service) indexLocked(id string) (int, error) {
	if !s.loaded {
		return -1, ErrNotBootstrapped
	}
	for i := range s.records {
		if s.records[i].ID == id {
			return i, nil
		}
	}
	return -1, ErrRecordNotFound
}

// commitLocked persists the collection with records[i] replaced by next and
// only then installs it in memory.
func (s *Service) commitLocked(ctx context.Context, i int, next Record) error {
	updated := make([]Record, len(s.records))
	copy(updated, s.records)
	updated[i] = next
	if err := s.repo.Save(ctx, updated); err != nil {
		s.metrics.PersistenceFailed(kindLabel(err))
		s.log.Error("persist attendance records", "record_id", next.ID, "error", err)
		return err
	}
	s.records = updated
	return nil
}

func (s *Service) startLocked(rec Record) {
	s.cancelLocked(rec.ID)

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(s.baseCtx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(s.baseCtx)
	}
	t := &task{cancel: cancel, done: make(chan struct{}), started: s.now()}
	s.tasks[rec.ID] = t
	s.live[rec.ID] = append(s.live[rec.ID], t)

	ids := s.roster.Lookup(rec.LectureKey)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		defer cancel()
		detected, err := s.detector.Detect(ctx, ids)
		s.finish(rec.ID, t, ids, detected, err)
		s.forget(rec.ID, t)
	}()
}

func (s *Service) forget(id string, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.live[id]
	for i, lt := range live {
		if lt == t {
			live = append(live[:i], live[i+1:]...)
			break
		}
	}
	if len(live) == 0 {
		delete(s.live, id)
	} else {
		s.live[id] = live
	}
}

func (s *Service) cancelLocked(id string) {
	if t, ok := s.tasks[id]; ok {
		t.cancel()
		delete(s.tasks, id)
	}
}

// finish applies a detection result if t is still the current task for id.
func (s *Service) finish(id string, t *task, ids, detected []roster.Identity, detectErr error) {
	s.mu.Lock()

	if s.tasks[id] != t {
		s.mu.Unlock()
		if detectErr == nil {
			s.metrics.StaleResultDropped()
			s.log.Info("stale detection result dropped", "record_id", id)
		} else {
			s.metrics.DetectionFinished(metrics.OutcomeCancelled, 0)
		}
		return
	}
	delete(s.tasks, id)

	i, err := s.indexLocked(id)
	if err != nil {
		s.mu.Unlock()
		return
	}
	next := s.records[i].clone()
	ctx := context.WithoutCancel(s.baseCtx)

	if detectErr != nil {
		if errors.Is(detectErr, context.Canceled) {
			s.mu.Unlock()
			s.metrics.DetectionFinished(metrics.OutcomeCancelled, 0)
			return
		}
		next.Detection = DetectionFailed
		if err := s.commitLocked(ctx, i, next); err != nil {
			s.markFailedLocked(i, err)
		}
		s.mu.Unlock()
		s.metrics.DetectionFinished(metrics.OutcomeFailed, 0)
		s.log.Warn("detection failed", "record_id", id, "error", detectErr)
		return
	}

	next.Attended, next.Absent = Partition(ids, detected)
	next.Detection = DetectionSettled
	if err := s.commitLocked(ctx, i, next); err != nil {
		s.markFailedLocked(i, err)
		s.mu.Unlock()
		s.metrics.DetectionFinished(metrics.OutcomeFailed, 0)
		return
	}
	s.mu.Unlock()

	took := s.now().Sub(t.started)
	s.metrics.DetectionFinished(metrics.OutcomeSettled, took)
	s.log.Info("detection settled", "record_id", id, "attended", len(next.Attended), "absent", len(next.Absent))
	s.publish(next)
}

// markFailedLocked marks a record whose result could not be persisted as failed
// in memory. The stored copy still says scanning, which Bootstrap resets to idle.
func (s *Service) markFailedLocked(i int, err error) {
	s.records[i].Detection = DetectionFailed
	s.log.Error("detection result not persisted", "record_id", s.records[i].ID, "error", err)
}

func (s *Service) publish(rec Record) {
	if s.pub == nil {
		return
	}
	msg, err := queue.NewMessage(EventSettled, SettledEvent{
		RecordID:    rec.ID,
		LectureKey:  rec.LectureKey,
		LectureName: rec.LectureName,
		Date:        rec.Date,
		Attended:    rec.Attended,
		Absent:      rec.Absent,
		SettledAt:   s.now().UTC(),
	})
	if err != nil {
		s.log.Error("encode settled event", "record_id", rec.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.pub.Publish(ctx, msg); err != nil {
		s.log.Warn("queue publish failed", "record_id", rec.ID, "error", err)
	}
}

func cloneAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.clone()
	}
	return out
}
