package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smartattend/internal/roster"
	"smartattend/internal/store"
)

// RecordsKey is the KV key holding the full record collection.
const RecordsKey = "attendanceRecords"

// isoLayout matches the millisecond UTC timestamps browsers produce.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Repository loads and saves the whole record collection at once.
type Repository interface {
	// Load reports found=false when nothing has been persisted yet.
	Load(ctx context.Context) (records []Record, found bool, err error)
	Save(ctx context.Context, records []Record) error
}

// KVRepository stores records as one JSON array under a single key.
type KVRepository struct {
	kv  store.KV
	key string
}

// NewKVRepository returns a repository over kv using RecordsKey.
func NewKVRepository(kv store.KV) *KVRepository {
	return &KVRepository{kv: kv, key: RecordsKey}
}

type storedRecord struct {
	ID           string            `json:"id"`
	LectureKey   string            `json:"lectureId"`
	LectureName  string            `json:"lectureName"`
	Date         string            `json:"date"`
	Attended     []roster.Identity `json:"attendedStudents"`
	Absent       []roster.Identity `json:"absentStudents"`
	CameraStatus CameraStatus      `json:"cameraStatus"`
	Detection    Detection         `json:"detection,omitempty"`
}

// FormatDate renders t the way it is persisted.
func FormatDate(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseDate accepts any RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Load rehydrates records, parsing dates back into timestamps.
func (r *KVRepository) Load(ctx context.Context) ([]Record, bool, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", r.key, err)
	}

	var stored []storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false, &PersistenceError{Kind: ErrCorruptRead, Key: r.key, Err: err}
	}

	records := make([]Record, 0, len(stored))
	for i, s := range stored {
		date, err := ParseDate(s.Date)
		if err != nil {
			return nil, false, &PersistenceError{Kind: ErrCorruptRead, Key: r.key, Err: fmt.Errorf("record %d date: %w", i, err)}
		}
		status := s.CameraStatus
		if status != CameraOpen && status != CameraClosed {
			return nil, false, &PersistenceError{Kind: ErrCorruptRead, Key: r.key, Err: fmt.Errorf("record %d camera status %q", i, s.CameraStatus)}
		}
		det := s.Detection
		if det == "" {
			det = DetectionIdle
		}
		records = append(records, Record{
			ID:           s.ID,
			LectureKey:   s.LectureKey,
			LectureName:  s.LectureName,
			Date:         date,
			Attended:     nonNil(s.Attended),
			Absent:       nonNil(s.Absent),
			CameraStatus: status,
			Detection:    det,
		})
	}
	return records, true, nil
}

// Save overwrites the whole collection in one write.
func (r *KVRepository) Save(ctx context.Context, records []Record) error {
	stored := make([]storedRecord, 0, len(records))
	for _, rec := range records {
		stored = append(stored, storedRecord{
			ID:           rec.ID,
			LectureKey:   rec.LectureKey,
			LectureName:  rec.LectureName,
			Date:         FormatDate(rec.Date),
			Attended:     nonNil(rec.Attended),
			Absent:       nonNil(rec.Absent),
			CameraStatus: rec.CameraStatus,
			Detection:    rec.Detection,
		})
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return &PersistenceError{Kind: ErrWriteFailed, Key: r.key, Err: err}
	}
	if err := r.kv.Set(ctx, r.key, raw); err != nil {
		return &PersistenceError{Kind: ErrWriteFailed, Key: r.key, Err: err}
	}
	return nil
}

func nonNil(ids []roster.Identity) []roster.Identity {
	if ids == nil {
		return []roster.Identity{}
	}
	return ids
}
