package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartattend/internal/store"
)

// Keys under which profiles are persisted.
const (
	LecturerKey = "lecturer"
	StudentKey  = "student"
)

// ErrNotFound is returned when no profile has been saved.
var ErrNotFound = errors.New("profile not found")

// ValidationError reports a form field problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// Lecturer is the signed-in lecturer and the lectures they teach.
type Lecturer struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	LecturerID string   `json:"lecturerId"`
	Lectures   []string `json:"lectures"`
}

// Student is a self-registered student.
type Student struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StudentID    string    `json:"studentId"`
	Schedule     []string  `json:"schedule"`
	FaceEncoding string    `json:"faceEncoding"`
	SnapshotURL  string    `json:"snapshotUrl,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// NewLecturer validates input and returns a lecturer with a fresh id.
// Blank lectures are dropped; at least one must remain.
func NewLecturer(name, lecturerID string, lectures []string) (Lecturer, error) {
	name, lecturerID = strings.TrimSpace(name), strings.TrimSpace(lecturerID)
	if name == "" || lecturerID == "" {
		return Lecturer{}, &ValidationError{Field: "name", Message: "please fill in all required fields"}
	}
	kept := compact(lectures)
	if len(kept) == 0 {
		return Lecturer{}, &ValidationError{Field: "lectures", Message: "please add at least one lecture"}
	}
	return Lecturer{ID: uuid.NewString(), Name: name, LecturerID: lecturerID, Lectures: kept}, nil
}

// NewStudent validates input and returns a student registered at now.
func NewStudent(name, studentID string, schedule []string, faceEncoding string, now time.Time) (Student, error) {
	name, studentID = strings.TrimSpace(name), strings.TrimSpace(studentID)
	if name == "" || studentID == "" {
		return Student{}, &ValidationError{Field: "name", Message: "please fill in all required fields"}
	}
	if faceEncoding == "" {
		return Student{}, &ValidationError{Field: "faceEncoding", Message: "please register your face"}
	}
	kept := compact(schedule)
	if len(kept) == 0 {
		return Student{}, &ValidationError{Field: "schedule", Message: "please add at least one lecture to your schedule"}
	}
	return Student{
		ID:           uuid.NewString(),
		Name:         name,
		StudentID:    studentID,
		Schedule:     kept,
		FaceEncoding: faceEncoding,
		RegisteredAt: now.UTC().Truncate(time.Millisecond),
	}, nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Store persists profiles as JSON documents in a KV.
type Store struct {
	kv store.KV
}

// NewStore returns a profile store over kv.
func NewStore(kv store.KV) *Store {
	return &Store{kv: kv}
}

// SaveLecturer overwrites the lecturer profile.
func (s *Store) SaveLecturer(ctx context.Context, l Lecturer) error {
	return s.put(ctx, LecturerKey, l)
}

// Lecturer returns the saved lecturer profile.
func (s *Store) Lecturer(ctx context.Context) (Lecturer, error) {
	var l Lecturer
	err := s.get(ctx, LecturerKey, &l)
	return l, err
}

// SaveStudent overwrites the student profile.
func (s *Store) SaveStudent(ctx context.Context, st Student) error {
	return s.put(ctx, StudentKey, st)
}

// Student returns the saved student profile.
func (s *Store) Student(ctx context.Context) (Student, error) {
	var st Student
	err := s.get(ctx, StudentKey, &st)
	return st, err
}

// Clear removes the profile stored under key (logout).
func (s *Store) Clear(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, into any) error {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
