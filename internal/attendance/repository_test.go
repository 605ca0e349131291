package attendance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"smartattend/internal/roster"
	"smartattend/internal/store"
)

// flakyKV fails writes while failSet is true.
type flakyKV struct {
	*store.Memory
	failSet bool
	sets    int
}

func newFlakyKV() *flakyKV { return &flakyKV{Memory: store.NewMemory()} }

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	f.sets++
	if f.failSet {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func sampleRecords() []Record {
	ids := roster.Default().Lookup("AI 101")
	return []Record{
		{
			ID:           "record-0",
			LectureKey:   "AI 101",
			LectureName:  "AI 101",
			Date:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Attended:     ids[:5],
			Absent:       ids[5:],
			CameraStatus: CameraClosed,
			Detection:    DetectionIdle,
		},
		{
			ID:           "record-1",
			LectureKey:   "DB 202",
			LectureName:  "DB 202",
			Date:         time.Date(2024, 1, 14, 9, 30, 15, 123_000_000, time.UTC),
			Attended:     ids[:7],
			Absent:       ids[7:],
			CameraStatus: CameraOpen,
			Detection:    DetectionSettled,
		},
	}
}

func assertSameRecords(t *testing.T, got, want []Record) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.LectureKey != w.LectureKey || g.LectureName != w.LectureName ||
			g.CameraStatus != w.CameraStatus || g.Detection != w.Detection {
			t.Errorf("record %d = %+v, want %+v", i, g, w)
		}
		if !g.Date.Equal(w.Date) {
			t.Errorf("record %d date = %s, want %s", i, g.Date, w.Date)
		}
		if !sameIDs(g.Attended, w.Attended) || !sameIDs(g.Absent, w.Absent) {
			t.Errorf("record %d partition = %v/%v, want %v/%v", i, g.Attended, g.Absent, w.Attended, w.Absent)
		}
	}
}

func sameIDs(a, b []roster.Identity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestKVRepository_LoadEmpty(t *testing.T) {
	repo := NewKVRepository(store.NewMemory())
	records, found, err := repo.Load(context.Background())
	if err != nil || found || records != nil {
		t.Fatalf("Load on empty store = %v, %v, %v", records, found, err)
	}
}

func TestKVRepository_SaveLoadIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	repo := NewKVRepository(kv)

	if err := repo.Save(ctx, sampleRecords()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, found, err := repo.Load(ctx)
	if err != nil || !found {
		t.Fatalf("Load: %v (found=%v)", err, found)
	}
	rawFirst, _ := kv.Get(ctx, RecordsKey)

	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("re-Save: %v", err)
	}
	second, _, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("re-Load: %v", err)
	}
	rawSecond, _ := kv.Get(ctx, RecordsKey)

	assertSameRecords(t, second, first)
	assertSameRecords(t, second, sampleRecords())
	if string(rawFirst) != string(rawSecond) {
		t.Errorf("persisted bytes changed across save(load()):\n%s\n%s", rawFirst, rawSecond)
	}
}

func TestKVRepository_DateRoundTripsExactly(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	raw := `[{"id":"r","lectureId":"AI 101","lectureName":"AI 101","date":"2024-01-15T00:00:00.000Z",` +
		`"attendedStudents":[],"absentStudents":[],"cameraStatus":"closed"}]`
	_ = kv.Set(ctx, RecordsKey, []byte(raw))

	repo := NewKVRepository(kv)
	records, _, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC); !records[0].Date.Equal(want) {
		t.Errorf("Date = %s, want %s", records[0].Date, want)
	}
	if records[0].Detection != DetectionIdle {
		t.Errorf("missing detection should default to idle, got %q", records[0].Detection)
	}

	if err := repo.Save(ctx, records); err != nil {
		t.Fatal(err)
	}
	out, _ := kv.Get(ctx, RecordsKey)
	if !strings.Contains(string(out), `"date":"2024-01-15T00:00:00.000Z"`) {
		t.Errorf("date not preserved: %s", out)
	}
}

func TestKVRepository_CorruptRead(t *testing.T) {
	cases := map[string]string{
		"not json":      `{{{`,
		"bad date":      `[{"id":"r","date":"yesterday","cameraStatus":"closed"}]`,
		"bad camera":    `[{"id":"r","date":"2024-01-15T00:00:00.000Z","cameraStatus":"ajar"}]`,
		"object not []": `{"id":"r"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			kv := store.NewMemory()
			_ = kv.Set(context.Background(), RecordsKey, []byte(raw))

			_, _, err := NewKVRepository(kv).Load(context.Background())
			if !errors.Is(err, ErrCorruptRead) {
				t.Fatalf("err = %v, want ErrCorruptRead", err)
			}
			var perr *PersistenceError
			if !errors.As(err, &perr) || perr.Key != RecordsKey {
				t.Errorf("expected PersistenceError for %s, got %v", RecordsKey, err)
			}
		})
	}
}

func TestKVRepository_WriteFailed(t *testing.T) {
	kv := newFlakyKV()
	kv.failSet = true

	err := NewKVRepository(kv).Save(context.Background(), sampleRecords())
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("err = %v, want ErrWriteFailed", err)
	}
	if kindLabel(err) != "write_failed" {
		t.Errorf("kindLabel = %q", kindLabel(err))
	}
}

func TestKVRepository_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLite(ctx, t.TempDir()+"/records.db")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	kv, err := store.NewSQLKV(ctx, db.Client, store.SQLite)
	if err != nil {
		t.Fatal(err)
	}

	repo := NewKVRepository(kv)
	if err := repo.Save(ctx, sampleRecords()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, found, err := repo.Load(ctx)
	if err != nil || !found {
		t.Fatalf("Load: %v (found=%v)", err, found)
	}
	assertSameRecords(t, got, sampleRecords())
}

func TestFormatDate(t *testing.T) {
	local := time.FixedZone("CET", 3600)
	got := FormatDate(time.Date(2024, 1, 15, 1, 0, 0, 0, local))
	if got != "2024-01-15T00:00:00.000Z" {
		t.Errorf("FormatDate = %s", got)
	}
	if _, err := ParseDate("2024-01-15T00:00:00Z"); err != nil {
		t.Errorf("ParseDate without millis: %v", err)
	}
}
