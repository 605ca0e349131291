package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// exerciseKV runs the behaviour every KV backend must share.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if err := kv.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if _, err := kv.Get(ctx, "attendanceRecords"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing key err = %v, want ErrNotFound", err)
	}

	if err := kv.Set(ctx, "attendanceRecords", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := kv.Get(ctx, "attendanceRecords")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte(`[{"id":"a"}]`)) {
		t.Errorf("Get = %s", got)
	}

	if err := kv.Set(ctx, "attendanceRecords", []byte(`[]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = kv.Get(ctx, "attendanceRecords")
	if string(got) != "[]" {
		t.Errorf("after overwrite Get = %s", got)
	}

	if err := kv.Delete(ctx, "attendanceRecords"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "attendanceRecords"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := kv.Delete(ctx, "never-written"); err != nil {
		t.Errorf("Delete missing key: %v", err)
	}
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	in := []byte("abc")
	_ = m.Set(ctx, "k", in)
	in[0] = 'x'

	out, _ := m.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("stored value aliased caller slice: %s", out)
	}
	out[1] = 'y'
	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("returned value aliased stored slice: %s", again)
	}
}

func TestSQLKV_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "nested", "kv.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer db.Close()

	kv, err := NewSQLKV(ctx, db.Client, SQLite)
	if err != nil {
		t.Fatalf("NewSQLKV: %v", err)
	}
	exerciseKV(t, kv)

	// migrating twice must be harmless
	if _, err := NewSQLKV(ctx, db.Client, SQLite); err != nil {
		t.Errorf("second migrate: %v", err)
	}
}

func TestSQLKV_Postgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, url)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	kv, err := NewSQLKV(ctx, db.Client, Postgres)
	if err != nil {
		t.Fatalf("NewSQLKV: %v", err)
	}
	exerciseKV(t, kv)
}

func TestRedisKV(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	r := NewRedis(addr)
	defer r.Close()
	if !r.Healthy(context.Background()) {
		t.Fatalf("redis at %s not reachable", addr)
	}
	exerciseKV(t, NewRedisKV(r.Client, "smartattend-test:"))
}

func TestSQLKV_Placeholders(t *testing.T) {
	pg := &SQLKV{dialect: Postgres}
	lite := &SQLKV{dialect: SQLite}
	if pg.ph(2) != "$2" {
		t.Errorf("postgres ph(2) = %s", pg.ph(2))
	}
	if lite.ph(2) != "?" {
		t.Errorf("sqlite ph(2) = %s", lite.ph(2))
	}
}

func TestRedis_NilIsUnhealthy(t *testing.T) {
	var r *Redis
	if r.Healthy(context.Background()) {
		t.Error("nil redis reported healthy")
	}
	if err := r.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}
