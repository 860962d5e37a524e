package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"villagekeep/internal/clock"
	logx "villagekeep/pkg/logx"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "memory"},
		{Driver: "file", Path: filepath.Join(dir, "blobs")},
		{Driver: "sqlite", Path: filepath.Join(dir, "db", "village.db")},
	} {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openAll(t) {
		if _, ok, err := st.Get(ctx, "village"); err != nil || ok {
			t.Fatalf("%s: empty Get = ok:%v err:%v", name, ok, err)
		}
		if err := st.Put(ctx, "village", []byte("v1")); err != nil {
			t.Fatalf("%s: Put: %v", name, err)
		}
		if err := st.Put(ctx, "village", []byte("v2")); err != nil {
			t.Fatalf("%s: Put: %v", name, err)
		}
		b, ok, err := st.Get(ctx, "village")
		if err != nil || !ok || string(b) != "v2" {
			t.Fatalf("%s: Get = %q ok:%v err:%v", name, b, ok, err)
		}
		if err := st.Put(ctx, "  ", []byte("x")); err == nil {
			t.Fatalf("%s: empty key should fail", name)
		}
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("disabled: st=%v err=%v", st, err)
	}
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected path error")
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Put(ctx, "../escape", []byte("x")); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	if _, err := os.Stat(filepath.Join(dir, "__escape.blob")); err != nil {
		t.Fatalf("key not confined to dir: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st2.Close()
	b, ok, err := st2.Get(ctx, "../escape")
	if err != nil || !ok || string(b) != "x" {
		t.Fatalf("reopen Get = %q ok:%v err:%v", b, ok, err)
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	ctx := context.Background()
	in := []byte("abc")
	_ = st.Put(ctx, "k", in)
	in[0] = 'z'
	out, _, _ := st.Get(ctx, "k")
	if string(out) != "abc" {
		t.Fatalf("stored bytes aliased: %q", out)
	}
	if st.Writes() != 1 {
		t.Fatalf("Writes = %d", st.Writes())
	}
}

func TestSQLiteStampsInjectedClock(t *testing.T) {
	t.Parallel()
	clk := clock.NewFakeMs(1_700_000_000_000)
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "village.db"), Clock: clk}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	db := st.(*sqliteStore).db

	ctx := context.Background()
	stamp := func() int64 {
		t.Helper()
		var at int64
		if err := db.GetContext(ctx, &at, `SELECT updated_at FROM blobs WHERE key = ?`, "village"); err != nil {
			t.Fatal(err)
		}
		return at
	}
	if err := st.Put(ctx, "village", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if got := stamp(); got != 1_700_000_000_000 {
		t.Fatalf("updated_at=%d", got)
	}
	clk.Advance(90 * time.Second)
	if err := st.Put(ctx, "village", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if got := stamp(); got != 1_700_000_090_000 {
		t.Fatalf("updated_at after upsert=%d", got)
	}
}
