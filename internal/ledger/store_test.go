package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	if _, err := fs.Load(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := fs.Save(ctx, "p1", []byte(`{"salvage":3}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := fs.Save(ctx, "p1", []byte(`{"salvage":4}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := fs.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(b) != `{"salvage":4}` {
		t.Fatalf("load = %s", b)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "p1.json" {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileStoreRequiresDir(t *testing.T) {
	if _, err := NewFileStore(" "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestMemoryStoreCopiesBytes(t *testing.T) {
	ms := NewMemoryStore()
	buf := []byte("abc")
	_ = ms.Save(context.Background(), "p", buf)
	buf[0] = 'z'
	got, _ := ms.Load(context.Background(), "p")
	if string(got) != "abc" {
		t.Fatalf("stored bytes aliased caller buffer: %s", got)
	}
}

func TestFileStoreBacksLedger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "ledger")
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	l := Open(context.Background(), fs, "p1", zerolog.Nop())
	l.AdjustCurrencies(Delta{Salvage: 12})

	reopened := Open(context.Background(), fs, "p1", zerolog.Nop())
	if got := reopened.Meta().Salvage; got != 12 {
		t.Fatalf("salvage after reopen = %d", got)
	}
}
