package registry

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestStateEmptyOnMissingFile(t *testing.T) {
	s := NewState(filepath.Join(t.TempDir(), "gateways.json"))

	descs, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(descs) != 0 {
		t.Fatalf("expected empty state, got %d descriptors", len(descs))
	}
}

func TestStateAppendAndRemove(t *testing.T) {
	s := NewState(filepath.Join(t.TempDir(), "gateways.json"))

	a := Descriptor{ID: "sse_100", Transport: StdioToSSE, PID: 41, Port: 8000, StartedAt: time.Now().UTC()}
	b := Descriptor{ID: "http_101", Transport: StreamableHTTP, PID: 42, Port: 8001, StartedAt: time.Now().UTC()}
	if err := s.Append(a); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := s.Append(b); err != nil {
		t.Fatalf("append b: %v", err)
	}

	descs, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descs))
	}
	if descs[0].ID != "sse_100" || descs[1].ID != "http_101" {
		t.Fatalf("unexpected order: %s, %s", descs[0].ID, descs[1].ID)
	}

	removed, err := s.Remove("sse_100")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.PID != 41 {
		t.Fatalf("removed pid = %d, want 41", removed.PID)
	}

	descs, _ = s.Load()
	if len(descs) != 1 || descs[0].ID != "http_101" {
		t.Fatalf("unexpected state after remove: %+v", descs)
	}
}

func TestStateDuplicateID(t *testing.T) {
	s := NewState(filepath.Join(t.TempDir(), "gateways.json"))

	d := Descriptor{ID: "sse_100"}
	if err := s.Append(d); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(d); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestStateRemoveUnknown(t *testing.T) {
	s := NewState(filepath.Join(t.TempDir(), "gateways.json"))

	_, err := s.Remove("sse_0")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStatePersistsAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateways.json")

	if err := NewState(path).Append(Descriptor{ID: "stdio_7", PID: 9}); err != nil {
		t.Fatalf("append: %v", err)
	}

	descs, err := NewState(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(descs) != 1 || descs[0].ID != "stdio_7" {
		t.Fatalf("unexpected state: %+v", descs)
	}
}
