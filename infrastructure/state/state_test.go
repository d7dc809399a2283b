package state

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBackend_SaveLoad(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)

	err := backend.Save(ctx, "key1", []byte("value1"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := backend.Load(ctx, "key1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if string(data) != "value1" {
		t.Fatalf("expected 'value1', got '%s'", string(data))
	}
}

func TestMemoryBackend_LoadMissing(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)

	_, err := backend.Load(ctx, "missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryBackend_Delete(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)

	_ = backend.Save(ctx, "key1", []byte("value1"))
	err := backend.Delete(ctx, "key1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err = backend.Load(ctx, "key1")
	if err == nil {
		t.Fatal("expected error after delete, got nil")
	}
}

func TestMemoryBackend_List(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)

	_ = backend.Save(ctx, "prefix:key1", []byte("value1"))
	_ = backend.Save(ctx, "prefix:key2", []byte("value2"))
	_ = backend.Save(ctx, "other:key3", []byte("value3"))

	keys, err := backend.List(ctx, "prefix:")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

func TestMemoryBackend_Close(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(time.Hour)

	err := backend.Close(ctx)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
