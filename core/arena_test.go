package core

import "testing"

// TestArena_StaleHandle tests generation checks
// Given: a slot that was allocated, released and allocated again
// When: the first id is resolved
// Then: it no longer resolves while the new id does
func TestArena_StaleHandle(t *testing.T) {
	a := newArena()
	first, id1, ok := a.alloc()
	if !ok {
		t.Fatal("alloc failed")
	}
	a.release(first)

	_, id2, _ := a.alloc()

	if id1.slot() != id2.slot() {
		t.Fatalf("slot not reused: %d vs %d", id1.slot(), id2.slot())
	}
	if id1 == id2 {
		t.Fatal("reused slot kept its id")
	}
	if a.get(id1) != nil {
		t.Error("stale id still resolves")
	}
	if a.get(id2) == nil {
		t.Error("fresh id does not resolve")
	}
	if a.get(0) != nil {
		t.Error("zero id resolves")
	}
	if got := a.Live(); got != 1 {
		t.Errorf("Live = %d, want 1", got)
	}
}

// TestArena_GrowsAcrossChunks tests allocation past one chunk
func TestArena_GrowsAcrossChunks(t *testing.T) {
	a := newArena()
	ids := make([]TaskID, 0, arenaChunkSize+10)
	for range arenaChunkSize + 10 {
		_, id, ok := a.alloc()
		if !ok {
			t.Fatal("alloc failed")
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		if got := a.get(id); got == nil || got.id != id {
			t.Fatalf("get(%v) did not resolve", id)
		}
	}
	if got := a.Live(); got != arenaChunkSize+10 {
		t.Errorf("Live = %d, want %d", got, arenaChunkSize+10)
	}
}

func TestTaskID_String(t *testing.T) {
	if got := makeTaskID(3, 2).String(); got != "task-3.2" {
		t.Errorf("String = %q, want task-3.2", got)
	}
	if got := TaskID(0).String(); got != "task-none" {
		t.Errorf("String = %q, want task-none", got)
	}
}
