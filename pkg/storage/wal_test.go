package storage

import (
	"testing"
	"time"
)

func TestWAL(t *testing.T) {
	tmpDir := t.TempDir()

	// Create WAL
	wal, err := NewWAL(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create WAL: %v", err)
	}
	defer wal.Close()

	at := time.UnixMilli(1_000_000).UTC()
	if err := wal.Append(at, []byte(`{"type":"NAVIGATE_VIEW","view":"stats"}`)); err != nil {
		t.Fatalf("Failed to append to WAL: %v", err)
	}
	if err := wal.Append(at.Add(time.Second), []byte(`{"type":"NAVIGATE_BACK"}`)); err != nil {
		t.Fatalf("Failed to append to WAL: %v", err)
	}

	if err := wal.Flush(); err != nil {
		t.Fatalf("Failed to flush WAL: %v", err)
	}

	wal.Close()

	// Replay WAL
	var replayed []WALEntry
	err = ReplayWAL(tmpDir, func(e WALEntry) error {
		replayed = append(replayed, e)
		return nil
	})
	if err != nil {
		t.Fatalf("WAL replay failed: %v", err)
	}

	if len(replayed) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(replayed))
	}
	if !replayed[0].Timestamp.Equal(at) {
		t.Errorf("Expected timestamp %v, got %v", at, replayed[0].Timestamp)
	}
	if string(replayed[1].Action) != `{"type":"NAVIGATE_BACK"}` {
		t.Errorf("Unexpected action %s", replayed[1].Action)
	}
}

func TestWALTruncate(t *testing.T) {
	tmpDir := t.TempDir()

	wal, err := NewWAL(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create WAL: %v", err)
	}
	defer wal.Close()

	if err := wal.Append(time.Now(), []byte(`{"type":"NAVIGATE_VIEW","view":"a"}`)); err != nil {
		t.Fatalf("Failed to append to WAL: %v", err)
	}
	if err := wal.Truncate(); err != nil {
		t.Fatalf("Failed to truncate WAL: %v", err)
	}
	if err := wal.Append(time.Now(), []byte(`{"type":"NAVIGATE_VIEW","view":"b"}`)); err != nil {
		t.Fatalf("Failed to append to WAL: %v", err)
	}
	if err := wal.Close(); err != nil {
		t.Fatalf("Failed to close WAL: %v", err)
	}

	count := 0
	err = ReplayWAL(tmpDir, func(e WALEntry) error {
		count++
		if string(e.Action) != `{"type":"NAVIGATE_VIEW","view":"b"}` {
			t.Errorf("Unexpected action after truncate: %s", e.Action)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WAL replay failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 entry after truncate, got %d", count)
	}
}

func TestReplayWALMissingDirectory(t *testing.T) {
	err := ReplayWAL(t.TempDir(), func(WALEntry) error {
		t.Error("Handler must not be called")
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error for missing WAL, got %v", err)
	}
}
