package storage

import (
	"context"
	"reflect"
	"testing"

	"github.com/vjranagit/homeenergy/pkg/types"
)

func newTestStorage(t *testing.T, dir string) Storage {
	t.Helper()

	store, err := NewStorage(&Config{
		Path:             dir,
		CompressionLevel: 3,
	})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	return store
}

func TestBadgerStorageSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	store := newTestStorage(t, tmpDir)
	defer store.Close()

	ctx := context.Background()
	snap := types.NewCollections(map[string]map[string]types.Document{
		"readings-daily-aggregates": {
			"sensorId-1970-01-01-reading-activeEnergy": {
				"_id":               "sensorId-1970-01-01-reading-activeEnergy",
				"measurementValues": "1,2,3",
			},
		},
		"sites": {
			"site1": {"_id": "site1", "name": "Home"},
		},
	})

	if err := store.SaveSnapshot(ctx, 7, snap); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	loaded, version, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}

	if version != 7 {
		t.Errorf("Expected version 7, got %d", version)
	}

	if !reflect.DeepEqual(loaded.Raw(), snap.Raw()) {
		t.Errorf("Loaded snapshot differs: %v != %v", loaded.Raw(), snap.Raw())
	}
}

func TestBadgerStorageSaveReplaces(t *testing.T) {
	tmpDir := t.TempDir()
	store := newTestStorage(t, tmpDir)
	defer store.Close()

	ctx := context.Background()
	first := types.NewCollections(map[string]map[string]types.Document{
		"sites":                     {"site1": {"_id": "site1"}},
		"readings-daily-aggregates": {"a": {"_id": "a"}},
	})
	second := types.NewCollections(map[string]map[string]types.Document{
		"readings-daily-aggregates": {"b": {"_id": "b"}},
	})

	if err := store.SaveSnapshot(ctx, 1, first); err != nil {
		t.Fatalf("Failed to save first snapshot: %v", err)
	}
	if err := store.SaveSnapshot(ctx, 2, second); err != nil {
		t.Fatalf("Failed to save second snapshot: %v", err)
	}

	loaded, _, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}

	if _, ok := loaded.Get("sites", "site1"); ok {
		t.Error("Expected sites collection to be removed")
	}
	if _, ok := loaded.Get("readings-daily-aggregates", "a"); ok {
		t.Error("Expected document a to be removed")
	}
	if _, ok := loaded.Get("readings-daily-aggregates", "b"); !ok {
		t.Error("Expected document b to be present")
	}
}

func TestBadgerStorageEmpty(t *testing.T) {
	store := newTestStorage(t, t.TempDir())
	defer store.Close()

	loaded, version, err := store.LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}

	if version != 0 {
		t.Errorf("Expected version 0, got %d", version)
	}
	if !loaded.IsEmpty() {
		t.Errorf("Expected empty snapshot, got %d collections", len(loaded.Names()))
	}
}

func TestBadgerStorageSurvivesReopen(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	store := newTestStorage(t, tmpDir)
	snap := types.NewCollections(map[string]map[string]types.Document{
		"sites": {"site1": {"_id": "site1"}},
	})
	if err := store.SaveSnapshot(ctx, 3, snap); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close storage: %v", err)
	}

	reopened := newTestStorage(t, tmpDir)
	defer reopened.Close()

	loaded, version, err := reopened.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if version != 3 {
		t.Errorf("Expected version 3, got %d", version)
	}
	if doc, ok := loaded.Get("sites", "site1"); !ok || doc.ID() != "site1" {
		t.Errorf("Expected site1 after reopen, got %v", doc)
	}
}

func TestBadgerStorageCancelledContext(t *testing.T) {
	store := newTestStorage(t, t.TempDir())
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.SaveSnapshot(ctx, 1, types.Collections{}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
