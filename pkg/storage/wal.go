package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// WAL journals dispatched navigation actions so the history survives a
// restart. The journal only covers the history since the last report:
// Truncate drops it.
type WAL struct {
	path       string
	file       *os.File
	writer     *bufio.Writer
	mu         sync.Mutex
	flushTimer *time.Timer
	closed     bool
}

// WALEntry represents a single WAL entry
type WALEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Action    json.RawMessage `json:"action"`
}

// NewWAL creates a new Write-Ahead Log
func NewWAL(dataPath string) (*WAL, error) {
	walPath := filepath.Join(dataPath, "wal")
	if err := os.MkdirAll(walPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	wal := &WAL{path: walPath}
	if err := wal.openSegment(); err != nil {
		return nil, err
	}

	// Start auto-flush timer (flush every 1 second)
	wal.flushTimer = time.AfterFunc(1*time.Second, wal.autoFlush)

	return wal, nil
}

func (w *WAL) openSegment() error {
	filename := filepath.Join(w.path, fmt.Sprintf("wal-%020d.log", time.Now().UnixNano()))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open WAL file: %w", err)
	}
	w.file = file
	w.writer = bufio.NewWriter(file)
	return nil
}

// Append appends an encoded action stamped with at
func (w *WAL) Append(at time.Time, action []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("WAL is closed")
	}

	entry := WALEntry{
		Timestamp: at,
		Action:    action,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal WAL entry: %w", err)
	}

	// Write entry with newline
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write to WAL: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// Flush flushes the WAL to disk
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *WAL) flushLocked() error {
	if w.closed {
		return nil
	}

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}

	return nil
}

// Truncate discards every journaled entry and starts a new segment
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("WAL is closed")
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close WAL segment: %w", err)
	}

	segments, err := segmentFiles(w.path)
	if err != nil {
		return err
	}
	for _, filename := range segments {
		if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filename, err)
		}
	}

	return w.openSegment()
}

// autoFlush periodically flushes the WAL
func (w *WAL) autoFlush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.flushLocked()
	w.flushTimer.Reset(1 * time.Second)
}

// Close closes the WAL
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	if w.flushTimer != nil {
		w.flushTimer.Stop()
	}

	if err := w.writer.Flush(); err != nil {
		return err
	}

	if err := w.file.Sync(); err != nil {
		return err
	}

	w.closed = true
	return w.file.Close()
}

// ReplayWAL replays WAL entries, oldest segment first
func ReplayWAL(dataPath string, handler func(WALEntry) error) error {
	walPath := filepath.Join(dataPath, "wal")

	segments, err := segmentFiles(walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No WAL to replay
		}
		return err
	}

	for _, filename := range segments {
		if err := replayWALFile(filename, handler); err != nil {
			return fmt.Errorf("failed to replay %s: %w", filename, err)
		}
	}

	return nil
}

func segmentFiles(walPath string) ([]string, error) {
	entries, err := os.ReadDir(walPath)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(walPath, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// replayWALFile replays a single WAL file
func replayWALFile(filename string, handler func(WALEntry) error) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry WALEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("failed to unmarshal WAL entry: %w", err)
		}

		if err := handler(entry); err != nil {
			return fmt.Errorf("failed to replay entry: %w", err)
		}
	}

	return scanner.Err()
}
