// Package cache provides the local durable store backing two concerns:
//
//   - the offline read cache: a wholesale-replaced projection of the most
//     recent remote serve attempts, and
//   - the fallback queue: submissions the remote document store rejected,
//     kept until they can be replayed.
//
// Data lives in a single SQLite file as namespace-keyed JSON arrays. Writes
// serialize on a mutex because the reconciler replaces the read cache
// wholesale rather than merging.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Namespace keys. The serve namespace predates this service and is shared
// with the field client's local storage, so it keeps its historical name.
const (
	ServesNamespace   = "serve-tracker-serves"
	FallbackNamespace = "serve-tracker-fallback"
)

// DefaultMaxBytes is the serialized read-cache size above which legacy
// inline image data is stripped from every entry.
const DefaultMaxBytes = 5 * 1024 * 1024

// =============================================================================
// Store
// =============================================================================

// Store is the SQLite-backed durable cache. Safe for concurrent use; all
// mutations serialize on an internal mutex.
type Store struct {
	db       *sql.DB
	maxBytes int64
	logger   *slog.Logger

	mu          sync.Mutex
	subscribers []func(count int)
}

// Open opens (creating if needed) the cache database at path. maxBytes <= 0
// selects DefaultMaxBytes.
func Open(path string, maxBytes int64, logger *slog.Logger) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// Single writer; SQLite handles its own locking but the driver works
	// best with one connection for mixed read/write workloads.
	db.SetMaxOpenConns(1)

	schema := `CREATE TABLE IF NOT EXISTS kv (
		namespace  TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Store{
		db:       db,
		maxBytes: maxBytes,
		logger:   logger,
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Subscribe registers a callback invoked after every successful read-cache
// replacement with the new entry count. Callbacks run synchronously on the
// writer's goroutine; keep them cheap.
func (s *Store) Subscribe(fn func(count int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// =============================================================================
// Read Cache
// =============================================================================

// ReplaceServes overwrites the read cache with the given records. If the
// serialized payload exceeds the size cap, the legacy inline image field is
// stripped from every entry first; evidence URLs are never touched. Returns
// whether stripping occurred.
func (s *Store) ReplaceServes(records []CachedRecord) (stripped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(records)
	if err != nil {
		return false, fmt.Errorf("encode read cache: %w", err)
	}

	if int64(len(payload)) > s.maxBytes {
		s.logger.Warn("read cache over size cap, stripping legacy inline images",
			"size_bytes", len(payload),
			"cap_bytes", s.maxBytes,
		)
		for i := range records {
			records[i].LegacyImageData = nil
		}
		if payload, err = json.Marshal(records); err != nil {
			return false, fmt.Errorf("encode stripped read cache: %w", err)
		}
		stripped = true
	}

	if err := s.put(ServesNamespace, payload); err != nil {
		return stripped, err
	}

	for _, fn := range s.subscribers {
		fn(len(records))
	}

	s.logger.Debug("read cache replaced",
		"count", len(records),
		"size_bytes", len(payload),
		"stripped", stripped,
	)
	return stripped, nil
}

// Serves returns the current read cache contents. A missing namespace is an
// empty cache, not an error.
func (s *Store) Serves() ([]CachedRecord, error) {
	return s.getRecords(ServesNamespace)
}

// =============================================================================
// Fallback Queue
// =============================================================================

// AppendFallback durably queues a record whose remote write failed. The
// record keeps the document ID generated for the original attempt so a later
// replay is idempotent.
func (s *Store) AppendFallback(rec CachedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.getRecordsLocked(FallbackNamespace)
	if err != nil {
		return err
	}
	records = append(records, rec)

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode fallback queue: %w", err)
	}
	if err := s.put(FallbackNamespace, payload); err != nil {
		return err
	}

	s.logger.Info("serve attempt queued to local fallback",
		"serve_id", rec.ID,
		"queue_depth", len(records),
	)
	return nil
}

// Fallback returns the queued fallback records in insertion order.
func (s *Store) Fallback() ([]CachedRecord, error) {
	return s.getRecords(FallbackNamespace)
}

// RemoveFallback deletes the queued record with the given ID, if present.
func (s *Store) RemoveFallback(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.getRecordsLocked(FallbackNamespace)
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return nil
	}

	payload, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("encode fallback queue: %w", err)
	}
	return s.put(FallbackNamespace, payload)
}

// FallbackDepth returns the number of queued fallback records.
func (s *Store) FallbackDepth() (int, error) {
	records, err := s.Fallback()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (s *Store) put(namespace string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (namespace, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("write cache namespace %q: %w", namespace, err)
	}
	return nil
}

func (s *Store) getRecords(namespace string) ([]CachedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getRecordsLocked(namespace)
}

func (s *Store) getRecordsLocked(namespace string) ([]CachedRecord, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE namespace = ?`, namespace).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache namespace %q: %w", namespace, err)
	}

	var records []CachedRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decode cache namespace %q: %w", namespace, err)
	}
	return records, nil
}
