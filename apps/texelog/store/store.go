// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/store/store.go
// Summary: SQLite line store with FTS5 trigram index.
//
// Lines get consecutive ids starting at 0, so a line id is both its stream
// position and its position in the stream row source. Appends are queued
// and written in batches by a background goroutine; watchers are told the
// new committed total after every batch.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Config holds store settings.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// BatchSize is the number of lines written per transaction.
	// Default: 500
	BatchSize int

	// BatchTimeout is how long a partial batch waits before being written.
	// Default: 200ms
	BatchTimeout time.Duration

	// ChannelBuffer is the size of the append queue.
	// Default: 4096
	ChannelBuffer int
}

// DefaultConfig returns defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		BatchSize:     500,
		BatchTimeout:  200 * time.Millisecond,
		ChannelBuffer: 4096,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig(c.Path)
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = def.BatchTimeout
	}
	if c.ChannelBuffer <= 0 {
		c.ChannelBuffer = def.ChannelBuffer
	}
	return c
}

// Line is one stored log line.
type Line struct {
	ID        int64
	Timestamp time.Time
	SourceID  int32
	Content   string
}

type entry struct {
	id        int64
	timestamp time.Time
	sourceID  int32
	text      string
}

// Store is a SQLite-backed append-only line store.
type Store struct {
	config Config
	db     *sql.DB

	batchChan chan entry
	stopCh    chan struct{}
	doneCh    chan struct{}
	flushCh   chan chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex

	// appendMu orders id assignment with queueing.
	appendMu sync.Mutex
	next     int64

	watchMu  sync.Mutex
	watchers []func(total int64)
}

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS lines (
    id INTEGER PRIMARY KEY,           -- stream position, from 0
    timestamp INTEGER NOT NULL,       -- UnixNano
    source_id INTEGER DEFAULT 0,
    content TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lines_timestamp ON lines(timestamp);

CREATE TABLE IF NOT EXISTS bookmarks (
    stream_pos INTEGER PRIMARY KEY,
    text TEXT NOT NULL DEFAULT '',
    source_id INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    start_pos INTEGER NOT NULL,
    start_offset INTEGER NOT NULL,
    end_pos INTEGER NOT NULL,
    end_offset INTEGER NOT NULL,
    text TEXT NOT NULL DEFAULT ''
);
`

// Trigram tokenizer gives substring matching for queries of 3+ characters.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS lines_fts USING fts5(
    content,
    content='lines',
    content_rowid='id',
    tokenize='trigram'
);

CREATE TRIGGER IF NOT EXISTS lines_ai AFTER INSERT ON lines BEGIN
    INSERT INTO lines_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS lines_au AFTER UPDATE ON lines BEGIN
    INSERT INTO lines_fts(lines_fts, rowid, content) VALUES ('delete', old.id, old.content);
    INSERT INTO lines_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS lines_ad AFTER DELETE ON lines BEGIN
    INSERT INTO lines_fts(lines_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;
`

// Open opens or creates the store at path with default settings.
func Open(path string) (*Store, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig opens or creates a store.
func OpenWithConfig(config Config) (*Store, error) {
	config = config.normalized()
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := config.Path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=cache_size(-8000)" + // 8MB cache
		"&_pragma=temp_store(MEMORY)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	rebuild, err := migrate(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check schema version: %w", err)
	}
	if _, err := db.Exec(ftsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create FTS schema: %w", err)
	}
	if rebuild {
		log.Printf("[STORE] Schema version changed, rebuilding FTS index")
		if _, err := db.Exec("INSERT INTO lines_fts(rowid, content) SELECT id, content FROM lines"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to rebuild FTS index: %w", err)
		}
	}

	var next int64
	if err := db.QueryRow("SELECT COALESCE(MAX(id) + 1, 0) FROM lines").Scan(&next); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read line count: %w", err)
	}

	s := &Store{
		config:    config,
		db:        db,
		batchChan: make(chan entry, config.ChannelBuffer),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		flushCh:   make(chan chan struct{}),
		next:      next,
	}
	go s.batchWriter()
	return s, nil
}

// migrate drops the FTS table when the schema version changed. Returns
// true when the index must be rebuilt.
func migrate(db *sql.DB) (bool, error) {
	var current int
	if err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&current); err != nil {
		current = 0
	}
	if current == schemaVersion {
		return false, nil
	}
	log.Printf("[STORE] Migrating schema from version %d to %d", current, schemaVersion)
	for _, stmt := range []string{
		"DROP TRIGGER IF EXISTS lines_ai",
		"DROP TRIGGER IF EXISTS lines_au",
		"DROP TRIGGER IF EXISTS lines_ad",
		"DROP TABLE IF EXISTS lines_fts",
		"DELETE FROM schema_version",
	} {
		if _, err := db.Exec(stmt); err != nil {
			return false, fmt.Errorf("migration failed on '%s': %w", stmt, err)
		}
	}
	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return false, fmt.Errorf("failed to update schema version: %w", err)
	}
	return true, nil
}

// Watch registers fn to receive the committed line count after each write.
func (s *Store) Watch(fn func(total int64)) {
	s.watchMu.Lock()
	s.watchers = append(s.watchers, fn)
	s.watchMu.Unlock()
}

// Append queues lines for writing and returns the id of the first one.
// It blocks while the queue is full.
func (s *Store) Append(ctx context.Context, sourceID int32, lines ...string) (int64, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	first := s.next
	select {
	case <-s.stopCh:
		return first, ErrClosed
	default:
	}
	now := time.Now()
	for _, text := range lines {
		e := entry{id: s.next, timestamp: now, sourceID: sourceID, text: text}
		select {
		case s.batchChan <- e:
			s.next++
		case <-ctx.Done():
			return first, ctx.Err()
		case <-s.stopCh:
			return first, ErrClosed
		}
	}
	return first, nil
}

// batchWriter runs in a background goroutine, writing queued lines.
func (s *Store) batchWriter() {
	defer close(s.doneCh)

	batch := make([]entry, 0, s.config.BatchSize)
	timer := time.NewTimer(s.config.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.writeBatch(batch)
		batch = batch[:0]
	}
	drain := func() {
		for {
			select {
			case e := <-s.batchChan:
				batch = append(batch, e)
			default:
				return
			}
		}
	}

	for {
		select {
		case e := <-s.batchChan:
			batch = append(batch, e)
			if len(batch) >= s.config.BatchSize {
				flush()
				timer.Reset(s.config.BatchTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(s.config.BatchTimeout)

		case done := <-s.flushCh:
			drain()
			flush()
			close(done)

		case <-s.stopCh:
			drain()
			flush()
			return
		}
	}
}

// writeBatch writes a batch in one transaction and notifies watchers.
func (s *Store) writeBatch(batch []entry) {
	s.mu.Lock()
	tx, err := s.db.Begin()
	if err != nil {
		s.mu.Unlock()
		log.Printf("[STORE] Failed to begin transaction: %v", err)
		return
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO lines (id, timestamp, source_id, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		s.mu.Unlock()
		log.Printf("[STORE] Failed to prepare statement: %v", err)
		return
	}
	for _, e := range batch {
		if _, err := stmt.Exec(e.id, e.timestamp.UnixNano(), e.sourceID, e.text); err != nil {
			stmt.Close()
			tx.Rollback()
			s.mu.Unlock()
			log.Printf("[STORE] Failed to insert line %d: %v", e.id, err)
			return
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		s.mu.Unlock()
		log.Printf("[STORE] Failed to commit batch: %v", err)
		return
	}
	s.mu.Unlock()

	total := batch[len(batch)-1].id + 1
	s.watchMu.Lock()
	watchers := slices.Clone(s.watchers)
	s.watchMu.Unlock()
	for _, fn := range watchers {
		fn(total)
	}
}

// Flush blocks until all queued lines are written.
func (s *Store) Flush() error {
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
		<-done
		return nil
	case <-s.stopCh:
		return ErrClosed
	}
}

// Count returns the number of committed lines.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id) + 1, 0) FROM lines").Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

// Line returns the line with id.
func (s *Store) Line(ctx context.Context, id int64) (Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var l Line
	var ts int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, timestamp, source_id, content FROM lines WHERE id = ?", id,
	).Scan(&l.ID, &ts, &l.SourceID, &l.Content)
	if err == sql.ErrNoRows {
		return Line{}, fmt.Errorf("line %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Line{}, err
	}
	l.Timestamp = time.Unix(0, ts)
	return l, nil
}

// FindLineAt returns the id of the last line written at or before t, or -1.
func (s *Store) FindLineAt(ctx context.Context, t time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM lines WHERE timestamp <= ? ORDER BY timestamp DESC, id DESC LIMIT 1",
		t.UnixNano(),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	return id, err
}

// Close writes pending lines and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		err = s.db.Close()
	})
	return err
}
