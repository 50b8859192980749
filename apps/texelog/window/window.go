// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/window/window.go
// Summary: Cache keeps a bounded window of rows from a RowSource in memory.
//
// Architecture:
//
//	Cache tracks three ranges:
//
//	  stored - source positions currently held (bookmark-free coordinates)
//	  frame  - the slot range the UI last asked for (virtual coordinates)
//	  inflight - the source window of the current primary request
//
//	The bookmark-free buffer (plain) is merged by accept() and then
//	interleaved with the bookmark set into buf, which is what consumers see.
//	Both slices are replaced, never mutated in place, so snapshots handed to
//	GetRange stay valid without holding the lock.
//
// Thread-safety:
//
//	One mutex serializes every mutation. Row source calls run on their own
//	goroutines; their results are matched against a generation counter and
//	discarded from the primary buffer when a newer load has started.

package window

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/framegrace/texelog/apps/texelog/bookmarks"
	"github.com/framegrace/texelog/apps/texelog/rows"
)

var debugEnabled = os.Getenv("TEXELOG_DEBUG") != ""

func debugf(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[WINDOW] "+format, args...)
	}
}

// RowSource answers bulk range and total-count queries.
type RowSource interface {
	// Fetch returns the raw rows [start, end] and the current total.
	Fetch(ctx context.Context, start, end int64) (rows.Chunk, error)
	// Count returns the current total number of rows.
	Count(ctx context.Context) (int64, error)
}

// PositionResolver is implemented by row sources that can tell which
// stream positions are rows of their own sequence. The cache uses it to
// leave bookmarks on such rows out of the interleaved sequence before the
// rows themselves are loaded.
type PositionResolver interface {
	// Resolve returns the members of positions the source holds.
	Resolve(ctx context.Context, positions []int64) ([]int64, error)
}

// Config tunes request sizes and memory ceiling.
type Config struct {
	// Trigger is the distance in rows from a buffer edge at which a
	// buffer-extension request is issued.
	Trigger int64

	// MaxRequest is the number of extra rows requested around a frame.
	MaxRequest int64

	// MaxStored is the hard ceiling on buffered source rows.
	MaxStored int64

	// RequestDelay debounces requests. Zero issues them immediately.
	RequestDelay time.Duration
}

// DefaultStreamConfig returns defaults for a stream view.
func DefaultStreamConfig() Config {
	return Config{
		Trigger:    400,
		MaxRequest: 2000,
		MaxStored:  2000,
	}
}

// DefaultSearchConfig returns defaults for a search result view.
func DefaultSearchConfig() Config {
	return Config{
		Trigger:    1000,
		MaxRequest: 2000,
		MaxStored:  2000,
	}
}

func (cfg Config) normalized() Config {
	def := DefaultStreamConfig()
	if cfg.MaxRequest <= 0 {
		cfg.MaxRequest = def.MaxRequest
	}
	if cfg.MaxStored <= 0 {
		cfg.MaxStored = def.MaxStored
	}
	if cfg.Trigger < 0 {
		cfg.Trigger = 0
	}
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = 0
	}
	return cfg
}

// State is a snapshot of the cache bookkeeping.
type State struct {
	Total              int64
	TotalWithBookmarks int64
	Bookmarks          int64
	Stored             rows.Range
	Frame              rows.Range
	Rank               int
	Loading            bool
	Generation         uint64
}

// Cache is a windowed row cache over a RowSource.
type Cache struct {
	name   string
	cfg    Config
	marks  *bookmarks.Set
	events dispatcher
	stats  counters

	watcher *bookmarkWatcher
	ctx     context.Context
	cancel  context.CancelFunc

	// spawn launches row source calls. Replaced in tests.
	spawn func(func())
	// afterSnapshot runs between the two phases of GetRange. Test hook.
	afterSnapshot func()

	mu            sync.Mutex
	source        RowSource
	plain         []rows.Packet
	buf           []rows.Packet
	base          int64
	version       uint64
	total         int64
	bookmarkCount int64
	present       map[int64]bool
	resolveGen    uint64
	stored        rows.Range
	frame         rows.Range
	rank          int
	gen           uint64
	inflight      rows.Range
	timer         *time.Timer
	extending     bool
	lastRequested []rows.Packet
	closed        bool
}

// New creates a cache named name over source. marks may be nil; when set,
// bookmarks that are not rows of the source are interleaved with them.
func New(name string, source RowSource, marks *bookmarks.Set, cfg Config) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		name:     name,
		cfg:      cfg.normalized(),
		marks:    marks,
		ctx:      ctx,
		cancel:   cancel,
		spawn:    func(f func()) { go f() },
		source:   source,
		stored:   rows.EmptyRange,
		frame:    rows.EmptyRange,
		inflight: rows.EmptyRange,
		rank:     1,
	}
	if marks != nil {
		c.watcher = &bookmarkWatcher{c: c}
		c.bookmarkCount = int64(len(c.insertableLocked()))
		marks.Subscribe(c.watcher)
		c.resolveLocked()
	}
	return c
}

// Name returns the cache name used in log lines.
func (c *Cache) Name() string {
	return c.name
}

// Config returns the effective settings.
func (c *Cache) Config() Config {
	return c.cfg
}

// Subscribe registers l for cache events.
func (c *Cache) Subscribe(l Listener) {
	c.events.subscribe(l)
}

// Unsubscribe removes l.
func (c *Cache) Unsubscribe(l Listener) {
	c.events.unsubscribe(l)
}

// Close stops pending timers, detaches from the bookmark set and makes
// every in-flight result stale.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.gen++
	c.mu.Unlock()
	c.cancel()
	if c.marks != nil {
		c.marks.Unsubscribe(c.watcher)
	}
}

// SetSource swaps the row source and clears the buffer. Used when the
// upstream sequence is replaced, e.g. a search re-run.
func (c *Cache) SetSource(source RowSource) {
	c.mu.Lock()
	c.source = source
	events := c.clearLocked()
	c.mu.Unlock()
	c.events.broadcast(events)
}

// SetFrame records the viewport slot range and loads rows if needed.
func (c *Cache) SetFrame(r rows.Range) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.setFrameLocked(r)
	req := c.maybeLoadLocked()
	c.mu.Unlock()
	c.launch(req)
}

func (c *Cache) setFrameLocked(r rows.Range) {
	if c.total == 0 && c.bookmarkCount == 0 {
		return
	}
	if last := c.totalWithBookmarksLocked() - 1; r.End > last {
		r.End = last
	}
	c.frame = r
}

// Frame returns the current frame, with negative bounds reported as 0.
func (c *Cache) Frame() rows.Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rows.Range{Start: max(c.frame.Start, 0), End: max(c.frame.End, 0)}
}

// GetRange returns exactly r.Len() rows for the slot range r. Rows outside
// the buffer are pending placeholders. The buffer is not mutated; on
// success the frame is updated as by SetFrame.
func (c *Cache) GetRange(r rows.Range) ([]rows.Packet, error) {
	if r.IsEmpty() {
		return nil, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.afterSnapshot != nil {
		c.afterSnapshot()
	}
	out := snap.assemble(r)

	c.mu.Lock()
	if c.stored != snap.stored || c.version != snap.version {
		was, now := snap.stored, c.stored
		c.mu.Unlock()
		log.Printf("[WINDOW] %s: state changed during read, stored was %s, became %s", c.name, was, now)
		return nil, ErrStateChanged
	}
	if int64(len(out)) != r.Len() {
		c.mu.Unlock()
		log.Printf("[WINDOW] ERROR %s: assembled %d rows for %s (stored %s)", c.name, len(out), r, snap.stored)
		return nil, ErrRangeMismatch
	}
	c.setFrameLocked(r)
	req := c.maybeLoadLocked()
	c.mu.Unlock()
	c.launch(req)
	return out, nil
}

// Rows returns a copy of the interleaved buffer.
func (c *Cache) Rows() []rows.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]rows.Packet, len(c.buf))
	copy(out, c.buf)
	return out
}

// RowByStreamPos returns the buffered normal row with the given stream position.
func (c *Cache) RowByStreamPos(pos int64) (rows.Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.buf {
		if !p.Bookmark && p.StreamPos == pos {
			return p, true
		}
	}
	return rows.Packet{}, false
}

// State returns a snapshot of the bookkeeping.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Cache) stateLocked() State {
	return State{
		Total:              c.total,
		TotalWithBookmarks: c.totalWithBookmarksLocked(),
		Bookmarks:          c.bookmarkCount,
		Stored:             c.stored,
		Frame:              c.frame,
		Rank:               c.rank,
		Loading:            !c.inflight.IsEmpty(),
		Generation:         c.gen,
	}
}

// Rank returns the digit width of the total row count.
func (c *Cache) Rank() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rank
}

// Clear drops all rows and resets ranges. In-flight results become stale.
func (c *Cache) Clear() {
	c.mu.Lock()
	events := c.clearLocked()
	c.mu.Unlock()
	c.events.broadcast(events)
}

func (c *Cache) clearLocked() []Event {
	c.stopTimerLocked()
	c.gen++
	c.plain = nil
	c.buf = nil
	c.base = 0
	c.version++
	c.total = 0
	c.rank = 1
	c.stored = rows.EmptyRange
	c.frame = rows.EmptyRange
	c.inflight = rows.EmptyRange
	c.extending = false
	c.lastRequested = nil
	c.present = nil
	c.resolveGen++
	// With no source rows every bookmark is part of the sequence.
	c.interleaveLocked()
	c.resolveLocked()
	return []Event{{Type: EventReset}}
}

// UpdateTotal records a new source row count. Zero clears the cache.
func (c *Cache) UpdateTotal(n int64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	events := c.updateTotalLocked(n)
	events = append(events, Event{Type: EventStateUpdated, Payload: c.stateLocked()})
	req := c.maybeLoadLocked()
	c.mu.Unlock()
	c.events.broadcast(events)
	c.launch(req)
}

// updateTotalLocked applies n and returns Reset/RankChanged events. The
// caller adds the StateUpdated event once its own changes are done.
func (c *Cache) updateTotalLocked(n int64) []Event {
	if n <= 0 {
		return c.clearLocked()
	}
	var events []Event
	changed := c.total != n
	c.total = n
	if rank := rows.Digits(n); rank != c.rank {
		c.rank = rank
		c.plain = restamp(c.plain, rank)
		c.buf = restamp(c.buf, rank)
		c.version++
		events = append(events, Event{Type: EventRankChanged, Payload: rank})
	}
	if changed {
		// Trailing bookmarks depend on whether the last row is the final one.
		c.interleaveLocked()
	}
	return events
}

// Refresh queries the source for its total and applies it.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()
	if source == nil {
		return nil
	}
	n, err := source.Count(ctx)
	if err != nil {
		return err
	}
	c.UpdateTotal(n)
	return nil
}

// ScrollTo asks listeners to bring slot into view.
func (c *Cache) ScrollTo(slot int64) {
	c.events.broadcast([]Event{{Type: EventScrollTo, Payload: slot}})
}

func (c *Cache) totalWithBookmarksLocked() int64 {
	return c.total + c.bookmarkCount
}

func (c *Cache) onBookmarksChanged(change bookmarks.Change) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	before := c.bookmarkCount
	c.interleaveLocked()
	c.resolveLocked()
	events := []Event{{Type: EventBookmarksChanged, Payload: change}}
	if c.bookmarkCount != before {
		events = append(events, Event{Type: EventStateUpdated, Payload: c.stateLocked()})
	}
	c.mu.Unlock()
	c.events.broadcast(events)
}

func restamp(in []rows.Packet, rank int) []rows.Packet {
	if len(in) == 0 {
		return in
	}
	out := make([]rows.Packet, len(in))
	copy(out, in)
	for i := range out {
		out[i].Rank = rank
	}
	return out
}
