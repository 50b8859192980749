// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/window/load.go
// Summary: Request scheduling, debouncing and response handling.

package window

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/framegrace/texelog/apps/texelog/rows"
)

// request is one row source call.
type request struct {
	gen     uint64
	window  rows.Range
	primary bool
}

// launch issues req outside the lock. nil is a no-op.
func (c *Cache) launch(req *request) {
	if req == nil {
		return
	}
	c.spawn(func() { c.run(req) })
}

// maybeLoadLocked decides whether the frame needs a primary request, or a
// buffer extension when it is already covered. A debounced request is
// armed on a timer and nil is returned; otherwise the caller launches the
// returned request after unlocking.
func (c *Cache) maybeLoadLocked() *request {
	if c.closed || c.source == nil {
		return nil
	}
	frame := c.frame
	if frame.IsEmpty() || c.total == 0 {
		return nil
	}
	if c.coveredLocked(frame) {
		c.stopTimerLocked()
		return c.extendLocked(frame)
	}

	src := c.sourceWindowLocked(frame)
	if !c.inflight.IsEmpty() && c.inflight.Covers(src) {
		// Same window already requested.
		return nil
	}
	c.stopTimerLocked()

	req := &request{window: c.requestWindowLocked(src), primary: true}
	c.gen++
	req.gen = c.gen
	c.inflight = req.window
	c.stats.requests.Add(1)
	debugf("%s: request %s for frame %s (gen %d)", c.name, req.window, frame, req.gen)

	if c.cfg.RequestDelay > 0 {
		c.timer = time.AfterFunc(c.cfg.RequestDelay, func() { c.run(req) })
		return nil
	}
	return req
}

// stopTimerLocked cancels a debounced request that has not been sent.
func (c *Cache) stopTimerLocked() {
	if c.timer == nil {
		return
	}
	if c.timer.Stop() {
		c.inflight = rows.EmptyRange
	}
	c.timer = nil
}

// coveredLocked reports whether the interleaved buffer holds every slot of frame.
func (c *Cache) coveredLocked(frame rows.Range) bool {
	if len(c.buf) == 0 {
		return false
	}
	span := rows.Range{Start: c.base, End: c.base + int64(len(c.buf)) - 1}
	return span.Covers(frame)
}

// sourceWindowLocked bounds the source positions that can appear in the
// slot range frame. Each bookmark shifts slots by at most one, so the row
// at slot v has a source position in [v-bookmarks, v].
func (c *Cache) sourceWindowLocked(frame rows.Range) rows.Range {
	start := max(frame.Start-c.bookmarkCount, 0)
	end := min(frame.End, c.total-1)
	if end < start {
		end = start
	}
	return rows.Range{Start: start, End: end}.Clamp(0, c.total-1)
}

// requestWindowLocked extends src by MaxRequest/2 on each side, clamped to
// the source bounds.
func (c *Cache) requestWindowLocked(src rows.Range) rows.Range {
	half := c.cfg.MaxRequest / 2
	req := rows.Range{Start: 0, End: c.total - 1}
	if src.Start > half {
		req.Start = src.Start - half
	}
	if c.total-1-src.End > half {
		req.End = src.End + half
	}
	return req
}

// extendLocked issues a buffer-extension request when the frame is within
// Trigger rows of a buffer edge and the source has more rows that way. The
// request is sized so the eviction it causes cannot reach the frame.
func (c *Cache) extendLocked(frame rows.Range) *request {
	if c.extending || !c.inflight.IsEmpty() || len(c.plain) == 0 {
		return nil
	}
	spanEnd := c.base + int64(len(c.buf)) - 1
	var window rows.Range
	switch {
	case c.stored.End < c.total-1 && frame.End >= spanEnd-c.cfg.Trigger:
		keep := c.stored.End - c.sourceAtSlotLocked(frame.Start) + 1
		n := min(c.cfg.MaxRequest, c.cfg.MaxStored-keep, c.total-1-c.stored.End)
		if n <= 0 {
			return nil
		}
		window = rows.Range{Start: c.stored.End + 1, End: c.stored.End + n}
	case c.stored.Start > 0 && frame.Start <= c.base+c.cfg.Trigger:
		keep := c.sourceAtSlotLocked(frame.End) - c.stored.Start + 1
		n := min(c.cfg.MaxRequest, c.cfg.MaxStored-keep, c.stored.Start)
		if n <= 0 {
			return nil
		}
		// Overlap one row so the batch merges as a low-end overlap.
		window = rows.Range{Start: c.stored.Start - n, End: c.stored.Start}
	default:
		return nil
	}
	c.extending = true
	c.stats.lookAheads.Add(1)
	debugf("%s: extend buffer with %s (gen %d)", c.name, window, c.gen)
	return &request{gen: c.gen, window: window}
}

// sourceAtSlotLocked returns the source position of the first normal row at
// or after slot, falling back to the nearest buffer edge.
func (c *Cache) sourceAtSlotLocked(slot int64) int64 {
	idx := slot - c.base
	if idx < 0 {
		return c.stored.Start
	}
	for i := idx; i < int64(len(c.buf)); i++ {
		if !c.buf[i].Bookmark {
			return c.buf[i].SourcePos
		}
	}
	return c.stored.End
}

// run performs one row source call and applies its result.
func (c *Cache) run(req *request) {
	c.mu.Lock()
	source := c.source
	if req.primary && c.timer != nil && c.gen == req.gen {
		c.timer = nil
	}
	c.mu.Unlock()
	if source == nil {
		return
	}

	chunk, err := source.Fetch(c.ctx, req.window.Start, req.window.End)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	current := req.gen == c.gen
	if req.primary && current {
		c.inflight = rows.EmptyRange
	}
	if !req.primary {
		c.extending = false
	}
	if err != nil {
		c.mu.Unlock()
		c.stats.fetchFailures.Add(1)
		if !errors.Is(err, context.Canceled) {
			log.Printf("[WINDOW] %s: %v", c.name, &FetchError{Range: req.window, Err: err})
		}
		return
	}

	packets, skipped := rows.Parse(chunk)
	c.noteSkipped(skipped)
	packets = longestRun(packets)

	if !current {
		if req.primary {
			// Superseded: keep rows only to answer placeholder lookups.
			c.lastRequested = packets
			c.stats.stale.Add(1)
			debugf("%s: stale response %s (gen %d, current %d)", c.name, req.window, req.gen, c.gen)
		} else {
			c.stats.droppedLookAheads.Add(1)
		}
		c.mu.Unlock()
		return
	}

	events := c.updateTotalLocked(chunk.Total)
	if chunk.Total <= 0 {
		events = append(events, Event{Type: EventStateUpdated, Payload: c.stateLocked()})
		c.mu.Unlock()
		c.events.broadcast(events)
		return
	}
	c.acceptLocked(packets)
	if req.primary {
		c.lastRequested = packets
	}
	events = append(events, Event{Type: EventStateUpdated, Payload: c.stateLocked()})

	if req.primary {
		if c.coveredLocked(c.frame) {
			events = append(events, Event{Type: EventRangeLoaded, Payload: c.loadedLocked(c.frame)})
		} else {
			// The user moved on during the round trip; the next frame change reloads.
			debugf("%s: frame %s outside stored %s after %s", c.name, c.frame, c.stored, req.window)
		}
	}
	c.mu.Unlock()
	c.events.broadcast(events)
}

func (c *Cache) loadedLocked(frame rows.Range) LoadedRange {
	start := frame.Start - c.base
	out := make([]rows.Packet, frame.Len())
	copy(out, c.buf[start:start+frame.Len()])
	return LoadedRange{Range: frame, Rows: out}
}
