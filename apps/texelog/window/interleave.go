// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/window/interleave.go
// Summary: Merges bookmark rows into the bookmark-free buffer.
//
// Placement rule: a bookmark at stream position b goes strictly between the
// two normal rows whose StreamPos surround it. A bookmark on a position the
// source itself holds is never inserted: that row already shows it, and it
// is left out of the bookmark count. Bookmarks before the first buffered row
// are only materialized when that row is source position 0; bookmarks after
// the last buffered row only when it is the final source row. Everything
// else waits until the normal window loads near it. Bookmarks never trigger
// fetches.
//
// Slot of a normal row = SourcePos + number of insertable bookmarks strictly
// before its StreamPos, so slots stay contiguous across the interleaved buffer.

package window

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/framegrace/texelog/apps/texelog/bookmarks"
	"github.com/framegrace/texelog/apps/texelog/rows"
)

// interleaveLocked rebuilds buf from plain and the bookmark set and
// recomputes stored, base and the bookmark count.
func (c *Cache) interleaveLocked() {
	marks := c.insertableLocked()
	c.bookmarkCount = int64(len(marks))
	c.buf, c.base = interleave(c.plain, marks, c.total, c.rank)
	c.stored = storedOf(c.plain)
	c.version++
}

// insertableLocked returns the bookmarks that are not rows of the source.
// A bookmark is known to be a source row when the source resolved it so, or
// when a buffered row carries its stream position.
func (c *Cache) insertableLocked() []bookmarks.Bookmark {
	if c.marks == nil {
		return nil
	}
	all := c.marks.Snapshot()
	out := all[:0]
	for _, b := range all {
		if c.present[b.StreamPos] {
			continue
		}
		if hasStreamPos(c.plain, b.StreamPos) {
			if c.present == nil {
				c.present = make(map[int64]bool)
			}
			c.present[b.StreamPos] = true
			continue
		}
		out = append(out, b)
	}
	return out
}

// hasStreamPos reports whether plain, ordered by StreamPos, holds pos.
func hasStreamPos(plain []rows.Packet, pos int64) bool {
	i := sort.Search(len(plain), func(i int) bool { return plain[i].StreamPos >= pos })
	return i < len(plain) && plain[i].StreamPos == pos
}

// resolveLocked asks a PositionResolver source which bookmark positions
// not yet classified are rows of its own sequence.
func (c *Cache) resolveLocked() {
	res, ok := c.source.(PositionResolver)
	if !ok || c.marks == nil || c.closed {
		return
	}
	var ask []int64
	for _, pos := range c.marks.Positions() {
		if _, known := c.present[pos]; !known {
			ask = append(ask, pos)
		}
	}
	if len(ask) == 0 {
		return
	}
	gen := c.resolveGen
	c.spawn(func() { c.resolve(res, gen, ask) })
}

func (c *Cache) resolve(res PositionResolver, gen uint64, ask []int64) {
	found, err := res.Resolve(c.ctx, ask)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[WINDOW] %s: resolving %d bookmarks failed: %v", c.name, len(ask), err)
		}
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.resolveGen {
		c.mu.Unlock()
		return
	}
	if c.present == nil {
		c.present = make(map[int64]bool, len(ask))
	}
	for _, pos := range ask {
		if _, known := c.present[pos]; !known {
			c.present[pos] = false
		}
	}
	for _, pos := range found {
		c.present[pos] = true
	}
	before := c.bookmarkCount
	c.interleaveLocked()
	var events []Event
	if c.bookmarkCount != before {
		debugf("%s: %d of %d bookmarks are insertable", c.name, c.bookmarkCount, c.marks.Len())
		events = append(events, Event{Type: EventStateUpdated, Payload: c.stateLocked()})
	}
	c.mu.Unlock()
	c.events.broadcast(events)
}

func interleave(plain []rows.Packet, marks []bookmarks.Bookmark, total int64, rank int) ([]rows.Packet, int64) {
	if len(plain) == 0 {
		if total > 0 || len(marks) == 0 {
			return nil, 0
		}
		// The source is empty: the whole sequence is bookmarks.
		out := make([]rows.Packet, len(marks))
		for i, b := range marks {
			out[i] = bookmarkRow(b, int64(i), rank)
		}
		return out, 0
	}
	if len(marks) == 0 {
		out := make([]rows.Packet, len(plain))
		copy(out, plain)
		base := plain[0].SourcePos
		for i := range out {
			out[i].Slot = base + int64(i)
		}
		return out, base
	}

	out := make([]rows.Packet, 0, len(plain)+len(marks))
	first := plain[0]

	j := 0
	for j < len(marks) && marks[j].StreamPos < first.StreamPos {
		if first.SourcePos == 0 {
			out = append(out, bookmarkRow(marks[j], 0, rank))
		}
		j++
	}
	before := int64(j)
	leading := int64(len(out))

	for i, row := range plain {
		out = append(out, row)
		if i == len(plain)-1 && row.SourcePos != total-1 {
			break
		}
		next := int64(-1)
		if i < len(plain)-1 {
			next = plain[i+1].StreamPos
		}
		for j < len(marks) && (next < 0 || marks[j].StreamPos < next) {
			if marks[j].StreamPos > row.StreamPos {
				out = append(out, bookmarkRow(marks[j], 0, rank))
			}
			j++
		}
	}

	base := first.SourcePos + before - leading
	for i := range out {
		out[i].Slot = base + int64(i)
	}
	return out, base
}

func bookmarkRow(b bookmarks.Bookmark, slot int64, rank int) rows.Packet {
	text := b.Text
	return rows.Packet{
		Text:      &text,
		Slot:      slot,
		SourcePos: -1,
		StreamPos: b.StreamPos,
		SourceID:  b.SourceID,
		Rank:      rank,
		Bookmark:  true,
	}
}

// storedOf returns the source span of a bookmark-free buffer.
func storedOf(plain []rows.Packet) rows.Range {
	if len(plain) == 0 {
		return rows.EmptyRange
	}
	return rows.Range{Start: plain[0].SourcePos, End: plain[len(plain)-1].SourcePos}
}
