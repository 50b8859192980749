// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/window/slice.go
// Summary: Builds GetRange results from a buffer snapshot.

package window

import (
	"sort"

	"github.com/framegrace/texelog/apps/texelog/rows"
)

// snapshot is an immutable view of the buffer taken under the lock.
type snapshot struct {
	buf           []rows.Packet
	base          int64
	stored        rows.Range
	version       uint64
	rank          int
	lastRequested []rows.Packet
}

func (c *Cache) snapshotLocked() snapshot {
	return snapshot{
		buf:           c.buf,
		base:          c.base,
		stored:        c.stored,
		version:       c.version,
		rank:          c.rank,
		lastRequested: c.lastRequested,
	}
}

// span returns the slot range covered by the buffer.
func (s snapshot) span() rows.Range {
	if len(s.buf) == 0 {
		return rows.EmptyRange
	}
	return rows.Range{Start: s.base, End: s.base + int64(len(s.buf)) - 1}
}

// assemble returns r.Len() rows: a direct slice where r overlaps the
// buffer, pending placeholders elsewhere.
func (s snapshot) assemble(r rows.Range) []rows.Packet {
	out := make([]rows.Packet, 0, r.Len())
	span := s.span()
	overlap, ok := span.Intersect(r)
	if !ok {
		return s.pending(out, r.Start, r.End)
	}
	if r.Start < overlap.Start {
		out = s.pending(out, r.Start, overlap.Start-1)
	}
	out = append(out, s.buf[overlap.Start-s.base:overlap.End-s.base+1]...)
	if r.End > overlap.End {
		out = s.pending(out, overlap.End+1, r.End)
	}
	return out
}

// pending appends placeholders for slots [from, to]. A placeholder borrows
// text and positions from the last requested rows when its estimated source
// position matches one of them.
func (s snapshot) pending(out []rows.Packet, from, to int64) []rows.Packet {
	for slot := from; slot <= to; slot++ {
		p := rows.Packet{
			Slot:      slot,
			SourcePos: -1,
			StreamPos: -1,
			SourceID:  -1,
			Rank:      s.rank,
			Pending:   true,
		}
		if prev, ok := s.lookupRequested(s.estimateSourcePos(slot)); ok {
			p.Text = prev.Text
			p.SourcePos = prev.SourcePos
			p.StreamPos = prev.StreamPos
			p.SourceID = prev.SourceID
		}
		out = append(out, p)
	}
	return out
}

// estimateSourcePos maps a slot outside the buffer to a source position,
// assuming no bookmarks in the gap.
func (s snapshot) estimateSourcePos(slot int64) int64 {
	span := s.span()
	switch {
	case span.IsEmpty():
		return slot
	case slot < span.Start:
		return s.stored.Start - (span.Start - slot)
	case slot > span.End:
		return s.stored.End + (slot - span.End)
	}
	return -1
}

func (s snapshot) lookupRequested(pos int64) (rows.Packet, bool) {
	if pos < 0 || len(s.lastRequested) == 0 {
		return rows.Packet{}, false
	}
	i := sort.Search(len(s.lastRequested), func(i int) bool {
		return s.lastRequested[i].SourcePos >= pos
	})
	if i < len(s.lastRequested) && s.lastRequested[i].SourcePos == pos {
		return s.lastRequested[i], true
	}
	return rows.Packet{}, false
}
