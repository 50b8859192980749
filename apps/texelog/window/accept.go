// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/window/accept.go
// Summary: Merges row batches into the buffer under the MaxStored ceiling.
//
// Merge cases, comparing the batch span B with stored S:
//
//	empty buffer            -> B becomes the buffer
//	B.Start == S.End+1      -> append, evict from the front
//	B.Start > S.End or
//	B.End < S.Start         -> replace wholesale
//	B covers S              -> replace wholesale (same rows as prefix+suffix)
//	B.Start < S.Start       -> prepend the non-overlapping prefix, evict from the back
//	B.End > S.End           -> append the non-overlapping suffix, evict from the front
//
// A replaced buffer larger than the ceiling is trimmed around the frame.

package window

import (
	"slices"

	"github.com/framegrace/texelog/apps/texelog/rows"
)

type evictSide int

const (
	evictNone evictSide = iota
	evictFront
	evictBack
	evictAroundFrame
)

// acceptLocked merges a contiguous batch of normal rows, then re-interleaves
// bookmarks and recomputes stored.
func (c *Cache) acceptLocked(batch []rows.Packet) {
	if len(batch) == 0 {
		return
	}
	batch = restamp(batch, c.rank)
	bs, be := batch[0].SourcePos, batch[len(batch)-1].SourcePos
	stored := c.stored

	var side evictSide
	switch {
	case len(c.plain) == 0:
		c.plain = batch
		side = evictAroundFrame
	case bs == stored.End+1:
		c.plain = slices.Concat(c.plain, batch)
		side = evictFront
	case bs > stored.End || be < stored.Start:
		c.plain = batch
		side = evictAroundFrame
	case bs <= stored.Start && be >= stored.End && (bs < stored.Start || be > stored.End):
		c.plain = batch
		side = evictAroundFrame
	case bs < stored.Start:
		prefix := batch[:stored.Start-bs]
		c.plain = slices.Concat(prefix, c.plain)
		side = evictBack
	case be > stored.End:
		suffix := batch[int64(len(batch))-(be-stored.End):]
		c.plain = slices.Concat(c.plain, suffix)
		side = evictFront
	default:
		// Nothing new.
		return
	}
	c.evictLocked(side)
	c.interleaveLocked()
}

func (c *Cache) evictLocked(side evictSide) {
	excess := int64(len(c.plain)) - c.cfg.MaxStored
	if excess <= 0 {
		return
	}
	switch side {
	case evictFront:
		c.plain = c.plain[excess:]
	case evictBack:
		c.plain = c.plain[:int64(len(c.plain))-excess]
	case evictAroundFrame:
		// Keep MaxStored rows centred on the frame's source window.
		from := int64(0)
		if !c.frame.IsEmpty() && c.total > 0 {
			src := c.sourceWindowLocked(c.frame)
			centre := (src.Start+src.End)/2 - c.plain[0].SourcePos
			from = centre - c.cfg.MaxStored/2
		}
		from = min(max(from, 0), excess)
		c.plain = c.plain[from : from+c.cfg.MaxStored]
	}
	c.stats.evicted.Add(excess)
}

// longestRun returns the longest run of packets with consecutive source
// positions. Parse skips leave gaps that would break contiguity.
func longestRun(packets []rows.Packet) []rows.Packet {
	if len(packets) < 2 {
		return packets
	}
	bestStart, bestLen := 0, 1
	start := 0
	for i := 1; i <= len(packets); i++ {
		if i < len(packets) && packets[i].SourcePos == packets[i-1].SourcePos+1 {
			continue
		}
		if i-start > bestLen {
			bestStart, bestLen = start, i-start
		}
		start = i
	}
	return packets[bestStart : bestStart+bestLen]
}
