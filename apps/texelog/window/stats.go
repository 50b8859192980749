// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/window/stats.go
// Summary: Diagnostic counters for a cache.

package window

import (
	"log"
	"sync/atomic"
)

// Stats reports what a cache has done since creation.
type Stats struct {
	Requests          int64
	LookAheads        int64
	StaleResponses    int64
	DroppedLookAheads int64
	FetchFailures     int64
	ParseSkips        int64
	Evicted           int64
}

type counters struct {
	requests          atomic.Int64
	lookAheads        atomic.Int64
	stale             atomic.Int64
	droppedLookAheads atomic.Int64
	fetchFailures     atomic.Int64
	parseSkips        atomic.Int64
	evicted           atomic.Int64
}

// Stats returns the diagnostic counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Requests:          c.stats.requests.Load(),
		LookAheads:        c.stats.lookAheads.Load(),
		StaleResponses:    c.stats.stale.Load(),
		DroppedLookAheads: c.stats.droppedLookAheads.Load(),
		FetchFailures:     c.stats.fetchFailures.Load(),
		ParseSkips:        c.stats.parseSkips.Load(),
		Evicted:           c.stats.evicted.Load(),
	}
}

// noteSkipped counts rows dropped for missing markers. Only the first few
// and then every 1000th are logged, and only in debug mode.
func (c *Cache) noteSkipped(n int) {
	if n <= 0 {
		return
	}
	total := c.stats.parseSkips.Add(int64(n))
	prev := total - int64(n)
	if !debugEnabled {
		return
	}
	if prev < 10 || prev/1000 != total/1000 {
		log.Printf("[WINDOW] %s: skipped %d rows without position marker (%d total)", c.name, n, total)
	}
}
