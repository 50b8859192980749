// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/window/events.go
// Summary: Per-cache notification registry.

package window

import (
	"slices"
	"sync"

	"github.com/framegrace/texelog/apps/texelog/bookmarks"
	"github.com/framegrace/texelog/apps/texelog/rows"
)

// EventType identifies a cache notification.
type EventType int

const (
	// EventStateUpdated carries a State snapshot.
	EventStateUpdated EventType = iota
	// EventRangeLoaded carries a LoadedRange; fired only when the frame is satisfied.
	EventRangeLoaded
	// EventReset fires after the buffer was cleared. No payload.
	EventReset
	// EventRankChanged carries the new rank (int).
	EventRankChanged
	// EventBookmarksChanged carries the bookmarks.Change that caused a re-interleave.
	EventBookmarksChanged
	// EventScrollTo carries the target slot (int64).
	EventScrollTo
)

func (t EventType) String() string {
	switch t {
	case EventStateUpdated:
		return "state-updated"
	case EventRangeLoaded:
		return "range-loaded"
	case EventReset:
		return "reset"
	case EventRankChanged:
		return "rank-changed"
	case EventBookmarksChanged:
		return "bookmarks-changed"
	case EventScrollTo:
		return "scroll-to"
	}
	return "unknown"
}

// Event is a notification emitted by a cache.
type Event struct {
	Type    EventType
	Payload interface{}
}

// LoadedRange is the payload of EventRangeLoaded.
type LoadedRange struct {
	Range rows.Range
	Rows  []rows.Packet
}

// Listener receives cache events. Events are delivered outside the cache
// lock, so listeners may call back into the cache.
type Listener interface {
	OnEvent(event Event)
}

type dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (d *dispatcher) subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *dispatcher) unsubscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.listeners {
		if existing == l {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

func (d *dispatcher) broadcast(events []Event) {
	if len(events) == 0 {
		return
	}
	d.mu.RLock()
	listeners := slices.Clone(d.listeners)
	d.mu.RUnlock()
	for _, ev := range events {
		for _, l := range listeners {
			l.OnEvent(ev)
		}
	}
}

// bookmarkWatcher forwards bookmark set changes to its cache.
type bookmarkWatcher struct {
	c *Cache
}

func (w *bookmarkWatcher) OnBookmarksChanged(change bookmarks.Change) {
	w.c.onBookmarksChanged(change)
}
