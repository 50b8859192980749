// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/bookmarks/bookmarks.go
// Summary: Ordered set of bookmarked rows keyed by stream position.
//
// The set is owned by the UI layer. Window caches subscribe to it and
// re-interleave when it changes; they never mutate it.

package bookmarks

import (
	"slices"
	"sync"
)

// Bookmark is a virtual-only row pinned at a stream position.
type Bookmark struct {
	StreamPos int64
	Text      string
	SourceID  int32
}

// Change describes a mutation of the set.
type Change struct {
	Added   []int64
	Removed []int64
}

// Listener receives change notifications.
type Listener interface {
	OnBookmarksChanged(change Change)
}

// Set is safe for concurrent use. Listeners run outside the set's lock.
type Set struct {
	mu        sync.RWMutex
	items     map[int64]Bookmark
	sorted    []int64
	listeners []Listener
}

// New creates an empty bookmark set.
func New() *Set {
	return &Set{items: make(map[int64]Bookmark)}
}

// Add inserts or replaces the bookmark at b.StreamPos.
func (s *Set) Add(b Bookmark) {
	s.mu.Lock()
	_, existed := s.items[b.StreamPos]
	s.items[b.StreamPos] = b
	if !existed {
		i, _ := slices.BinarySearch(s.sorted, b.StreamPos)
		s.sorted = slices.Insert(s.sorted, i, b.StreamPos)
	}
	s.mu.Unlock()
	s.notify(Change{Added: []int64{b.StreamPos}})
}

// Remove deletes the bookmark at pos. Returns false if none was there.
func (s *Set) Remove(pos int64) bool {
	s.mu.Lock()
	if _, ok := s.items[pos]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.items, pos)
	if i, found := slices.BinarySearch(s.sorted, pos); found {
		s.sorted = slices.Delete(s.sorted, i, i+1)
	}
	s.mu.Unlock()
	s.notify(Change{Removed: []int64{pos}})
	return true
}

// Toggle adds b if absent, removes it otherwise. Returns true if added.
func (s *Set) Toggle(b Bookmark) bool {
	if s.Remove(b.StreamPos) {
		return false
	}
	s.Add(b)
	return true
}

// Clear removes all bookmarks.
func (s *Set) Clear() {
	s.mu.Lock()
	removed := s.sorted
	s.items = make(map[int64]Bookmark)
	s.sorted = nil
	s.mu.Unlock()
	if len(removed) > 0 {
		s.notify(Change{Removed: removed})
	}
}

// Has reports whether pos is bookmarked.
func (s *Set) Has(pos int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[pos]
	return ok
}

// Get returns the bookmark at pos.
func (s *Set) Get(pos int64) (Bookmark, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.items[pos]
	return b, ok
}

// Len returns the number of bookmarks.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sorted)
}

// Positions returns a sorted copy of all bookmarked positions.
func (s *Set) Positions() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sorted)
}

// Snapshot returns all bookmarks ordered by stream position.
func (s *Set) Snapshot() []Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Bookmark, len(s.sorted))
	for i, pos := range s.sorted {
		out[i] = s.items[pos]
	}
	return out
}

// Between returns bookmarks with lo <= pos < hi, in order.
func (s *Set) Between(lo, hi int64) []Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, _ := slices.BinarySearch(s.sorted, lo)
	var out []Bookmark
	for ; i < len(s.sorted) && s.sorted[i] < hi; i++ {
		out = append(out, s.items[s.sorted[i]])
	}
	return out
}

// Subscribe registers l for change notifications.
func (s *Set) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Unsubscribe removes l.
func (s *Set) Unsubscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Set) notify(c Change) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, l := range listeners {
		l.OnBookmarksChanged(c)
	}
}
