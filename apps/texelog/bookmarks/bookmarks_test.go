// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package bookmarks

import (
	"slices"
	"testing"
)

type recorder struct {
	changes []Change
}

func (r *recorder) OnBookmarksChanged(c Change) {
	r.changes = append(r.changes, c)
}

func TestSet_OrderedPositions(t *testing.T) {
	s := New()
	for _, pos := range []int64{150, 5, 50} {
		s.Add(Bookmark{StreamPos: pos, Text: "bm"})
	}
	if got := s.Positions(); !slices.Equal(got, []int64{5, 50, 150}) {
		t.Fatalf("Positions() = %v", got)
	}
	if !s.Has(50) || s.Has(51) {
		t.Error("membership test is wrong")
	}
	between := s.Between(5, 150)
	if len(between) != 2 || between[0].StreamPos != 5 || between[1].StreamPos != 50 {
		t.Errorf("Between(5,150) = %+v", between)
	}
}

func TestSet_AddReplaceDoesNotDuplicate(t *testing.T) {
	s := New()
	s.Add(Bookmark{StreamPos: 3, Text: "old"})
	s.Add(Bookmark{StreamPos: 3, Text: "new"})
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	b, _ := s.Get(3)
	if b.Text != "new" {
		t.Errorf("Text = %q, want new", b.Text)
	}
}

func TestSet_ListenersNotified(t *testing.T) {
	s := New()
	r := &recorder{}
	s.Subscribe(r)

	s.Add(Bookmark{StreamPos: 1})
	if s.Toggle(Bookmark{StreamPos: 1}) {
		t.Error("Toggle on existing bookmark should remove it")
	}
	if s.Remove(99) {
		t.Error("Remove of unknown position should report false")
	}
	s.Add(Bookmark{StreamPos: 2})
	s.Clear()

	if len(r.changes) != 4 {
		t.Fatalf("got %d notifications, want 4", len(r.changes))
	}
	if !slices.Equal(r.changes[3].Removed, []int64{2}) {
		t.Errorf("Clear notification = %+v", r.changes[3])
	}

	s.Unsubscribe(r)
	s.Add(Bookmark{StreamPos: 7})
	if len(r.changes) != 4 {
		t.Error("unsubscribed listener still notified")
	}
}
