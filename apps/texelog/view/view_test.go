// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/view/view_test.go
// Summary: Tests for pane rendering, scrolling and bookmarks.

package view

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/texelog/apps/texelog/bookmarks"
	"github.com/framegrace/texelog/apps/texelog/modifier"
	"github.com/framegrace/texelog/apps/texelog/rows"
	"github.com/framegrace/texelog/apps/texelog/window"
)

type memSource struct {
	lines []string
}

func (s *memSource) Count(context.Context) (int64, error) {
	return int64(len(s.lines)), nil
}

func (s *memSource) Fetch(_ context.Context, start, end int64) (rows.Chunk, error) {
	total := int64(len(s.lines))
	end = min(end, total-1)
	var enc []string
	for i := start; i <= end; i++ {
		enc = append(enc, rows.Encode(s.lines[i], i, 0))
	}
	return rows.Chunk{Start: start, End: end, Data: rows.EncodeBlock(enc), Total: total}, nil
}

func newTestPane(t *testing.T, n int, marks *bookmarks.Set, pipe *modifier.Pipeline) (*Pane, *window.Cache) {
	t.Helper()
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("row %d", i)
	}
	// A stream pane: bookmarks are starred in place, not interleaved.
	cache := window.New("test", &memSource{lines: lines}, nil, window.Config{Trigger: 5, MaxRequest: 40, MaxStored: 200})
	t.Cleanup(cache.Close)
	cache.UpdateTotal(int64(n))
	p := NewPane("log", cache, pipe, marks, DefaultTheme())
	t.Cleanup(p.Stop)
	return p, cache
}

func lineText(line []Cell) string {
	var sb strings.Builder
	for _, c := range line {
		if c.Ch != 0 {
			sb.WriteRune(c.Ch)
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

func waitRender(t *testing.T, p *Pane, y int, want string) [][]Cell {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		buf := p.Render()
		if y < len(buf) && strings.HasSuffix(lineText(buf[y]), want) {
			return buf
		}
		if time.Now().After(deadline) {
			got := ""
			if y < len(buf) {
				got = lineText(buf[y])
			}
			t.Fatalf("line %d = %q, want suffix %q", y, got, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPane_RenderDimensions(t *testing.T) {
	p, _ := newTestPane(t, 10, nil, nil)
	p.Resize(20, 3)
	buf := p.Render()
	if len(buf) != 3 || len(buf[0]) != 20 {
		t.Fatalf("unexpected buffer dimensions: %dx%d", len(buf), len(buf[0]))
	}
}

func TestPane_RendersRowsWithGutter(t *testing.T) {
	p, _ := newTestPane(t, 150, nil, nil)
	p.Resize(30, 4)
	buf := waitRender(t, p, 0, "row 0")
	if got := lineText(buf[0]); got != "  0│row 0" {
		t.Errorf("line 0 = %q", got)
	}
	if got := lineText(buf[3]); got != "  3│row 3" {
		t.Errorf("line 3 = %q", got)
	}
}

func TestPane_ScrollLoadsNewFrame(t *testing.T) {
	p, cache := newTestPane(t, 500, nil, nil)
	p.Resize(30, 5)
	waitRender(t, p, 0, "row 0")

	p.ScrollTo(300)
	waitRender(t, p, 0, "row 300")
	if f := cache.Frame(); f != rows.NewRange(300, 304) {
		t.Errorf("frame = %v", f)
	}

	p.ScrollTo(10000)
	if top := p.Top(); top != 495 {
		t.Errorf("top clamped to %d, want 495", top)
	}
}

func TestPane_FollowTracksGrowth(t *testing.T) {
	p, cache := newTestPane(t, 50, nil, nil)
	p.Resize(30, 5)
	p.Follow(true)
	waitRender(t, p, 4, "row 49")
	if top := p.Top(); top != 45 {
		t.Fatalf("top = %d, want 45", top)
	}
	cache.UpdateTotal(40)
	if top := p.Top(); top != 35 {
		t.Errorf("top after total change = %d, want 35", top)
	}
	p.ScrollBy(-5)
	cache.UpdateTotal(50)
	if top := p.Top(); top != 30 {
		t.Errorf("scrolling should stop following: top = %d", top)
	}
}

func TestPane_ToggleBookmark(t *testing.T) {
	marks := bookmarks.New()
	p, cache := newTestPane(t, 20, marks, nil)
	p.Resize(30, 5)
	waitRender(t, p, 0, "row 0")

	p.HandleKey(tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone))
	p.HandleKey(tcell.NewEventKey(tcell.KeyRune, 'm', tcell.ModNone))
	if !marks.Has(1) {
		t.Fatal("bookmark not added for selected row")
	}
	buf := waitRender(t, p, 1, "row 1")
	if buf[1][2].Ch != '★' {
		t.Errorf("bookmarked row gutter = %q", lineText(buf[1]))
	}
	if !strings.HasSuffix(lineText(buf[2]), "row 2") {
		t.Errorf("bookmark duplicated the row: next line %q", lineText(buf[2]))
	}
	if n := cache.State().TotalWithBookmarks; n != 20 {
		t.Errorf("TotalWithBookmarks = %d, want 20", n)
	}

	p.HandleKey(tcell.NewEventKey(tcell.KeyRune, 'm', tcell.ModNone))
	if buf := p.Render(); buf[1][2].Ch == '★' {
		t.Errorf("star kept after removal: %q", lineText(buf[1]))
	}
}

func TestPane_NumberRankPadsGutter(t *testing.T) {
	p, _ := newTestPane(t, 9, nil, nil)
	p.SetNumberRank(func() int { return 3 })
	p.Resize(30, 3)
	buf := waitRender(t, p, 0, "row 0")
	if got := lineText(buf[0][:4]); got != "  0│" {
		t.Errorf("gutter = %q, want %q", got, "  0│")
	}
}

func TestPane_AppliesModifierStyles(t *testing.T) {
	hit := tcell.StyleDefault.Foreground(tcell.PaletteColor(1))
	search, err := modifier.NewRegexp("search", modifier.Request{Pattern: "row 2", Style: hit})
	if err != nil {
		t.Fatal(err)
	}
	p, _ := newTestPane(t, 9, nil, modifier.NewPipeline(search))
	p.Resize(30, 4)
	buf := waitRender(t, p, 2, "row 2")
	// Gutter is one digit wide plus the separator.
	if buf[2][2].Style != hit {
		t.Errorf("match not styled: %v", buf[2][2].Style)
	}
	if buf[1][2].Style == hit {
		t.Error("non-matching row styled")
	}
}

func TestPane_ScrollToEvent(t *testing.T) {
	p, cache := newTestPane(t, 300, nil, nil)
	p.Resize(30, 5)
	cache.ScrollTo(120)
	if top := p.Top(); top != 120 {
		t.Errorf("top = %d, want 120", top)
	}
}

func TestWriteRows(t *testing.T) {
	search, _ := modifier.NewRegexp("search", modifier.Request{Pattern: "b", Class: "hit"})
	packets := []rows.Packet{
		{Text: rows.StrPtr("abc"), StreamPos: 7, Rank: 2},
		{Text: rows.StrPtr("note"), StreamPos: 8, Rank: 2, Bookmark: true},
		{Text: rows.StrPtr("xyz"), StreamPos: 9, Rank: 2},
	}
	marks := bookmarks.New()
	marks.Add(bookmarks.Bookmark{StreamPos: 9})
	var out bytes.Buffer
	err := WriteRows(&out, packets, DumpOptions{
		Pipeline: modifier.NewPipeline(search),
		Tagger:   modifier.ClassTagger{},
		Marks:    marks,
		Rank:     3,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "  7  a<span class=\"hit\">b</span>c\n  8* note\n  9* xyz\n"
	if out.String() != want {
		t.Errorf("WriteRows = %q, want %q", out.String(), want)
	}
}
