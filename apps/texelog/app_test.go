// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/app_test.go
// Summary: Tests for the viewer's layout, prompts and search navigation.

package texelog

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/texelog/apps/texelog/view"
)

func newTestApp(t *testing.T, lines ...string) (*App, *Session) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.db")
	s := openTestSession(t, path, testSettings(path))
	t.Cleanup(func() { s.Close() })
	appendLines(t, s, lines...)
	waitUntil(t, "stream total", func() bool { return s.Stream().State().Total == int64(len(lines)) })

	a := NewApp(s, view.DefaultTheme())
	t.Cleanup(a.Stop)
	a.Resize(60, 12)
	return a, s
}

func text(line []view.Cell) string {
	var sb strings.Builder
	for _, c := range line {
		if c.Ch != 0 {
			sb.WriteRune(c.Ch)
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

func typeKeys(a *App, s string) {
	for _, r := range s {
		a.HandleKey(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
	}
}

func press(a *App, k tcell.Key) {
	a.HandleKey(tcell.NewEventKey(k, 0, tcell.ModNone))
}

// waitLine renders until line y contains want.
func waitLine(t *testing.T, a *App, y int, want string) [][]view.Cell {
	t.Helper()
	var buf [][]view.Cell
	waitUntil(t, fmt.Sprintf("line %d to contain %q", y, want), func() bool {
		buf = a.Render()
		return y < len(buf) && strings.Contains(text(buf[y]), want)
	})
	return buf
}

func numberedLines(n int) []string {
	out := make([]string, n)
	for i := range out {
		if i%10 == 3 {
			out[i] = fmt.Sprintf("line %d error", i)
		} else {
			out[i] = fmt.Sprintf("line %d", i)
		}
	}
	return out
}

func TestApp_LayoutWithoutSearch(t *testing.T) {
	a, _ := newTestApp(t, numberedLines(30)...)

	buf := waitLine(t, a, 0, "line 0")
	if len(buf) != 12 || len(buf[0]) != 60 {
		t.Fatalf("buffer %dx%d, want 12x60", len(buf), len(buf[0]))
	}
	if got := text(buf[10]); !strings.HasSuffix(got, "line 10") {
		t.Fatalf("line 10 = %q", got)
	}
	if status := text(buf[11]); !strings.Contains(status, "30 lines") || !strings.Contains(status, "0 marks") {
		t.Fatalf("status = %q", status)
	}
}

func TestApp_SearchPromptSplitsView(t *testing.T) {
	a, s := newTestApp(t, numberedLines(30)...)

	typeKeys(a, "/erx")
	press(a, tcell.KeyBackspace2)
	a.HandlePaste("ror")
	if got := a.StatusText(); got != "/error" {
		t.Fatalf("prompt = %q", got)
	}
	press(a, tcell.KeyEnter)
	if s.Query() != "error" {
		t.Fatalf("query = %q", s.Query())
	}

	// 11 body rows: stream 6, header 1, search 4.
	buf := waitLine(t, a, 7, "line 3 error")
	if got := text(buf[6]); !strings.Contains(got, `"error": 3 matches`) {
		t.Fatalf("header = %q", got)
	}
	if len(buf) != 12 {
		t.Fatalf("buffer height %d", len(buf))
	}

	typeKeys(a, "x")
	if s.Query() != "" {
		t.Fatalf("search not cleared: %q", s.Query())
	}
	buf = waitLine(t, a, 10, "line 10")
	if strings.Contains(text(buf[6]), "matches") {
		t.Fatalf("header still shown after clear")
	}
}

func TestApp_EscapeCancelsPrompt(t *testing.T) {
	a, s := newTestApp(t, numberedLines(5)...)
	typeKeys(a, "/line")
	press(a, tcell.KeyEscape)
	if s.Query() != "" {
		t.Fatalf("cancelled prompt ran a search")
	}
	if strings.HasPrefix(a.StatusText(), "/") {
		t.Fatalf("prompt still open: %q", a.StatusText())
	}
}

func TestApp_EnterJumpsToMatch(t *testing.T) {
	a, s := newTestApp(t, numberedLines(200)...)
	waitLine(t, a, 0, "line 0")

	typeKeys(a, "/error")
	press(a, tcell.KeyEnter)
	waitLine(t, a, 7, "line 3 error")

	// Second match: line 13.
	press(a, tcell.KeyDown)
	press(a, tcell.KeyEnter)
	waitUntil(t, "stream to scroll to line 13", func() bool { return a.stream.Top() == 13 })
	waitLine(t, a, 0, "line 13 error")
	if s.Stream().Frame().Start != 13 {
		t.Fatalf("stream frame %v", s.Stream().Frame())
	}
}

func TestApp_BookmarkAndNote(t *testing.T) {
	a, s := newTestApp(t, numberedLines(20)...)
	waitLine(t, a, 0, "line 0")

	typeKeys(a, "m")
	if !s.Bookmarks().Has(0) {
		t.Fatalf("bookmark not added for the selected row")
	}
	// Stream bookmarks are starred in place.
	buf := waitLine(t, a, 0, "★line 0")
	if got := text(buf[1]); !strings.HasSuffix(got, "│line 1") {
		t.Fatalf("line 1 = %q", got)
	}
	if !strings.Contains(text(buf[11]), "1 marks") {
		t.Fatalf("status = %q", text(buf[11]))
	}

	typeKeys(a, "c")
	typeKeys(a, "boot")
	press(a, tcell.KeyEnter)
	notes := s.Notes(0)
	if len(notes) != 1 || notes[0].Text != "boot" || notes[0].End.Offset != len("line 0")-1 {
		t.Fatalf("notes = %+v", notes)
	}
}

func TestApp_QuitStopsRun(t *testing.T) {
	a, _ := newTestApp(t, "only line")
	done := make(chan error, 1)
	go func() { done <- a.Run() }()
	typeKeys(a, "q")
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after q")
	}
}
