// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/app.go
// Summary: Full-screen log viewer app over a Session.
// Usage: Run with internal/devshell; keys are listed in keyHelp.

package texelog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/framegrace/texelog/apps/texelog/modifier"
	"github.com/framegrace/texelog/apps/texelog/view"
)

const keyHelp = "/ search  x clear  tab focus  enter jump  m mark  c note  f follow  q quit"

const searchTimeout = 5 * time.Second

type focus int

const (
	focusStream focus = iota
	focusSearch
)

type promptKind int

const (
	promptNone promptKind = iota
	promptSearch
	promptNote
)

// App shows the stream on top and, while a search is active, the matches
// below it. The bottom line is the status bar or the input prompt.
type App struct {
	s      *Session
	theme  view.Theme
	stream *view.Pane
	search *view.Pane

	mu      sync.Mutex
	width   int
	height  int
	focus   focus
	prompt  promptKind
	input   []rune
	message string
	paneH   [2]int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewApp creates the viewer for s.
func NewApp(s *Session, theme view.Theme) *App {
	a := &App{
		s:      s,
		theme:  theme,
		stream: view.NewPane("stream", s.Stream(), s.Pipeline(), s.Bookmarks(), theme),
		search: view.NewPane("search", s.SearchResults(), s.Pipeline(), s.Bookmarks(), theme),
		stop:   make(chan struct{}),
	}
	// Matches show stream line numbers.
	a.search.SetNumberRank(s.Stream().Rank)
	return a
}

func (a *App) GetTitle() string {
	return "texelog"
}

func (a *App) SetRefreshNotifier(refreshChan chan<- bool) {
	a.stream.SetRefreshNotifier(refreshChan)
	a.search.SetRefreshNotifier(refreshChan)
}

// Run blocks until Stop or the quit key.
func (a *App) Run() error {
	<-a.stop
	return nil
}

// Stop detaches the panes. The session stays open.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
		a.stream.Stop()
		a.search.Stop()
	})
}

// Follow makes the stream pane track new lines.
func (a *App) Follow(on bool) {
	a.stream.Follow(on)
}

func (a *App) Resize(cols, rows int) {
	a.mu.Lock()
	a.width, a.height = cols, rows
	a.mu.Unlock()
	a.layout()
}

// layout splits the rows above the status line between the panes.
func (a *App) layout() {
	a.mu.Lock()
	width, height := a.width, a.height
	a.mu.Unlock()
	streamH, searchH := a.split(height)
	a.mu.Lock()
	a.paneH = [2]int{streamH, searchH}
	a.mu.Unlock()
	a.stream.Resize(width, streamH)
	a.search.Resize(width, searchH)
}

// split returns the stream and search pane heights. The search pane has a
// header line above it.
func (a *App) split(height int) (int, int) {
	body := max(height-1, 0)
	if a.s.Query() == "" || body < 4 {
		return body, 0
	}
	streamH := body * 3 / 5
	return streamH, body - streamH - 1
}

func (a *App) focused() *view.Pane {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.focus == focusSearch {
		return a.search
	}
	return a.stream
}

func (a *App) HandleKey(ev *tcell.EventKey) {
	a.mu.Lock()
	prompting := a.prompt != promptNone
	a.mu.Unlock()
	if prompting {
		a.handlePromptKey(ev)
		return
	}

	switch ev.Key() {
	case tcell.KeyTab:
		a.mu.Lock()
		if a.focus == focusStream && a.s.Query() != "" {
			a.focus = focusSearch
		} else {
			a.focus = focusStream
		}
		a.mu.Unlock()
		return
	case tcell.KeyEnter:
		a.jump()
		return
	case tcell.KeyEscape:
		a.setMessage("")
		return
	case tcell.KeyRune:
		switch ev.Rune() {
		case '/':
			a.startPrompt(promptSearch, a.s.Query())
			return
		case 'c':
			if _, ok := a.focused().Selected(); ok {
				a.startPrompt(promptNote, "")
			}
			return
		case 'x':
			a.clearSearch()
			return
		case 'q':
			a.Stop()
			return
		}
	}
	a.focused().HandleKey(ev)
}

// HandleMouse routes wheel events to the pane under the pointer.
func (a *App) HandleMouse(ev *tcell.EventMouse) {
	_, y := ev.Position()
	a.mu.Lock()
	height := a.height
	a.mu.Unlock()
	streamH, searchH := a.split(height)
	switch {
	case y < streamH:
		a.stream.HandleMouse(ev)
	case searchH > 0 && y > streamH && y <= streamH+searchH:
		a.search.HandleMouse(ev)
	}
}

// HandlePaste appends pasted text to an open prompt.
func (a *App) HandlePaste(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.prompt == promptNone {
		return
	}
	a.input = append(a.input, []rune(text)...)
}

func (a *App) startPrompt(kind promptKind, initial string) {
	a.mu.Lock()
	a.prompt = kind
	a.input = []rune(initial)
	a.message = ""
	a.mu.Unlock()
}

func (a *App) handlePromptKey(ev *tcell.EventKey) {
	a.mu.Lock()
	switch ev.Key() {
	case tcell.KeyEscape:
		a.prompt = promptNone
		a.input = nil
		a.mu.Unlock()
		return
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if n := len(a.input); n > 0 {
			a.input = a.input[:n-1]
		}
		a.mu.Unlock()
		return
	case tcell.KeyRune:
		a.input = append(a.input, ev.Rune())
		a.mu.Unlock()
		return
	case tcell.KeyEnter:
	default:
		a.mu.Unlock()
		return
	}
	kind, text := a.prompt, string(a.input)
	a.prompt = promptNone
	a.input = nil
	a.mu.Unlock()

	switch kind {
	case promptSearch:
		a.runSearch(text)
	case promptNote:
		a.addNote(text)
	}
}

func (a *App) runSearch(query string) {
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()
	if err := a.s.Search(ctx, query); err != nil {
		a.setMessage(err.Error())
		return
	}
	a.mu.Lock()
	if query != "" {
		a.focus = focusSearch
	} else {
		a.focus = focusStream
	}
	a.mu.Unlock()
	a.layout()
}

func (a *App) clearSearch() {
	a.s.ClearSearch()
	a.mu.Lock()
	a.focus = focusStream
	a.mu.Unlock()
	a.layout()
}

// addNote attaches text to the whole selected row.
func (a *App) addNote(text string) {
	row, ok := a.focused().Selected()
	if !ok || text == "" || row.Pending || row.Bookmark {
		return
	}
	width := modifier.NewRow(row.String(), row.StreamPos).Width()
	start := modifier.Anchor{StreamPos: row.StreamPos}
	end := modifier.Anchor{StreamPos: row.StreamPos, Offset: max(width-1, 0)}
	if _, err := a.s.AddNote(context.Background(), start, end, text); err != nil {
		a.setMessage(err.Error())
		return
	}
	a.setMessage("note added")
}

// jump shows the selected search match in the stream pane.
func (a *App) jump() {
	a.mu.Lock()
	inSearch := a.focus == focusSearch
	a.mu.Unlock()
	if !inSearch {
		return
	}
	row, ok := a.search.Selected()
	if !ok || row.Pending {
		return
	}
	a.s.Locate(row.StreamPos)
	a.mu.Lock()
	a.focus = focusStream
	a.mu.Unlock()
}

func (a *App) setMessage(msg string) {
	a.mu.Lock()
	a.message = msg
	a.mu.Unlock()
}

func (a *App) Render() [][]view.Cell {
	a.mu.Lock()
	width, height := a.width, a.height
	a.mu.Unlock()
	if width <= 0 || height <= 0 {
		return [][]view.Cell{}
	}

	// A search started or cleared outside the key handlers changes the split.
	streamH, searchH := a.split(height)
	a.mu.Lock()
	stale := a.paneH != [2]int{streamH, searchH}
	a.mu.Unlock()
	if stale {
		a.layout()
	}

	buf := make([][]view.Cell, 0, height)
	buf = appendRows(buf, a.stream.Render(), streamH, width, a.theme.Text)
	if searchH > 0 {
		buf = append(buf, a.header(width))
		buf = appendRows(buf, a.search.Render(), searchH, width, a.theme.Text)
	}
	for len(buf) < height-1 {
		buf = append(buf, blankLine(width, a.theme.Text))
	}
	return append(buf, a.statusLine(width))
}

// appendRows appends exactly n rows of src, padding with blank lines.
func appendRows(dst, src [][]view.Cell, n, width int, style tcell.Style) [][]view.Cell {
	for i := 0; i < n; i++ {
		if i < len(src) && len(src[i]) == width {
			dst = append(dst, src[i])
			continue
		}
		dst = append(dst, blankLine(width, style))
	}
	return dst
}

func (a *App) header(width int) []view.Cell {
	state := a.s.SearchResults().State()
	a.mu.Lock()
	active := a.focus == focusSearch
	a.mu.Unlock()
	style := a.theme.Gutter.Reverse(active)
	line := blankLine(width, style)
	putString(line, 0, fmt.Sprintf("─ %q: %d matches ", a.s.Query(), state.Total), style)
	return line
}

func (a *App) statusLine(width int) []view.Cell {
	style := a.theme.Gutter.Reverse(true)
	line := blankLine(width, style)

	a.mu.Lock()
	prompt, input, message := a.prompt, string(a.input), a.message
	a.mu.Unlock()

	switch prompt {
	case promptSearch:
		putString(line, 0, "/"+input, style)
		return line
	case promptNote:
		putString(line, 0, "note: "+input, style)
		return line
	}

	state := a.s.Stream().State()
	left := fmt.Sprintf(" %d lines  %d marks", state.Total, a.s.Bookmarks().Len())
	if message != "" {
		left += "  " + message
	}
	x := putString(line, 0, left, style)
	if right := keyHelp + " "; x+runewidth.StringWidth(right)+2 <= width {
		putString(line, width-runewidth.StringWidth(right), right, style)
	}
	return line
}

func blankLine(width int, style tcell.Style) []view.Cell {
	line := make([]view.Cell, width)
	for i := range line {
		line[i] = view.Cell{Ch: ' ', Style: style}
	}
	return line
}

// putString writes s from column x and returns the column after it.
func putString(line []view.Cell, x int, s string, style tcell.Style) int {
	for len(s) > 0 && x < len(line) {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > len(line) {
			break
		}
		line[x] = view.Cell{Ch: r, Style: style}
		for i := 1; i < w; i++ {
			line[x+i] = view.Cell{Style: style}
		}
		x += w
	}
	return x
}

// StatusText returns the status line as plain text.
func (a *App) StatusText() string {
	line := a.statusLine(200)
	var sb strings.Builder
	for _, c := range line {
		if c.Ch != 0 {
			sb.WriteRune(c.Ch)
		}
	}
	return strings.TrimRight(sb.String(), " ")
}
