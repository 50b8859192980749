// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/view/view.go
// Summary: Scrollable log pane over a window cache.
//
// The pane owns the viewport: it keeps the first visible slot and height,
// hands the resulting frame to the cache and redraws when the cache reports
// loaded rows, new totals or a reset. Rows are styled by the modifier
// pipeline and drawn behind a gutter as wide as the cache rank, or the rank
// of the stream the row numbers come from when that is wider. Rows on a
// bookmarked stream position are starred in the gutter.

package view

import (
	"errors"
	"strconv"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/framegrace/texelog/apps/texelog/bookmarks"
	"github.com/framegrace/texelog/apps/texelog/modifier"
	"github.com/framegrace/texelog/apps/texelog/rows"
	"github.com/framegrace/texelog/apps/texelog/window"
)

// Cell is one screen cell.
type Cell struct {
	Ch    rune
	Style tcell.Style
}

// App is a full-screen component driven by a terminal loop.
type App interface {
	Run() error
	Stop()
	Resize(cols, rows int)
	Render() [][]Cell
	HandleKey(ev *tcell.EventKey)
	SetRefreshNotifier(refreshChan chan<- bool)
	GetTitle() string
}

// Theme holds the pane colours.
type Theme struct {
	Text     tcell.Style
	Gutter   tcell.Style
	Pending  tcell.Style
	Bookmark tcell.Style
	Cursor   tcell.Style
}

// DefaultTheme returns the built-in colours.
func DefaultTheme() Theme {
	return Theme{
		Text:     tcell.StyleDefault,
		Gutter:   tcell.StyleDefault.Foreground(tcell.PaletteColor(8)),
		Pending:  tcell.StyleDefault.Dim(true),
		Bookmark: tcell.StyleDefault.Foreground(tcell.PaletteColor(3)).Bold(true),
		Cursor:   tcell.StyleDefault.Reverse(true),
	}
}

const pendingText = "…"

// Pane shows the rows of one cache.
type Pane struct {
	title string
	cache *window.Cache
	pipe  *modifier.Pipeline
	marks *bookmarks.Set
	theme Theme
	// numberRank reports the digit width of the stream positions shown.
	numberRank func() int

	mu          sync.RWMutex
	width       int
	height      int
	top         int64
	cursor      int
	follow      bool
	rows        []rows.Packet
	buf         [][]Cell
	refreshChan chan<- bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewPane creates a pane over cache. marks may be nil.
func NewPane(title string, cache *window.Cache, pipe *modifier.Pipeline, marks *bookmarks.Set, theme Theme) *Pane {
	p := &Pane{
		title: title,
		cache: cache,
		pipe:  pipe,
		marks: marks,
		theme: theme,
		stop:  make(chan struct{}),
	}
	cache.Subscribe(p)
	if marks != nil {
		marks.Subscribe(p)
	}
	return p
}

// SetNumberRank pads the gutter to at least fn() digits. Panes over a
// subset of the stream use the stream's rank so row numbers line up.
func (p *Pane) SetNumberRank(fn func() int) {
	p.mu.Lock()
	p.numberRank = fn
	p.mu.Unlock()
}

// OnBookmarksChanged redraws the gutter stars.
func (p *Pane) OnBookmarksChanged(bookmarks.Change) {
	p.requestRefresh()
}

func (p *Pane) GetTitle() string {
	return p.title
}

func (p *Pane) SetRefreshNotifier(refreshChan chan<- bool) {
	p.mu.Lock()
	p.refreshChan = refreshChan
	p.mu.Unlock()
}

// Run blocks until Stop.
func (p *Pane) Run() error {
	<-p.stop
	return nil
}

// Stop detaches the pane from its cache.
func (p *Pane) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.cache.Unsubscribe(p)
		if p.marks != nil {
			p.marks.Unsubscribe(p)
		}
	})
}

// Resize stores the pane size and updates the frame.
func (p *Pane) Resize(cols, rows int) {
	p.mu.Lock()
	p.width, p.height = cols, rows
	p.cursor = min(p.cursor, max(rows-1, 0))
	p.mu.Unlock()
	p.syncFrame()
}

// Follow keeps the last row visible as the cache grows.
func (p *Pane) Follow(on bool) {
	p.mu.Lock()
	p.follow = on
	p.mu.Unlock()
	if on {
		p.scrollToEnd()
	}
}

// Top returns the first visible slot.
func (p *Pane) Top() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.top
}

// ScrollBy moves the viewport by n rows.
func (p *Pane) ScrollBy(n int64) {
	p.mu.Lock()
	p.top += n
	p.follow = false
	p.mu.Unlock()
	p.syncFrame()
}

// ScrollTo makes slot the first visible row.
func (p *Pane) ScrollTo(slot int64) {
	p.mu.Lock()
	p.top = slot
	p.follow = false
	p.mu.Unlock()
	p.syncFrame()
}

func (p *Pane) scrollToEnd() {
	total := p.cache.State().TotalWithBookmarks
	p.mu.Lock()
	p.top = total - int64(p.height)
	p.mu.Unlock()
	p.syncFrame()
}

// syncFrame clamps top and hands the visible slot range to the cache.
func (p *Pane) syncFrame() {
	total := p.cache.State().TotalWithBookmarks
	p.mu.Lock()
	p.top = max(min(p.top, total-int64(p.height)), 0)
	frame := p.frameLocked()
	p.mu.Unlock()
	if !frame.IsEmpty() {
		p.cache.SetFrame(frame)
	}
}

func (p *Pane) frameLocked() rows.Range {
	if p.height <= 0 {
		return rows.EmptyRange
	}
	return rows.NewRange(p.top, p.top+int64(p.height)-1)
}

// OnEvent reacts to cache events.
func (p *Pane) OnEvent(ev window.Event) {
	switch ev.Type {
	case window.EventScrollTo:
		if slot, ok := ev.Payload.(int64); ok {
			p.ScrollTo(slot)
		}
	case window.EventStateUpdated:
		p.mu.RLock()
		follow := p.follow
		p.mu.RUnlock()
		if follow {
			p.scrollToEnd()
		}
	case window.EventReset:
		p.mu.Lock()
		p.rows = nil
		p.mu.Unlock()
	}
	p.requestRefresh()
}

func (p *Pane) requestRefresh() {
	p.mu.RLock()
	ch := p.refreshChan
	p.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- true:
	default:
	}
}

// HandleKey scrolls and toggles bookmarks.
func (p *Pane) HandleKey(ev *tcell.EventKey) {
	p.mu.RLock()
	page := int64(max(p.height-1, 1))
	p.mu.RUnlock()

	switch ev.Key() {
	case tcell.KeyUp:
		p.moveCursor(-1)
	case tcell.KeyDown:
		p.moveCursor(1)
	case tcell.KeyPgUp:
		p.ScrollBy(-page)
	case tcell.KeyPgDn:
		p.ScrollBy(page)
	case tcell.KeyHome:
		p.ScrollTo(0)
	case tcell.KeyEnd:
		p.Follow(true)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'm':
			p.ToggleBookmark()
		case 'f':
			p.Follow(true)
		case 'k':
			p.moveCursor(-1)
		case 'j':
			p.moveCursor(1)
		}
	}
}

// HandleMouse scrolls on wheel events.
func (p *Pane) HandleMouse(ev *tcell.EventMouse) {
	switch {
	case ev.Buttons()&tcell.WheelUp != 0:
		p.ScrollBy(-3)
	case ev.Buttons()&tcell.WheelDown != 0:
		p.ScrollBy(3)
	}
}

func (p *Pane) moveCursor(d int) {
	p.mu.Lock()
	next := p.cursor + d
	scroll := int64(0)
	switch {
	case next < 0:
		scroll = int64(next)
		next = 0
	case next >= p.height:
		scroll = int64(next - p.height + 1)
		next = max(p.height-1, 0)
	}
	p.cursor = next
	p.mu.Unlock()
	if scroll != 0 {
		p.ScrollBy(scroll)
	}
}

// Selected returns the row under the cursor from the last render.
func (p *Pane) Selected() (rows.Packet, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cursor < 0 || p.cursor >= len(p.rows) {
		return rows.Packet{}, false
	}
	return p.rows[p.cursor], true
}

// ToggleBookmark bookmarks or unbookmarks the selected row.
func (p *Pane) ToggleBookmark() bool {
	row, ok := p.Selected()
	if !ok || p.marks == nil || row.Pending || row.StreamPos < 0 {
		return false
	}
	p.marks.Toggle(bookmarks.Bookmark{StreamPos: row.StreamPos, Text: row.String(), SourceID: row.SourceID})
	return true
}

// Render draws the visible rows.
func (p *Pane) Render() [][]Cell {
	p.mu.RLock()
	width, height := p.width, p.height
	frame := p.frameLocked()
	numberRank := p.numberRank
	p.mu.RUnlock()
	if width <= 0 || height <= 0 {
		return [][]Cell{}
	}

	visible, err := p.cache.GetRange(frame)
	if errors.Is(err, window.ErrStateChanged) {
		visible, err = p.cache.GetRange(frame)
	}
	rank := p.cache.Rank()
	if numberRank != nil {
		rank = max(rank, numberRank())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.rows = visible
	}
	p.ensureBufLocked(width, height)
	for y := 0; y < height; y++ {
		line := p.buf[y]
		for x := range line {
			line[x] = Cell{Ch: ' ', Style: p.theme.Text}
		}
		if y >= len(p.rows) {
			continue
		}
		x := p.drawGutter(line, p.rows[y], rank)
		p.drawText(line[x:], p.rows[y], y == p.cursor)
	}
	return p.buf
}

func (p *Pane) ensureBufLocked(width, height int) {
	if len(p.buf) == height && height > 0 && len(p.buf[0]) == width {
		return
	}
	p.buf = make([][]Cell, height)
	for y := range p.buf {
		p.buf[y] = make([]Cell, width)
	}
}

// drawGutter writes the right-aligned row number and a separator. Returns
// the first text column.
func (p *Pane) drawGutter(line []Cell, row rows.Packet, rank int) int {
	label := ""
	style := p.theme.Gutter
	sep := '│'
	switch {
	case row.Bookmark:
		style = p.theme.Bookmark
		sep = '★'
	case row.Pending && row.StreamPos < 0:
	default:
		label = strconv.FormatInt(row.StreamPos, 10)
		if !row.Pending && p.marks != nil && p.marks.Has(row.StreamPos) {
			style = p.theme.Bookmark
			sep = '★'
		}
	}
	x := 0
	for i := len(label); i < rank && x < len(line); i++ {
		line[x] = Cell{Ch: ' ', Style: style}
		x++
	}
	for _, ch := range label {
		if x >= len(line) {
			return x
		}
		line[x] = Cell{Ch: ch, Style: style}
		x++
	}
	if x < len(line) {
		line[x] = Cell{Ch: sep, Style: style}
		x++
	}
	return x
}

func (p *Pane) drawText(line []Cell, row rows.Packet, selected bool) {
	base := p.theme.Text
	switch {
	case row.Pending:
		base = p.theme.Pending
	case row.Bookmark:
		base = p.theme.Bookmark
	}
	if row.Pending && !row.HasText() {
		if len(line) > 0 {
			line[0] = Cell{Ch: []rune(pendingText)[0], Style: base}
		}
		return
	}

	r := modifier.NewRow(row.String(), row.StreamPos)
	var styles []tcell.Style
	if !row.Pending && !row.Bookmark && p.pipe != nil {
		styles = spanStyles(r.Plain, p.pipe.Process(r))
	}

	x := 0
	for i, ch := range []rune(r.Plain) {
		if ch == '\t' {
			ch = ' '
		}
		w := runewidth.RuneWidth(ch)
		if w == 0 {
			continue
		}
		if x+w > len(line) {
			break
		}
		st := base
		if i < len(styles) && styles[i] != tcell.StyleDefault {
			st = styles[i]
		}
		if selected {
			st = st.Reverse(true)
		}
		line[x] = Cell{Ch: ch, Style: st}
		for k := 1; k < w; k++ {
			line[x+k] = Cell{Ch: 0, Style: st}
		}
		x += w
	}
	if selected {
		for ; x < len(line); x++ {
			line[x].Style = p.theme.Cursor
		}
	}
}

// spanStyles expands spans into one style per rune.
func spanStyles(plain string, spans []modifier.Span) []tcell.Style {
	if len(spans) == 0 {
		return nil
	}
	out := make([]tcell.Style, len([]rune(plain)))
	for _, s := range spans {
		for i := max(s.Start, 0); i <= s.End && i < len(out); i++ {
			out[i] = s.Style
		}
	}
	return out
}
