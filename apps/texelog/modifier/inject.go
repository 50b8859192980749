// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/modifier/inject.go
// Summary: Splices open/close tags for spans into row text.

package modifier

import (
	"html"
	"sort"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Tagger produces the markup around spans.
type Tagger interface {
	Open(s Span) string
	Close(s Span) string
	// Text escapes literal row text for the target markup.
	Text(s string) string
}

// Injection is a tag inserted before the rune at Offset.
type Injection struct {
	Offset int
	Close  bool
	Tag    string
}

// Injections returns two injections per span, sorted by offset with closing
// tags before opening tags at the same offset.
func Injections(spans []Span, t Tagger) []Injection {
	out := make([]Injection, 0, 2*len(spans))
	for _, s := range spans {
		out = append(out,
			Injection{Offset: s.Start, Tag: t.Open(s)},
			Injection{Offset: s.End + 1, Close: true, Tag: t.Close(s)},
		)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Offset != out[j].Offset {
			return out[i].Offset < out[j].Offset
		}
		return out[i].Close && !out[j].Close
	})
	return out
}

// Inject splices the tags for spans into plain in one left-to-right pass.
func Inject(plain string, spans []Span, t Tagger) string {
	if len(spans) == 0 {
		return t.Text(plain)
	}
	runes := []rune(plain)
	var sb strings.Builder
	sb.Grow(len(plain) + 16*len(spans))
	cursor := 0
	for _, inj := range Injections(spans, t) {
		at := min(max(inj.Offset, cursor), len(runes))
		sb.WriteString(t.Text(string(runes[cursor:at])))
		sb.WriteString(inj.Tag)
		cursor = at
	}
	sb.WriteString(t.Text(string(runes[cursor:])))
	return sb.String()
}

// ANSITagger renders spans as SGR escape sequences.
type ANSITagger struct{}

func (ANSITagger) Open(s Span) string {
	return SGR(s.Style)
}

func (ANSITagger) Close(Span) string {
	return "\x1b[0m"
}

func (ANSITagger) Text(s string) string {
	return s
}

// ClassTagger renders spans as HTML span elements named by class.
type ClassTagger struct {
	// Prefix is prepended to every class name.
	Prefix string
}

func (t ClassTagger) Open(s Span) string {
	class := s.Class
	if class == "" {
		class = "mark"
	}
	return `<span class="` + html.EscapeString(t.Prefix+class) + `">`
}

func (ClassTagger) Close(Span) string {
	return "</span>"
}

func (ClassTagger) Text(s string) string {
	return html.EscapeString(s)
}

// SGR returns the escape sequence selecting style on a terminal.
func SGR(style tcell.Style) string {
	fg, bg, attrs := style.Decompose()
	params := []string{"0"}
	for _, a := range []struct {
		mask tcell.AttrMask
		code string
	}{
		{tcell.AttrBold, "1"},
		{tcell.AttrDim, "2"},
		{tcell.AttrItalic, "3"},
		{tcell.AttrUnderline, "4"},
		{tcell.AttrBlink, "5"},
		{tcell.AttrReverse, "7"},
		{tcell.AttrStrikeThrough, "9"},
	} {
		if attrs&a.mask != 0 {
			params = append(params, a.code)
		}
	}
	params = appendColor(params, fg, "38")
	params = appendColor(params, bg, "48")
	return "\x1b[" + strings.Join(params, ";") + "m"
}

func appendColor(params []string, c tcell.Color, lead string) []string {
	if c == tcell.ColorDefault || !c.Valid() {
		return params
	}
	if c.IsRGB() {
		r, g, b := c.RGB()
		return append(params, lead, "2",
			strconv.Itoa(int(r)), strconv.Itoa(int(g)), strconv.Itoa(int(b)))
	}
	if n := int(c - tcell.ColorValid); n >= 0 && n < 256 {
		return append(params, lead, "5", strconv.Itoa(n))
	}
	return params
}
