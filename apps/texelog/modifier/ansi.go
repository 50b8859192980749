// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/modifier/ansi.go
// Summary: Maps SGR escape sequences in raw rows to styled ranges.

package modifier

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/gdamore/tcell/v2"
)

// walkRaw splits raw into escape sequences and text with the x/ansi
// decoder. seq is called for every escape sequence with the parser holding
// its command and parameters; text for everything that stays visible.
// Row.Plain is built from the same walk, so offsets always agree.
func walkRaw(raw string, seq func(s string, p *ansi.Parser), text func(s string)) {
	p := ansi.GetParser()
	defer ansi.PutParser(p)
	var state byte
	for len(raw) > 0 {
		s, _, n, next := ansi.DecodeSequence(raw, state, p)
		if n <= 0 {
			s, n = raw[:1], 1
		}
		state = next
		if isSequence(s) {
			if seq != nil {
				seq(s, p)
			}
		} else {
			text(s)
		}
		raw = raw[n:]
	}
}

// isSequence reports whether a decoded piece is an escape sequence rather
// than a grapheme or a lone control byte.
func isSequence(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case ansi.ESC, ansi.CSI, ansi.DCS, ansi.OSC, ansi.APC, ansi.SOS, ansi.PM:
		return true
	}
	return false
}

// stripSequences returns raw without escape sequences.
func stripSequences(raw string) string {
	if strings.IndexByte(raw, ansi.ESC) < 0 && utf8.ValidString(raw) {
		return raw
	}
	var sb strings.Builder
	sb.Grow(len(raw))
	walkRaw(raw, nil, func(s string) { sb.WriteString(s) })
	return sb.String()
}

// ANSI turns colour escapes of the raw row into Breakable ranges so
// search and comment styling can override them.
type ANSI struct{}

// NewANSI returns the ANSI modifier.
func NewANSI() *ANSI { return &ANSI{} }

func (*ANSI) Name() string { return "ansi" }
func (*ANSI) Kind() Kind   { return Breakable }

func (*ANSI) Ranges(row Row) ([]Span, error) {
	if !strings.ContainsRune(row.Raw, ansi.ESC) {
		return nil, nil
	}
	var out []Span
	style := tcell.StyleDefault
	segStart, pos := 0, 0
	flush := func() {
		if pos > segStart && style != tcell.StyleDefault {
			out = append(out, Span{Start: segStart, End: pos - 1, Style: style, Class: "ansi"})
		}
		segStart = pos
	}
	walkRaw(row.Raw, func(s string, p *ansi.Parser) {
		cmd := ansi.Cmd(p.Command())
		if !ansi.HasCsiPrefix(s) || cmd.Final() != 'm' || cmd.Prefix() != 0 || cmd.Intermediate() != 0 {
			return
		}
		flush()
		style = applySGR(style, p.Params())
	}, func(s string) {
		pos += utf8.RuneCountInString(s)
	})
	flush()

	if want := utf8.RuneCountInString(row.Plain); pos != want {
		return nil, fmt.Errorf("stripped length %d, row has %d runes", pos, want)
	}
	return out, nil
}

// applySGR applies the parameters of one SGR sequence to style.
func applySGR(style tcell.Style, params ansi.Params) tcell.Style {
	if len(params) == 0 {
		return tcell.StyleDefault
	}
	for i := 0; i < len(params); i++ {
		n := params[i].Param(0)
		switch {
		case n == 0:
			style = tcell.StyleDefault
		case n == 1:
			style = style.Bold(true)
		case n == 2:
			style = style.Dim(true)
		case n == 3:
			style = style.Italic(true)
		case n == 4:
			style = style.Underline(true)
		case n == 5:
			style = style.Blink(true)
		case n == 7:
			style = style.Reverse(true)
		case n == 9:
			style = style.StrikeThrough(true)
		case n == 22:
			style = style.Bold(false).Dim(false)
		case n == 23:
			style = style.Italic(false)
		case n == 24:
			style = style.Underline(false)
		case n == 25:
			style = style.Blink(false)
		case n == 27:
			style = style.Reverse(false)
		case n == 29:
			style = style.StrikeThrough(false)
		case n >= 30 && n <= 37:
			style = style.Foreground(tcell.PaletteColor(n - 30))
		case n == 39:
			style = style.Foreground(tcell.ColorDefault)
		case n >= 40 && n <= 47:
			style = style.Background(tcell.PaletteColor(n - 40))
		case n == 49:
			style = style.Background(tcell.ColorDefault)
		case n >= 90 && n <= 97:
			style = style.Foreground(tcell.PaletteColor(n - 90 + 8))
		case n >= 100 && n <= 107:
			style = style.Background(tcell.PaletteColor(n - 100 + 8))
		case n == 38 || n == 48:
			c, used := extendedColor(params, i)
			i += used
			if c == tcell.ColorDefault {
				continue
			}
			if n == 38 {
				style = style.Foreground(c)
			} else {
				style = style.Background(c)
			}
		}
	}
	return style
}

// extendedColor parses the colour following a 38/48 parameter at i, in
// either the "38;5;n" / "38;2;r;g;b" or the colon "38:2::r:g:b" form.
// It returns the colour and how many parameters after i it consumed.
func extendedColor(params ansi.Params, i int) (tcell.Color, int) {
	var vals []int
	if params[i].HasMore() {
		// Colon form: every sub-parameter belongs to this colour.
		for j := i + 1; j < len(params); j++ {
			vals = append(vals, params[j].Param(-1))
			if !params[j].HasMore() {
				break
			}
		}
		if len(vals) >= 5 && vals[0] == 2 {
			// Drop the colour space id.
			vals = append(vals[:1], vals[2:]...)
		}
	} else {
		for j := i + 1; j < len(params) && j <= i+4; j++ {
			vals = append(vals, params[j].Param(-1))
		}
	}
	if len(vals) == 0 {
		return tcell.ColorDefault, 0
	}
	valid := func(k int) int {
		if k >= len(vals) || vals[k] < 0 || vals[k] > 255 {
			return -1
		}
		return vals[k]
	}
	consumed := func(n int) int {
		if params[i].HasMore() {
			return countSub(params, i)
		}
		return min(n, len(vals))
	}
	switch vals[0] {
	case 5:
		if idx := valid(1); idx >= 0 {
			return tcell.PaletteColor(idx), consumed(2)
		}
		return tcell.ColorDefault, consumed(2)
	case 2:
		r, g, b := valid(1), valid(2), valid(3)
		if r < 0 || g < 0 || b < 0 {
			return tcell.ColorDefault, consumed(4)
		}
		return tcell.NewRGBColor(int32(r), int32(g), int32(b)), consumed(4)
	}
	return tcell.ColorDefault, consumed(1)
}

// countSub returns how many sub-parameters follow the parameter at i.
func countSub(params ansi.Params, i int) int {
	n := 0
	for j := i; j < len(params) && params[j].HasMore(); j++ {
		n++
	}
	return n
}
