// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/modifier/modifier.go
// Summary: Modifier contract and shared row helpers.
//
// A modifier scans one row and returns styled rune ranges. The Pipeline
// runs modifiers by kind priority (Above, Match, Breakable), lets each
// lower-priority modifier obey what higher ones already claimed, and
// renders the survivors as open/close injections.

package modifier

import (
	"log"
	"os"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/gdamore/tcell/v2"
)

var debugEnabled = os.Getenv("TEXELOG_DEBUG") != ""

func debugf(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[MODIFIER] "+format, args...)
	}
}

// Kind orders modifiers. Lower values win conflicts.
type Kind int

const (
	// Above claims its ranges unconditionally (user comments).
	Above Kind = iota
	// Match is normal match styling (search, filters, charts).
	Match
	// Breakable yields to everything else (ANSI colour, syntax).
	Breakable
)

func (k Kind) String() string {
	switch k {
	case Above:
		return "above"
	case Match:
		return "match"
	case Breakable:
		return "breakable"
	default:
		return "unknown"
	}
}

// Row is the input of a modifier.
type Row struct {
	// Raw is the row text as stored, possibly with escape sequences.
	Raw string
	// Plain is Raw without escape sequences. Span offsets index its runes.
	Plain string
	// StreamPos identifies the row in the underlying stream.
	StreamPos int64
}

// NewRow builds a Row from stored text.
func NewRow(raw string, streamPos int64) Row {
	return Row{Raw: raw, Plain: stripSequences(raw), StreamPos: streamPos}
}

// Width returns the display width of the row in cells.
func (r Row) Width() int {
	return ansi.StringWidth(r.Raw)
}

// Span is an inclusive rune range of Row.Plain with its styling.
type Span struct {
	Start int
	End   int
	Style tcell.Style
	// Class names the span for markup taggers.
	Class string
}

// Len returns the number of runes covered.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

func (s Span) contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

func (s Span) overlaps(o Span) bool {
	return s.Start <= o.End && o.Start <= s.End
}

// Modifier produces styled ranges for a row.
type Modifier interface {
	Name() string
	Kind() Kind
	Ranges(row Row) ([]Span, error)
}

// runeOffsets maps each byte offset of s (and len(s)) to its rune offset.
func runeOffsets(s string) []int {
	idx := make([]int, len(s)+1)
	n := 0
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		for j := 0; j < size; j++ {
			idx[i+j] = n
		}
		i += size
		n++
	}
	idx[len(s)] = n
	return idx
}
