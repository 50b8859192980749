// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/rows/packet.go
// Summary: Packet is the unit of cached row data.
//
// A packet carries two independent coordinates:
//
//	Slot      - position in the logical sequence the UI scrolls over,
//	            bookmarks included.
//	SourcePos - position in the row source's own bookmark-free sequence.
//
// StreamPos is the position of the originating log line as reported by the
// embedded marker. For the main stream it equals SourcePos; for a search
// result sequence it points back into the stream.

package rows

// Packet is one materialized (or pending) row.
type Packet struct {
	// Text is nil for pending placeholders that have nothing to show yet.
	Text *string

	Slot      int64
	SourcePos int64
	StreamPos int64
	SourceID  int32

	// Rank is the digit width of the largest known index.
	Rank int

	// Bookmark marks rows injected from the bookmark set.
	Bookmark bool

	// Pending marks placeholders synthesized for rows not yet loaded.
	Pending bool
}

// String returns the row text or "" for rows without text.
func (p Packet) String() string {
	if p.Text == nil {
		return ""
	}
	return *p.Text
}

// HasText reports whether the packet carries row text.
func (p Packet) HasText() bool {
	return p.Text != nil
}

// StrPtr returns a pointer to a copy of s.
func StrPtr(s string) *string {
	return &s
}

// Digits returns the decimal digit count of n (1 for n <= 9, including 0).
func Digits(n int64) int {
	if n < 0 {
		n = -n
	}
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}
