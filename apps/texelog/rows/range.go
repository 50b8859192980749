// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/rows/range.go
// Summary: Inclusive integer interval used for frames and stored spans.

package rows

import "fmt"

// Range is an inclusive [Start, End] interval.
// EmptyRange ({-1,-1}) means "nothing yet".
type Range struct {
	Start int64
	End   int64
}

// EmptyRange is the sentinel for an unset range.
var EmptyRange = Range{Start: -1, End: -1}

// NewRange returns the range [start, end].
func NewRange(start, end int64) Range {
	return Range{Start: start, End: end}
}

// IsEmpty reports whether the range holds no index. Reversed and negative
// ranges are empty.
func (r Range) IsEmpty() bool {
	return r.Start < 0 || r.End < r.Start
}

// Len returns the number of indices in the range.
func (r Range) Len() int64 {
	if r.IsEmpty() {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether n lies within the range.
func (r Range) Contains(n int64) bool {
	return !r.IsEmpty() && n >= r.Start && n <= r.End
}

// Covers reports whether other lies fully within r.
func (r Range) Covers(other Range) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return false
	}
	return other.Start >= r.Start && other.End <= r.End
}

// Intersect returns the overlap of r and other.
func (r Range) Intersect(other Range) (Range, bool) {
	if r.IsEmpty() || other.IsEmpty() {
		return EmptyRange, false
	}
	out := Range{Start: max(r.Start, other.Start), End: min(r.End, other.End)}
	if out.End < out.Start {
		return EmptyRange, false
	}
	return out, true
}

// Clamp limits both ends to [lo, hi].
func (r Range) Clamp(lo, hi int64) Range {
	return Range{Start: min(max(r.Start, lo), hi), End: min(max(r.End, lo), hi)}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}
