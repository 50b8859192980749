// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/modifier/pipeline.go
// Summary: Runs modifiers in priority order and resolves conflicts.

package modifier

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// Pipeline holds the active modifiers. Safe for concurrent use.
type Pipeline struct {
	mu       sync.RWMutex
	mods     []Modifier
	failures atomic.Int64
}

// NewPipeline creates a pipeline with the given modifiers.
func NewPipeline(mods ...Modifier) *Pipeline {
	p := &Pipeline{}
	for _, m := range mods {
		p.Set(m)
	}
	return p
}

// Set adds m, replacing any modifier with the same name.
func (p *Pipeline) Set(m Modifier) {
	if m == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.mods {
		if cur.Name() == m.Name() {
			p.mods[i] = m
			return
		}
	}
	p.mods = append(p.mods, m)
}

// Remove drops the modifier called name.
func (p *Pipeline) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.mods {
		if cur.Name() == name {
			p.mods = append(p.mods[:i:i], p.mods[i+1:]...)
			return true
		}
	}
	return false
}

// Modifiers returns the modifiers in priority order.
func (p *Pipeline) Modifiers() []Modifier {
	p.mu.RLock()
	out := make([]Modifier, len(p.mods))
	copy(out, p.mods)
	p.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

// Failures returns how many rows fell back to plain text.
func (p *Pipeline) Failures() int64 {
	return p.failures.Load()
}

// Process returns the committed spans of row, sorted by Start and never
// overlapping. A failing modifier makes the whole row plain: nil is
// returned and the failure is logged.
func (p *Pipeline) Process(row Row) (spans []Span) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(row, fmt.Errorf("panic: %v", r))
			spans = nil
		}
	}()

	n := utf8.RuneCountInString(row.Plain)
	if n == 0 {
		return nil
	}
	var committed []Span
	for _, m := range p.Modifiers() {
		ranges, err := m.Ranges(row)
		if err != nil {
			p.fail(row, fmt.Errorf("%s: %w", m.Name(), err))
			return nil
		}
		ranges = clip(ranges, n)
		ranges = dropNested(ranges)
		ranges = firstWins(ranges)
		ranges = obey(ranges, committed)
		committed = commit(committed, ranges)
	}
	return committed
}

// Render returns row.Plain with the committed spans injected by t.
func (p *Pipeline) Render(row Row, t Tagger) string {
	return Inject(row.Plain, p.Process(row), t)
}

func (p *Pipeline) fail(row Row, err error) {
	n := p.failures.Add(1)
	if n <= 10 || n%1000 == 0 {
		log.Printf("[MODIFIER] row %d rendered plain: %v", row.StreamPos, err)
	}
}

// clip drops empty ranges and clamps the rest to [0, n-1].
func clip(in []Span, n int) []Span {
	out := in[:0:0]
	for _, s := range in {
		s.Start = max(s.Start, 0)
		s.End = min(s.End, n-1)
		if s.End < s.Start {
			continue
		}
		out = append(out, s)
	}
	return out
}

// dropNested removes ranges fully contained in another range of the same
// modifier. Of two identical ranges the first is kept.
func dropNested(in []Span) []Span {
	out := make([]Span, 0, len(in))
	for i, s := range in {
		nested := false
		for j, o := range in {
			if i == j || !o.contains(s) {
				continue
			}
			if o.Start == s.Start && o.End == s.End && j > i {
				continue
			}
			nested = true
			break
		}
		if !nested {
			out = append(out, s)
		}
	}
	return out
}

// firstWins resolves overlaps left to right: a range overlapping an
// earlier accepted one is dropped.
func firstWins(in []Span) []Span {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Start < in[j].Start })
	out := make([]Span, 0, len(in))
	for _, s := range in {
		if len(out) > 0 && out[len(out)-1].overlaps(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// obey trims ranges against the already committed ones. A range inside a
// committed one is dropped, a partial overlap is cut back to the free part
// and a range around a committed one is split.
func obey(in, committed []Span) []Span {
	if len(committed) == 0 {
		return in
	}
	var out []Span
	for _, s := range in {
		pieces := []Span{s}
		for _, c := range committed {
			var next []Span
			for _, piece := range pieces {
				next = append(next, subtract(piece, c)...)
			}
			pieces = next
			if len(pieces) == 0 {
				break
			}
		}
		out = append(out, pieces...)
	}
	return out
}

func subtract(s, c Span) []Span {
	if !s.overlaps(c) {
		return []Span{s}
	}
	var out []Span
	if s.Start < c.Start {
		left := s
		left.End = c.Start - 1
		out = append(out, left)
	}
	if s.End > c.End {
		right := s
		right.Start = c.End + 1
		out = append(out, right)
	}
	return out
}

func commit(committed, add []Span) []Span {
	if len(add) == 0 {
		return committed
	}
	out := make([]Span, 0, len(committed)+len(add))
	out = append(out, committed...)
	out = append(out, add...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
