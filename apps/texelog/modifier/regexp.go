// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/modifier/regexp.go
// Summary: Pattern match modifier for search, filters and charts.

package modifier

import (
	"fmt"
	"regexp"

	"github.com/gdamore/tcell/v2"
)

// Request is one pattern with its styling.
type Request struct {
	Pattern       string
	CaseSensitive bool
	// Literal matches Pattern as plain text.
	Literal bool
	Style   tcell.Style
	Class   string
}

// Regexp marks every match of its requests.
type Regexp struct {
	name string
	kind Kind
	reqs []Request
	res  []*regexp.Regexp
}

// NewRegexp compiles reqs into a Match modifier called name.
func NewRegexp(name string, reqs ...Request) (*Regexp, error) {
	m := &Regexp{name: name, kind: Match, reqs: reqs}
	for _, req := range reqs {
		re, err := compile(req)
		if err != nil {
			return nil, fmt.Errorf("modifier %s: %w", name, err)
		}
		m.res = append(m.res, re)
	}
	return m, nil
}

func compile(req Request) (*regexp.Regexp, error) {
	pattern := req.Pattern
	if req.Literal {
		pattern = regexp.QuoteMeta(pattern)
	}
	if !req.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func (m *Regexp) Name() string { return m.name }
func (m *Regexp) Kind() Kind   { return m.kind }

// Requests returns the requests the modifier was built from.
func (m *Regexp) Requests() []Request {
	out := make([]Request, len(m.reqs))
	copy(out, m.reqs)
	return out
}

func (m *Regexp) Ranges(row Row) ([]Span, error) {
	if len(m.res) == 0 || row.Plain == "" {
		return nil, nil
	}
	var idx []int
	var out []Span
	for i, re := range m.res {
		matches := re.FindAllStringIndex(row.Plain, -1)
		if len(matches) == 0 {
			continue
		}
		if idx == nil {
			idx = runeOffsets(row.Plain)
		}
		for _, loc := range matches {
			if loc[1] <= loc[0] {
				continue
			}
			out = append(out, Span{
				Start: idx[loc[0]],
				End:   idx[loc[1]] - 1,
				Style: m.reqs[i].Style,
				Class: m.reqs[i].Class,
			})
		}
	}
	return out, nil
}
