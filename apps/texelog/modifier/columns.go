// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/modifier/columns.go
// Summary: Styles delimiter separated columns.

package modifier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
)

// ErrUnbalanced is returned for rows whose column layout does not parse.
var ErrUnbalanced = errors.New("unbalanced delimiters")

// Columns colours each column of delimiter separated rows.
type Columns struct {
	delim  string
	count  int
	styles []tcell.Style
}

// NewColumns creates a Breakable modifier splitting rows on delim. With
// count > 0 every row must have exactly count columns.
func NewColumns(delim string, count int, styles ...tcell.Style) *Columns {
	if delim == "" {
		delim = "\t"
	}
	return &Columns{delim: delim, count: count, styles: styles}
}

func (m *Columns) Name() string { return "columns" }
func (m *Columns) Kind() Kind   { return Breakable }

func (m *Columns) Ranges(row Row) ([]Span, error) {
	if len(m.styles) == 0 {
		return nil, nil
	}
	parts := strings.Split(row.Plain, m.delim)
	if m.count > 0 && len(parts) != m.count {
		return nil, fmt.Errorf("%w: %d columns, want %d", ErrUnbalanced, len(parts), m.count)
	}
	delimLen := utf8.RuneCountInString(m.delim)
	var out []Span
	pos := 0
	for i, part := range parts {
		n := utf8.RuneCountInString(part)
		if n > 0 {
			out = append(out, Span{
				Start: pos,
				End:   pos + n - 1,
				Style: m.styles[i%len(m.styles)],
				Class: "col-" + strconv.Itoa(i),
			})
		}
		pos += n + delimLen
	}
	return out, nil
}
