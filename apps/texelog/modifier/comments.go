// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/modifier/comments.go
// Summary: User comments anchored to row selections.

package modifier

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
)

// ErrInvalidComment is returned for comments whose end precedes their start.
var ErrInvalidComment = errors.New("comment end precedes start")

// Anchor is a rune offset within the row at StreamPos.
type Anchor struct {
	StreamPos int64
	Offset    int
}

func (a Anchor) before(b Anchor) bool {
	if a.StreamPos != b.StreamPos {
		return a.StreamPos < b.StreamPos
	}
	return a.Offset < b.Offset
}

// Comment covers the text from Start to End inclusive, possibly spanning rows.
type Comment struct {
	ID    string
	Start Anchor
	End   Anchor
	Text  string
	Style tcell.Style
}

// Comments is the set of user comments. It is an Above modifier.
type Comments struct {
	mu    sync.RWMutex
	items map[string]Comment
	style tcell.Style
}

// NewComments creates an empty comment set. style is used for comments
// without their own style.
func NewComments(style tcell.Style) *Comments {
	return &Comments{items: make(map[string]Comment), style: style}
}

func (c *Comments) Name() string { return "comments" }
func (c *Comments) Kind() Kind   { return Above }

// Add stores or replaces a comment.
func (c *Comments) Add(cm Comment) error {
	if cm.ID == "" {
		return fmt.Errorf("comment: empty id")
	}
	if cm.End.before(cm.Start) {
		return fmt.Errorf("comment %s: %w", cm.ID, ErrInvalidComment)
	}
	c.mu.Lock()
	c.items[cm.ID] = cm
	c.mu.Unlock()
	return nil
}

// Remove deletes the comment with id.
func (c *Comments) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	return true
}

// List returns all comments ordered by start anchor.
func (c *Comments) List() []Comment {
	c.mu.RLock()
	out := make([]Comment, 0, len(c.items))
	for _, cm := range c.items {
		out = append(out, cm)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start.before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Relevant returns the comments touching the row at streamPos.
func (c *Comments) Relevant(streamPos int64) []Comment {
	var out []Comment
	for _, cm := range c.List() {
		if streamPos < cm.Start.StreamPos || streamPos > cm.End.StreamPos {
			continue
		}
		out = append(out, cm)
	}
	return out
}

func (c *Comments) Ranges(row Row) ([]Span, error) {
	n := utf8.RuneCountInString(row.Plain)
	var out []Span
	for _, cm := range c.Relevant(row.StreamPos) {
		start, end := 0, n-1
		if cm.Start.StreamPos == row.StreamPos {
			start = cm.Start.Offset
		}
		if cm.End.StreamPos == row.StreamPos {
			end = cm.End.Offset
		}
		style := cm.Style
		if style == tcell.StyleDefault {
			style = c.style
		}
		out = append(out, Span{Start: start, End: end, Style: style, Class: "comment"})
	}
	return out, nil
}
