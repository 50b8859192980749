// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/store/annotations.go
// Summary: Persistence for bookmarks and user notes.

package store

import (
	"context"
	"fmt"

	"github.com/framegrace/texelog/apps/texelog/bookmarks"
)

// Note is a stored comment covering rune offsets across rows.
type Note struct {
	ID          string
	StartPos    int64
	StartOffset int
	EndPos      int64
	EndOffset   int
	Text        string
}

// SaveBookmark inserts or replaces b.
func (s *Store) SaveBookmark(ctx context.Context, b bookmarks.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO bookmarks (stream_pos, text, source_id) VALUES (?, ?, ?)",
		b.StreamPos, b.Text, b.SourceID)
	if err != nil {
		return fmt.Errorf("save bookmark %d: %w", b.StreamPos, err)
	}
	return nil
}

// DeleteBookmark removes the bookmark at pos, if any.
func (s *Store) DeleteBookmark(ctx context.Context, pos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE stream_pos = ?", pos); err != nil {
		return fmt.Errorf("delete bookmark %d: %w", pos, err)
	}
	return nil
}

// Bookmarks returns every stored bookmark ordered by position.
func (s *Store) Bookmarks(ctx context.Context) ([]bookmarks.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, err := s.db.QueryContext(ctx, "SELECT stream_pos, text, source_id FROM bookmarks ORDER BY stream_pos")
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}
	defer q.Close()
	var out []bookmarks.Bookmark
	for q.Next() {
		var b bookmarks.Bookmark
		if err := q.Scan(&b.StreamPos, &b.Text, &b.SourceID); err != nil {
			return nil, fmt.Errorf("load bookmarks: %w", err)
		}
		out = append(out, b)
	}
	return out, q.Err()
}

// SaveNote inserts or replaces n.
func (s *Store) SaveNote(ctx context.Context, n Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO notes (id, start_pos, start_offset, end_pos, end_offset, text)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.StartPos, n.StartOffset, n.EndPos, n.EndOffset, n.Text)
	if err != nil {
		return fmt.Errorf("save note %s: %w", n.ID, err)
	}
	return nil
}

// DeleteNote removes the note with id.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	return nil
}

// Notes returns every stored note ordered by start.
func (s *Store) Notes(ctx context.Context) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, err := s.db.QueryContext(ctx,
		"SELECT id, start_pos, start_offset, end_pos, end_offset, text FROM notes ORDER BY start_pos, start_offset, id")
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	defer q.Close()
	var out []Note
	for q.Next() {
		var n Note
		if err := q.Scan(&n.ID, &n.StartPos, &n.StartOffset, &n.EndPos, &n.EndOffset, &n.Text); err != nil {
			return nil, fmt.Errorf("load notes: %w", err)
		}
		out = append(out, n)
	}
	return out, q.Err()
}
