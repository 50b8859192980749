// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/store/source.go
// Summary: Row sources over the store for the stream and search views.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/framegrace/texelog/apps/texelog/rows"
	"github.com/framegrace/texelog/apps/texelog/window"
)

// StreamSource serves every line in id order.
type StreamSource struct {
	s *Store
}

// Stream returns the row source over all lines.
func (s *Store) Stream() *StreamSource {
	return &StreamSource{s: s}
}

func (src *StreamSource) Count(ctx context.Context) (int64, error) {
	return src.s.Count(ctx)
}

func (src *StreamSource) Fetch(ctx context.Context, start, end int64) (rows.Chunk, error) {
	total, err := src.s.Count(ctx)
	if err != nil {
		return rows.Chunk{}, err
	}
	end = min(end, total-1)
	if start < 0 || end < start {
		return rows.Chunk{Start: start, End: start - 1, Total: total}, nil
	}

	src.s.mu.RLock()
	defer src.s.mu.RUnlock()
	q, err := src.s.db.QueryContext(ctx,
		"SELECT id, source_id, content FROM lines WHERE id >= ? AND id <= ? ORDER BY id",
		start, end)
	if err != nil {
		return rows.Chunk{}, fmt.Errorf("fetch [%d,%d] failed: %w", start, end, err)
	}
	defer q.Close()
	return scanChunk(q, start, total)
}

// Resolve returns the positions that are lines of the store.
func (src *StreamSource) Resolve(ctx context.Context, positions []int64) ([]int64, error) {
	total, err := src.s.Count(ctx)
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, pos := range positions {
		if pos >= 0 && pos < total {
			out = append(out, pos)
		}
	}
	return out, nil
}

// SearchSource serves the lines matching a query, numbered by match order.
type SearchSource struct {
	s     *Store
	query string
}

// Search returns a row source over lines containing query. Queries of three
// or more characters use the trigram index, shorter ones a LIKE scan.
func (s *Store) Search(query string) *SearchSource {
	return &SearchSource{s: s, query: query}
}

// Query returns the search text.
func (src *SearchSource) Query() string {
	return src.query
}

func (src *SearchSource) usesIndex() bool {
	return utf8.RuneCountInString(src.query) >= 3
}

func (src *SearchSource) where() (string, string) {
	if src.usesIndex() {
		return "id IN (SELECT rowid FROM lines_fts WHERE lines_fts MATCH ?)",
			`"` + strings.ReplaceAll(src.query, `"`, `""`) + `"`
	}
	like := "%" + strings.ReplaceAll(strings.ReplaceAll(strings.ReplaceAll(src.query,
		`\`, `\\`), "%", `\%`), "_", `\_`) + "%"
	return `content LIKE ? ESCAPE '\'`, like
}

func (src *SearchSource) Count(ctx context.Context) (int64, error) {
	if src.query == "" {
		return 0, nil
	}
	cond, arg := src.where()
	src.s.mu.RLock()
	defer src.s.mu.RUnlock()
	var n int64
	if err := src.s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lines WHERE "+cond, arg).Scan(&n); err != nil {
		return 0, fmt.Errorf("search count failed: %w", err)
	}
	return n, nil
}

func (src *SearchSource) Fetch(ctx context.Context, start, end int64) (rows.Chunk, error) {
	total, err := src.Count(ctx)
	if err != nil {
		return rows.Chunk{}, err
	}
	end = min(end, total-1)
	if start < 0 || end < start {
		return rows.Chunk{Start: start, End: start - 1, Total: total}, nil
	}

	cond, arg := src.where()
	src.s.mu.RLock()
	defer src.s.mu.RUnlock()
	q, err := src.s.db.QueryContext(ctx,
		"SELECT id, source_id, content FROM lines WHERE "+cond+" ORDER BY id LIMIT ? OFFSET ?",
		arg, end-start+1, start)
	if err != nil {
		return rows.Chunk{}, fmt.Errorf("search fetch [%d,%d] failed: %w", start, end, err)
	}
	defer q.Close()
	return scanChunk(q, start, total)
}

// resolveBatch bounds the host parameters of one Resolve query.
const resolveBatch = 500

// Resolve returns the positions whose lines match the query.
func (src *SearchSource) Resolve(ctx context.Context, positions []int64) ([]int64, error) {
	if src.query == "" || len(positions) == 0 {
		return nil, nil
	}
	cond, arg := src.where()
	src.s.mu.RLock()
	defer src.s.mu.RUnlock()
	var out []int64
	for len(positions) > 0 {
		n := min(len(positions), resolveBatch)
		args := make([]any, 0, n+1)
		args = append(args, arg)
		for _, pos := range positions[:n] {
			args = append(args, pos)
		}
		positions = positions[n:]

		q, err := src.s.db.QueryContext(ctx,
			"SELECT id FROM lines WHERE "+cond+" AND id IN (?"+strings.Repeat(",?", n-1)+") ORDER BY id",
			args...)
		if err != nil {
			return nil, fmt.Errorf("search resolve failed: %w", err)
		}
		for q.Next() {
			var id int64
			if err := q.Scan(&id); err != nil {
				q.Close()
				return nil, fmt.Errorf("scan failed: %w", err)
			}
			out = append(out, id)
		}
		err = q.Err()
		q.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scanChunk encodes query rows into a raw block starting at start.
func scanChunk(q *sql.Rows, start, total int64) (rows.Chunk, error) {
	var lines []string
	for q.Next() {
		var (
			id       int64
			sourceID int32
			content  string
		)
		if err := q.Scan(&id, &sourceID, &content); err != nil {
			return rows.Chunk{}, fmt.Errorf("scan failed: %w", err)
		}
		lines = append(lines, rows.Encode(content, id, sourceID))
	}
	if err := q.Err(); err != nil {
		return rows.Chunk{}, err
	}
	return rows.Chunk{
		Start: start,
		End:   start + int64(len(lines)) - 1,
		Data:  rows.EncodeBlock(lines),
		Total: total,
	}, nil
}

var (
	_ window.RowSource        = (*StreamSource)(nil)
	_ window.RowSource        = (*SearchSource)(nil)
	_ window.PositionResolver = (*StreamSource)(nil)
	_ window.PositionResolver = (*SearchSource)(nil)
)
