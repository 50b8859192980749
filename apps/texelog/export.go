// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/export.go
// Summary: Writes stream or search rows through the caches for non-interactive use.

package texelog

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/framegrace/texelog/apps/texelog/modifier"
	"github.com/framegrace/texelog/apps/texelog/rows"
	"github.com/framegrace/texelog/apps/texelog/view"
	"github.com/framegrace/texelog/apps/texelog/window"
)

const (
	exportBlock = 500
	exportRetry = 50 * time.Millisecond
)

// ExportOptions selects what Export writes.
type ExportOptions struct {
	// Search exports the search results instead of the stream.
	Search bool
	// Range limits the slots written. rows.EmptyRange writes everything.
	Range  rows.Range
	Tagger modifier.Tagger
}

// Export writes the selected rows to w, loading them block by block.
func (s *Session) Export(ctx context.Context, w io.Writer, opts ExportOptions) error {
	c := s.stream
	if opts.Search {
		c = s.search
	}
	if opts.Tagger == nil {
		opts.Tagger = modifier.ANSITagger{}
	}
	total := c.State().TotalWithBookmarks
	if total == 0 {
		return nil
	}
	r := rows.NewRange(0, total-1)
	if !opts.Range.IsEmpty() {
		var ok bool
		if r, ok = r.Intersect(opts.Range); !ok {
			return nil
		}
	}

	// A block larger than the ceiling could never be fully resident.
	block := min(int64(exportBlock), c.Config().MaxStored)
	for start := r.Start; start <= r.End; start += block {
		packets, err := collect(ctx, c, rows.NewRange(start, min(start+block-1, r.End)))
		if err != nil {
			return err
		}
		err = view.WriteRows(w, packets, view.DumpOptions{
			Pipeline: s.pipe,
			Tagger:   opts.Tagger,
			Marks:    s.marks,
			Rank:     s.stream.Rank(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type loadSignal chan struct{}

func (l loadSignal) OnEvent(ev window.Event) {
	switch ev.Type {
	case window.EventRangeLoaded, window.EventStateUpdated, window.EventReset:
		select {
		case l <- struct{}{}:
		default:
		}
	}
}

// collect waits until every row of r is loaded.
func collect(ctx context.Context, c *window.Cache, r rows.Range) ([]rows.Packet, error) {
	sig := make(loadSignal, 1)
	c.Subscribe(sig)
	defer c.Unsubscribe(sig)

	for {
		packets, err := c.GetRange(r)
		switch {
		case errors.Is(err, window.ErrStateChanged):
			continue
		case err != nil:
			return nil, err
		case !hasPending(packets):
			return packets, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sig:
		case <-time.After(exportRetry):
		}
	}
}

func hasPending(packets []rows.Packet) bool {
	for _, p := range packets {
		if p.Pending {
			return true
		}
	}
	return false
}
