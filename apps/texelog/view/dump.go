// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/view/dump.go
// Summary: Writes rendered rows to a stream for non-interactive output.

package view

import (
	"bufio"
	"fmt"
	"io"

	"github.com/framegrace/texelog/apps/texelog/bookmarks"
	"github.com/framegrace/texelog/apps/texelog/modifier"
	"github.com/framegrace/texelog/apps/texelog/rows"
)

// DumpOptions controls WriteRows.
type DumpOptions struct {
	Pipeline *modifier.Pipeline
	Tagger   modifier.Tagger
	// Marks stars normal rows whose stream position is bookmarked.
	Marks *bookmarks.Set
	// Rank pads stream positions to at least this many digits.
	Rank int
}

// WriteRows writes one line per packet: the stream position padded to the
// rank, then the text rendered through the pipeline. Bookmark rows and
// bookmarked rows are marked with '*'.
func WriteRows(w io.Writer, packets []rows.Packet, opts DumpOptions) error {
	t := opts.Tagger
	if t == nil {
		t = modifier.ANSITagger{}
	}
	bw := bufio.NewWriter(w)
	for _, p := range packets {
		r := modifier.NewRow(p.String(), p.StreamPos)
		text := t.Text(r.Plain)
		if opts.Pipeline != nil && !p.Bookmark && !p.Pending {
			text = opts.Pipeline.Render(r, t)
		}
		mark := ' '
		if p.Bookmark || (!p.Pending && opts.Marks != nil && opts.Marks.Has(p.StreamPos)) {
			mark = '*'
		}
		if _, err := fmt.Fprintf(bw, "%*d%c %s\n", max(p.Rank, opts.Rank), p.StreamPos, mark, text); err != nil {
			return err
		}
	}
	return bw.Flush()
}
