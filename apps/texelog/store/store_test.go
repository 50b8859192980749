// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/store/store_test.go
// Summary: Tests for the line store, its row sources and ingestion.

package store

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/framegrace/texelog/apps/texelog/rows"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "log.db"))
	cfg.BatchSize = 10
	cfg.BatchTimeout = 10 * time.Millisecond
	s, err := OpenWithConfig(cfg)
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func appendLines(t *testing.T, s *Store, lines ...string) {
	t.Helper()
	if _, err := s.Append(context.Background(), 1, lines...); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func numbered(n int, format string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(format, i)
	}
	return out
}

func TestStore_AppendAndCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Append(ctx, 2, "a", "b", "c")
	if err != nil || first != 0 {
		t.Fatalf("Append = %d, %v", first, err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(ctx); n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}
	first, _ = s.Append(ctx, 2, "d")
	if first != 3 {
		t.Errorf("second Append first id = %d, want 3", first)
	}
	s.Flush()

	l, err := s.Line(ctx, 3)
	if err != nil || l.Content != "d" || l.SourceID != 2 {
		t.Errorf("Line(3) = %+v, %v", l, err)
	}
	if _, err := s.Line(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("Line(99) err = %v", err)
	}
}

func TestStore_ReopenContinuesIds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	appendLines(t, s, "one", "two")
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	first, _ := s.Append(context.Background(), 0, "three")
	if first != 2 {
		t.Errorf("first id after reopen = %d, want 2", first)
	}
	s.Flush()
	got, _ := s.Search("three").Count(context.Background())
	if got != 1 {
		t.Errorf("search after reopen = %d, want 1", got)
	}
}

func TestStore_WatchReportsTotal(t *testing.T) {
	s := openTestStore(t)
	var total atomic.Int64
	s.Watch(func(n int64) { total.Store(n) })

	appendLines(t, s, numbered(25, "line %d")...)
	if got := total.Load(); got != 25 {
		t.Errorf("watched total = %d, want 25", got)
	}
}

func TestStore_ClosedRejectsAppend(t *testing.T) {
	s := openTestStore(t)
	s.Close()
	if _, err := s.Append(context.Background(), 0, "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := s.Flush(); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush err = %v, want ErrClosed", err)
	}
}

func TestStreamSource_Fetch(t *testing.T) {
	s := openTestStore(t)
	appendLines(t, s, numbered(20, "line %d")...)
	src := s.Stream()

	chunk, err := src.Fetch(context.Background(), 5, 8)
	if err != nil {
		t.Fatal(err)
	}
	if chunk.Total != 20 {
		t.Errorf("Total = %d, want 20", chunk.Total)
	}
	packets, skipped := rows.Parse(chunk)
	if skipped != 0 || len(packets) != 4 {
		t.Fatalf("parsed %d rows, %d skipped", len(packets), skipped)
	}
	for i, p := range packets {
		want := int64(5 + i)
		if p.SourcePos != want || p.StreamPos != want || p.String() != fmt.Sprintf("line %d", want) || p.SourceID != 1 {
			t.Errorf("row %d = %+v (%q)", i, p, p.String())
		}
	}
}

func TestStreamSource_FetchPastEnd(t *testing.T) {
	s := openTestStore(t)
	appendLines(t, s, numbered(5, "l%d")...)
	src := s.Stream()

	chunk, err := src.Fetch(context.Background(), 3, 100)
	if err != nil {
		t.Fatal(err)
	}
	if packets, _ := rows.Parse(chunk); len(packets) != 2 {
		t.Errorf("got %d rows, want 2", len(packets))
	}
	chunk, _ = src.Fetch(context.Background(), 50, 60)
	if packets, _ := rows.Parse(chunk); len(packets) != 0 || chunk.Total != 5 {
		t.Errorf("past end: %d rows, total %d", len(packets), chunk.Total)
	}
}

func TestSearchSource(t *testing.T) {
	s := openTestStore(t)
	lines := []string{
		"boot ok",
		"ERROR disk failure",
		"info start",
		"error: timeout",
		"warn: 50% full",
		"error again",
	}
	appendLines(t, s, lines...)
	ctx := context.Background()

	src := s.Search("error")
	n, err := src.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3", n, err)
	}
	chunk, err := src.Fetch(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	packets, _ := rows.Parse(chunk)
	if len(packets) != 2 {
		t.Fatalf("got %d rows", len(packets))
	}
	if packets[0].SourcePos != 1 || packets[0].StreamPos != 3 || packets[1].StreamPos != 5 {
		t.Errorf("positions = %+v / %+v", packets[0], packets[1])
	}

	short := s.Search("0%")
	if n, _ := short.Count(ctx); n != 1 {
		t.Errorf("short query count = %d, want 1", n)
	}
	if n, _ := s.Search("").Count(ctx); n != 0 {
		t.Errorf("empty query count = %d", n)
	}
	if n, _ := s.Search(`"quoted"`).Count(ctx); n != 0 {
		t.Errorf("quoted query count = %d", n)
	}
}

func TestStreamSource_ReservedBytesSurvive(t *testing.T) {
	s := openTestStore(t)
	odd := []string{"bin \x027\x02 data", "c \x03\x03 d", "dle \x10"}
	appendLines(t, s, "first")
	appendLines(t, s, odd...)
	appendLines(t, s, "last")

	chunk, err := s.Stream().Fetch(context.Background(), 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	packets, skipped := rows.Parse(chunk)
	if skipped != 0 || len(packets) != 5 {
		t.Fatalf("parsed %d rows, %d skipped; want 5, 0", len(packets), skipped)
	}
	for i, want := range odd {
		if got := packets[i+1]; got.String() != want || got.StreamPos != int64(i+1) {
			t.Errorf("row %d = %q at %d, want %q", i+1, got.String(), got.StreamPos, want)
		}
	}
}

func TestSources_Resolve(t *testing.T) {
	s := openTestStore(t)
	appendLines(t, s, "boot", "error one", "idle", "error two", "done")
	ctx := context.Background()

	got, err := s.Stream().Resolve(ctx, []int64{-1, 0, 4, 5, 99})
	if err != nil || fmt.Sprint(got) != "[0 4]" {
		t.Errorf("stream Resolve = %v, %v; want [0 4]", got, err)
	}
	got, err = s.Search("error").Resolve(ctx, []int64{0, 1, 2, 3})
	if err != nil || fmt.Sprint(got) != "[1 3]" {
		t.Errorf("search Resolve = %v, %v; want [1 3]", got, err)
	}
	got, err = s.Search("er").Resolve(ctx, []int64{1, 2})
	if err != nil || fmt.Sprint(got) != "[1]" {
		t.Errorf("short search Resolve = %v, %v; want [1]", got, err)
	}
	if got, _ := s.Search("").Resolve(ctx, []int64{1}); len(got) != 0 {
		t.Errorf("empty query resolved %v", got)
	}
}

func TestIngestReader(t *testing.T) {
	s := openTestStore(t)
	input := strings.Repeat("x\r\n", 300) + "last"
	n, err := s.IngestReader(context.Background(), strings.NewReader(input), 4)
	if err != nil || n != 301 {
		t.Fatalf("IngestReader = %d, %v", n, err)
	}
	s.Flush()
	l, _ := s.Line(context.Background(), 0)
	if l.Content != "x" || l.SourceID != 4 {
		t.Errorf("line 0 = %+v", l)
	}
	l, _ = s.Line(context.Background(), 300)
	if l.Content != "last" {
		t.Errorf("line 300 = %+v", l)
	}
}

func TestIngestCommand(t *testing.T) {
	if _, err := exec.LookPath("printf"); err != nil {
		t.Skip("printf not available")
	}
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := s.IngestCommand(ctx, "printf", []string{`one\ntwo\n`}, 7)
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	if n != 2 {
		t.Fatalf("ingested %d lines, want 2", n)
	}
	s.Flush()
	l, _ := s.Line(ctx, 1)
	if l.Content != "two" || l.SourceID != 7 {
		t.Errorf("line 1 = %+v", l)
	}
}
