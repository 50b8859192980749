// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/store/ingest.go
// Summary: Feeds lines from readers and child processes into the store.

package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
)

const (
	ingestBatch   = 256
	maxLineLength = 1 << 20
)

// IngestReader appends every line of r. It returns the number of lines read.
func (s *Store) IngestReader(ctx context.Context, r io.Reader, sourceID int32) (int64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var n int64
	pending := make([]string, 0, ingestBatch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if _, err := s.Append(ctx, sourceID, pending...); err != nil {
			return err
		}
		n += int64(len(pending))
		pending = pending[:0]
		return nil
	}

	for sc.Scan() {
		pending = append(pending, strings.TrimSuffix(sc.Text(), "\r"))
		if len(pending) == ingestBatch {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	if err := flush(); err != nil {
		return n, err
	}
	// Reading a pty whose child exited fails with EIO.
	if err := sc.Err(); err != nil && !errors.Is(err, syscall.EIO) {
		return n, fmt.Errorf("read failed: %w", err)
	}
	return n, nil
}

// IngestCommand runs name under a pseudo terminal and appends its output.
func (s *Store) IngestCommand(ctx context.Context, name string, args []string, sourceID int32) (int64, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 50, Cols: 200})
	if err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", name, err)
	}
	defer ptmx.Close()

	n, err := s.IngestReader(ctx, ptmx, sourceID)
	if werr := cmd.Wait(); werr != nil && err == nil {
		var exitErr *exec.ExitError
		if !errors.As(werr, &exitErr) {
			err = fmt.Errorf("%s: %w", name, werr)
		}
	}
	return n, err
}
