// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/window/errors.go
// Summary: Error values returned by the window cache.

package window

import (
	"errors"
	"fmt"

	"github.com/framegrace/texelog/apps/texelog/rows"
)

var (
	// ErrStateChanged is returned by GetRange when the buffer changed while
	// the result was being assembled. Callers retry on the next notification.
	ErrStateChanged = errors.New("window: stored range changed during read")

	// ErrRangeMismatch means the assembled row count differs from the
	// requested span. It indicates a defect in the cache, not a runtime
	// condition.
	ErrRangeMismatch = errors.New("window: assembled rows do not match requested range")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("window: cache closed")
)

// FetchError wraps a failed row source call.
type FetchError struct {
	Range rows.Range
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("window: fetch %s failed: %v", e.Range, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
