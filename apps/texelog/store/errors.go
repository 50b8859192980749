// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/store/errors.go
// Summary: Store error values.

package store

import "errors"

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
	// ErrNotFound is returned when a line id does not exist.
	ErrNotFound = errors.New("line not found")
)
