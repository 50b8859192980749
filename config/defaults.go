// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/defaults.go
// Summary: Fallback values registered under every loaded config.

package config

// Section names used by texelog.
const (
	SectionStream    = "texelog.stream"
	SectionSearch    = "texelog.search"
	SectionStore     = "texelog.store"
	SectionHighlight = "texelog.highlight"
)

// applySystemDefaults fills keys the file leaves out. Values mirror
// defaults/texelog.json so a hand-trimmed file still loads complete.
func applySystemDefaults(cfg Config) {
	if cfg == nil {
		return
	}
	cfg.RegisterDefaults(SectionStream, Section{
		"trigger":          400,
		"max_request":      2000,
		"max_stored":       2000,
		"request_delay_ms": 0,
	})
	cfg.RegisterDefaults(SectionSearch, Section{
		"trigger":          1000,
		"max_request":      2000,
		"max_stored":       2000,
		"request_delay_ms": 50,
	})
	cfg.RegisterDefaults(SectionStore, Section{
		"path":             "",
		"batch_size":       500,
		"batch_timeout_ms": 200,
		"channel_buffer":   4096,
	})
	cfg.RegisterDefaults(SectionHighlight, Section{
		"search_style":      "reverse",
		"filters":           []interface{}{},
		"syntax":            "",
		"chroma_style":      "catppuccin-mocha",
		"ansi":              true,
		"columns_delimiter": "",
		"columns_count":     0,
	})
}
