// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/settings.go
// Summary: Session settings read from the texelog config sections.

package texelog

import (
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/texelog/apps/texelog/store"
	"github.com/framegrace/texelog/apps/texelog/window"
	"github.com/framegrace/texelog/config"
)

// SyntaxAuto detects the lexer from the first lines of the log.
const SyntaxAuto = "auto"

// Settings configures a Session.
type Settings struct {
	Stream window.Config
	Search window.Config
	Store  store.Config

	SearchStyle  tcell.Style
	CommentStyle tcell.Style
	Filters      []string

	// Syntax is a lexer name, SyntaxAuto, or empty for no highlighting.
	Syntax      string
	ChromaStyle string
	ANSI        bool

	ColumnsDelimiter string
	ColumnsCount     int
}

// DefaultSettings returns the built-in settings for a database at path.
func DefaultSettings(path string) Settings {
	return Settings{
		Stream:       window.DefaultStreamConfig(),
		Search:       window.DefaultSearchConfig(),
		Store:        store.DefaultConfig(path),
		SearchStyle:  tcell.StyleDefault.Reverse(true),
		CommentStyle: tcell.StyleDefault.Background(tcell.PaletteColor(4)),
		ChromaStyle:  "catppuccin-mocha",
		ANSI:         true,
	}
}

// LoadSettings reads settings from cfg. path is used when the store
// section leaves its path empty.
func LoadSettings(cfg config.Config, path string) Settings {
	s := DefaultSettings(path)
	s.Stream = windowConfig(cfg, config.SectionStream, s.Stream)
	s.Search = windowConfig(cfg, config.SectionSearch, s.Search)

	if p := cfg.GetString(config.SectionStore, "path", ""); p != "" && path == "" {
		s.Store.Path = p
	}
	s.Store.BatchSize = cfg.GetInt(config.SectionStore, "batch_size", s.Store.BatchSize)
	s.Store.BatchTimeout = cfg.GetDuration(config.SectionStore, "batch_timeout_ms", s.Store.BatchTimeout)
	s.Store.ChannelBuffer = cfg.GetInt(config.SectionStore, "channel_buffer", s.Store.ChannelBuffer)

	hl := config.SectionHighlight
	if spec := cfg.GetString(hl, "search_style", ""); spec != "" {
		s.SearchStyle = ParseStyle(spec)
	}
	if spec := cfg.GetString(hl, "comment_style", ""); spec != "" {
		s.CommentStyle = ParseStyle(spec)
	}
	s.Filters = cfg.GetStrings(hl, "filters")
	s.Syntax = cfg.GetString(hl, "syntax", s.Syntax)
	s.ChromaStyle = cfg.GetString(hl, "chroma_style", s.ChromaStyle)
	s.ANSI = cfg.GetBool(hl, "ansi", s.ANSI)
	s.ColumnsDelimiter = cfg.GetString(hl, "columns_delimiter", "")
	s.ColumnsCount = cfg.GetInt(hl, "columns_count", 0)
	return s
}

func windowConfig(cfg config.Config, section string, def window.Config) window.Config {
	return window.Config{
		Trigger:      cfg.GetInt64(section, "trigger", def.Trigger),
		MaxRequest:   cfg.GetInt64(section, "max_request", def.MaxRequest),
		MaxStored:    cfg.GetInt64(section, "max_stored", def.MaxStored),
		RequestDelay: cfg.GetDuration(section, "request_delay_ms", def.RequestDelay),
	}
}

// ParseStyle reads a space separated style such as "bold fg:yellow bg:#202020".
// Unknown words are ignored.
func ParseStyle(spec string) tcell.Style {
	style := tcell.StyleDefault
	for _, word := range strings.Fields(strings.ToLower(spec)) {
		switch {
		case word == "bold":
			style = style.Bold(true)
		case word == "dim":
			style = style.Dim(true)
		case word == "italic":
			style = style.Italic(true)
		case word == "underline":
			style = style.Underline(true)
		case word == "reverse":
			style = style.Reverse(true)
		case word == "blink":
			style = style.Blink(true)
		case word == "strike":
			style = style.StrikeThrough(true)
		case strings.HasPrefix(word, "fg:"):
			if c := tcell.GetColor(word[3:]); c != tcell.ColorDefault {
				style = style.Foreground(c)
			}
		case strings.HasPrefix(word, "bg:"):
			if c := tcell.GetColor(word[3:]); c != tcell.ColorDefault {
				style = style.Background(c)
			}
		}
	}
	return style
}

var filterPalette = []tcell.Color{
	tcell.PaletteColor(1), tcell.PaletteColor(2), tcell.PaletteColor(3),
	tcell.PaletteColor(5), tcell.PaletteColor(6), tcell.PaletteColor(9),
}

func filterStyle(i int) tcell.Style {
	return tcell.StyleDefault.Foreground(filterPalette[i%len(filterPalette)]).Bold(true)
}
