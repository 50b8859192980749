// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/texelog/main.go
// Summary: texelog command: ingest a log and browse it or print it.
// Usage: texelog [flags] [file|-]   or   texelog -cmd -- command args...

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/framegrace/texelog/apps/texelog"
	"github.com/framegrace/texelog/apps/texelog/modifier"
	"github.com/framegrace/texelog/apps/texelog/rows"
	"github.com/framegrace/texelog/apps/texelog/view"
	"github.com/framegrace/texelog/config"
	"github.com/framegrace/texelog/internal/devshell"
)

type options struct {
	dbPath  string
	command bool
	dump    bool
	html    bool
	search  string
	from    int64
	to      int64
	follow  bool
	syntax  string
	logPath string
	args    []string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("texelog", flag.ContinueOnError)
	fs.StringVar(&o.dbPath, "db", "", "Database to keep lines, bookmarks and notes in (default: temporary)")
	fs.BoolVar(&o.command, "cmd", false, "Run the arguments as a command and capture its output")
	fs.BoolVar(&o.dump, "dump", false, "Print rows instead of opening the viewer")
	fs.BoolVar(&o.html, "html", false, "With -dump, mark highlights with <span class> instead of colours")
	fs.StringVar(&o.search, "search", "", "Search text; with -dump only matching lines are printed")
	fs.Int64Var(&o.from, "from", -1, "With -dump, first row to print")
	fs.Int64Var(&o.to, "to", -1, "With -dump, last row to print")
	fs.BoolVar(&o.follow, "follow", true, "Keep the newest line visible while the log grows")
	fs.StringVar(&o.syntax, "syntax", "", "Lexer for syntax highlighting, or \"auto\"")
	fs.StringVar(&o.logPath, "log", "", "Diagnostics log file (default: texelog.log in the data dir)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.args = fs.Args()
	if o.command && len(o.args) == 0 {
		return o, errors.New("-cmd needs a command")
	}
	if !o.command && len(o.args) > 1 {
		return o, errors.New("only one input file is supported")
	}
	return o, nil
}

func run(args []string, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	interactive := false
	if f, ok := stdout.(*os.File); ok && !o.dump {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	if interactive {
		closeLog, err := redirectLog(o.logPath)
		if err != nil {
			return err
		}
		defer closeLog()
	}

	cfg := config.System()
	if err := config.Err(); err != nil {
		log.Printf("Config: using defaults: %v", err)
	}

	dbPath := o.dbPath
	if dbPath == "" {
		dir, err := os.MkdirTemp("", "texelog-")
		if err != nil {
			return fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)
		dbPath = filepath.Join(dir, "log.db")
	}
	settings := texelog.LoadSettings(cfg, dbPath)
	if o.syntax != "" {
		settings.Syntax = o.syntax
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := texelog.Open(ctx, settings)
	if err != nil {
		return err
	}
	defer session.Close()

	input, err := openInput(o)
	if err != nil {
		return err
	}
	ingestDone := make(chan error, 1)
	go func() {
		ingestDone <- ingest(ctx, session, o, input)
	}()

	if interactive {
		return browse(ctx, session, o)
	}
	if err := <-ingestDone; err != nil {
		return err
	}
	return dump(ctx, session, o, stdout)
}

// redirectLog keeps diagnostics off the screen while the viewer runs.
func redirectLog(path string) (func(), error) {
	if path == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		path = filepath.Join(dir, "texelog.log")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

// openInput returns the reader to ingest, or nil when the lines come from
// a command or the database alone.
func openInput(o options) (io.ReadCloser, error) {
	switch {
	case o.command:
		return nil, nil
	case len(o.args) == 1 && o.args[0] != "-":
		f, err := os.Open(o.args[0])
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		return f, nil
	case len(o.args) == 1 || !term.IsTerminal(int(os.Stdin.Fd())):
		return os.Stdin, nil
	}
	return nil, nil
}

func ingest(ctx context.Context, s *texelog.Session, o options, input io.ReadCloser) error {
	var n int64
	var err error
	switch {
	case o.command:
		n, err = s.Store().IngestCommand(ctx, o.args[0], o.args[1:], 0)
	case input != nil:
		defer input.Close()
		n, err = s.Store().IngestReader(ctx, input, 0)
	default:
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[INGEST] stopped after %d lines: %v", n, err)
		return err
	}
	if err := s.Store().Flush(); err != nil {
		return err
	}
	if err := s.Stream().Refresh(ctx); err != nil {
		return err
	}
	log.Printf("[INGEST] %d lines", n)
	return nil
}

func browse(ctx context.Context, s *texelog.Session, o options) error {
	if o.search != "" {
		if err := s.Search(ctx, o.search); err != nil {
			return err
		}
	}
	return devshell.Run(func() (view.App, error) {
		app := texelog.NewApp(s, view.DefaultTheme())
		app.Follow(o.follow)
		return app, nil
	})
}

func dump(ctx context.Context, s *texelog.Session, o options, w io.Writer) error {
	opts := texelog.ExportOptions{Range: rows.EmptyRange, Tagger: modifier.ANSITagger{}}
	if o.html {
		opts.Tagger = modifier.ClassTagger{}
	}
	if o.search != "" {
		if err := s.Search(ctx, o.search); err != nil {
			return err
		}
		opts.Search = true
	}
	if o.from >= 0 || o.to >= 0 {
		from, to := max(o.from, 0), o.to
		if to < 0 {
			to = s.Stream().State().TotalWithBookmarks - 1
			if opts.Search {
				to = s.SearchResults().State().TotalWithBookmarks - 1
			}
		}
		if to < from {
			return nil
		}
		opts.Range = rows.NewRange(from, to)
	}
	return s.Export(ctx, w, opts)
}
