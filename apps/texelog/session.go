// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/session.go
// Summary: One opened log: store, stream and search caches, bookmarks and highlighting.

package texelog

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/framegrace/texelog/apps/texelog/bookmarks"
	"github.com/framegrace/texelog/apps/texelog/modifier"
	"github.com/framegrace/texelog/apps/texelog/rows"
	"github.com/framegrace/texelog/apps/texelog/store"
	"github.com/framegrace/texelog/apps/texelog/window"
)

var debugLog = os.Getenv("TEXELOG_DEBUG") != ""

func debugf(format string, args ...interface{}) {
	if debugLog {
		log.Printf("[SESSION] "+format, args...)
	}
}

const syntaxSampleLines = 32

// Session ties the views of one log to its store.
type Session struct {
	settings Settings
	store    *store.Store
	marks    *bookmarks.Set
	stream   *window.Cache
	search   *window.Cache
	pipe     *modifier.Pipeline
	comments *modifier.Comments

	ctx    context.Context
	cancel context.CancelFunc
	kick   chan struct{}
	done   chan struct{}

	// searchMu orders source swaps with background count refreshes.
	searchMu sync.Mutex
	query    string

	closeOnce sync.Once
	closeErr  error
}

// Open opens the store at settings.Store.Path and restores its bookmarks
// and notes.
func Open(ctx context.Context, settings Settings) (*Session, error) {
	st, err := store.OpenWithConfig(settings.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s, err := newSession(ctx, st, settings)
	if err != nil {
		st.Close()
		return nil, err
	}
	return s, nil
}

func newSession(ctx context.Context, st *store.Store, settings Settings) (*Session, error) {
	marks := bookmarks.New()
	saved, err := st.Bookmarks(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range saved {
		marks.Add(b)
	}

	comments := modifier.NewComments(settings.CommentStyle)
	notes, err := st.Notes(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		if err := comments.Add(noteComment(n)); err != nil {
			log.Printf("[SESSION] Skipping stored note %s: %v", n.ID, err)
		}
	}

	// Search is registered before filters so it wins among Match modifiers.
	emptySearch, _ := modifier.NewRegexp("search")
	pipe := modifier.NewPipeline(comments, emptySearch)

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		settings: settings,
		store:    st,
		marks:    marks,
		pipe:     pipe,
		comments: comments,
		ctx:      sctx,
		cancel:   cancel,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if err := s.SetFilters(settings.Filters); err != nil {
		cancel()
		return nil, err
	}
	if settings.ANSI {
		pipe.Set(modifier.NewANSI())
	}
	if settings.ColumnsDelimiter != "" {
		pipe.Set(modifier.NewColumns(settings.ColumnsDelimiter, settings.ColumnsCount))
	}

	// The stream holds every bookmarked line itself, so only the search
	// view interleaves bookmarks between its matches.
	s.stream = window.New("stream", st.Stream(), nil, settings.Stream)
	s.search = window.New("search", nil, marks, settings.Search)
	marks.Subscribe(s)
	st.Watch(s.onStoreGrowth)

	if err := s.stream.Refresh(ctx); err != nil {
		log.Printf("[SESSION] Initial count failed: %v", err)
	}
	if settings.Syntax != "" {
		s.enableSyntax(ctx)
	}
	go s.refreshLoop()
	return s, nil
}

// Store returns the backing line store.
func (s *Session) Store() *store.Store { return s.store }

// Stream returns the cache over every line.
func (s *Session) Stream() *window.Cache { return s.stream }

// SearchResults returns the cache over the active search matches.
func (s *Session) SearchResults() *window.Cache { return s.search }

// Bookmarks returns the bookmark set shared by both caches.
func (s *Session) Bookmarks() *bookmarks.Set { return s.marks }

// Pipeline returns the highlighting pipeline shared by both views.
func (s *Session) Pipeline() *modifier.Pipeline { return s.pipe }

// Query returns the active search text, or "".
func (s *Session) Query() string {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()
	return s.query
}

// Search replaces the search results with lines containing query. An
// empty query clears the search.
func (s *Session) Search(ctx context.Context, query string) error {
	if query == "" {
		s.ClearSearch()
		return nil
	}
	mod, err := modifier.NewRegexp("search", modifier.Request{
		Pattern: query,
		Literal: true,
		Style:   s.settings.SearchStyle,
		Class:   "search",
	})
	if err != nil {
		return err
	}

	s.searchMu.Lock()
	defer s.searchMu.Unlock()
	s.query = query
	s.pipe.Set(mod)
	s.search.SetSource(s.store.Search(query))
	debugf("search %q", query)
	if err := s.search.Refresh(ctx); err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}
	return nil
}

// ClearSearch drops the search results and their highlight.
func (s *Session) ClearSearch() {
	emptySearch, _ := modifier.NewRegexp("search")
	s.searchMu.Lock()
	defer s.searchMu.Unlock()
	s.query = ""
	s.pipe.Set(emptySearch)
	s.search.SetSource(nil)
}

// SetFilters highlights every line matching one of patterns, each in its
// own colour. Patterns are regular expressions matched case-insensitively.
func (s *Session) SetFilters(patterns []string) error {
	if len(patterns) == 0 {
		s.pipe.Remove("filters")
		return nil
	}
	reqs := make([]modifier.Request, len(patterns))
	for i, p := range patterns {
		reqs[i] = modifier.Request{Pattern: p, Style: filterStyle(i), Class: "filter-" + strconv.Itoa(i)}
	}
	mod, err := modifier.NewRegexp("filters", reqs...)
	if err != nil {
		return err
	}
	s.pipe.Set(mod)
	return nil
}

// Locate scrolls the stream view to the line at streamPos and returns its
// slot. Stream slots are stream positions.
func (s *Session) Locate(streamPos int64) int64 {
	s.stream.ScrollTo(streamPos)
	return streamPos
}

// AddNote attaches a comment from start to end and persists it.
func (s *Session) AddNote(ctx context.Context, start, end modifier.Anchor, text string) (string, error) {
	id := strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := s.comments.Add(modifier.Comment{ID: id, Start: start, End: end, Text: text}); err != nil {
		return "", err
	}
	err := s.store.SaveNote(ctx, store.Note{
		ID:          id,
		StartPos:    start.StreamPos,
		StartOffset: start.Offset,
		EndPos:      end.StreamPos,
		EndOffset:   end.Offset,
		Text:        text,
	})
	if err != nil {
		s.comments.Remove(id)
		return "", err
	}
	return id, nil
}

// RemoveNote deletes the comment with id.
func (s *Session) RemoveNote(ctx context.Context, id string) error {
	if !s.comments.Remove(id) {
		return nil
	}
	return s.store.DeleteNote(ctx, id)
}

// Notes returns the comments touching the row at streamPos.
func (s *Session) Notes(streamPos int64) []modifier.Comment {
	return s.comments.Relevant(streamPos)
}

// OnBookmarksChanged persists bookmark edits.
func (s *Session) OnBookmarksChanged(change bookmarks.Change) {
	for _, pos := range change.Removed {
		if err := s.store.DeleteBookmark(s.ctx, pos); err != nil {
			log.Printf("[SESSION] %v", err)
		}
	}
	for _, pos := range change.Added {
		b, ok := s.marks.Get(pos)
		if !ok {
			continue
		}
		if err := s.store.SaveBookmark(s.ctx, b); err != nil {
			log.Printf("[SESSION] %v", err)
		}
	}
}

// onStoreGrowth runs on the store's writer goroutine.
func (s *Session) onStoreGrowth(total int64) {
	s.stream.UpdateTotal(total)
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// refreshLoop recounts search matches after the store grows.
func (s *Session) refreshLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
		}
		s.searchMu.Lock()
		if s.query != "" {
			if err := s.search.Refresh(s.ctx); err != nil && s.ctx.Err() == nil {
				log.Printf("[SESSION] Search refresh failed: %v", err)
			}
		}
		s.searchMu.Unlock()
	}
}

func (s *Session) enableSyntax(ctx context.Context) {
	lexer := s.settings.Syntax
	var sample []string
	if lexer == SyntaxAuto {
		lexer = ""
		chunk, err := s.store.Stream().Fetch(ctx, 0, syntaxSampleLines-1)
		if err != nil {
			log.Printf("[SESSION] Syntax sample failed: %v", err)
			return
		}
		batch, _ := rows.Parse(chunk)
		for _, p := range batch {
			sample = append(sample, modifier.NewRow(p.String(), p.StreamPos).Plain)
		}
		if len(sample) == 0 {
			return
		}
	}
	syn := modifier.NewSyntax(lexer, s.settings.ChromaStyle, sample)
	debugf("syntax highlighting as %q", syn.Language())
	s.pipe.Set(syn)
}

// Close stops background work and closes the caches and the store.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.marks.Unsubscribe(s)
		s.stream.Close()
		s.search.Close()
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

func noteComment(n store.Note) modifier.Comment {
	return modifier.Comment{
		ID:    n.ID,
		Start: modifier.Anchor{StreamPos: n.StartPos, Offset: n.StartOffset},
		End:   modifier.Anchor{StreamPos: n.EndPos, Offset: n.EndOffset},
		Text:  n.Text,
	}
}
