// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/modifier/syntax.go
// Summary: Chroma token colouring with go-enry language detection.

package modifier

import (
	"strings"
	"unicode"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/gdamore/tcell/v2"
	"github.com/go-enry/go-enry/v2"
)

const defaultStyleName = "catppuccin-mocha"

// classifierCandidates bounds the Bayesian classifier to formats that show
// up in logs.
var classifierCandidates = []string{
	"Go", "Python", "JavaScript", "Java", "C", "C++", "Rust", "Shell",
	"JSON", "YAML", "XML", "SQL", "INI", "Ruby", "PHP",
}

// Syntax colours rows with Chroma tokens. Breakable, so every other
// modifier wins over it.
type Syntax struct {
	lang  string
	lexer chroma.Lexer
	style *chroma.Style
	base  chroma.Colour
}

// NewSyntax creates a Syntax modifier. lexerName selects the lexer; when
// empty the language is detected from sample.
func NewSyntax(lexerName, styleName string, sample []string) *Syntax {
	if lexerName == "" && len(sample) > 0 {
		lexerName = DetectLanguage(sample)
	}
	style := chromaStyle(styleName)
	lexer := getLexer(lexerName, strings.Join(sample, "\n"))
	debugf("syntax lexer %q for language %q", lexer.Config().Name, lexerName)
	return &Syntax{
		lang:  lexerName,
		lexer: chroma.Coalesce(lexer),
		style: style,
		base:  style.Get(chroma.Text).Colour,
	}
}

func (m *Syntax) Name() string { return "syntax" }
func (m *Syntax) Kind() Kind   { return Breakable }

// Language returns the configured or detected language name.
func (m *Syntax) Language() string { return m.lang }

func (m *Syntax) Ranges(row Row) ([]Span, error) {
	if row.Plain == "" {
		return nil, nil
	}
	tokens, err := chroma.Tokenise(m.lexer, nil, row.Plain+"\n")
	if err != nil {
		return nil, err
	}
	var out []Span
	pos := 0
	for _, tok := range tokens {
		if tok.Type == chroma.EOFType {
			break
		}
		n := len([]rune(tok.Value))
		if n > 0 && strings.TrimFunc(tok.Value, unicode.IsSpace) != "" {
			if st, ok := m.tokenStyle(tok.Type); ok {
				out = append(out, Span{
					Start: pos,
					End:   pos + n - 1,
					Style: st,
					Class: "tok-" + strings.ToLower(tok.Type.String()),
				})
			}
		}
		pos += n
	}
	return out, nil
}

// tokenStyle converts a style entry. Tokens in the base text colour with no
// attributes are left unstyled.
func (m *Syntax) tokenStyle(t chroma.TokenType) (tcell.Style, bool) {
	entry := m.style.Get(t)
	st := tcell.StyleDefault
	styled := false
	if entry.Colour.IsSet() && entry.Colour != m.base {
		st = st.Foreground(tcell.NewRGBColor(
			int32(entry.Colour.Red()), int32(entry.Colour.Green()), int32(entry.Colour.Blue())))
		styled = true
	}
	if entry.Bold == chroma.Yes {
		st = st.Bold(true)
		styled = true
	}
	if entry.Italic == chroma.Yes {
		st = st.Italic(true)
		styled = true
	}
	if entry.Underline == chroma.Yes {
		st = st.Underline(true)
		styled = true
	}
	return st, styled
}

// DetectLanguage guesses the language of sample lines: shebang and
// modeline first, then the Bayesian classifier.
func DetectLanguage(sample []string) string {
	content := []byte(strings.Join(sample, "\n"))
	if lang, safe := enry.GetLanguageByShebang(content); safe {
		return lang
	}
	if lang, safe := enry.GetLanguageByModeline(content); safe {
		return lang
	}
	lang, _ := enry.GetLanguageByClassifier(content, classifierCandidates)
	return lang
}

func chromaStyle(name string) *chroma.Style {
	if name == "" {
		name = defaultStyleName
	}
	return styles.Get(name)
}

// getLexer returns a Chroma lexer by name, or detects one from text.
func getLexer(name, text string) chroma.Lexer {
	if name != "" {
		if l := lexers.Get(name); l != nil {
			return l
		}
	}
	if text != "" {
		if l := lexers.Analyse(text); l != nil {
			return l
		}
	}
	return lexers.Fallback
}
