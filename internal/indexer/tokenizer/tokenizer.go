// Package tokenizer turns document text into index terms. Text is NFKC
// normalized and lower-cased, split on UAX#29 word boundaries, and
// optionally filtered for stop-words and stemmed.
package tokenizer

import (
	"io"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/kljensen/snowball/english"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is a normalized term and its offset among the kept tokens.
type Token struct {
	Term     string
	Position int
}

// Options selects the optional filters. The zero value keeps every word
// as written, which phrase queries over raw text expect.
type Options struct {
	StopWords bool `yaml:"stopWords"`
	Stem      bool `yaml:"stem"`
}

type Tokenizer struct {
	opts Options
}

func New(opts Options) *Tokenizer {
	return &Tokenizer{opts: opts}
}

// Tokenize splits text into terms with consecutive positions.
func (t *Tokenizer) Tokenize(text string) []Token {
	seg := words.FromString(norm.NFKC.String(text))
	tokens := make([]Token, 0, len(text)/6)
	pos := 0
	for seg.Next() {
		term, ok := t.term(seg.Value())
		if !ok {
			continue
		}
		tokens = append(tokens, Token{Term: term, Position: pos})
		pos++
	}
	return tokens
}

// Normalize maps a single query word to its index term. ok is false for
// words that would not have been indexed.
func (t *Tokenizer) Normalize(word string) (string, bool) {
	return t.term(norm.NFKC.String(word))
}

func (t *Tokenizer) term(word string) (string, bool) {
	if !wordLike(word) {
		return "", false
	}
	word = strings.ToLower(word)
	if t.opts.StopWords {
		if _, stop := stopWords[word]; stop {
			return "", false
		}
	}
	if t.opts.Stem {
		word = english.Stem(word, false)
	}
	if word == "" || strings.ContainsRune(word, ';') {
		return "", false
	}
	return word, true
}

func wordLike(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// ExtractText returns the visible text of an HTML document, dropping
// script and style content.
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return b.String(), nil
			}
			return b.String(), z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); a == atom.Script || a == atom.Style {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}
