/**
 * Text resolution pipeline: cleanse → normalize → translate.
 *
 * Each stage is pure and idempotent: applying a stage to its own output is
 * a no-op. Stages never drop entries and never touch confidence or bounding
 * boxes; a stage failure on one token passes that token through unmodified
 * so no menu item is silently lost.
 */

package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/scanerr"
)

// Pipeline transforms OCR token lists into translated menu entries.
type Pipeline struct {
	dict     *Dictionary
	runCache *RunCache
	logger   *logging.Logger
}

// New creates a pipeline over the given dictionary and run cache. Both are
// explicit handles owned by the host; nil falls back to the built-in
// dictionary and a private run cache.
func New(dict *Dictionary, runCache *RunCache, logger *logging.Logger) *Pipeline {
	if dict == nil {
		dict = DefaultDictionary()
	}
	if runCache == nil {
		runCache = NewRunCache()
	}
	if logger == nil {
		logger = logging.NewLogger("Pipeline")
	}
	return &Pipeline{dict: dict, runCache: runCache, logger: logger}
}

// Resolve runs all three stages in order. Entries carry the raw OCR text as
// Original; stages never drop or reorder tokens, so raw and normalized pair
// up by index.
func (p *Pipeline) Resolve(tokens []Token) []Entry {
	normalized := p.Normalize(p.Cleanse(tokens))
	originals := make([]string, len(tokens))
	for i := range tokens {
		originals[i] = tokens[i].Text
	}
	return p.translate(normalized, originals)
}

// Cleanse strips OCR noise artifacts from token text: control characters,
// replacement glyphs from corrupted decodes, and repeated punctuation runs.
func (p *Pipeline) Cleanse(tokens []Token) []Token {
	return p.applyStage("cleanse", tokens, cleanseText)
}

// Normalize canonicalizes spacing so that downstream lookups key
// consistently: whitespace runs collapse to one space, and spaced-out Hangul
// compounds collapse to their unspaced form.
func (p *Pipeline) Normalize(tokens []Token) []Token {
	return p.applyStage("normalize", tokens, normalizeText)
}

// Translate resolves each normalized string through, in strict priority
// order: the run cache, the static dictionary, and finally identity. An
// unmapped dish name is not an error; identity fallback is the designed
// behavior.
func (p *Pipeline) Translate(tokens []Token) []Entry {
	originals := make([]string, len(tokens))
	for i := range tokens {
		originals[i] = tokens[i].Text
	}
	return p.translate(tokens, originals)
}

func (p *Pipeline) translate(tokens []Token, originals []string) []Entry {
	entries := make([]Entry, 0, len(tokens))
	for i, tok := range tokens {
		entries = append(entries, Entry{
			ID:         uuid.New().String(),
			Original:   originals[i],
			Normalized: tok.Text,
			Translated: p.resolveOne(tok.Text),
			Box:        tok.Box,
		})
	}
	return entries
}

// resolveOne applies the translation fallback chain to one normalized name.
func (p *Pipeline) resolveOne(normalized string) string {
	if translated, ok := p.runCache.Get(normalized); ok {
		return translated
	}

	if translated, ok := p.dict.Lookup(normalized); ok {
		p.runCache.Put(normalized, translated)
		return translated
	}

	return normalized
}

// applyStage applies fn to each token's text, passing a token through
// unmodified if fn panics on it.
func (p *Pipeline) applyStage(name string, tokens []Token, fn func(string) string) []Token {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		tok.Text = p.safeApply(name, tok.Text, fn)
		out = append(out, tok)
	}
	return out
}

func (p *Pipeline) safeApply(stage, text string, fn func(string) string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			err := scanerr.NewPipelineStageFailed(stage, fmt.Errorf("%v", r))
			p.logger.Warn("stage failed, passing entry through", "stage", stage, "error", err)
			result = text
		}
	}()
	return fn(text)
}

// cleanseText removes control characters and replacement glyphs and
// collapses repeated punctuation to a single occurrence.
func cleanseText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var prev rune = -1
	for _, r := range s {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		if isPunct(r) && r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}

	return strings.TrimSpace(b.String())
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// normalizeText collapses whitespace runs to a single space and removes
// interior spaces from strings that are entirely Hangul, so "김치 찌개" and
// "김치찌개" key identically.
func normalizeText(s string) string {
	fields := strings.Fields(s)
	collapsed := strings.Join(fields, " ")

	if collapsed != "" && isHangulOnly(collapsed) {
		return strings.ReplaceAll(collapsed, " ", "")
	}
	return collapsed
}

func isHangulOnly(s string) bool {
	for _, r := range s {
		if r == ' ' {
			continue
		}
		if !unicode.Is(unicode.Hangul, r) {
			return false
		}
	}
	return true
}
