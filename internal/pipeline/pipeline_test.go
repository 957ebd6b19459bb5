package pipeline

import (
	"testing"
)

func tokens(texts ...string) []Token {
	out := make([]Token, len(texts))
	for i, text := range texts {
		out[i] = Token{Text: text, Confidence: 0.9}
	}
	return out
}

func TestCleanseStripsNoise(t *testing.T) {
	p := New(nil, nil, nil)

	cases := []struct {
		in   string
		want string
	}{
		{"김치찌개\x00", "김치찌개"},
		{"된장찌개�", "된장찌개"},
		{"비빔밥!!!", "비빔밥!"},
		{"  pasta  ", "pasta"},
		{"steak...", "steak."},
		{"", ""},
	}

	for _, tc := range cases {
		got := p.Cleanse(tokens(tc.in))
		if got[0].Text != tc.want {
			t.Errorf("Cleanse(%q) = %q, want %q", tc.in, got[0].Text, tc.want)
		}
	}
}

func TestNormalizeCollapsesSpacing(t *testing.T) {
	p := New(nil, nil, nil)

	cases := []struct {
		in   string
		want string
	}{
		// Hangul-only strings lose interior spaces entirely.
		{"김치 찌개", "김치찌개"},
		{"김치찌개", "김치찌개"},
		// Mixed-script strings keep single spaces.
		{"grilled   pork", "grilled pork"},
		{"\tfried\nrice ", "fried rice"},
	}

	for _, tc := range cases {
		got := p.Normalize(tokens(tc.in))
		if got[0].Text != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got[0].Text, tc.want)
		}
	}
}

func TestStagesAreIdempotent(t *testing.T) {
	p := New(nil, nil, nil)

	inputs := []string{"김치 찌개!!", "  pasta  carbonara...", "비빔밥\x00"}
	for _, in := range inputs {
		once := p.Normalize(p.Cleanse(tokens(in)))
		twice := p.Normalize(p.Cleanse(once))
		if once[0].Text != twice[0].Text {
			t.Errorf("stages not idempotent for %q: %q != %q", in, once[0].Text, twice[0].Text)
		}
	}
}

func TestTranslateIsIdempotent(t *testing.T) {
	p := New(nil, nil, nil)

	// Translating a translated name resolves to itself via identity fallback.
	first := p.Translate(tokens("김치찌개"))
	second := p.Translate(tokens(first[0].Translated))
	if second[0].Translated != first[0].Translated {
		t.Errorf("translate not idempotent: %q then %q", first[0].Translated, second[0].Translated)
	}
}

func TestStagesNeverDropTokens(t *testing.T) {
	p := New(nil, nil, nil)

	in := tokens("김치찌개", "", "\x00\x00", "pasta")
	if got := len(p.Cleanse(in)); got != len(in) {
		t.Fatalf("Cleanse dropped tokens: %d != %d", got, len(in))
	}
	if got := len(p.Resolve(in)); got != len(in) {
		t.Fatalf("Resolve dropped tokens: %d != %d", got, len(in))
	}
}

func TestResolveTranslatesKnownDish(t *testing.T) {
	p := New(nil, nil, nil)

	entries := p.Resolve(tokens("김치 찌개"))
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	e := entries[0]
	if e.Original != "김치 찌개" {
		t.Errorf("Original should carry raw OCR text, got %q", e.Original)
	}
	if e.Normalized != "김치찌개" {
		t.Errorf("Normalized = %q, want 김치찌개", e.Normalized)
	}
	if e.Translated != "Kimchi Stew" {
		t.Errorf("Translated = %q, want Kimchi Stew", e.Translated)
	}
	if e.ID == "" {
		t.Error("entry must carry a generated ID")
	}
}

func TestResolveFallsBackToIdentity(t *testing.T) {
	p := New(nil, nil, nil)

	entries := p.Resolve(tokens("신기한메뉴"))
	if entries[0].Translated != "신기한메뉴" {
		t.Errorf("unmapped dish must fall back to identity, got %q", entries[0].Translated)
	}
}

func TestRunCacheTakesPriorityOverDictionary(t *testing.T) {
	runCache := NewRunCache()
	runCache.Put("김치찌개", "House Kimchi Stew")

	p := New(nil, runCache, nil)

	entries := p.Translate(tokens("김치찌개"))
	if entries[0].Translated != "House Kimchi Stew" {
		t.Errorf("run cache must win over the dictionary, got %q", entries[0].Translated)
	}
}

func TestDictionaryHitIsMemoizedInRunCache(t *testing.T) {
	runCache := NewRunCache()
	p := New(nil, runCache, nil)

	p.Translate(tokens("김치찌개"))

	if translated, ok := runCache.Get("김치찌개"); !ok || translated != "Kimchi Stew" {
		t.Errorf("dictionary hit must be memoized, got %q ok=%v", translated, ok)
	}
}

func TestResolveEmptyInput(t *testing.T) {
	p := New(nil, nil, nil)

	if entries := p.Resolve(nil); len(entries) != 0 {
		t.Fatalf("expected no entries for nil input, got %d", len(entries))
	}
	if entries := p.Resolve([]Token{}); len(entries) != 0 {
		t.Fatalf("expected no entries for empty input, got %d", len(entries))
	}
}

func TestResolvePreservesBoundingBoxes(t *testing.T) {
	p := New(nil, nil, nil)

	in := []Token{{
		Text:       "김치찌개",
		Confidence: 0.8,
		Box:        BoundingBox{X: 10, Y: 20, Width: 100, Height: 30},
	}}

	entries := p.Resolve(in)
	if entries[0].Box != in[0].Box {
		t.Errorf("bounding box must pass through unchanged: %+v != %+v", entries[0].Box, in[0].Box)
	}
}
