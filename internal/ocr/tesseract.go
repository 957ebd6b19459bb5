/**
 * Tesseract OCR engine.
 *
 * Local, free, offline recognition. Used when no vision service is
 * configured, or as the fast path before escalating to the remote engine.
 * Word-level boxes require HOCR parsing which gosseract's plain Text() call
 * does not provide, so the whole extraction becomes one token per line.
 */

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/menulens/menuscan-worker/internal/pipeline"
)

// TesseractEngine performs OCR with a local Tesseract installation.
type TesseractEngine struct {
	languages string
}

// NewTesseractEngine creates a Tesseract engine. languages is a Tesseract
// language spec like "kor+eng".
func NewTesseractEngine(languages string) *TesseractEngine {
	if languages == "" {
		languages = "kor+eng"
	}
	return &TesseractEngine{languages: languages}
}

// Recognize extracts text line by line. Confidence is estimated from text
// quality because plain text extraction carries no per-word confidence.
func (t *TesseractEngine) Recognize(ctx context.Context, image []byte) ([]pipeline.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(t.languages, "+")...); err != nil {
		return nil, fmt.Errorf("failed to set languages: %w", err)
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	confidence := estimateConfidence(text)

	var tokens []pipeline.Token
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens = append(tokens, pipeline.Token{
			Text:       line,
			Confidence: confidence,
		})
	}

	return tokens, nil
}

// estimateConfidence scores extraction quality heuristically.
func estimateConfidence(text string) float64 {
	confidence := 0.5

	if len(text) > 200 {
		confidence += 0.1
	}
	if len(strings.Fields(text)) > 10 {
		confidence += 0.1
	}

	// Menus are mostly letters and Hangul; a text dominated by symbols is a
	// bad extraction.
	letters := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= 0xAC00 && r <= 0xD7A3) {
			letters++
		}
	}
	if len(text) > 0 {
		ratio := float64(letters) / float64(len([]rune(text)))
		if ratio > 0.4 {
			confidence += 0.15
		}
	}

	if confidence > 0.85 {
		confidence = 0.85
	}
	return confidence
}
