/**
 * Shared types for the text resolution pipeline.
 *
 * Tokens come from the OCR collaborator; bounding box and confidence are
 * immutable once produced and flow through every stage untouched. Only the
 * text mutates, stage by stage.
 */

package pipeline

// BoundingBox represents coordinates of a detected text region.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Token is a single OCR-detected text fragment.
type Token struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"boundingBox"`
}

// Entry is a fully resolved menu item produced by the translate stage.
// The ID is freshly generated per pipeline run, not derived from content,
// so duplicate dish names on one menu stay distinguishable.
type Entry struct {
	ID         string      `json:"id"`
	Original   string      `json:"original"`
	Normalized string      `json:"normalized"`
	Translated string      `json:"translated"`
	Box        BoundingBox `json:"boundingBox"`
}
