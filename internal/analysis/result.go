package analysis

// Status is the three-level verdict used by the non-streaming path.
type Status string

const (
	StatusSafe    Status = "SAFE"
	StatusCaution Status = "CAUTION"
	StatusDanger  Status = "DANGER"
)

// Severity grades a warning.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Warning flags one risky ingredient on the analyzed menu.
type Warning struct {
	Ingredient string   `json:"ingredient"`
	Allergen   string   `json:"allergen"`
	Severity   Severity `json:"severity"`
}

// Item is one analyzed menu entry with its safety verdict.
type Item struct {
	ID             string   `json:"id"`
	OriginalName   string   `json:"original_name"`
	TranslatedName string   `json:"translated_name"`
	SafetyStatus   Status   `json:"safety_status"`
	Reason         string   `json:"reason,omitempty"`
	Ingredients    []string `json:"ingredients,omitempty"`
}

// Result is one completed menu analysis. Immutable once built; a new
// submission for the same scan session replaces it wholesale.
type Result struct {
	OverallStatus       Status            `json:"overall_status"`
	DetectedIngredients []string          `json:"detected_ingredients"`
	Warnings            []Warning         `json:"warnings"`
	Messages            map[string]string `json:"messages"`
	Items               []Item            `json:"items"`
	ProcessingTimeMs    int64             `json:"processing_time_ms"`
}
