package flowmodel

// ExtractionMethod tags one step of a text extraction rule/pipeline.
type ExtractionMethod string

const (
	ExtractExact  ExtractionMethod = "exact"
	ExtractRegex  ExtractionMethod = "regex"
	ExtractNumeric ExtractionMethod = "numeric"
	ExtractBefore ExtractionMethod = "before"
	ExtractAfter  ExtractionMethod = "after"
	ExtractBetween ExtractionMethod = "between"
)

// ExtractionStep is one step of an extraction pipeline.
type ExtractionStep struct {
	Method ExtractionMethod `json:"method"`
	// Regex holds the pattern for ExtractRegex.
	Regex string `json:"regex,omitempty"`
	// Substring holds the marker for ExtractBefore/ExtractAfter.
	Substring string `json:"substring,omitempty"`
	// Start/End hold the markers for ExtractBetween.
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// ExtractNumeric post-processing flags, applicable to any step.
	ExtractNumericFlag bool `json:"extract_numeric,omitempty"`
	RemoveUnit         bool `json:"remove_unit,omitempty"`
}

// ExtractionRule is either a single step or an ordered pipeline, with a
// fallback value used when any step returns null.
type ExtractionRule struct {
	Pipeline []ExtractionStep `json:"pipeline"`
	Fallback string           `json:"fallback,omitempty"`
	HasFallback bool          `json:"has_fallback,omitempty"`
}

// UIElement mirrors a parsed on-screen element as surfaced by the
// DeviceTransport boundary.
type UIElement struct {
	Text        string `json:"text"`
	ResourceID  string `json:"resource_id"`
	Class       string `json:"class"`
	ContentDesc string `json:"content_desc"`
	Bounds      Bounds `json:"bounds"`
	Clickable   bool   `json:"clickable"`
	Focusable   bool   `json:"focusable"`
	Scrollable  bool   `json:"scrollable"`
	Path        string `json:"path"`
	ParentPath  string `json:"parent_path"`
}
