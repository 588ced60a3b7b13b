package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Categories lists the entity categories the extraction prompt asks for, in prompt order.
var Categories = []string{
	"people",
	"objects",
	"animals",
	"vehicles",
	"buildings",
	"nature",
	"text",
	"food",
	"clothing",
	"technology",
	"other",
}

// ConfidenceLevels lists the confidence labels a model may attach to an entity.
var ConfidenceLevels = []string{"high", "medium", "low"}

// EntityRecord is a single entity reported by the model
type EntityRecord struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Confidence  string   `json:"confidence"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Count       LaxCount `json:"count"`
}

// ExtractionSummary is the model's own summary of the catalog. It is not
// cross-checked against the entity list.
type ExtractionSummary struct {
	TotalEntities    LaxCount `json:"total_entities"`
	CategoriesFound  []string `json:"categories_found"`
	SceneDescription string   `json:"scene_description"`
}

// Catalog is the typed view of the model payload.
type Catalog struct {
	Entities []EntityRecord    `json:"entities"`
	Summary  ExtractionSummary `json:"summary"`
}

// LaxCount decodes integers the way models tend to emit them: as numbers,
// floats with a zero fraction, or numeric strings. Anything else decodes as 0.
type LaxCount int

// UnmarshalJSON implements json.Unmarshaler.
func (c *LaxCount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*c = LaxCount(n)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*c = LaxCount(int(f))
		return nil
	}
	*c = 0
	return nil
}

// ImageInfo holds metadata about the analysed image. Local files carry
// measured fields; remote URLs carry Source and URL only. An empty ImageInfo
// means metadata could not be read.
type ImageInfo struct {
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Format    string `json:"format,omitempty"`
	Mode      string `json:"mode,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Source    string `json:"source,omitempty"`
	URL       string `json:"url,omitempty"`
}

// URLInfo returns the synthesized metadata used for remote images.
func URLInfo(url string) *ImageInfo {
	return &ImageInfo{Source: "url", URL: url}
}

// ImageRef is what gets sent to the model: either a data URI with inline
// bytes or a remote URL the model fetches itself.
type ImageRef struct {
	URL    string
	Inline bool
}

// SchemaWarning flags a payload value outside the expected shape. Warnings
// never change the payload.
type SchemaWarning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ExtractionResult is the outcome of one extraction. When Success is true
// Entities is set; otherwise Error is. ImageInfo may be present either way.
type ExtractionResult struct {
	Success   bool            `json:"success"`
	Entities  map[string]any  `json:"entities"`
	Error     string          `json:"error,omitempty"`
	ImageInfo *ImageInfo      `json:"image_info,omitempty"`
	Warnings  []SchemaWarning `json:"warnings,omitempty"`

	// Catalog is the permissive typed decode of Entities, nil when the
	// payload did not fit the shape at all.
	Catalog *Catalog `json:"-"`
	// Err carries the error kind of a failed result for errors.Is checks.
	Err error `json:"-"`
}

// EntityCount returns the number of entities in the parsed payload.
func (r ExtractionResult) EntityCount() int {
	if r.Catalog != nil {
		return len(r.Catalog.Entities)
	}
	if list, ok := r.Entities["entities"].([]any); ok {
		return len(list)
	}
	return 0
}

// BatchResult holds per-URL results in input order plus aggregate counts.
type BatchResult struct {
	Results        []ExtractionResult `json:"results"`
	TotalProcessed int                `json:"total_processed"`
	Successful     int                `json:"successful"`
	Failed         int                `json:"failed"`
}

// DecodeCatalog performs the permissive typed decode of a parsed payload.
// Unknown fields are ignored and missing ones stay zero.
func DecodeCatalog(payload map[string]any) (*Catalog, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
