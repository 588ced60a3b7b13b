package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func payload(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return m
}

func TestCheckValidPayload(t *testing.T) {
	p := payload(t, `{
		"entities": [
			{"name": "dog", "category": "animals", "confidence": "high", "location": "center", "description": "brown dog", "count": 2}
		],
		"summary": {"total_entities": 1, "categories_found": ["animals"], "scene_description": "a park"}
	}`)

	if w := Check(p); len(w) != 0 {
		t.Errorf("Expected no warnings, got %+v", w)
	}
}

func TestCheckUnknownFieldsAreAllowed(t *testing.T) {
	p := payload(t, `{"entities": [{"name": "tree", "category": "nature", "colour": "green"}], "extra": true}`)
	if w := Check(p); len(w) != 0 {
		t.Errorf("Expected unknown fields to pass, got %+v", w)
	}
}

func TestCheckOutOfEnumValues(t *testing.T) {
	p := payload(t, `{
		"entities": [
			{"name": "dog", "category": "animals", "confidence": "high"},
			{"name": "ufo", "category": "aliens", "confidence": "certain"}
		]
	}`)

	warnings := Check(p)
	if len(warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %d: %+v", len(warnings), warnings)
	}

	paths := map[string]bool{}
	for _, w := range warnings {
		paths[w.Path] = true
		if w.Message == "" {
			t.Errorf("warning for %s has empty message", w.Path)
		}
	}
	if !paths["/entities/1/category"] {
		t.Errorf("Expected warning at /entities/1/category, got %+v", warnings)
	}
	if !paths["/entities/1/confidence"] {
		t.Errorf("Expected warning at /entities/1/confidence, got %+v", warnings)
	}
}

func TestCheckNonPositiveCount(t *testing.T) {
	p := payload(t, `{"entities": [{"name": "cup", "category": "objects", "count": 0}]}`)
	warnings := Check(p)
	if len(warnings) != 1 || warnings[0].Path != "/entities/0/count" {
		t.Errorf("Expected a count warning, got %+v", warnings)
	}
}

func TestCheckMissingEntities(t *testing.T) {
	p := payload(t, `{"summary": {}}`)
	warnings := Check(p)
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %+v", warnings)
	}
	if warnings[0].Path != "/" {
		t.Errorf("Expected root path, got %s", warnings[0].Path)
	}
}
