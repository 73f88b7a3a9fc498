package types

import (
	"math"
	"testing"
)

func TestClassMapName(t *testing.T) {
	classes := ClassMap{"0": "person", "2": ""}

	if got := classes.Name(0); got != "person" {
		t.Errorf("Expected person, got %s", got)
	}
	if got := classes.Name(2); got != "Class 2" {
		t.Errorf("Empty name should fall back, got %s", got)
	}
	if got := ClassMap(nil).Name(7); got != "Class 7" {
		t.Errorf("Expected fallback for nil map, got %s", got)
	}
}

func TestClassMapLookup(t *testing.T) {
	classes := ClassMap{"3": "Traffic Light", "x": "bogus"}

	if id, ok := classes.Lookup(" traffic light "); !ok || id != 3 {
		t.Errorf("Expected 3, got %d/%v", id, ok)
	}
	if _, ok := classes.Lookup("bogus"); ok {
		t.Error("Non-numeric keys must not resolve")
	}
	if ids := (ClassMap{"10": "a", "2": "b", "1": "c"}).IDs(); len(ids) != 3 || ids[0] != 1 || ids[2] != 10 {
		t.Errorf("Expected sorted ids, got %v", ids)
	}
}

func TestBoxValid(t *testing.T) {
	if !(Box{XCenter: 0.5, YCenter: 0.5, Width: 1, Height: 1}).Valid() {
		t.Error("Full-image box should be valid")
	}
	if (Box{XCenter: 0.95, YCenter: 0.5, Width: 0.2, Height: 0.2}).Valid() {
		t.Error("Box crossing the right edge should be invalid")
	}
	if (Box{XCenter: 0.5, YCenter: 0.5, Width: 0, Height: 0.2}).Valid() {
		t.Error("Zero-width box should be invalid")
	}
}

func TestBoxWithin(t *testing.T) {
	// Left edge at -5e-7, as written by six-decimal exporters
	rounded := Box{XCenter: 0.061728, YCenter: 0.5, Width: 0.123457, Height: 0.2}
	if rounded.Valid() {
		t.Error("Box past the edge should not be valid")
	}
	if !rounded.Within(1e-6) {
		t.Error("Box within 1e-6 of the edge should pass the wider tolerance")
	}
	if (Box{XCenter: 0.05, YCenter: 0.5, Width: 0.2, Height: 0.2}).Within(1e-6) {
		t.Error("Box 0.05 past the edge should fail")
	}
}

func TestCornerBoxCenter(t *testing.T) {
	b := CornerBox{X: 0.1, Y: 0.2, W: 0.4, H: 0.2}.Center(5)
	if b.ClassID != 5 || math.Abs(b.XCenter-0.3) > 1e-9 || math.Abs(b.YCenter-0.3) > 1e-9 {
		t.Errorf("Unexpected center box %+v", b)
	}
	if b.Width != 0.4 || b.Height != 0.2 {
		t.Errorf("Size must carry over, got %+v", b)
	}
}

func TestParseDetectionResult(t *testing.T) {
	raw := "```json\n{\n  // objects found\n  \"objects\": [\n    {\"label\": \"cat\", \"confidence\": 0.9, \"box\": {\"x\": 0.1, \"y\": 0.2, \"w\": 0.3, \"h\": 0.4},},\n  ],\n  \"description\": \"a cat\"\n}\n```"

	result, err := ParseDetectionResult(raw)
	if err != nil {
		t.Fatalf("ParseDetectionResult failed: %v", err)
	}
	if len(result.Objects) != 1 {
		t.Fatalf("Expected 1 object, got %d", len(result.Objects))
	}
	obj := result.Objects[0]
	if obj.Label != "cat" || obj.Confidence != 0.9 || obj.Box.W != 0.3 {
		t.Errorf("Unexpected object %+v", obj)
	}
	if result.Description != "a cat" {
		t.Errorf("Unexpected description %q", result.Description)
	}
}

func TestParseDetectionResultFallback(t *testing.T) {
	for _, raw := range []string{"I see a cat.", "{not json}"} {
		result, err := ParseDetectionResult(raw)
		if err != nil {
			t.Fatalf("Expected fallback, got error %v", err)
		}
		if result.Objects == nil || len(result.Objects) != 0 {
			t.Errorf("Expected empty objects for %q, got %v", raw, result.Objects)
		}
	}
}
