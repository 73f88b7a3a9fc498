package boxstore

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/boxlabel/pkg/types"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAddKeepsInsertionOrder(t *testing.T) {
	s := New(nil)
	s.Add(types.Box{ClassID: 1, XCenter: 0.5, YCenter: 0.5, Width: 0.1, Height: 0.1})
	s.Add(types.Box{ClassID: 2, XCenter: 0.5, YCenter: 0.5, Width: 0.1, Height: 0.1})

	if s.Len() != 2 {
		t.Fatalf("Expected 2 boxes, got %d", s.Len())
	}
	if last, _ := s.At(1); last.ClassID != 2 {
		t.Errorf("Expected last box to be class 2, got %d", last.ClassID)
	}
}

func TestRemoveAt(t *testing.T) {
	s := New([]types.Box{{ClassID: 0}, {ClassID: 1}, {ClassID: 2}})

	if err := s.RemoveAt(1); err != nil {
		t.Fatalf("RemoveAt failed: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Expected 2 boxes, got %d", s.Len())
	}
	if b, _ := s.At(1); b.ClassID != 2 {
		t.Errorf("Expected class 2 at index 1, got %d", b.ClassID)
	}

	for _, index := range []int{-1, 2, 10} {
		if err := s.RemoveAt(index); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Expected ErrIndexOutOfRange for %d, got %v", index, err)
		}
	}
	if s.Len() != 2 {
		t.Errorf("Out of range removal must not mutate, got %d boxes", s.Len())
	}
}

func TestReplaceAllDoesNotAlias(t *testing.T) {
	input := []types.Box{{ClassID: 1, Width: 0.5}}
	s := New(nil)
	s.ReplaceAll(input)

	input[0].ClassID = 99
	if b, _ := s.At(0); b.ClassID != 1 {
		t.Error("Store must deep-copy boxes passed to ReplaceAll")
	}

	snap := s.Snapshot()
	snap[0].ClassID = 42
	if b, _ := s.At(0); b.ClassID != 1 {
		t.Error("Snapshot must not alias the store")
	}
}

func TestHitTestLastAddedWins(t *testing.T) {
	a := types.Box{ClassID: 0, XCenter: 0.4, YCenter: 0.4, Width: 0.4, Height: 0.4}
	b := types.Box{ClassID: 1, XCenter: 0.5, YCenter: 0.5, Width: 0.4, Height: 0.4}
	s := New([]types.Box{a, b})

	// (0.45, 0.45) is inside both
	if got := s.HitTest(types.Point{X: 450, Y: 450}, 1000, 1000); got != 1 {
		t.Errorf("Expected topmost box 1, got %d", got)
	}
	// Only A covers (0.25, 0.25)
	if got := s.HitTest(types.Point{X: 250, Y: 250}, 1000, 1000); got != 0 {
		t.Errorf("Expected box 0, got %d", got)
	}
	if got := s.HitTest(types.Point{X: 950, Y: 50}, 1000, 1000); got != -1 {
		t.Errorf("Expected no hit, got %d", got)
	}
}

func TestHitTestEdgesInclusive(t *testing.T) {
	s := New([]types.Box{{XCenter: 0.5, YCenter: 0.5, Width: 0.2, Height: 0.2}})

	if got := s.HitTest(types.Point{X: 40, Y: 60}, 100, 100); got != 0 {
		t.Errorf("Expected edge hit, got %d", got)
	}
}

func TestClampScenario(t *testing.T) {
	got := Clamp(types.Box{XCenter: 0.02, YCenter: 0.5, Width: 0.1, Height: 0.1})

	if !almostEqual(got.XCenter, 0.05) {
		t.Errorf("Expected x_center 0.05, got %f", got.XCenter)
	}
	if got.Width != 0.1 {
		t.Errorf("Clamp must not change width, got %f", got.Width)
	}
}

func TestClampIdempotent(t *testing.T) {
	boxes := []types.Box{
		{XCenter: 0.02, YCenter: 0.98, Width: 0.1, Height: 0.1},
		{XCenter: -0.5, YCenter: 1.5, Width: 0.3, Height: 0.7},
		{XCenter: 0.5, YCenter: 0.5, Width: 1.4, Height: 0.2},
		{XCenter: 0.3, YCenter: 0.6, Width: 0.2, Height: 0.2},
	}

	for _, b := range boxes {
		once := Clamp(b)
		twice := Clamp(once)
		if once != twice {
			t.Errorf("Clamp not idempotent for %+v: %+v vs %+v", b, once, twice)
		}
		if !once.Valid() {
			t.Errorf("Clamped box %+v is not valid", once)
		}
	}
}

func TestTooSmall(t *testing.T) {
	if !TooSmall(types.Box{Width: 0.005, Height: 0.5}, DefaultMinBoxSize) {
		t.Error("Narrow box should be too small")
	}
	if !TooSmall(types.Box{Width: 0.5, Height: 0.0}, DefaultMinBoxSize) {
		t.Error("Flat box should be too small")
	}
	if TooSmall(types.Box{Width: 0.01, Height: 0.01}, DefaultMinBoxSize) {
		t.Error("Box at the threshold should be accepted")
	}
}

func BenchmarkHitTest(b *testing.B) {
	s := New(nil)
	for i := 0; i < 50; i++ {
		s.Add(types.Box{XCenter: float64(i) / 50, YCenter: 0.5, Width: 0.05, Height: 0.05})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.HitTest(types.Point{X: 10, Y: 500}, 1000, 1000)
	}
}
