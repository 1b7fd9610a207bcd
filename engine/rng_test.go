package engine

import "testing"

func TestRNG_Deterministic(t *testing.T) {
	rng1 := NewRNG(42)
	rng2 := NewRNG(42)

	for i := 0; i < 20; i++ {
		a := rng1.Roll(6)
		b := rng2.Roll(6)
		if a != b {
			t.Fatalf("roll %d: got %d and %d from same seed", i, a, b)
		}
	}
}

func TestRNG_Roll_Range(t *testing.T) {
	rng := NewRNG(99)

	for i := 0; i < 1000; i++ {
		r := rng.Roll(6)
		if r < 1 || r > 6 {
			t.Fatalf("roll out of range [1,6]: got %d", r)
		}
	}
}

func TestRNG_Roll_OneSided(t *testing.T) {
	rng := NewRNG(1)

	for i := 0; i < 10; i++ {
		if r := rng.Roll(1); r != 1 {
			t.Fatalf("1-sided die should always be 1, got %d", r)
		}
	}
}

func TestRNG_IntRange_Bounds(t *testing.T) {
	rng := NewRNG(7)

	for i := 0; i < 1000; i++ {
		v := rng.IntRange(3, 9)
		if v < 3 || v > 9 {
			t.Fatalf("value out of range [3,9]: got %d", v)
		}
	}
}

func TestRNG_IntRange_DegenerateReturnsLow(t *testing.T) {
	rng := NewRNG(7)

	if v := rng.IntRange(5, 5); v != 5 {
		t.Fatalf("expected 5, got %d", v)
	}
	if v := rng.IntRange(5, 2); v != 5 {
		t.Fatalf("reversed range should return lo, got %d", v)
	}
	// Degenerate ranges still consume a draw, keeping replay exact.
	if rng.Position() != 2 {
		t.Fatalf("expected position 2, got %d", rng.Position())
	}
}

func TestRNG_Float64_HalfOpenUnit(t *testing.T) {
	rng := NewRNG(12345)

	for i := 0; i < 1000; i++ {
		f := rng.Float64()
		if f < 0 || f >= 1 {
			t.Fatalf("value out of [0,1): got %g", f)
		}
	}
}

func TestRNG_Position_Tracks(t *testing.T) {
	rng := NewRNG(42)

	if rng.Position() != 0 {
		t.Fatalf("expected position 0, got %d", rng.Position())
	}

	rng.Roll(6)
	if rng.Position() != 1 {
		t.Fatalf("expected position 1, got %d", rng.Position())
	}

	rng.Float64()
	if rng.Position() != 2 {
		t.Fatalf("expected position 2, got %d", rng.Position())
	}

	rng.IntRange(1, 20)
	rng.IntRange(1, 20)
	if rng.Position() != 4 {
		t.Fatalf("expected position 4, got %d", rng.Position())
	}
}

func TestRNG_Restore_MatchesPosition(t *testing.T) {
	// Advance an RNG to position 10 with a mix of draw kinds and record
	// the next 5 rolls.
	rng := NewRNG(42)
	for i := 0; i < 5; i++ {
		rng.Roll(6)
		rng.Float64()
	}

	var expected [5]int
	for i := range expected {
		expected[i] = rng.Roll(6)
	}

	// Restore to position 10 and verify same rolls.
	restored := RestoreRNG(42, 10)
	if restored.Position() != 10 {
		t.Fatalf("expected position 10, got %d", restored.Position())
	}

	for i, want := range expected {
		got := restored.Roll(6)
		if got != want {
			t.Fatalf("roll %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestRNG_DifferentSeeds_DifferentResults(t *testing.T) {
	rng1 := NewRNG(1)
	rng2 := NewRNG(2)

	// With different seeds, at least some rolls should differ.
	differs := false
	for i := 0; i < 20; i++ {
		if rng1.Roll(100) != rng2.Roll(100) {
			differs = true
			break
		}
	}
	if !differs {
		t.Error("expected different seeds to produce different results")
	}
}
