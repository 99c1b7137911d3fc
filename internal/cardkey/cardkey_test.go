package cardkey

import "testing"

func TestNormalize(t *testing.T) {
	got := Normalize("  lesson-3/card-7 \r\n")
	expected := "lesson-3/card-7"
	if got != expected {
		t.Errorf("Expected normalized id to be '%s', but got '%s'", expected, got)
	}
}

func TestSeed(t *testing.T) {
	t.Run("seed is deterministic", func(t *testing.T) {
		if Seed("card-1", 4) != Seed("card-1", 4) {
			t.Error("Expected seeds for identical inputs to be the same")
		}
	})

	t.Run("normalization produces same seed", func(t *testing.T) {
		if Seed(" card-1\n", 4) != Seed("card-1", 4) {
			t.Error("Expected seeds to be the same after normalization, but they were different.")
		}
	})

	t.Run("review count changes seed", func(t *testing.T) {
		if Seed("card-1", 4) == Seed("card-1", 5) {
			t.Error("Expected seeds for different review counts to be different")
		}
	})

	t.Run("different cards have different seeds", func(t *testing.T) {
		if Seed("card-1", 1) == Seed("card-2", 1) {
			t.Error("Expected seeds for different cards to be different")
		}
	})
}

func TestUnit(t *testing.T) {
	for reps := 0; reps < 500; reps++ {
		u := Unit("card-x", reps)
		if u < 0 || u >= 1 {
			t.Fatalf("Expected Unit in [0, 1), but got %f for reps=%d", u, reps)
		}
	}
}
