package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseGrade(t *testing.T) {
	tests := []struct {
		in   string
		want Grade
	}{
		{"again", Again},
		{"Hard", Hard},
		{" GOOD ", Good},
		{"easy", Easy},
		{"1", Again},
		{"4", Easy},
		{"fail", Again},
		{"Pass", Good},
	}
	for _, tt := range tests {
		got, err := ParseGrade(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseGrade(%q): Expected %s but got %s (%v)", tt.in, tt.want, got, err)
		}
	}

	for _, bad := range []string{"", "0", "5", "great", "2.5"} {
		if _, err := ParseGrade(bad); !errors.Is(err, ErrInvalidGrade) {
			t.Errorf("ParseGrade(%q): Expected ErrInvalidGrade, but got %v", bad, err)
		}
	}
}

func TestBinaryGrade(t *testing.T) {
	if Fail.Grade() != Again {
		t.Errorf("Expected Fail to map to Again, but got %s", Fail.Grade())
	}
	if Pass.Grade() != Good {
		t.Errorf("Expected Pass to map to Good, but got %s", Pass.Grade())
	}
}

func TestGradeOrder(t *testing.T) {
	for i := 1; i < len(Grades); i++ {
		if Grades[i-1] >= Grades[i] {
			t.Errorf("Expected %s < %s", Grades[i-1], Grades[i])
		}
	}
	if Again.IsSuccess() || !Hard.IsSuccess() {
		t.Error("Expected only Again to count as a failure")
	}
	if Grade(0).IsValid() || Grade(5).IsValid() {
		t.Error("Expected grades outside 1..4 to be invalid")
	}
}

func TestGradeJSON(t *testing.T) {
	b, err := json.Marshal(Hard)
	if err != nil || string(b) != `"Hard"` {
		t.Errorf("Expected \"Hard\", but got %s (%v)", b, err)
	}

	var g Grade
	if err := json.Unmarshal([]byte(`3`), &g); err != nil || g != Good {
		t.Errorf("Expected numeric 3 to decode as Good, but got %s (%v)", g, err)
	}
	if err := json.Unmarshal([]byte(`"easy"`), &g); err != nil || g != Easy {
		t.Errorf("Expected \"easy\" to decode as Easy, but got %s (%v)", g, err)
	}
	if err := json.Unmarshal([]byte(`true`), &g); !errors.Is(err, ErrInvalidGrade) {
		t.Errorf("Expected ErrInvalidGrade, but got %v", err)
	}
	if _, err := json.Marshal(Grade(9)); err == nil {
		t.Error("Expected an invalid grade to fail marshalling")
	}
}

func TestStateJSON(t *testing.T) {
	for _, s := range []State{New, Learning, Review, Relearning} {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal(%s): %v", s, err)
		}
		var got State
		if err := json.Unmarshal(b, &got); err != nil || got != s {
			t.Errorf("Expected %s to survive JSON, but got %s (%v)", s, got, err)
		}
	}
	var s State
	if err := json.Unmarshal([]byte(`"Mastered"`), &s); err == nil {
		t.Error("Expected an unknown state name to be rejected")
	}
}

func TestMemoryState(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	m := NewMemoryState("card-1", now)
	if m.State != New || m.Reps != 0 || m.LastReview != nil || !m.Due.Equal(now) {
		t.Errorf("Expected a fresh New state due now, but got %+v", m)
	}
	if !m.IsDue(now) || m.IsDue(now.Add(-time.Second)) {
		t.Error("Expected the card to be due from now on")
	}

	last := now
	m.LastReview = &last
	c := m.Clone()
	*c.LastReview = now.Add(time.Hour)
	if !m.LastReview.Equal(now) {
		t.Error("Expected Clone to copy the last review time")
	}
}
