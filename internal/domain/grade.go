package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidGrade is returned when a grade is outside Again..Easy.
var ErrInvalidGrade = errors.New("invalid grade")

// Grade is the learner's recall outcome for a single review.
// The values correspond to FSRS ratings:
// 1: Again (Incorrect)
// 2: Hard
// 3: Good
// 4: Easy
type Grade int

const (
	Again Grade = iota + 1
	Hard
	Good
	Easy
)

// Grades lists every grade in ascending order.
var Grades = [...]Grade{Again, Hard, Good, Easy}

var gradeNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// IsValid reports whether g is one of Again, Hard, Good or Easy.
func (g Grade) IsValid() bool {
	return g >= Again && g <= Easy
}

func (g Grade) String() string {
	if g.IsValid() {
		return gradeNames[g]
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}

// IsSuccess reports whether the card was recalled.
func (g Grade) IsSuccess() bool {
	return g >= Hard && g <= Easy
}

// MarshalText implements encoding.TextMarshaler.
func (g Grade) MarshalText() ([]byte, error) {
	if !g.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGrade, int(g))
	}
	return []byte(gradeNames[g]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and accepts anything
// ParseGrade does.
func (g *Grade) UnmarshalText(text []byte) error {
	v, err := ParseGrade(string(text))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// MarshalJSON implements json.Marshaler. Grade serializes as a JSON string.
func (g Grade) MarshalJSON() ([]byte, error) {
	text, err := g.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Both the string form and the
// numeric FSRS rating are accepted.
func (g *Grade) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidGrade, data)
		}
		s = strconv.Itoa(n)
	}
	return g.UnmarshalText([]byte(s))
}

// BinaryGrade is the two-button outcome exposed by simplified review UIs.
type BinaryGrade int

const (
	Fail BinaryGrade = iota
	Pass
)

// Grade maps the two-button outcome onto the four-level scale.
func (b BinaryGrade) Grade() Grade {
	if b == Pass {
		return Good
	}
	return Again
}

func (b BinaryGrade) String() string {
	if b == Pass {
		return "Pass"
	}
	return "Fail"
}

// ParseGrade parses a grade name (again, hard, good, easy), a two-button
// outcome (fail, pass) or a numeric rating (1-4). Matching is case-insensitive.
func ParseGrade(s string) (Grade, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "again", "1":
		return Again, nil
	case "hard", "2":
		return Hard, nil
	case "good", "3":
		return Good, nil
	case "easy", "4":
		return Easy, nil
	case "fail":
		return Fail.Grade(), nil
	case "pass":
		return Pass.Grade(), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidGrade, s)
}
