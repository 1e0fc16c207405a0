// Package workout runs guided workouts: an ordered list of timed steps that
// advance on a shared one-second clock.
package workout

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultStepDuration is used for steps without a parseable duration.
const DefaultStepDuration = 300

var ErrMalformedDuration = errors.New("malformed step duration")

// Step is one entry of a structured workout, as handed in by the training
// plan. Duration is free-form text such as "5 min" or "30 sec".
type Step struct {
	Order          int     `json:"order" yaml:"order"`
	Label          string  `json:"label" yaml:"label"`
	Duration       string  `json:"duration,omitempty" yaml:"duration"`
	DistanceMeters float64 `json:"distance_m,omitempty" yaml:"distance_m"`
	Effort         string  `json:"effort" yaml:"effort"`
	Notes          string  `json:"notes,omitempty" yaml:"notes"`
}

// TargetDuration parses the step's duration text into seconds.
func (s Step) TargetDuration() (int, error) {
	return ParseDuration(s.Duration)
}

var durationPattern = regexp.MustCompile(`(?i)^\s*(\d*\.?\d+)\s*(min(?:ute)?s?|sec(?:ond)?s?)\b`)

// ParseDuration reads "<number> min" or "<number> sec". The number may be a
// fraction, with or without a leading zero (".5 min").
func ParseDuration(text string) (int, error) {
	m := durationPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, text)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, text)
	}

	seconds := value
	if strings.HasPrefix(strings.ToLower(m[2]), "min") {
		seconds = value * 60
	}
	rounded := int(math.Round(seconds))
	if rounded <= 0 {
		return 0, fmt.Errorf("%w: %q is not positive", ErrMalformedDuration, text)
	}
	return rounded, nil
}
