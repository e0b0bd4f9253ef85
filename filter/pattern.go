package filter

// This file contains the string matching primitives used by test and session predicates.

import (
	"math"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern is a compiled match pattern. Without regex it is a case-sensitive substring.
// With regex it matches anywhere in the value, not only the whole value.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// CompilePattern compiles pattern once so it can be matched against many values.
func CompilePattern(pattern string, useRegex bool) (*Pattern, error) {
	if pattern == "" {
		return nil, NewInvalidQueryParameterError("pattern", "must not be empty")
	}
	p := &Pattern{raw: pattern}
	if useRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &InvalidPatternError{Pattern: pattern, Err: err}
		}
		p.re = re
	}
	return p, nil
}

// Match reports whether value matches the pattern.
func (p *Pattern) Match(value string) bool {
	if p.re != nil {
		return p.re.MatchString(value)
	}
	return strings.Contains(value, p.raw)
}

func (p *Pattern) IsRegex() bool {
	return p.re != nil
}

func (p *Pattern) String() string {
	return p.raw
}

// PatternMatch matches a single value against pattern.
func PatternMatch(value, pattern string, useRegex bool) (bool, error) {
	p, err := CompilePattern(pattern, useRegex)
	if err != nil {
		return false, err
	}
	return p.Match(value), nil
}

// CompileGlob compiles a shell-style glob, e.g. "nightly-*".
func CompileGlob(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, NewInvalidQueryParameterError("glob", "must not be empty")
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, &InvalidPatternError{Pattern: pattern, Err: err}
	}
	return g, nil
}

// InRange reports whether low <= value < high. An infinite high bound is inclusive.
func InRange(value, low, high float64) bool {
	if math.IsNaN(value) || value < low {
		return false
	}
	if math.IsInf(high, 1) {
		return true
	}
	return value < high
}

// ValidateRange rejects NaN bounds, negative lows and inverted ranges.
func ValidateRange(parameter string, low, high float64) error {
	switch {
	case math.IsNaN(low) || math.IsNaN(high):
		return NewInvalidQueryParameterError(parameter, "bounds must be numbers")
	case low < 0:
		return NewInvalidQueryParameterError(parameter, "lower bound must not be negative")
	case high < low:
		return NewInvalidQueryParameterError(parameter, "upper bound must not be below lower bound")
	}
	return nil
}
