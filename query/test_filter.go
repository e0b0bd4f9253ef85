package query

import (
	"fmt"

	"github.com/perfgo/testinsight/filter"
	"github.com/perfgo/testinsight/model"
)

// TestFilter accumulates test-level predicates for its parent Query.
type TestFilter struct {
	q     *Query
	preds []filter.TestPredicate
}

// PatternOption configures WithPattern.
type PatternOption func(*patternConfig)

type patternConfig struct {
	field    string
	useRegex bool
}

// InField matches against field instead of nodeid.
func InField(field string) PatternOption {
	return func(c *patternConfig) {
		c.field = field
	}
}

// AsRegex treats the pattern as a regular expression matched anywhere in the value.
func AsRegex() PatternOption {
	return func(c *patternConfig) {
		c.useRegex = true
	}
}

// PatternSettings resolves pattern options to a field name and regex flag.
func PatternSettings(opts ...PatternOption) (field string, useRegex bool) {
	cfg := patternConfig{field: string(filter.FieldNodeID)}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.field, cfg.useRegex
}

func (f *TestFilter) add(op string, pred filter.TestPredicate, err error) *TestFilter {
	if f.q.mode != ModeTest || f.q.test != f {
		f.q.fail(&QueryStateError{Operation: op, Mode: f.q.mode})
		return f
	}
	if err != nil {
		f.q.fail(fmt.Errorf("%s: %w", op, err))
		return f
	}
	f.preds = append(f.preds, pred)
	return f
}

// WithPattern matches a substring, or a regex with AsRegex, against nodeid or another field.
func (f *TestFilter) WithPattern(pattern string, opts ...PatternOption) *TestFilter {
	field, useRegex := PatternSettings(opts...)
	pred, err := filter.TestPattern(field, pattern, useRegex)
	return f.add("WithPattern", pred, err)
}

func (f *TestFilter) WithOutcome(outcome model.Outcome) *TestFilter {
	pred, err := filter.TestOutcome(outcome)
	return f.add("WithOutcome", pred, err)
}

// WithDurationBetween matches durations in [low, high); pass filter.Inf for no upper bound.
func (f *TestFilter) WithDurationBetween(low, high float64) *TestFilter {
	pred, err := filter.TestDurationBetween(low, high)
	return f.add("WithDurationBetween", pred, err)
}

func (f *TestFilter) WithWarning(want bool) *TestFilter {
	return f.add("WithWarning", filter.TestWarning(want), nil)
}

func (f *TestFilter) WithNodeIDContaining(substr string) *TestFilter {
	pred, err := filter.TestPattern(string(filter.FieldNodeID), substr, false)
	return f.add("WithNodeIDContaining", pred, err)
}

// WithLogContaining searches the captured log.
func (f *TestFilter) WithLogContaining(substr string) *TestFilter {
	pred, err := filter.TestPattern(string(filter.FieldCapturedLog), substr, false)
	return f.add("WithLogContaining", pred, err)
}

// WithErrorContaining searches the long failure representation.
func (f *TestFilter) WithErrorContaining(substr string) *TestFilter {
	pred, err := filter.TestPattern(string(filter.FieldLongRepr), substr, false)
	return f.add("WithErrorContaining", pred, err)
}

// WithCustom adds a caller-supplied test predicate.
func (f *TestFilter) WithCustom(pred filter.TestPredicate) *TestFilter {
	if pred == nil {
		return f.add("WithCustom", nil, filter.NewInvalidQueryParameterError("predicate", "must not be nil"))
	}
	return f.add("WithCustom", pred, nil)
}

// Apply folds the test predicates into one session predicate that holds when a single test
// result satisfies all of them, and returns the parent Query in SESSION mode.
func (f *TestFilter) Apply() *Query {
	q := f.q
	if q.mode != ModeTest || q.test != f {
		q.fail(&QueryStateError{Operation: "Apply", Mode: q.mode})
		return q
	}
	q.mode = ModeSession
	q.test = nil
	if len(f.preds) > 0 {
		q.preds = append(q.preds, filter.AnyTest(filter.AllTests(f.preds...)))
	}
	return q
}
