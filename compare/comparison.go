package compare

// This file contains the Comparison builder, which scopes a base and a target query
// over the same source and compares their results.

import (
	"context"
	"fmt"
	"time"

	"github.com/perfgo/testinsight/filter"
	"github.com/perfgo/testinsight/model"
	"github.com/perfgo/testinsight/query"
)

// Comparison builds a base and a target query side by side.
type Comparison struct {
	src    query.Source
	base   *query.Query
	target *query.Query
	opts   []Option
	err    error
}

// NewComparison creates a comparison over src. Query options apply to both sides.
func NewComparison(src query.Source, opts ...query.Option) *Comparison {
	return &Comparison{
		src:    src,
		base:   query.New(src, opts...),
		target: query.New(src, opts...),
	}
}

// Base exposes the base query for predicates the builder does not cover.
func (c *Comparison) Base() *query.Query {
	return c.base
}

func (c *Comparison) Target() *query.Query {
	return c.target
}

// Err returns the first build error from either side or from a comparison parameter.
func (c *Comparison) Err() error {
	if c.err != nil {
		return c.err
	}
	if err := c.base.Err(); err != nil {
		return fmt.Errorf("base query: %w", err)
	}
	if err := c.target.Err(); err != nil {
		return fmt.Errorf("target query: %w", err)
	}
	return nil
}

// BetweenSUTs compares baseSUT against targetSUT.
func (c *Comparison) BetweenSUTs(baseSUT, targetSUT string) *Comparison {
	c.base.WithSUT(baseSUT)
	c.target.WithSUT(targetSUT)
	return c
}

// InLastDays limits both sides to sessions from the last n days.
func (c *Comparison) InLastDays(n int) *Comparison {
	c.base.InLastDays(n)
	c.target.InLastDays(n)
	return c
}

// InDateWindow compares sessions in [start, cutoff) against sessions from cutoff onwards.
func (c *Comparison) InDateWindow(start, cutoff time.Time) *Comparison {
	c.base.DateRange(start, cutoff)
	c.target.After(cutoff)
	return c
}

// WithEnvironment requires the given session tags on each side.
func (c *Comparison) WithEnvironment(baseTags, targetTags map[string]string) *Comparison {
	for k, v := range baseTags {
		c.base.WithSessionTag(k, v)
	}
	for k, v := range targetTags {
		c.target.WithSessionTag(k, v)
	}
	return c
}

// WithTestPattern keeps sessions with a matching test on both sides and compares only
// the matching tests.
func (c *Comparison) WithTestPattern(pattern string, opts ...query.PatternOption) *Comparison {
	c.base.FilterByTest().WithPattern(pattern, opts...).Apply()
	c.target.FilterByTest().WithPattern(pattern, opts...).Apply()

	pred, err := patternPredicate(pattern, opts...)
	if err != nil {
		c.fail(err)
		return c
	}
	c.opts = append(c.opts, OnlyTests(pred))
	return c
}

// ExcludeUnreliable drops sessions with reruns from both sides.
func (c *Comparison) ExcludeUnreliable() *Comparison {
	c.base.WithReruns(false)
	c.target.WithReruns(false)
	return c
}

// OnlyFailures keeps sessions with at least one failed test on both sides.
func (c *Comparison) OnlyFailures() *Comparison {
	c.base.WithOutcome(model.OutcomeFailed)
	c.target.WithOutcome(model.OutcomeFailed)
	return c
}

// WithThreshold sets the performance threshold.
func (c *Comparison) WithThreshold(threshold float64) *Comparison {
	if err := ValidateThreshold(threshold); err != nil {
		c.fail(err)
		return c
	}
	c.opts = append(c.opts, WithThreshold(threshold))
	return c
}

func (c *Comparison) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Execute loads the source once and compares the two scoped session sets.
func (c *Comparison) Execute(ctx context.Context) (*Result, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}
	sessions, err := c.src.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return c.ExecuteOn(sessions)
}

// ExecuteOn compares the two scoped sets drawn from sessions.
func (c *Comparison) ExecuteOn(sessions []*model.Session) (*Result, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}
	base, err := c.base.ExecuteOn(sessions)
	if err != nil {
		return nil, fmt.Errorf("base query: %w", err)
	}
	target, err := c.target.ExecuteOn(sessions)
	if err != nil {
		return nil, fmt.Errorf("target query: %w", err)
	}
	return Compare(base, target, c.opts...)
}

// ExecutePairs loads the source once, pairs the two scoped sets with strategy and compares
// each pair on its own.
func (c *Comparison) ExecutePairs(ctx context.Context, strategy PairingStrategy) ([]PairResult, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}
	sessions, err := c.src.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	base, err := c.base.ExecuteOn(sessions)
	if err != nil {
		return nil, fmt.Errorf("base query: %w", err)
	}
	target, err := c.target.ExecuteOn(sessions)
	if err != nil {
		return nil, fmt.Errorf("target query: %w", err)
	}
	return ComparePairs(PairSessions(base, target, strategy), c.opts...)
}

func patternPredicate(pattern string, opts ...query.PatternOption) (filter.TestPredicate, error) {
	field, useRegex := query.PatternSettings(opts...)
	return filter.TestPattern(field, pattern, useRegex)
}
