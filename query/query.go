package query

// This file contains the session-level half of the two-level query builder.
//
// A Query starts in SESSION mode. FilterByTest switches it to TEST mode and returns a
// TestFilter; TestFilter.Apply folds the accumulated test predicates into a single
// existential session predicate and switches back. Execute is only allowed in SESSION mode.
//
// Build errors are recorded on the first call that produces them. Err reports them right
// away and Execute returns them without touching the source.

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/perfgo/testinsight/filter"
	"github.com/perfgo/testinsight/model"
)

// Mode is the builder state.
type Mode int

const (
	ModeSession Mode = iota
	ModeTest
)

func (m Mode) String() string {
	if m == ModeTest {
		return "TEST"
	}
	return "SESSION"
}

// Source supplies the sessions a query runs against.
type Source interface {
	LoadAll(ctx context.Context) ([]*model.Session, error)
}

// Option configures a Query.
type Option func(*Query)

// WithClock overrides the clock used by relative time predicates.
func WithClock(now func() time.Time) Option {
	return func(q *Query) {
		q.now = now
	}
}

// Query accumulates session predicates and runs them against a Source.
type Query struct {
	src   Source
	now   func() time.Time
	preds []filter.SessionPredicate
	mode  Mode
	test  *TestFilter
	err   error

	sortByStart bool
	descending  bool
	limit       int
}

// New creates a query over src.
func New(src Source, opts ...Option) *Query {
	q := &Query{src: src, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Err returns the first error recorded while building the query.
func (q *Query) Err() error {
	return q.err
}

func (q *Query) Mode() Mode {
	return q.mode
}

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// add records pred, or err when the predicate could not be built.
func (q *Query) add(op string, pred filter.SessionPredicate, err error) *Query {
	if q.mode != ModeSession {
		q.fail(&QueryStateError{Operation: op, Mode: q.mode})
		return q
	}
	if err != nil {
		q.fail(fmt.Errorf("%s: %w", op, err))
		return q
	}
	q.preds = append(q.preds, pred)
	return q
}

// WithSUT keeps sessions for the named system under test.
func (q *Query) WithSUT(name string) *Query {
	pred, err := filter.SessionSUT(name)
	return q.add("WithSUT", pred, err)
}

func (q *Query) WithTestingSystem(name string) *Query {
	pred, err := filter.SessionTestingSystem(name)
	return q.add("WithTestingSystem", pred, err)
}

// WithSessionID keeps sessions whose id matches a shell glob.
func (q *Query) WithSessionID(pattern string) *Query {
	pred, err := filter.SessionIDGlob(pattern)
	return q.add("WithSessionID", pred, err)
}

// InLastDays keeps sessions started within the last n days. The cutoff is fixed when the
// method is called.
func (q *Query) InLastDays(n int) *Query {
	return q.inLast("InLastDays", "days", n, 24*time.Hour)
}

func (q *Query) InLastHours(n int) *Query {
	return q.inLast("InLastHours", "hours", n, time.Hour)
}

func (q *Query) InLastMinutes(n int) *Query {
	return q.inLast("InLastMinutes", "minutes", n, time.Minute)
}

func (q *Query) inLast(op, param string, n int, unit time.Duration) *Query {
	if n <= 0 {
		return q.add(op, nil, filter.NewInvalidQueryParameterError(param, fmt.Sprintf("must be positive, got %d", n)))
	}
	pred, err := filter.SessionWithin(q.now(), time.Duration(n)*unit)
	return q.add(op, pred, err)
}

// After keeps sessions starting at or after ts.
func (q *Query) After(ts time.Time) *Query {
	return q.add("After", filter.SessionStartedAfter(ts), nil)
}

// Before keeps sessions starting strictly before ts.
func (q *Query) Before(ts time.Time) *Query {
	return q.add("Before", filter.SessionStartedBefore(ts), nil)
}

// DateRange keeps sessions starting in [from, to).
func (q *Query) DateRange(from, to time.Time) *Query {
	pred, err := filter.SessionStartedBetween(from, to)
	return q.add("DateRange", pred, err)
}

func (q *Query) WithWarning(want bool) *Query {
	return q.add("WithWarning", filter.SessionWarning(want), nil)
}

func (q *Query) WithReruns(want bool) *Query {
	return q.add("WithReruns", filter.SessionReruns(want), nil)
}

func (q *Query) WithSessionTag(key, value string) *Query {
	pred, err := filter.SessionTag(key, value)
	return q.add("WithSessionTag", pred, err)
}

// WithSessionField matches a pattern against a session field such as "sut_name" or "tags.env".
func (q *Query) WithSessionField(field, pattern string, useRegex bool) *Query {
	pred, err := filter.SessionPattern(field, pattern, useRegex)
	return q.add("WithSessionField", pred, err)
}

// WithOutcome keeps sessions containing at least one test with the given outcome.
func (q *Query) WithOutcome(outcome model.Outcome) *Query {
	pred, err := filter.TestOutcome(outcome)
	if err != nil {
		return q.add("WithOutcome", nil, err)
	}
	return q.add("WithOutcome", filter.AnyTest(pred), nil)
}

// Where adds a caller-supplied session predicate.
func (q *Query) Where(pred filter.SessionPredicate) *Query {
	if pred == nil {
		return q.add("Where", nil, filter.NewInvalidQueryParameterError("predicate", "must not be nil"))
	}
	return q.add("Where", pred, nil)
}

// OrderByStartTime sorts the result by session start time. Without it, store order is kept.
func (q *Query) OrderByStartTime(descending bool) *Query {
	if q.mode != ModeSession {
		q.fail(&QueryStateError{Operation: "OrderByStartTime", Mode: q.mode})
		return q
	}
	q.sortByStart = true
	q.descending = descending
	return q
}

// Limit caps the number of sessions returned, applied after sorting.
func (q *Query) Limit(n int) *Query {
	if q.mode != ModeSession {
		q.fail(&QueryStateError{Operation: "Limit", Mode: q.mode})
		return q
	}
	if n <= 0 {
		q.fail(fmt.Errorf("Limit: %w", filter.NewInvalidQueryParameterError("limit", fmt.Sprintf("must be positive, got %d", n))))
		return q
	}
	q.limit = n
	return q
}

// FilterByTest enters TEST mode.
func (q *Query) FilterByTest() *TestFilter {
	if q.mode == ModeTest {
		q.fail(&QueryStateError{Operation: "FilterByTest", Mode: q.mode})
		return q.test
	}
	q.mode = ModeTest
	q.test = &TestFilter{q: q}
	return q.test
}

// Execute loads every session from the source and returns those matching all predicates.
// Returned sessions are complete, never trimmed to the matching tests.
func (q *Query) Execute(ctx context.Context) ([]*model.Session, error) {
	if err := q.ready("Execute"); err != nil {
		return nil, err
	}
	if q.src == nil {
		return nil, fmt.Errorf("query has no session source")
	}
	sessions, err := q.src.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return q.run(sessions), nil
}

// ExecuteOn runs the query against an explicit collection instead of the source.
func (q *Query) ExecuteOn(sessions []*model.Session) ([]*model.Session, error) {
	if err := q.ready("ExecuteOn"); err != nil {
		return nil, err
	}
	return q.run(sessions), nil
}

// Predicate returns the combined session predicate built so far.
func (q *Query) Predicate() (filter.SessionPredicate, error) {
	if err := q.ready("Predicate"); err != nil {
		return nil, err
	}
	return filter.AllSessions(q.preds...), nil
}

func (q *Query) ready(op string) error {
	if q.err != nil {
		return q.err
	}
	if q.mode != ModeSession {
		return &QueryStateError{Operation: op, Mode: q.mode}
	}
	return nil
}

func (q *Query) run(sessions []*model.Session) []*model.Session {
	match := filter.AllSessions(q.preds...)
	out := make([]*model.Session, 0, len(sessions))
	for _, s := range sessions {
		if s != nil && match(s) {
			out = append(out, s)
		}
	}

	if q.sortByStart {
		sort.SliceStable(out, func(i, j int) bool {
			if q.descending {
				return out[i].StartTime.After(out[j].StartTime)
			}
			return out[i].StartTime.Before(out[j].StartTime)
		})
	}
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out
}
