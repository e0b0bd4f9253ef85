// Package store persists sessions. Backends keep sessions in insertion order and treat
// them as immutable: callers must not modify a session returned by LoadAll or GetByID.
package store

import (
	"context"
	"errors"

	"github.com/perfgo/testinsight/model"
)

var (
	// ErrNotFound is returned when no session has the requested id.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicateSession is returned when saving a session whose id is already stored.
	ErrDuplicateSession = errors.New("session already exists")
)

// Store is the session store contract.
type Store interface {
	LoadAll(ctx context.Context) ([]*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}

// Last returns the session with the latest start time, or ErrNotFound for an empty store.
func Last(ctx context.Context, st Store) (*model.Session, error) {
	sessions, err := st.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	var last *model.Session
	for _, s := range sessions {
		if last == nil || !s.StartTime.Before(last.StartTime) {
			last = s
		}
	}
	if last == nil {
		return nil, ErrNotFound
	}
	return last, nil
}

// Clear deletes every session from st.
func Clear(ctx context.Context, st Store) (int, error) {
	sessions, err := st.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	for i, s := range sessions {
		if err := st.Delete(ctx, s.SessionID); err != nil {
			return i, err
		}
	}
	return len(sessions), nil
}
