package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/perfgo/testinsight/model"
)

// Strategy decides what happens when an imported session id already exists.
type Strategy string

const (
	SkipExisting    Strategy = "skip_existing"
	ReplaceExisting Strategy = "replace_existing"
	KeepBoth        Strategy = "keep_both"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case SkipExisting, ReplaceExisting, KeepBoth:
		return st, nil
	}
	return "", fmt.Errorf("unknown import strategy %q (want %s, %s or %s)", s, SkipExisting, ReplaceExisting, KeepBoth)
}

// ImportStats counts what Import did.
type ImportStats struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Replaced int `json:"replaced"`
	Renamed  int `json:"renamed"`
}

// Import saves sessions into dst, resolving id collisions with strategy. KeepBoth stores
// the incoming session under its id plus a random suffix.
func Import(ctx context.Context, dst Store, sessions []*model.Session, strategy Strategy) (ImportStats, error) {
	var stats ImportStats
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return stats, err
	}

	for i, s := range sessions {
		if s == nil {
			return stats, fmt.Errorf("failed to import session at index %d: session is nil", i)
		}
		err := dst.Save(ctx, s)
		switch {
		case err == nil:
			stats.Imported++
			continue
		case !errors.Is(err, ErrDuplicateSession):
			return stats, fmt.Errorf("failed to import session %s: %w", s.SessionID, err)
		}

		switch strategy {
		case SkipExisting:
			stats.Skipped++
		case ReplaceExisting:
			if err := dst.Delete(ctx, s.SessionID); err != nil {
				return stats, fmt.Errorf("failed to replace session %s: %w", s.SessionID, err)
			}
			if err := dst.Save(ctx, s); err != nil {
				return stats, fmt.Errorf("failed to replace session %s: %w", s.SessionID, err)
			}
			stats.Replaced++
		case KeepBoth:
			renamed := s.Clone()
			renamed.SessionID = s.SessionID + "-" + uuid.NewString()[:8]
			if err := dst.Save(ctx, renamed); err != nil {
				return stats, fmt.Errorf("failed to import session %s as %s: %w", s.SessionID, renamed.SessionID, err)
			}
			stats.Renamed++
		}
	}
	return stats, nil
}
