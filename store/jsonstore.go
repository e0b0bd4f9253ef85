package store

// This file contains the single-file JSON backend. The file holds {"sessions": [...]}
// and is rewritten through a temporary file and rename while holding a file lock.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/perfgo/testinsight/model"
)

const lockRetryDelay = 50 * time.Millisecond

type jsonFile struct {
	Sessions []*model.Session `json:"sessions"`
}

// JSONStore keeps every session in one JSON file.
type JSONStore struct {
	logger zerolog.Logger
	path   string
	lock   *flock.Flock
}

// NewJSONStore creates a store backed by path. The file and its directory are created on
// first write.
func NewJSONStore(logger zerolog.Logger, path string) *JSONStore {
	return &JSONStore{
		logger: logger,
		path:   path,
		lock:   flock.New(path + ".lock"),
	}
}

func (j *JSONStore) Path() string {
	return j.path
}

func (j *JSONStore) LoadAll(ctx context.Context) ([]*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return j.read()
}

func (j *JSONStore) GetByID(ctx context.Context, id string) (*model.Session, error) {
	sessions, err := j.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.SessionID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (j *JSONStore) Save(ctx context.Context, s *model.Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	return j.update(ctx, func(sessions []*model.Session) ([]*model.Session, error) {
		for _, existing := range sessions {
			if existing.SessionID == s.SessionID {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, s.SessionID)
			}
		}
		return append(sessions, s), nil
	})
}

func (j *JSONStore) Delete(ctx context.Context, id string) error {
	return j.update(ctx, func(sessions []*model.Session) ([]*model.Session, error) {
		for i, existing := range sessions {
			if existing.SessionID == id {
				return append(sessions[:i], sessions[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	})
}

// update applies fn to the stored sessions under the file lock and writes the result.
func (j *JSONStore) update(ctx context.Context, fn func([]*model.Session) ([]*model.Session, error)) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	locked, err := j.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", j.path, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s", j.path)
	}
	defer func() {
		if err := j.lock.Unlock(); err != nil {
			j.logger.Warn().Err(err).Str("path", j.path).Msg("Failed to release storage lock")
		}
	}()

	sessions, err := j.read()
	if err != nil {
		return err
	}
	sessions, err = fn(sessions)
	if err != nil {
		return err
	}
	return j.write(sessions)
}

// read loads the file. A missing file is an empty store; a corrupted file is moved aside
// to <path>.bak and also treated as empty.
func (j *JSONStore) read() ([]*model.Session, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return []*model.Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", j.path, err)
	}
	if len(data) == 0 {
		return []*model.Session{}, nil
	}

	var f jsonFile
	if err := json.Unmarshal(data, &f); err != nil {
		backup := j.path + ".bak"
		j.logger.Warn().Err(err).Str("path", j.path).Str("backup", backup).Msg("Corrupted session file, starting empty")
		if err := os.WriteFile(backup, data, 0o644); err != nil {
			j.logger.Error().Err(err).Str("path", backup).Msg("Failed to back up corrupted session file")
		}
		return []*model.Session{}, nil
	}

	sessions := make([]*model.Session, 0, len(f.Sessions))
	for _, s := range f.Sessions {
		if s != nil {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

func (j *JSONStore) write(sessions []*model.Session) error {
	data, err := json.MarshalIndent(jsonFile{Sessions: sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), filepath.Base(j.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", j.path, err)
	}

	j.logger.Debug().Str("path", j.path).Int("sessions", len(sessions)).Msg("Wrote session file")
	return nil
}
