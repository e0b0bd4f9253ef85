package store

// This file contains the directory backend: one sub-directory per session holding a
// session.json file, the layout used for per-run result directories.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/perfgo/testinsight/model"
)

// SessionFile is the file name looked for in each session directory.
const SessionFile = "session.json"

// DirStore keeps each session in <root>/<session id>/session.json.
type DirStore struct {
	logger zerolog.Logger
	root   string
}

func NewDirStore(logger zerolog.Logger, root string) *DirStore {
	return &DirStore{logger: logger, root: root}
}

func (d *DirStore) Root() string {
	return d.root
}

// LoadAll walks the root directory. Unreadable session files are logged and skipped.
func (d *DirStore) LoadAll(ctx context.Context) ([]*model.Session, error) {
	sessions := []*model.Session{}

	if _, err := os.Stat(d.root); errors.Is(err, os.ErrNotExist) {
		return sessions, nil
	}

	err := filepath.WalkDir(d.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}

		sessionPath := filepath.Join(path, SessionFile)
		if _, err := os.Stat(sessionPath); err != nil {
			return nil
		}
		s, err := readSessionFile(sessionPath)
		if err != nil {
			d.logger.Warn().Err(err).Str("path", sessionPath).Msg("Failed to parse session file")
			return nil
		}
		sessions = append(sessions, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", d.root, err)
	}

	return sessions, nil
}

func (d *DirStore) GetByID(ctx context.Context, id string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := d.dir(id)
	if err != nil {
		return nil, err
	}
	s, err := readSessionFile(filepath.Join(dir, SessionFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	return s, nil
}

func (d *DirStore) Save(ctx context.Context, s *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	dir, err := d.dir(s.SessionID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, SessionFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, s.SessionID)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	d.logger.Debug().Str("path", path).Msg("Saved session")
	return nil
}

func (d *DirStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := d.dir(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, SessionFile)); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return nil
}

// dir maps a session id to its directory, escaping path separators.
func (d *DirStore) dir(id string) (string, error) {
	name := url.PathEscape(id)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("session id %q cannot be used as a directory name", id)
	}
	return filepath.Join(d.root, name), nil
}

func readSessionFile(path string) (*model.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
