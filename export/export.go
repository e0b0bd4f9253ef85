// Package export writes sessions to files other tools can consume.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/perfgo/testinsight/model"
)

type sessionsFile struct {
	Sessions []*model.Session `json:"sessions"`
}

// WriteJSON writes sessions in the same {"sessions": [...]} shape the JSON store uses,
// so an export can be imported into any profile.
func WriteJSON(w io.Writer, sessions []*model.Session) error {
	if sessions == nil {
		sessions = []*model.Session{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sessionsFile{Sessions: sessions}); err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	return nil
}

// ReadJSON reads either {"sessions": [...]} or a bare JSON array of sessions.
func ReadJSON(r io.Reader) ([]*model.Session, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '[' {
		var sessions []*model.Session
		if err := json.Unmarshal(data, &sessions); err != nil {
			return nil, fmt.Errorf("failed to decode sessions: %w", err)
		}
		return dropNil(sessions), nil
	}

	var f sessionsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return dropNil(f.Sessions), nil
}

// dropNil removes null entries.
func dropNil(sessions []*model.Session) []*model.Session {
	out := sessions[:0]
	for _, s := range sessions {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

var csvHeader = []string{
	"session_id",
	"sut_name",
	"testing_system",
	"session_start_time",
	"nodeid",
	"outcome",
	"start_time",
	"duration",
	"has_warning",
	"rerun",
}

// WriteCSV writes one row per test result.
func WriteCSV(w io.Writer, sessions []*model.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, s := range sessions {
		for _, t := range s.TestResults {
			_, rerun := s.RerunGroup(t.NodeID)
			row := []string{
				s.SessionID,
				s.SUTName,
				s.TestingSystemName,
				s.StartTime.Format(time.RFC3339),
				t.NodeID,
				t.Outcome.String(),
				t.StartTime.Format(time.RFC3339Nano),
				strconv.FormatFloat(t.Duration, 'f', -1, 64),
				strconv.FormatBool(t.HasWarning),
				strconv.FormatBool(rerun),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
