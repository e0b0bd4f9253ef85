package cli

// This file contains the plain-text rendering shared by the session commands.

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/perfgo/testinsight/model"
)

const timeLayout = "2006-01-02 15:04:05"

func sessionFailed(s *model.Session) bool {
	for i := range s.TestResults {
		if s.TestResults[i].Outcome.IsFailure() {
			return true
		}
	}
	return false
}

func statusMarker(failed bool) string {
	if failed {
		return "✗"
	}
	return "✓"
}

// outcomeCounts renders e.g. "8 passed, 1 failed (9 total)".
func outcomeCounts(s *model.Session) string {
	counts := make(map[model.Outcome]int)
	for i := range s.TestResults {
		counts[s.TestResults[i].Outcome]++
	}
	var parts []string
	for _, o := range model.Outcomes {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", humanize.Comma(int64(n)), strings.ToLower(string(o))))
		}
	}
	if len(parts) == 0 {
		return "no tests"
	}
	return fmt.Sprintf("%s (%s total)", strings.Join(parts, ", "), humanize.Comma(int64(len(s.TestResults))))
}

func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+tags[k])
	}
	return strings.Join(pairs, ", ")
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64) + "s"
}

func formatPercent(delta float64) string {
	return fmt.Sprintf("%+.1f%%", delta*100)
}

func (a *App) printSessionSummary(s *model.Session) {
	fmt.Fprintf(a.out, "%s  %s  [%s]  id=%s  sut=%s  (%s)\n",
		statusMarker(sessionFailed(s)),
		s.StartTime.Local().Format(timeLayout),
		s.Duration().Round(time.Millisecond),
		s.SessionID,
		s.SUTName,
		humanize.Time(s.StartTime),
	)
	fmt.Fprintf(a.out, "   Tests: %s\n", outcomeCounts(s))
	if s.TestingSystemName != "" {
		fmt.Fprintf(a.out, "   Testing system: %s\n", s.TestingSystemName)
	}
	if len(s.RerunGroups) > 0 {
		fmt.Fprintf(a.out, "   Reruns: %d\n", len(s.RerunGroups))
	}
	if len(s.Tags) > 0 {
		fmt.Fprintf(a.out, "   Tags: %s\n", formatTags(s.Tags))
	}
	fmt.Fprintln(a.out)
}

func (a *App) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
