package compare

import (
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// RerunCommand builds a pytest command line that re-runs the given tests.
// It returns an empty string when there is nothing to run.
func RerunCommand(diffs []TestDiff, extraArgs ...string) string {
	if len(diffs) == 0 {
		return ""
	}
	parts := []string{"pytest"}
	for _, arg := range extraArgs {
		parts = append(parts, shellescape.Quote(arg))
	}
	for _, d := range diffs {
		parts = append(parts, shellescape.Quote(d.NodeID))
	}
	return strings.Join(parts, " ")
}
