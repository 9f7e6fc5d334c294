package exporter

import (
	"fmt"
	"io"

	"sitepulse/internal/operations"
)

// Headers are the column names of the exported table
var Headers = []string{"Kind", "Analysis", "Status", "Started", "Finished", "Duration (ms)", "Error", "Result"}

// Rows returns one record per kind of state in run order
func Rows(state *operations.OrchestratorState) [][]string {
	ordered := state.Ordered()
	rows := make([][]string, 0, len(ordered))
	for _, st := range ordered {
		rows = append(rows, []string{
			string(st.Kind),
			st.Kind.DisplayName(),
			string(st.State),
			formatTime(st.StartTime),
			formatTime(st.EndTime),
			formatDuration(st.Duration),
			st.Error,
			formatData(st.Data),
		})
	}
	return rows
}

// Export writes state to w in format
func Export(w io.Writer, format Format, state *operations.OrchestratorState) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, WriteOptions{Headers: Headers, Records: Rows(state), BOMPrefix: true})
	case FormatXLSX:
		return WriteXLSX(w, state)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
