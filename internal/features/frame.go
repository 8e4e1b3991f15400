package features

import (
	"sort"
	"time"
)

// Vector is a flat mapping of feature name to value for one match or team.
type Vector map[string]float64

// Frame is an ordered feature table: one row per match, columns in a
// fixed order. The column order recorded at training time is the single
// source of truth that inference replays (see training.Trainer).
type Frame struct {
	Columns []string
	Rows    [][]float64
}

// NewFrame builds a Frame from a list of feature vectors. Columns are
// the sorted union of all keys so the ordering is deterministic; values
// missing from a vector are zero-filled.
func NewFrame(vectors []Vector) *Frame {
	seen := make(map[string]struct{})
	for _, v := range vectors {
		for k := range v {
			seen[k] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		row := make([]float64, len(columns))
		for j, col := range columns {
			row[j] = v[col]
		}
		rows[i] = row
	}

	return &Frame{Columns: columns, Rows: rows}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Select returns a new Frame containing only the named columns, in the
// order given. Unknown columns are zero-filled so a persisted column
// list from an older model still resolves.
func (f *Frame) Select(columns []string) *Frame {
	idx := make(map[string]int, len(f.Columns))
	for i, col := range f.Columns {
		idx[col] = i
	}

	rows := make([][]float64, len(f.Rows))
	for i, src := range f.Rows {
		row := make([]float64, len(columns))
		for j, col := range columns {
			if k, ok := idx[col]; ok {
				row[j] = src[k]
			}
		}
		rows[i] = row
	}

	return &Frame{Columns: append([]string(nil), columns...), Rows: rows}
}

// TrainingSet bundles a feature table with its labels. MatchIDs and
// MatchDates line up with rows; the feedback trainer joins stored
// predictions back on via the IDs and decays every sample by its date.
type TrainingSet struct {
	Features     *Frame
	ResultLabels []int
	GoalsLabels  []int
	MatchIDs     []int
	MatchDates   []time.Time
}
