package types

// Record is one composed view row: output column name to value.
type Record map[string]any

// RunResult is the outcome of one composed-view run.
type RunResult struct {
	RunID   string
	Columns []string // output columns in select-list order
	Records []Record
	Indexed int // file rows loaded into the join index
	Probed  int // relational rows streamed through the probe side
	Emitted int
	Skipped int // file lines dropped under the skip policy
}
