package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"fedview/pkg/types"
)

// WriteCSV writes the records as CSV with a header row, columns in
// select-list order.
func WriteCSV(w io.Writer, res *types.RunResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range res.Records {
		fields := make([]string, len(res.Columns))
		for i, col := range res.Columns {
			fields[i] = formatValue(rec[col])
		}
		if err := cw.Write(fields); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the records as JSON lines, one object per record.
func WriteJSON(w io.Writer, res *types.RunResult) error {
	enc := json.NewEncoder(w)
	for _, rec := range res.Records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
