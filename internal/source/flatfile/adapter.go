package flatfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"fedview/internal/schema"
	"fedview/internal/source"
)

// ErrorPolicy decides what happens when a line does not match the
// declared schema.
type ErrorPolicy string

const (
	// Abort fails the whole read on the first bad line. Default.
	Abort ErrorPolicy = "abort"
	// Skip drops bad lines but counts them; the count is reported so
	// nothing is lost silently.
	Skip ErrorPolicy = "skip"
)

// Adapter reads a delimited text file into typed rows. Re-opening the
// adapter restarts the read from the top of the file.
type Adapter struct {
	name      string
	path      string
	delimiter rune
	header    bool
	schema    schema.Schema
	policy    ErrorPolicy
}

func New(name, path string, delimiter rune, header bool, sch schema.Schema, policy ErrorPolicy) *Adapter {
	if delimiter == 0 {
		delimiter = ','
	}
	if policy == "" {
		policy = Abort
	}
	return &Adapter{
		name:      name,
		path:      path,
		delimiter: delimiter,
		header:    header,
		schema:    sch,
		policy:    policy,
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Schema() schema.Schema { return a.schema }

func (a *Adapter) Open(ctx context.Context) (source.RowReader, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, &source.ConnectionError{Source: a.name, Err: err}
	}

	r := csv.NewReader(f)
	r.Comma = a.delimiter
	// Field-count mismatches are reported per line, with the line number.
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	line := 0
	if a.header {
		rec, err := r.Read()
		line++
		if err != nil {
			f.Close()
			return nil, &source.ParseError{Path: a.path, Line: line, Reason: fmt.Sprintf("read header: %v", err)}
		}
		if err := a.matchHeader(rec); err != nil {
			f.Close()
			return nil, &source.ParseError{Path: a.path, Line: line, Reason: err.Error()}
		}
	}

	return &reader{adapter: a, file: f, csv: r, line: line}, nil
}

// matchHeader validates the header line against the schema column
// names, case-insensitively (the demo file spells them SYMBOL,PRICE).
func (a *Adapter) matchHeader(fields []string) error {
	if len(fields) != len(a.schema) {
		return fmt.Errorf("header has %d fields, schema declares %d columns", len(fields), len(a.schema))
	}
	for i, c := range a.schema {
		if !strings.EqualFold(strings.TrimSpace(fields[i]), c.Name) {
			return fmt.Errorf("header column %d is %q, schema declares %q", i, fields[i], c.Name)
		}
	}
	return nil
}

type reader struct {
	adapter *Adapter
	file    *os.File
	csv     *csv.Reader
	line    int
	skipped int
	closed  bool
}

func (r *reader) Schema() schema.Schema { return r.adapter.schema }

// Skipped reports how many bad lines were dropped under the Skip
// policy.
func (r *reader) Skipped() int { return r.skipped }

func (r *reader) Next() (schema.Row, error) {
	for {
		rec, err := r.csv.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		r.line++
		if err != nil {
			perr := &source.ParseError{Path: r.adapter.path, Line: r.line, Reason: err.Error()}
			if r.adapter.policy == Skip {
				r.skipped++
				continue
			}
			return nil, perr
		}

		row, err := r.convert(rec)
		if err != nil {
			perr := &source.ParseError{Path: r.adapter.path, Line: r.line, Reason: err.Error()}
			if r.adapter.policy == Skip {
				r.skipped++
				continue
			}
			return nil, perr
		}
		return row, nil
	}
}

func (r *reader) convert(rec []string) (schema.Row, error) {
	sch := r.adapter.schema
	if len(rec) != len(sch) {
		return nil, fmt.Errorf("line has %d fields, schema declares %d columns", len(rec), len(sch))
	}
	row := make(schema.Row, len(sch))
	for i, c := range sch {
		v, err := schema.ParseValue(c.Type, rec[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %v", c.Name, err)
		}
		row[i] = v
	}
	return row, nil
}

func (r *reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
