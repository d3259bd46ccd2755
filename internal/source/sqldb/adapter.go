package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"fedview/internal/schema"
	"fedview/internal/source"
)

// Adapter runs one SQL statement against a relational store and streams
// the result as typed rows. The statement is passed through verbatim;
// its result columns must match the declared schema.
type Adapter struct {
	name        string
	driver      string
	dsn         string
	query       string
	schema      schema.Schema
	pingTimeout time.Duration
}

func New(name, driver, dsn, query string, sch schema.Schema) *Adapter {
	return &Adapter{
		name:        name,
		driver:      driver,
		dsn:         dsn,
		query:       query,
		schema:      sch,
		pingTimeout: 5 * time.Second,
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Schema() schema.Schema { return a.schema }

// Ping verifies the store is reachable without running the query.
func (a *Adapter) Ping(ctx context.Context) error {
	db, err := sql.Open(a.driver, a.dsn)
	if err != nil {
		return &source.ConnectionError{Source: a.name, Err: err}
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, a.pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return &source.ConnectionError{Source: a.name, Err: err}
	}
	return nil
}

func (a *Adapter) Open(ctx context.Context) (source.RowReader, error) {
	db, err := sql.Open(a.driver, a.dsn)
	if err != nil {
		return nil, &source.ConnectionError{Source: a.name, Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, a.pingTimeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		db.Close()
		return nil, &source.ConnectionError{Source: a.name, Err: err}
	}

	rows, err := db.QueryContext(ctx, a.query)
	if err != nil {
		db.Close()
		return nil, &source.QueryError{Query: a.query, Err: err}
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		db.Close()
		return nil, &source.QueryError{Query: a.query, Err: err}
	}
	if err := a.matchColumns(cols); err != nil {
		rows.Close()
		db.Close()
		return nil, &source.QueryError{Query: a.query, Err: err}
	}

	return &reader{
		adapter: a,
		db:      db,
		rows:    rows,
	}, nil
}

// matchColumns checks the result set against the declared schema: same
// column count, same names in the same order. Names compare
// case-insensitively since MySQL reports them as written in the query.
func (a *Adapter) matchColumns(cols []string) error {
	if len(cols) != len(a.schema) {
		return fmt.Errorf("result has %d columns, schema declares %d", len(cols), len(a.schema))
	}
	for i, c := range a.schema {
		if !strings.EqualFold(cols[i], c.Name) {
			return fmt.Errorf("result column %d is %q, schema declares %q", i, cols[i], c.Name)
		}
	}
	return nil
}

type reader struct {
	adapter *Adapter
	db      *sql.DB
	rows    *sql.Rows
	closed  bool
}

func (r *reader) Schema() schema.Schema { return r.adapter.schema }

func (r *reader) Next() (schema.Row, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, &source.QueryError{Query: r.adapter.query, Err: err}
		}
		return nil, io.EOF
	}

	raw := make([]any, len(r.adapter.schema))
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, &source.QueryError{Query: r.adapter.query, Err: err}
	}

	row := make(schema.Row, len(raw))
	for i, col := range r.adapter.schema {
		v, err := coerce(col.Type, raw[i])
		if err != nil {
			return nil, &source.QueryError{
				Query: r.adapter.query,
				Err:   fmt.Errorf("column %s: %w", col.Name, err),
			}
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
	r.rows.Close()
	return r.db.Close()
}

// coerce maps a driver value to the declared column type. The MySQL
// driver hands text and decimal columns back as []byte, sqlite as
// native Go values, so both spellings are accepted.
func coerce(t schema.ColumnType, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("NULL value (schema has no nullable columns)")
	}
	switch t {
	case schema.TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case schema.TypeInteger:
		switch x := v.(type) {
		case int64:
			return x, nil
		case []byte:
			return strconv.ParseInt(string(x), 10, 64)
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case schema.TypeFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case []byte:
			return strconv.ParseFloat(string(x), 64)
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case schema.TypeTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case []byte:
			return schema.ParseValue(schema.TypeTimestamp, string(x))
		case string:
			return schema.ParseValue(schema.TypeTimestamp, x)
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}
