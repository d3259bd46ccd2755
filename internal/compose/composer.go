package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"fedview/internal/schema"
	"fedview/internal/source"
	"fedview/pkg/types"
)

// Side names which input a selected field comes from.
type Side string

const (
	SideRelational Side = "relational"
	SideFile       Side = "file"
)

// Field selects one column from one side and renames it in the output.
type Field struct {
	From   Side
	Column string
	As     string
}

// View declares the composed view: the join key on each side and the
// output field list.
type View struct {
	RelationalKey string
	FileKey       string
	Select        []Field
}

// Input is a source with a declared schema, known before any row is
// pulled. Both adapters satisfy it.
type Input interface {
	Name() string
	Schema() schema.Schema
	Open(ctx context.Context) (source.RowReader, error)
}

// SchemaMismatchError means the join key is declared with different
// types on the two sides. Detected at setup, before any row is read.
type SchemaMismatchError struct {
	Key       string
	LeftType  schema.ColumnType
	RightType schema.ColumnType
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("join key %s: relational side is %s, file side is %s", e.Key, e.LeftType, e.RightType)
}

// skipCounter is implemented by readers that can drop bad lines under
// an explicit skip policy.
type skipCounter interface {
	Skipped() int
}

// Run materializes the composed view: the file side is loaded into a
// hash index on its join key, then the relational side is streamed and
// probed against it. Duplicate keys on the file side fan out, one
// record per match. Any source error aborts the run; no partial result
// is returned.
func Run(ctx context.Context, relational, file Input, view View) (*types.RunResult, error) {
	if err := validate(relational.Schema(), file.Schema(), view); err != nil {
		return nil, err
	}

	res := &types.RunResult{
		RunID:   uuid.NewString(),
		Columns: outputColumns(view),
	}

	index, indexed, skipped, err := buildIndex(ctx, file, view.FileKey)
	if err != nil {
		return nil, err
	}
	res.Indexed = indexed
	res.Skipped = skipped

	probe, err := relational.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer probe.Close()

	relSchema := relational.Schema()
	fileSchema := file.Schema()
	keyIdx := relSchema.Index(view.RelationalKey)

	for {
		row, err := probe.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		res.Probed++

		matches := index[joinKey(row[keyIdx])]
		for _, m := range matches {
			res.Records = append(res.Records, project(view, relSchema, row, fileSchema, m))
			res.Emitted++
		}
	}
	return res, nil
}

func validate(rel, file schema.Schema, view View) error {
	relType, ok := rel.TypeOf(view.RelationalKey)
	if !ok {
		return fmt.Errorf("join key %s not in relational schema", view.RelationalKey)
	}
	fileType, ok := file.TypeOf(view.FileKey)
	if !ok {
		return fmt.Errorf("join key %s not in file schema", view.FileKey)
	}
	if relType != fileType {
		return &SchemaMismatchError{Key: view.RelationalKey, LeftType: relType, RightType: fileType}
	}

	if len(view.Select) == 0 {
		return errors.New("view selects no fields")
	}
	seen := map[string]bool{}
	for _, f := range view.Select {
		var sch schema.Schema
		switch f.From {
		case SideRelational:
			sch = rel
		case SideFile:
			sch = file
		default:
			return fmt.Errorf("field %s: unknown side %q", f.Column, f.From)
		}
		if sch.Index(f.Column) < 0 {
			return fmt.Errorf("field %s not in %s schema", f.Column, f.From)
		}
		name := f.OutputName()
		if seen[name] {
			return fmt.Errorf("duplicate output column %s", name)
		}
		seen[name] = true
	}
	return nil
}

// OutputName is the field's name in the composed record.
func (f Field) OutputName() string {
	if f.As != "" {
		return f.As
	}
	return f.Column
}

func outputColumns(view View) []string {
	cols := make([]string, len(view.Select))
	for i, f := range view.Select {
		cols[i] = f.OutputName()
	}
	return cols
}

// buildIndex drains the file side into a key → rows map.
func buildIndex(ctx context.Context, file Input, key string) (map[any][]schema.Row, int, int, error) {
	reader, err := file.Open(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	defer reader.Close()

	keyIdx := file.Schema().Index(key)
	index := map[any][]schema.Row{}
	indexed := 0
	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
		k := joinKey(row[keyIdx])
		index[k] = append(index[k], row)
		indexed++
	}

	skipped := 0
	if sc, ok := reader.(skipCounter); ok {
		skipped = sc.Skipped()
	}
	return index, indexed, skipped, nil
}

// joinKey normalizes a value for use as a map key. Timestamps compare
// by instant, not by location.
func joinKey(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UnixNano()
	}
	return v
}

func project(view View, relSchema schema.Schema, rel schema.Row, fileSchema schema.Schema, file schema.Row) types.Record {
	rec := make(types.Record, len(view.Select))
	for _, f := range view.Select {
		switch f.From {
		case SideRelational:
			rec[f.OutputName()] = rel[relSchema.Index(f.Column)]
		case SideFile:
			rec[f.OutputName()] = file[fileSchema.Index(f.Column)]
		}
	}
	return rec
}
