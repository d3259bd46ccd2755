package source

import (
	"context"

	"fedview/internal/schema"
)

// RowReader is a finite stream of typed rows from one source. Next
// returns io.EOF when the stream is exhausted. A reader is not safe for
// concurrent use.
type RowReader interface {
	// Schema returns the declared schema every returned row conforms to.
	Schema() schema.Schema

	// Next returns the next row, or io.EOF.
	Next() (schema.Row, error)

	// Close releases the underlying resource. Safe to call more than once.
	Close() error
}

// Source produces RowReaders. Opening twice yields two independent
// reads of the same data.
type Source interface {
	Name() string
	Open(ctx context.Context) (RowReader, error)
}
