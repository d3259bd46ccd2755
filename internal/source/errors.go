package source

import "fmt"

// ConnectionError means the backing store could not be reached. It is
// fatal for the adapter that raised it and is never retried here.
type ConnectionError struct {
	Source string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("source %s unreachable: %v", e.Source, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError means the statement was rejected by the store, or its
// result did not match the declared schema.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ParseError identifies a file line that does not match the declared
// schema. Line is 1-based and counts the header line when present.
type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Reason)
}
