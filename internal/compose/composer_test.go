package compose

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	_ "modernc.org/sqlite"

	"fedview/internal/schema"
	"fedview/internal/source"
	"fedview/internal/source/flatfile"
	"fedview/internal/source/sqldb"
	"fedview/pkg/types"
)

// memInput serves fixed rows, for composer tests that don't need a
// real backend.
type memInput struct {
	name   string
	schema schema.Schema
	rows   []schema.Row
}

func (m *memInput) Name() string          { return m.name }
func (m *memInput) Schema() schema.Schema { return m.schema }

func (m *memInput) Open(ctx context.Context) (source.RowReader, error) {
	rows := make([]schema.Row, len(m.rows))
	copy(rows, m.rows)
	return &memReader{schema: m.schema, rows: rows}, nil
}

type memReader struct {
	schema schema.Schema
	rows   []schema.Row
}

func (r *memReader) Schema() schema.Schema { return r.schema }

func (r *memReader) Next() (schema.Row, error) {
	if len(r.rows) == 0 {
		return nil, io.EOF
	}
	row := r.rows[0]
	r.rows = r.rows[1:]
	return row, nil
}

func (r *memReader) Close() error { return nil }

var (
	productSchema = schema.Schema{
		{Name: "id", Type: schema.TypeInteger},
		{Name: "symbol", Type: schema.TypeString},
		{Name: "company_name", Type: schema.TypeString},
	}
	priceSchema = schema.Schema{
		{Name: "symbol", Type: schema.TypeString},
		{Name: "price", Type: schema.TypeFloat},
	}
	stockView = View{
		RelationalKey: "symbol",
		FileKey:       "symbol",
		Select: []Field{
			{From: SideRelational, Column: "id", As: "id"},
			{From: SideRelational, Column: "company_name", As: "companyName"},
			{From: SideFile, Column: "price", As: "price"},
			{From: SideFile, Column: "symbol", As: "symbol"},
		},
	}
)

func products(rows ...schema.Row) *memInput {
	return &memInput{name: "relational", schema: productSchema, rows: rows}
}

func prices(rows ...schema.Row) *memInput {
	return &memInput{name: "file", schema: priceSchema, rows: rows}
}

func sortRecords(recs []types.Record) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i]["id"].(int64) < recs[j]["id"].(int64)
	})
}

func TestComposeStockView(t *testing.T) {
	rel := products(
		schema.Row{int64(1002), "BA", "The Boeing Company"},
		schema.Row{int64(1003), "MON", "Monsanto Company"},
	)
	file := prices(
		schema.Row{"BA", 42.75},
		schema.Row{"MON", 78.75},
	)

	res, err := Run(context.Background(), rel, file, stockView)
	if err != nil {
		t.Fatal(err)
	}

	want := []types.Record{
		{"id": int64(1002), "symbol": "BA", "price": 42.75, "companyName": "The Boeing Company"},
		{"id": int64(1003), "symbol": "MON", "price": 78.75, "companyName": "Monsanto Company"},
	}
	sortRecords(res.Records)
	if !reflect.DeepEqual(res.Records, want) {
		t.Errorf("records mismatch:\n got: %v\nwant: %v", res.Records, want)
	}
	if res.Indexed != 2 || res.Probed != 2 || res.Emitted != 2 {
		t.Errorf("unexpected counters: %+v", res)
	}
	if res.RunID == "" {
		t.Error("expected a run id")
	}
	if !reflect.DeepEqual(res.Columns, []string{"id", "companyName", "price", "symbol"}) {
		t.Errorf("unexpected columns: %v", res.Columns)
	}
}

func TestUnmatchedKeyEmitsNothing(t *testing.T) {
	rel := products(
		schema.Row{int64(1002), "BA", "The Boeing Company"},
		schema.Row{int64(9999), "XXX", "No Such Company"},
	)
	file := prices(schema.Row{"BA", 42.75})

	res, err := Run(context.Background(), rel, file, stockView)
	if err != nil {
		t.Fatal(err)
	}
	if res.Emitted != 1 {
		t.Fatalf("expected 1 record, got %d", res.Emitted)
	}
	if res.Records[0]["id"] != int64(1002) {
		t.Errorf("unexpected record: %v", res.Records[0])
	}
}

func TestDuplicateBuildKeysFanOut(t *testing.T) {
	rel := products(schema.Row{int64(1002), "BA", "The Boeing Company"})
	file := prices(
		schema.Row{"BA", 42.75},
		schema.Row{"BA", 43.10},
	)

	res, err := Run(context.Background(), rel, file, stockView)
	if err != nil {
		t.Fatal(err)
	}
	if res.Emitted != 2 {
		t.Fatalf("expected one record per matching file row, got %d", res.Emitted)
	}
	got := []float64{res.Records[0]["price"].(float64), res.Records[1]["price"].(float64)}
	sort.Float64s(got)
	if got[0] != 42.75 || got[1] != 43.10 {
		t.Errorf("unexpected prices: %v", got)
	}
}

func TestSchemaMismatchError(t *testing.T) {
	rel := products()
	// symbol declared as integer on the file side
	file := &memInput{name: "file", schema: schema.Schema{
		{Name: "symbol", Type: schema.TypeInteger},
		{Name: "price", Type: schema.TypeFloat},
	}}

	_, err := Run(context.Background(), rel, file, stockView)
	var merr *SchemaMismatchError
	if !errors.As(err, &merr) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
	if merr.Key != "symbol" {
		t.Errorf("unexpected key in error: %s", merr.Key)
	}
}

func TestValidateSelect(t *testing.T) {
	rel := products()
	file := prices()

	bad := stockView
	bad.Select = []Field{{From: SideRelational, Column: "volume"}}
	if _, err := Run(context.Background(), rel, file, bad); err == nil {
		t.Error("expected error for unknown select column")
	}

	dup := stockView
	dup.Select = []Field{
		{From: SideRelational, Column: "symbol"},
		{From: SideFile, Column: "symbol"},
	}
	if _, err := Run(context.Background(), rel, file, dup); err == nil {
		t.Error("expected error for duplicate output column")
	}
}

func TestIdempotentRerun(t *testing.T) {
	rel := products(
		schema.Row{int64(1002), "BA", "The Boeing Company"},
		schema.Row{int64(1003), "MON", "Monsanto Company"},
	)
	file := prices(
		schema.Row{"MON", 78.75},
		schema.Row{"BA", 42.75},
	)

	first, err := Run(context.Background(), rel, file, stockView)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Run(context.Background(), rel, file, stockView)
	if err != nil {
		t.Fatal(err)
	}

	sortRecords(first.Records)
	sortRecords(second.Records)
	if !reflect.DeepEqual(first.Records, second.Records) {
		t.Errorf("reruns differ:\nfirst: %v\nsecond: %v", first.Records, second.Records)
	}
	if first.RunID == second.RunID {
		t.Error("expected distinct run ids")
	}
}

func TestFileErrorAbortsRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv")
	if err := os.WriteFile(path, []byte("SYMBOL,PRICE\nBA,notaprice\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rel := products(schema.Row{int64(1002), "BA", "The Boeing Company"})
	file := flatfile.New("file", path, ',', true, priceSchema, flatfile.Abort)

	_, err := Run(context.Background(), rel, file, stockView)
	var perr *source.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError to surface, got %v", err)
	}
}

// End to end: sqlite table joined with a CSV file through the real
// adapters.
func TestComposeEndToEnd(t *testing.T) {
	dir := t.TempDir()

	dbPath := filepath.Join(dir, "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	stmts := []string{
		`CREATE TABLE product (id INTEGER PRIMARY KEY, symbol TEXT NOT NULL, company_name TEXT NOT NULL)`,
		`INSERT INTO product VALUES (1002, 'BA', 'The Boeing Company')`,
		`INSERT INTO product VALUES (1003, 'MON', 'Monsanto Company')`,
		`INSERT INTO product VALUES (9999, 'XXX', 'No Such Company')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			t.Fatal(err)
		}
	}
	db.Close()

	csvPath := filepath.Join(dir, "prices.csv")
	if err := os.WriteFile(csvPath, []byte("SYMBOL,PRICE\nBA,42.75\nMON,78.75\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rel := sqldb.New("relational", "sqlite", dbPath,
		"SELECT id, symbol, company_name FROM product", productSchema)
	file := flatfile.New("file", csvPath, ',', true, priceSchema, flatfile.Abort)

	res, err := Run(context.Background(), rel, file, stockView)
	if err != nil {
		t.Fatal(err)
	}

	want := []types.Record{
		{"id": int64(1002), "symbol": "BA", "price": 42.75, "companyName": "The Boeing Company"},
		{"id": int64(1003), "symbol": "MON", "price": 78.75, "companyName": "Monsanto Company"},
	}
	sortRecords(res.Records)
	if !reflect.DeepEqual(res.Records, want) {
		t.Errorf("records mismatch:\n got: %v\nwant: %v", res.Records, want)
	}
	if res.Probed != 3 || res.Indexed != 2 || res.Emitted != 2 {
		t.Errorf("unexpected counters: %+v", res)
	}
}
