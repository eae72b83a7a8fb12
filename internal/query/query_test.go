package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
)

func openFilms(t *testing.T) *DB {
	t.Helper()
	films := analysis.NewFrame("highest-grossing.csv",
		[]string{"Rank", "Title", "Worldwide gross", "Year"},
		[][]string{
			{"1", "Avatar", "$2,923,706,026", "2009"},
			{"2", "Avengers: Endgame", "$2,797,501,328", "2019"},
			{"3", "Avatar: The Way of Water", "$2,320,250,281", "2022"},
			{"4", "Titanic", "$2,257,844,554", "1997"},
		})
	sales := analysis.NewFrame("2024 sales.json", []string{"region", "amount"}, [][]string{{"East", "10"}, {"West", ""}})
	db, err := Open(context.Background(), []*analysis.Frame{films, sales})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenNamesAndTypesTables(t *testing.T) {
	db := openFilms(t)
	tables := db.Tables()
	if len(tables) != 2 || tables[0].Name != "highest_grossing" || tables[1].Name != "t_2024_sales" {
		t.Fatalf("tables = %+v", tables)
	}
	cols := tables[0].Columns
	if cols[2].Name != "worldwide_gross" || cols[2].Type != "REAL" || cols[1].Type != "TEXT" {
		t.Fatalf("columns = %+v", cols)
	}
	schema := db.Schema()
	if !strings.Contains(schema, "TABLE highest_grossing -- from highest-grossing.csv, 4 rows") ||
		!strings.Contains(schema, `worldwide_gross REAL -- "Worldwide gross"`) {
		t.Fatalf("schema = %s", schema)
	}
}

func TestRunValueShapes(t *testing.T) {
	db := openFilms(t)
	ctx := context.Background()

	res, err := db.Run(ctx, "SELECT COUNT(*) FROM highest_grossing WHERE worldwide_gross >= 2e9 AND year < 2000;")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, ok := res.Value().(int64); !ok || v != 1 {
		t.Fatalf("scalar = %#v", res.Value())
	}

	res, err = db.Run(ctx, "SELECT title FROM highest_grossing ORDER BY year LIMIT 2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	list, ok := res.Value().([]any)
	if !ok || len(list) != 2 || list[0] != "Titanic" {
		t.Fatalf("list = %#v", res.Value())
	}

	res, err = db.Run(ctx, "WITH s AS (SELECT region, amount FROM t_2024_sales) SELECT region, amount FROM s ORDER BY region")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	objs, ok := res.Value().([]map[string]any)
	if !ok || len(objs) != 2 || objs[0]["amount"] != 10.0 || objs[1]["amount"] != nil {
		t.Fatalf("objects = %#v", res.Value())
	}

	res, err = db.Run(ctx, "SELECT title FROM highest_grossing WHERE 0")
	if err != nil || res.Value() != nil {
		t.Fatalf("empty result = %#v err=%v", res.Value(), err)
	}
}

func TestRunRejectsWrites(t *testing.T) {
	db := openFilms(t)
	for _, q := range []string{
		"DELETE FROM highest_grossing",
		"SELECT 1; DROP TABLE highest_grossing",
		"",
	} {
		if _, err := db.Run(context.Background(), q); !errors.Is(err, ErrNotReadOnly) {
			t.Errorf("%q: expected ErrNotReadOnly, got %v", q, err)
		}
	}
	if _, err := db.Run(context.Background(), "SELECT nope FROM highest_grossing"); err == nil {
		t.Fatalf("expected sql error for unknown column")
	}
	if _, err := db.Run(context.Background(), "WITH d AS (SELECT 1) DELETE FROM highest_grossing"); err == nil {
		t.Fatalf("expected write through WITH to be refused")
	}
}

func TestRunAllowsSemicolonInLiterals(t *testing.T) {
	db := openFilms(t)
	res, err := db.Run(context.Background(), `SELECT COUNT(*) FROM highest_grossing WHERE title <> 'a;b' AND "title" <> 'it''s;';`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, ok := res.Value().(int64); !ok || v != 4 {
		t.Fatalf("count = %#v", res.Value())
	}
	if _, err := db.Run(context.Background(), "SELECT 'x;y'; DELETE FROM highest_grossing"); !errors.Is(err, ErrNotReadOnly) {
		t.Fatalf("expected ErrNotReadOnly, got %v", err)
	}
}

func TestExtractSQL(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT 1\n```":                   "SELECT 1",
		"Here you go:\n```\nSELECT a FROM t\n```": "SELECT a FROM t",
		"The query is: SELECT 2 FROM t":           "SELECT 2 FROM t",
		"WITH x AS (SELECT 1) SELECT * FROM x":    "WITH x AS (SELECT 1) SELECT * FROM x",
	}
	for in, want := range cases {
		if got := ExtractSQL(in); got != want {
			t.Errorf("ExtractSQL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIdentifiers(t *testing.T) {
	if got := TableName("sales-2024.csv"); got != "sales_2024" {
		t.Fatalf("TableName = %s", got)
	}
	if got := ColumnName("Concentration (g/L)", 0); got != "concentration" {
		t.Fatalf("ColumnName = %s", got)
	}
	if got := ColumnName("  ", 2); got != "column_3" {
		t.Fatalf("blank ColumnName = %s", got)
	}
}
