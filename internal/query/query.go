// Package query loads frames into an in-memory SQLite database and runs
// model-written read-only SQL against them.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
)

// MaxResultRows caps the rows returned by Run.
const MaxResultRows = 1000

// ErrNotReadOnly is returned for anything other than a single SELECT/WITH statement.
var ErrNotReadOnly = errors.New("only a single read-only SELECT statement is allowed")

// Column describes one SQL column and the header it came from.
type Column struct {
	Name   string
	Source string
	Type   string // REAL or TEXT
}

// TableInfo describes a loaded frame.
type TableInfo struct {
	Name    string
	Source  string
	Rows    int
	Columns []Column
}

// DB wraps a single-connection in-memory SQLite database.
type DB struct {
	db     *sql.DB
	tables []TableInfo
}

// Result holds the rows of a query with []byte values converted to strings.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

// Open creates the database and loads every frame as a table. The
// connection is switched to query_only once loading finishes.
func Open(ctx context.Context, frames []*analysis.Frame) (*DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	d := &DB{db: db}
	used := map[string]int{}
	for _, f := range frames {
		if f == nil || f.NumCols() == 0 {
			continue
		}
		if err := d.load(ctx, f, uniqueName(TableName(f.Name), used)); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set query_only: %w", err)
	}
	return d, nil
}

func (d *DB) load(ctx context.Context, f *analysis.Frame, table string) error {
	kinds := analysis.KindOf(f)
	info := TableInfo{Name: table, Source: f.Name, Rows: f.NumRows()}
	usedCols := map[string]int{}
	defs := make([]string, len(f.Header))
	for i, h := range f.Header {
		col := Column{Name: uniqueName(ColumnName(h, i), usedCols), Source: h, Type: "TEXT"}
		if kinds[h] == analysis.KindNumeric {
			col.Type = "REAL"
		}
		info.Columns = append(info.Columns, col)
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(col.Name), col.Type)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(defs)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table, err)
	}
	defer stmt.Close()

	args := make([]any, len(defs))
	for _, row := range f.Rows {
		for j, c := range info.Columns {
			args[j] = cellValue(row[j], c.Type)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}
	d.tables = append(d.tables, info)
	return nil
}

func cellValue(v, typ string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if typ == "REAL" {
		if x, ok := analysis.ParseNumber(v); ok {
			return x
		}
		return nil
	}
	return v
}

// Tables lists the loaded tables in load order.
func (d *DB) Tables() []TableInfo { return d.tables }

// Schema renders the tables as CREATE-style lines for prompts.
func (d *DB) Schema() string {
	var b strings.Builder
	for _, t := range d.tables {
		fmt.Fprintf(&b, "TABLE %s -- from %s, %d rows\n", t.Name, t.Source, t.Rows)
		for _, c := range t.Columns {
			if c.Source != c.Name {
				fmt.Fprintf(&b, "  %s %s -- %q\n", c.Name, c.Type, c.Source)
			} else {
				fmt.Fprintf(&b, "  %s %s\n", c.Name, c.Type)
			}
		}
	}
	return b.String()
}

// Run executes one read-only statement and returns at most MaxResultRows rows.
func (d *DB) Run(ctx context.Context, query string) (*Result, error) {
	q, err := readOnly(query)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		if len(res.Rows) >= MaxResultRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return res, nil
}

// Close releases the database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Value collapses a result: no rows is nil, 1x1 is a scalar, a single
// column is a list, anything else is a list of objects.
func (r *Result) Value() any {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	if len(r.Columns) == 1 {
		if len(r.Rows) == 1 {
			return r.Rows[0][0]
		}
		out := make([]any, len(r.Rows))
		for i, row := range r.Rows {
			out[i] = row[0]
		}
		return out
	}
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			m[c] = row[j]
		}
		out[i] = m
	}
	return out
}

var (
	sqlFence    = regexp.MustCompile("(?is)```(?:sql|sqlite)?\\s*(.*?)```")
	lineComment = regexp.MustCompile(`(?m)--.*$`)
	firstWord   = regexp.MustCompile(`(?i)^(select|with)\b`)
	stmtStart   = regexp.MustCompile(`(?i)\b(with\s+\w+\s+as\s*\(|select\s)`)
	nonIdent    = regexp.MustCompile(`[^a-z0-9_]+`)
)

// ExtractSQL pulls the statement out of a model reply, dropping markdown
// fences and surrounding prose.
func ExtractSQL(text string) string {
	if m := sqlFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	text = strings.TrimSpace(text)
	if loc := stmtStart.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[loc[0]:])
	}
	return text
}

func readOnly(query string) (string, error) {
	q := strings.TrimSpace(lineComment.ReplaceAllString(query, ""))
	q = strings.TrimSpace(strings.TrimRight(q, "; \n\t"))
	if q == "" || !firstWord.MatchString(q) || hasUnquotedSemicolon(q) {
		return "", ErrNotReadOnly
	}
	return q, nil
}

// hasUnquotedSemicolon reports a statement separator outside string
// literals and quoted identifiers.
func hasUnquotedSemicolon(q string) bool {
	var quote rune
	for _, r := range q {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '[':
			quote = ']'
		case r == ';':
			return true
		}
	}
	return false
}

// TableName turns a file or page name into a SQL identifier:
// "sales-2024.csv" becomes "sales_2024".
func TableName(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return identifier(base, "data")
}

// ColumnName turns a header into a SQL identifier; i is used for blank headers.
func ColumnName(header string, i int) string {
	clean, _ := analysis.SplitUnits(header)
	return identifier(strings.ToLower(clean), fmt.Sprintf("column_%d", i+1))
}

func identifier(s, fallback string) string {
	s = strings.Trim(nonIdent.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return fallback
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "t_" + s
	}
	return s
}

func uniqueName(name string, used map[string]int) string {
	used[name]++
	if n := used[name]; n > 1 {
		return fmt.Sprintf("%s_%d", name, n)
	}
	return name
}

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
