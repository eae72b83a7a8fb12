package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
)

type parquetParser struct{}

func (parquetParser) CanParse(filename string) bool { return hasSuffix(filename, ".parquet", ".pq") }

// Load reads every row group of a flat parquet file. Leaf column paths are
// joined with "." to form the header.
func (parquetParser) Load(path string, opt Options) (*analysis.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer fh.Close()
	st, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet: %w", err)
	}
	pf, err := parquet.OpenFile(fh, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	leaves := pf.Schema().Columns()
	header := make([]string, len(leaves))
	for i, p := range leaves {
		header[i] = strings.Join(p, ".")
	}
	f := &analysis.Frame{Name: filepath.Base(path), Header: uniqueHeader(header)}

	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		done, err := readRowGroup(rg, f, buf, opt.MaxRows)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}
	return f, nil
}

func readRowGroup(rg parquet.RowGroup, f *analysis.Frame, buf []parquet.Row, maxRows int) (bool, error) {
	rows := rg.Rows()
	defer rows.Close()
	for {
		n, err := rows.ReadRows(buf)
		for _, r := range buf[:n] {
			if maxRows > 0 && f.NumRows() >= maxRows {
				f.Truncated = true
				return true, nil
			}
			rec := make([]string, len(f.Header))
			for _, v := range r {
				col := v.Column()
				if col < 0 || col >= len(rec) || v.IsNull() {
					continue
				}
				if rec[col] != "" {
					// repeated leaf; keep values comma-joined
					rec[col] += ","
				}
				rec[col] += v.String()
			}
			f.Rows = append(f.Rows, rec)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, fmt.Errorf("read parquet rows: %w", err)
		}
		if n == 0 {
			return false, nil
		}
	}
}
