package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
)

type csvParser struct{}

func (csvParser) CanParse(filename string) bool { return hasSuffix(filename, ".csv", ".tsv") }

func (csvParser) Load(path string, opt Options) (*analysis.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer fh.Close()
	br := bufio.NewReader(fh)
	return readCSV(br, filepath.Base(path), sniffDelimiter(path, br), opt)
}

func readCSV(in io.Reader, name string, delim rune, opt Options) (*analysis.Frame, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &analysis.Frame{Name: name}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	f := &analysis.Frame{Name: name, Header: uniqueHeader(header)}
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", f.NumRows()+1, err)
		}
		if opt.MaxRows > 0 && f.NumRows() >= opt.MaxRows {
			f.Truncated = true
			break
		}
		f.AppendRow(rec)
	}
	return f, nil
}

// sniffDelimiter uses the extension for TSV, otherwise counts candidate
// separators in the first line.
func sniffDelimiter(path string, br *bufio.Reader) rune {
	if hasSuffix(path, ".tsv") {
		return '\t'
	}
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	line := string(peek)
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t', '|'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}
