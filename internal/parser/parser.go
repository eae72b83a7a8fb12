package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
)

// ErrUnsupported indicates a format is not supported.
var ErrUnsupported = errors.New("unsupported file format")

// Options tunes how tabular files are loaded.
type Options struct {
	// MaxRows caps rows kept per frame; 0 means unlimited.
	MaxRows int
	// Sheet selects a workbook sheet by name; SheetIndex is 1-based and used
	// when Sheet is empty. Both empty means the first sheet.
	Sheet      string
	SheetIndex int
	// JSONPath locates the record array inside a JSON document. Empty means auto.
	JSONPath string
}

// TableParser loads a tabular file into a Frame.
type TableParser interface {
	CanParse(filename string) bool
	Load(path string, opt Options) (*analysis.Frame, error)
}

// TextParser extracts plain text from a document used as context.
type TextParser interface {
	CanParse(filename string) bool
	Parse(content []byte) (string, error)
}

var (
	tables []TableParser
	texts  []TextParser
)

// Register adds a table parser implementation to the registry.
func Register(p TableParser) { tables = append(tables, p) }

// RegisterText adds a text parser implementation to the registry.
func RegisterText(p TextParser) { texts = append(texts, p) }

func lookup(path string) TableParser {
	for _, p := range tables {
		if p.CanParse(path) {
			return p
		}
	}
	return nil
}

// Supported reports whether path has a tabular format we can load.
func Supported(path string) bool { return lookup(path) != nil }

// IsText reports whether path is a document we can read as context.
func IsText(path string) bool {
	for _, p := range texts {
		if p.CanParse(path) {
			return true
		}
	}
	return false
}

// LoadFile selects a parser based on the file name and returns the table.
// The frame is named after the file's base name.
func LoadFile(path string, opt Options) (*analysis.Frame, error) {
	p := lookup(path)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	f, err := p.Load(path, opt)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	if f.Name == "" {
		f.Name = filepath.Base(path)
	}
	return f, nil
}

// ReadText returns the plain text of a context document.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	for _, p := range texts {
		if p.CanParse(path) {
			return p.Parse(data)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// uniqueHeader fills blank names and de-duplicates repeated ones.
func uniqueHeader(raw []string) []string {
	out := make([]string, len(raw))
	seen := map[string]int{}
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[strings.ToLower(h)]; n > 0 {
			seen[strings.ToLower(h)]++
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[strings.ToLower(h)] = 1
		}
		out[i] = h
	}
	return out
}

func hasSuffix(name string, exts ...string) bool {
	name = strings.ToLower(name)
	for _, e := range exts {
		if strings.HasSuffix(name, e) {
			return true
		}
	}
	return false
}

func init() {
	Register(csvParser{})
	Register(jsonParser{})
	Register(xlsxParser{})
	Register(parquetParser{})
	RegisterText(txtParser{})
	RegisterText(markdownParser{})
	RegisterText(docxParser{})
}
