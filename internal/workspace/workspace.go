// Package workspace stages the files of one analysis request on disk.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/KaramelBytes/dataloom-agent/internal/parser"
	"github.com/KaramelBytes/dataloom-agent/internal/utils"
)

// File types reported by FileType.
const (
	TypeText    = "text"
	TypeData    = "data"
	TypeImage   = "image"
	TypeUnknown = "unknown"
)

// ErrInvalidName is returned for upload names that do not name a file.
var ErrInvalidName = errors.New("invalid file name")

// File describes one staged upload.
type File struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Workspace is a private temp directory holding a request's uploads.
type Workspace struct {
	ID  string
	dir string

	mu    sync.Mutex
	files map[string]*File
}

// New creates dataloom-<uuid> under baseDir (os.TempDir when empty).
func New(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	id := uuid.NewString()
	dir := filepath.Join(baseDir, "dataloom-"+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{ID: id, dir: dir, files: make(map[string]*File)}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Save writes r to the workspace under the base name of name and returns the
// stored path. A later upload with the same name replaces the earlier one.
func (w *Workspace) Save(name string, r io.Reader) (string, error) {
	base, err := cleanName(name)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", base, err)
	}
	path := filepath.Join(w.dir, base)
	if err := utils.SafeWriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("save upload %s: %w", base, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[base] = &File{
		Name: base,
		Path: path,
		Type: FileType(base),
		Size: int64(len(data)),
	}
	return path, nil
}

// Files maps stored names to their paths.
func (w *Workspace) Files() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.files))
	for name, f := range w.files {
		out[name] = f.Path
	}
	return out
}

// Records lists the staged files ordered by name.
func (w *Workspace) Records() []File {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]File, 0, len(w.files))
	for _, f := range w.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close removes the workspace directory and everything in it.
func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// FileType classifies a file name by extension.
func FileType(name string) string {
	switch {
	case parser.IsText(name):
		return TypeText
	case parser.Supported(name):
		return TypeData
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return TypeImage
	}
	return TypeUnknown
}

// IsDataFile reports whether name has a tabular format the parser can load.
func IsDataFile(name string) bool { return FileType(name) == TypeData }

func cleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return base, nil
}
