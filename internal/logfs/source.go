package logfs

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Source gives access to the per-node log files of one experiment.
type Source interface {
	// Name identifies the source in diagnostics.
	Name() string
	// List returns the sorted logical names matching pattern.
	List(pattern string) ([]string, error)
	// Open returns an error satisfying errors.Is(err, fs.ErrNotExist) when
	// the file is absent.
	Open(name string) (io.ReadCloser, error)
}

var compressedSuffixes = []string{".gz", ".zst"}

type DirSource struct {
	dir string
}

// NewDirSource opens an experiment directory. A path that is missing or
// not a directory is an error.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

func (s *DirSource) Name() string {
	return s.dir
}

func (s *DirSource) List(pattern string) ([]string, error) {
	seen := map[string]struct{}{}
	for _, suffix := range append([]string{""}, compressedSuffixes...) {
		matches, err := filepath.Glob(filepath.Join(s.dir, pattern+suffix))
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			seen[strings.TrimSuffix(filepath.Base(match), suffix)] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (s *DirSource) Open(name string) (io.ReadCloser, error) {
	path := filepath.Join(s.dir, name)
	if file, err := os.Open(path); err == nil {
		return file, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	for _, suffix := range compressedSuffixes {
		file, err := os.Open(path + suffix)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		rc, err := decompress(file, suffix)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open %s%s: %w", name, suffix, err)
		}
		return rc, nil
	}
	return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
}

// Exists reports whether name can be opened from src.
func Exists(src Source, name string) bool {
	rc, err := src.Open(name)
	if err != nil {
		return false
	}
	rc.Close()
	return true
}

type stackedCloser struct {
	io.Reader
	closers []func() error
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func decompress(file *os.File, suffix string) (io.ReadCloser, error) {
	switch suffix {
	case ".gz":
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []func() error{zr.Close, file.Close}}, nil
	case ".zst":
		zr, err := zstd.NewReader(file)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []func() error{func() error { zr.Close(); return nil }, file.Close}}, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", suffix)
	}
}

// MemSource is an in-memory Source keyed by file name.
type MemSource struct {
	Label string
	Files map[string]string
}

func (m *MemSource) Name() string {
	if m.Label == "" {
		return "mem"
	}
	return m.Label
}

func (m *MemSource) List(pattern string) ([]string, error) {
	seen := map[string]struct{}{}
	for name := range m.Files {
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if ok {
			seen[name] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (m *MemSource) Open(name string) (io.ReadCloser, error) {
	content, ok := m.Files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const maxLineSize = 16 << 20

// EachLine calls fn with every non-blank line of r and its 1-based number.
func EachLine(r io.Reader, fn func(n int, line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Payload strips the logger prefix (up to two leading tokens, usually a
// date and a time) in front of a JSON payload.
func Payload(line string) string {
	line = strings.TrimSpace(line)
	for i := 0; i < 2; i++ {
		if line == "" || line[0] == '{' || line[0] == '[' {
			return line
		}
		idx := strings.IndexAny(line, " \t")
		if idx < 0 {
			return line
		}
		line = strings.TrimSpace(line[idx:])
	}
	return line
}
