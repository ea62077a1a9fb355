// Package repository applies line-oriented task mutations to vault documents.
//
// Every mutation is an atomic read-modify-write: the file is read, transformed
// in memory, written to a temporary sibling and renamed over the original,
// all while holding a per-path lock.
package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrLineOutOfRange is returned when a task can no longer be located in its file.
	ErrLineOutOfRange = errors.New("line out of range")
	// ErrFileNotFound is returned when a mutation targets a missing file.
	ErrFileNotFound = errors.New("file not found")
	// ErrNoChange is returned by an edit function to leave the file untouched.
	ErrNoChange = errors.New("no change")
)

// Repository mutates markdown files below a vault root. Paths are vault-relative and slash separated.
type Repository struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	writesMu sync.Mutex
	written  map[string][sha256.Size]byte
}

// New creates a repository rooted at root.
func New(root string) *Repository {
	return &Repository{
		root:    root,
		locks:   make(map[string]*sync.Mutex),
		written: make(map[string][sha256.Size]byte),
	}
}

// Root returns the vault directory.
func (r *Repository) Root() string { return r.root }

// Abs converts a vault-relative path to a filesystem path.
func (r *Repository) Abs(file string) string {
	return filepath.Join(r.root, filepath.FromSlash(file))
}

// Rel converts a filesystem path below the root to a vault-relative path.
func (r *Repository) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", abs, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside of %s", abs, r.root)
	}
	return filepath.ToSlash(rel), nil
}

// Exists reports whether a regular file exists at the vault-relative path.
func (r *Repository) Exists(file string) bool {
	st, err := os.Stat(r.Abs(file))
	return err == nil && st.Mode().IsRegular()
}

func (r *Repository) lock(file string) func() {
	r.mu.Lock()
	l, ok := r.locks[file]
	if !ok {
		l = &sync.Mutex{}
		r.locks[file] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// ReadLines returns the lines of a file without line terminators.
func (r *Repository) ReadLines(ctx context.Context, file string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.Abs(file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", file, ErrFileNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return splitDocument(data).lines, nil
}

// Modify runs edit over the lines of file and writes the result atomically.
// If edit returns ErrNoChange the file is left untouched and Modify returns nil.
func (r *Repository) Modify(ctx context.Context, file string, edit func([]string) ([]string, error)) error {
	return r.modify(ctx, file, false, edit)
}

func (r *Repository) modify(ctx context.Context, file string, create bool, edit func([]string) ([]string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := r.lock(file)
	defer unlock()

	abs := r.Abs(file)
	mode := fs.FileMode(0o644)
	var doc document
	data, err := os.ReadFile(abs)
	switch {
	case err == nil:
		doc = splitDocument(data)
		if st, statErr := os.Stat(abs); statErr == nil {
			mode = st.Mode().Perm()
		}
	case errors.Is(err, fs.ErrNotExist) && create:
		doc = document{newline: "\n", final: true}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("create parent of %s: %w", file, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("modify %s: %w", file, ErrFileNotFound)
	default:
		return fmt.Errorf("read %s: %w", file, err)
	}

	lines, err := edit(doc.lines)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("edit %s: %w", file, err)
	}
	doc.lines = lines
	out := doc.bytes()
	if err := writeAtomic(abs, out, mode); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	r.recordWrite(file, out)
	log.Debug().Str("file", file).Int("lines", len(lines)).Msg("file rewritten")
	return nil
}

func writeAtomic(abs string, data []byte, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(abs), "."+filepath.Base(abs)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (r *Repository) recordWrite(file string, data []byte) {
	r.writesMu.Lock()
	r.written[file] = sha256.Sum256(data)
	r.writesMu.Unlock()
}

// IsOwnWrite reports whether data is exactly what the repository last wrote to file.
func (r *Repository) IsOwnWrite(file string, data []byte) bool {
	r.writesMu.Lock()
	defer r.writesMu.Unlock()
	sum, ok := r.written[file]
	return ok && sum == sha256.Sum256(data)
}

// Forget drops the write record of a file, e.g. after it was removed.
func (r *Repository) Forget(file string) {
	r.writesMu.Lock()
	delete(r.written, file)
	r.writesMu.Unlock()
}

// document keeps the newline convention of a file so rewrites preserve it.
type document struct {
	lines   []string
	newline string
	final   bool
}

func splitDocument(data []byte) document {
	doc := document{newline: "\n"}
	if bytes.Contains(data, []byte("\r\n")) {
		doc.newline = "\r\n"
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if text == "" {
		return doc
	}
	if strings.HasSuffix(text, "\n") {
		doc.final = true
		text = strings.TrimSuffix(text, "\n")
	}
	doc.lines = strings.Split(text, "\n")
	return doc
}

func (d document) bytes() []byte {
	if len(d.lines) == 0 {
		return nil
	}
	out := strings.Join(d.lines, d.newline)
	if d.final {
		out += d.newline
	}
	return []byte(out)
}

// SanitizePath turns a link or path argument into a vault-relative markdown path.
func SanitizePath(raw string) string {
	p := strings.TrimSpace(raw)
	if strings.HasPrefix(p, "[[") && strings.HasSuffix(p, "]]") {
		p = strings.TrimSuffix(strings.TrimPrefix(p, "[["), "]]")
		if i := strings.IndexAny(p, "|#"); i >= 0 {
			p = p[:i]
		}
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return '-'
		}
		return r
	}, p)
	p = path.Clean("/" + strings.TrimSpace(p))
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return ""
	}
	if !strings.EqualFold(path.Ext(p), ".md") {
		p += ".md"
	}
	return p
}
