package files

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poucet/maestro/pkg/fault"
)

// Entry describes one file or directory
type Entry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	IsDir    bool      `json:"is_dir"`
	Size     *int64    `json:"size"`
	Modified time.Time `json:"modified"`
}

// File type filters for Find
const (
	TypeFile = "file"
	TypeDir  = "dir"
)

// FindOptions filters Find results. Zero values disable a filter except
// RespectGitignore, which callers normally set.
type FindOptions struct {
	Pattern          string
	RespectGitignore bool
	FileType         string
	MaxDepth         *int
	MinSize          *int64
	MaxSize          *int64
}

// List returns the entries of a directory, skipping hidden names.
// Directories sort before files, then by case-insensitive name.
func (m *Manager) List(path string, recursive bool) ([]Entry, error) {
	dir, err := m.resolveDir(path)
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	if !recursive {
		items, err := os.ReadDir(dir)
		if err != nil {
			return nil, ioError("list", dir, err)
		}
		for _, item := range items {
			if strings.HasPrefix(item.Name(), ".") {
				continue
			}
			if e, ok := newEntry(dir, filepath.Join(dir, item.Name())); ok {
				entries = append(entries, e)
			}
		}
		sortEntries(entries)
		return entries, nil
	}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if p == dir {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err != nil {
			// Unreadable subdirectory
			return nil
		}
		if e, ok := newEntry(dir, p); ok {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, ioError("list", dir, err)
	}

	sortEntries(entries)
	return entries, nil
}

// Find walks a directory tree and returns entries matching opts
func (m *Manager) Find(path string, opts FindOptions) ([]Entry, error) {
	dir, err := m.resolveDir(path)
	if err != nil {
		return nil, err
	}

	switch opts.FileType {
	case "", TypeFile, TypeDir:
	default:
		return nil, fault.ErrInvalidArgument("file_type must be 'file' or 'dir'")
	}
	if opts.Pattern != "" {
		if _, err := filepath.Match(opts.Pattern, ""); err != nil {
			return nil, fault.ErrInvalidArgument("Invalid pattern: " + opts.Pattern)
		}
	}

	var matcher *ignoreMatcher
	if opts.RespectGitignore {
		matcher = newIgnoreMatcher(dir)
	}

	entries := []Entry{}
	m.walk(dir, dir, 0, matcher, opts, &entries)
	sortEntries(entries)
	return entries, nil
}

func (m *Manager) walk(root, dir string, depth int, matcher *ignoreMatcher, opts FindOptions, out *[]Entry) {
	items, err := os.ReadDir(dir)
	if err != nil {
		m.logger.Debug("skipping unreadable directory", "path", dir, "error", err)
		return
	}

	showHidden := strings.HasPrefix(opts.Pattern, ".")
	for _, item := range items {
		p := filepath.Join(dir, item.Name())
		isDir := item.IsDir()

		if isDir && item.Name() == ".git" {
			continue
		}
		if matcher != nil && matcher.ignored(p, isDir) {
			continue
		}

		if opts.MaxDepth == nil || depth <= *opts.MaxDepth {
			hidden := strings.HasPrefix(item.Name(), ".")
			if !hidden || showHidden {
				if e, ok := newEntry(root, p); ok && opts.accepts(e) {
					*out = append(*out, e)
				}
			}
		}

		if isDir && (opts.MaxDepth == nil || depth < *opts.MaxDepth) {
			next := matcher
			if matcher != nil {
				next = matcher.withDir(p)
			}
			m.walk(root, p, depth+1, next, opts, out)
		}
	}
}

func (o FindOptions) accepts(e Entry) bool {
	if o.FileType == TypeFile && e.IsDir {
		return false
	}
	if o.FileType == TypeDir && !e.IsDir {
		return false
	}
	if e.Size != nil {
		if o.MinSize != nil && *e.Size < *o.MinSize {
			return false
		}
		if o.MaxSize != nil && *e.Size > *o.MaxSize {
			return false
		}
	}
	if o.Pattern != "" {
		if ok, _ := filepath.Match(o.Pattern, e.Name); !ok {
			return false
		}
	}
	return true
}

func (m *Manager) resolveDir(path string) (string, error) {
	dir, err := m.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", statError("Path", dir, err)
	}
	if !info.IsDir() {
		return "", fault.ErrInvalidArgument("Not a directory: " + dir)
	}
	return dir, nil
}

// newEntry stats p; entries that vanish mid-walk are dropped
func newEntry(root, p string) (Entry, bool) {
	info, err := os.Stat(p)
	if err != nil {
		return Entry{}, false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		rel = p
	}

	e := Entry{
		Name:     filepath.Base(p),
		Path:     filepath.ToSlash(rel),
		IsDir:    info.IsDir(),
		Modified: info.ModTime(),
	}
	if info.Mode().IsRegular() {
		size := info.Size()
		e.Size = &size
	}
	return e, true
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
