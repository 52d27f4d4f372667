package logsink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poucet/maestro/pkg/fault"
)

// Info describes a log file in the catalog
type Info struct {
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Content is a log file read from the catalog
type Content struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Size     int64  `json:"size"`
}

// Catalog gives read access to the *.log files of one directory
type Catalog struct {
	dir string
}

// NewCatalog creates a catalog rooted at dir
func NewCatalog(dir string) *Catalog {
	if dir == "" {
		dir = DefaultDir
	}
	return &Catalog{dir: dir}
}

// Dir returns the catalog directory
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns the catalog's log files, newest first. A missing directory
// yields an empty list.
func (c *Catalog) List() ([]Info, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("read log directory: %w", err)
	}

	logs := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		logs = append(logs, Info{
			Filename: entry.Name(),
			Path:     filepath.Join(c.dir, entry.Name()),
			Size:     fi.Size(),
			Created:  createdAt(fi),
			Modified: fi.ModTime(),
		})
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Created.After(logs[j].Created)
	})

	return logs, nil
}

// Resolve maps a filename to a path inside the catalog directory, rejecting
// anything that escapes it.
func (c *Catalog) Resolve(filename string) (string, error) {
	if filename == "" {
		return "", fault.ErrInvalidArgument("filename is required")
	}

	root, err := filepath.Abs(c.dir)
	if err != nil {
		return "", fmt.Errorf("resolve log directory: %w", err)
	}

	candidate := filename
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, filename)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fault.Newf(fault.CodePermission, "Invalid log file path: %s", filename)
	}
	return candidate, nil
}

// Read returns the full content of a log file in the catalog
func (c *Catalog) Read(filename string) (*Content, error) {
	path, err := c.Resolve(filename)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Newf(fault.CodeNotFound, "Log file not found: %s", filename)
		}
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if fi.IsDir() {
		return nil, fault.Newf(fault.CodeNotFound, "Log file not found: %s", filename)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fault.ErrPermission("Cannot read log file: "+filename, err)
		}
		return nil, fmt.Errorf("read log file: %w", err)
	}

	return &Content{
		Filename: filepath.Base(path),
		Content:  string(data),
		Size:     fi.Size(),
	}, nil
}
