// Package registry lists and resolves the files kept under the configured
// storage roots. Nothing is cached: every call looks at the disk.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/config"
	"github.com/guided-traffic/file-encryptor/internal/fault"
	"github.com/guided-traffic/file-encryptor/internal/monitoring"
)

// UnknownType is reported for names without an extension
const UnknownType = "unknown"

// FileRecord describes one file at scan time
type FileRecord struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"` // "<root>/<name>"
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified"`
	Type       string    `json:"type"`
}

// Root is a flat directory holding files
type Root struct {
	Name     string
	Dir      string
	Writable bool
}

// Registry scans roots in declaration order
type Registry struct {
	roots  []Root
	logger *logrus.Entry
}

// New creates a registry over the given roots
func New(roots []Root, logger *logrus.Entry) (*Registry, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one storage root is required")
	}

	seen := make(map[string]bool, len(roots))
	for _, root := range roots {
		if !isPlainName(root.Name) {
			return nil, fmt.Errorf("invalid root name %q", root.Name)
		}
		if seen[root.Name] {
			return nil, fmt.Errorf("duplicate root name %q", root.Name)
		}
		seen[root.Name] = true
	}

	if logger == nil {
		logger = logrus.WithField("component", "file-registry")
	}

	return &Registry{roots: append([]Root(nil), roots...), logger: logger}, nil
}

// FromConfig builds the registry described by the storage section
func FromConfig(storage *config.StorageConfig, logger *logrus.Entry) (*Registry, error) {
	roots := make([]Root, 0, len(storage.Roots))
	for _, rc := range storage.Roots {
		roots = append(roots, Root{
			Name:     rc.Name,
			Dir:      storage.RootDir(rc.Name),
			Writable: rc.Writable,
		})
	}
	return New(roots, logger)
}

// Roots returns the configured roots in declaration order
func (r *Registry) Roots() []Root {
	return append([]Root(nil), r.roots...)
}

// Root looks up a root by name
func (r *Registry) Root(name string) (Root, bool) {
	for _, root := range r.roots {
		if root.Name == name {
			return root, true
		}
	}
	return Root{}, false
}

// List scans every root. A root that does not exist contributes nothing; a
// root that cannot be read is logged and contributes nothing.
func (r *Registry) List(ctx context.Context) []FileRecord {
	records := make([]FileRecord, 0)

	for _, root := range r.roots {
		if ctx.Err() != nil {
			break
		}

		entries, err := os.ReadDir(root.Dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				r.logger.WithError(err).WithField("root", root.Name).Warn("Failed to scan storage root")
				monitoring.RecordScanError(root.Name)
			}
			continue
		}

		for _, entry := range entries {
			if !entry.Type().IsRegular() || isPartialUpload(entry.Name()) {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				// removed between ReadDir and Info
				continue
			}

			records = append(records, newRecord(root.Name, info))
		}
	}

	return records
}

// ListFiltered is List narrowed by f
func (r *Registry) ListFiltered(ctx context.Context, f Filter) []FileRecord {
	all := r.List(ctx)
	if f.IsZero() {
		return all
	}

	matched := make([]FileRecord, 0, len(all))
	for _, rec := range all {
		if f.Match(rec) {
			matched = append(matched, rec)
		}
	}
	return matched
}

// Resolve maps "<root>/<name>" to an absolute path of an existing regular
// file. Anything else is NotFound.
func (r *Registry) Resolve(rel string) (string, error) {
	root, name, err := r.split(rel)
	if err != nil {
		return "", err
	}

	full := filepath.Join(root.Dir, name)
	info, err := os.Lstat(full)
	if err != nil {
		return "", fault.Errorf(fault.NotFound, "resolve", "file not found: %s", rel)
	}
	if !info.Mode().IsRegular() {
		return "", fault.Errorf(fault.NotFound, "resolve", "not a regular file: %s", rel)
	}

	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fault.Wrap(fault.Internal, "resolve", err)
	}
	return abs, nil
}

// Stat returns the current record of one file
func (r *Registry) Stat(rel string) (FileRecord, error) {
	full, err := r.Resolve(rel)
	if err != nil {
		return FileRecord{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return FileRecord{}, fault.Errorf(fault.NotFound, "stat", "file not found: %s", rel)
	}

	root, _, _ := r.split(rel)
	return newRecord(root.Name, info), nil
}

func (r *Registry) split(rel string) (Root, string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return Root{}, "", fault.Errorf(fault.NotFound, "resolve", "file not found: %q", rel)
	}

	rootName, name, ok := strings.Cut(rel, "/")
	if !ok || !isPlainName(name) || isPartialUpload(name) {
		return Root{}, "", fault.Errorf(fault.NotFound, "resolve", "file not found: %s", rel)
	}

	root, ok := r.Root(rootName)
	if !ok {
		return Root{}, "", fault.Errorf(fault.NotFound, "resolve", "unknown storage root in %s", rel)
	}

	return root, name, nil
}

func newRecord(rootName string, info fs.FileInfo) FileRecord {
	return FileRecord{
		Name:       info.Name(),
		Path:       rootName + "/" + info.Name(),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
		Type:       InferType(info.Name()),
	}
}

// InferType is the lowercase extension without the dot, or "unknown"
func InferType(name string) string {
	ext := filepath.Ext(name)
	if len(ext) <= 1 {
		return UnknownType
	}
	return strings.ToLower(ext[1:])
}

func isPlainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
