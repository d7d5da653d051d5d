package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/fault"
	"github.com/guided-traffic/file-encryptor/internal/monitoring"
)

const (
	partialPrefix = ".upload-"
	partialSuffix = ".part"

	// maxNameAttempts bounds the search for a free stored name
	maxNameAttempts = 1000
)

// Observer is told about every upload that was stored
type Observer interface {
	Stored(ctx context.Context, record FileRecord, localPath string)
}

// Ingestor stores uploaded streams in the writable upload root
type Ingestor struct {
	root      Root
	maxSize   int64
	observers []Observer
	logger    *logrus.Entry

	last atomic.Int64
	now  func() time.Time
}

// NewIngestor creates an ingestor writing into the named root
func NewIngestor(reg *Registry, rootName string, maxSize int64, logger *logrus.Entry, observers ...Observer) (*Ingestor, error) {
	root, ok := reg.Root(rootName)
	if !ok {
		return nil, fmt.Errorf("upload root %q is not a configured storage root", rootName)
	}
	if !root.Writable {
		return nil, fmt.Errorf("upload root %q is not writable", rootName)
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("max upload size must be positive")
	}
	if logger == nil {
		logger = logrus.WithField("component", "upload-ingest")
	}

	return &Ingestor{
		root:      root,
		maxSize:   maxSize,
		observers: observers,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Ingest writes src under a fresh unique name and returns its record. The
// file becomes visible only once it is complete.
func (in *Ingestor) Ingest(ctx context.Context, originalName string, src io.Reader) (FileRecord, error) {
	if err := os.MkdirAll(in.root.Dir, 0755); err != nil {
		monitoring.RecordUpload("error", 0)
		return FileRecord{}, fault.Wrap(fault.Internal, "ingest", fmt.Errorf("failed to create upload root: %w", err))
	}

	tmp := filepath.Join(in.root.Dir, partialPrefix+uuid.NewString()+partialSuffix)
	written, err := in.writePartial(ctx, tmp, src)
	if err != nil {
		_ = os.Remove(tmp)
		status := "error"
		if fault.Is(err, fault.PayloadTooLarge) {
			status = "too_large"
		}
		monitoring.RecordUpload(status, 0)
		in.logger.WithError(err).WithField("original_name", originalName).Warn("Upload rejected")
		return FileRecord{}, err
	}

	sanitized := SanitizeName(originalName)
	final, name, err := in.publish(tmp, sanitized)
	if err != nil {
		_ = os.Remove(tmp)
		monitoring.RecordUpload("error", 0)
		return FileRecord{}, err
	}

	info, err := os.Stat(final)
	if err != nil {
		monitoring.RecordUpload("error", 0)
		return FileRecord{}, fault.Wrap(fault.Internal, "ingest", err)
	}

	record := newRecord(in.root.Name, info)
	monitoring.RecordUpload("success", written)

	in.logger.WithFields(logrus.Fields{
		"original_name": originalName,
		"stored_name":   name,
		"size":          written,
	}).Info("Upload stored")

	for _, o := range in.observers {
		o.Stored(ctx, record, final)
	}

	return record, nil
}

func (in *Ingestor) writePartial(ctx context.Context, tmp string, src io.Reader) (int64, error) {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fault.Wrap(fault.Internal, "ingest", fmt.Errorf("failed to create partial upload: %w", err))
	}

	// one byte past the limit is enough to detect an oversized stream
	n, copyErr := io.Copy(f, io.LimitReader(&contextReader{ctx: ctx, r: src}, in.maxSize+1))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		if ctx.Err() != nil {
			return 0, fault.Wrap(fault.InvalidRequest, "ingest", fmt.Errorf("upload aborted: %w", ctx.Err()))
		}
		return 0, fault.Wrap(fault.Internal, "ingest", fmt.Errorf("failed to write upload: %w", copyErr))
	case n > in.maxSize:
		return 0, fault.Errorf(fault.PayloadTooLarge, "ingest", "upload exceeds the limit of %d bytes", in.maxSize)
	case closeErr != nil:
		return 0, fault.Wrap(fault.Internal, "ingest", fmt.Errorf("failed to finish upload: %w", closeErr))
	}

	return n, nil
}

// publish renames the partial file to "<stamp>_<name>", drawing new stamps
// while the name is taken.
func (in *Ingestor) publish(tmp, sanitized string) (string, string, error) {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := fmt.Sprintf("%d_%s", in.nextStamp(), sanitized)
		final := filepath.Join(in.root.Dir, name)

		if _, err := os.Lstat(final); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", "", fault.Wrap(fault.Internal, "ingest", err)
		}

		if err := os.Rename(tmp, final); err != nil {
			return "", "", fault.Wrap(fault.Internal, "ingest", fmt.Errorf("failed to publish upload: %w", err))
		}
		return final, name, nil
	}

	return "", "", fault.Errorf(fault.Internal, "ingest", "no free name for %s after %d attempts", sanitized, maxNameAttempts)
}

// nextStamp is max(now in ms, previous+1), so stamps never repeat within
// the process even when the clock stalls or steps back.
func (in *Ingestor) nextStamp() int64 {
	for {
		last := in.last.Load()
		next := in.now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if in.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// SanitizeName replaces every character outside [A-Za-z0-9.-] with '_'
func SanitizeName(name string) string {
	if name == "" {
		return "file"
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isPartialUpload(name string) bool {
	return strings.HasPrefix(name, partialPrefix) && strings.HasSuffix(name, partialSuffix)
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
