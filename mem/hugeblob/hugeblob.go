// Package hugeblob provides a huge-page-backed shared byte arena.
package hugeblob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/usnistgov/hugeplane/core/logging"
	"github.com/usnistgov/hugeplane/core/xorshift"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("HugeBlob")

// Error conditions.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrSizeMismatch      = errors.New("existing file size mismatch")
)

// Defaults.
const (
	DefaultDir      = "/dev/hugepages"
	DefaultHugePage = 2 << 20
)

// Config contains HugeBlob mapping options.
type Config struct {
	// Dir is the directory of the backing file, normally a hugetlbfs mount.
	// Default is DefaultDir.
	Dir string `json:"dir,omitempty"`

	// Name is the backing file name.
	// Default is "hugeplane-<pid>.blob".
	Name string `json:"name,omitempty"`

	// Anonymous skips the file-backed attempt.
	Anonymous bool `json:"anonymous,omitempty"`

	// Keep preserves the backing file when the blob is closed.
	// It only matters for a file created by this blob; an existing file is never truncated or removed.
	Keep bool `json:"keep,omitempty"`
}

// Path returns the backing file path.
func (cfg Config) Path() string {
	dir, name := cfg.Dir, cfg.Name
	if dir == "" {
		dir = DefaultDir
	}
	if name == "" {
		name = fmt.Sprintf("hugeplane-%d.blob", os.Getpid())
	}
	return filepath.Join(dir, name)
}

// Blob is a contiguous byte arena shared by every ring, frame, and descriptor that refers to it.
//
// All bytes in [0,Size()) may be read and written concurrently by any goroutine holding a reference.
// Synchronization of overlapping writes is the caller's responsibility.
type Blob struct {
	mem  []byte
	kind PageKind
	file *os.File
	path    string
	keep    bool
	created bool
}

// Map creates a HugeBlob of the given size.
//
// It first tries to create or open a file under cfg.Dir and map it shared read/write.
// An existing file is reused only if its size equals size; otherwise Map fails with ErrSizeMismatch.
// On other failures, it falls back to a private anonymous mapping with a huge page hint.
func Map(size uint64, cfg Config) (b *Blob, e error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: size must be positive", ErrInvalidArgument)
	}
	if size > uint64(maxMapSize) {
		return nil, fmt.Errorf("%w: size %d exceeds address space", ErrInvalidArgument, size)
	}

	b = &Blob{keep: cfg.Keep}
	if !cfg.Anonymous {
		path := cfg.Path()
		fileErr := b.mapFile(path, int(size))
		if fileErr == nil {
			logger.Info("blob mapped",
				zap.Stringer("kind", b.kind),
				zap.String("path", path),
				zap.Uint64("size", size),
				zap.Bool("created", b.created),
			)
			return b, nil
		}
		if errors.Is(fileErr, ErrSizeMismatch) {
			return nil, fileErr
		}
		logger.Info("file-backed mapping unavailable, falling back to anonymous",
			zap.String("path", path),
			zap.Error(fileErr),
		)
	}

	if e = b.mapAnonymous(int(size)); e != nil {
		return nil, e
	}
	logger.Info("blob mapped",
		zap.Stringer("kind", b.kind),
		zap.Uint64("size", size),
	)
	return b, nil
}

// Bytes returns the arena as a byte slice.
// The slice is valid until Close.
func (b *Blob) Bytes() []byte {
	return b.mem
}

// Size returns arena size in octets.
func (b *Blob) Size() uint64 {
	return uint64(len(b.mem))
}

// Kind returns how the arena is backed.
func (b *Blob) Kind() PageKind {
	return b.kind
}

// Path returns the backing file path, or empty string for anonymous mappings.
func (b *Blob) Path() string {
	return b.path
}

// Keep returns the file teardown policy.
func (b *Blob) Keep() bool {
	return b.keep
}

// Created reports whether the backing file was created by this blob rather than opened.
func (b *Blob) Created() bool {
	return b.created
}

// SetKeep changes the file teardown policy.
// If true, a file created by this blob is preserved on Close.
func (b *Blob) SetKeep(keep bool) {
	b.keep = keep
}

// Prefault touches one byte per stride to force page allocation.
// If stride is zero, it uses the huge page size for huge mappings and the system page size otherwise.
// Contents are unchanged, so calling it again has no further effect.
func (b *Blob) Prefault(stride int) {
	if stride <= 0 {
		stride = b.kind.pageSize()
	}
	for i := 0; i < len(b.mem); i += stride {
		b.mem[i] ^= touchMask
	}
}

// touchMask is zero; it is a variable so that Prefault's writes are not elided.
var touchMask byte

// Fill writes a deterministic xorshift64* stream into the whole arena.
func (b *Blob) Fill(seed uint64) {
	xorshift.New(seed).Fill(b.mem)
}

// Close releases the arena.
// A file created by this blob is truncated to zero length and unlinked unless Keep is set.
// A file opened from an earlier creator is left intact, as other processes may still map it.
func (b *Blob) Close() error {
	if b.mem == nil {
		return nil
	}
	errs := []error{unmap(b.mem)}
	b.mem = nil

	if b.file != nil {
		discard := b.created && !b.keep
		if discard {
			errs = append(errs, b.file.Truncate(0))
		}
		errs = append(errs, b.file.Close())
		if discard {
			errs = append(errs, os.Remove(b.path))
		}
		b.file = nil
	}

	logger.Debug("blob released", zap.String("path", b.path), zap.Bool("keep", b.keep), zap.Bool("created", b.created))
	return multierr.Combine(errs...)
}

func (b *Blob) String() string {
	if b.path == "" {
		return fmt.Sprintf("%s(%d)", b.kind, len(b.mem))
	}
	return fmt.Sprintf("%s(%d)@%s", b.kind, len(b.mem), b.path)
}
