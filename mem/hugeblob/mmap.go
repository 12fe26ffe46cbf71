package hugeblob

import (
	"errors"
	"fmt"
	"math"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const maxMapSize = math.MaxInt

func (b *Blob) mapFile(path string, size int) (e error) {
	created := false
	file, e := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	switch {
	case e == nil:
		created = true
	case errors.Is(e, os.ErrExist):
		if file, e = os.OpenFile(path, os.O_RDWR, 0); e != nil {
			return e
		}
	default:
		return e
	}

	cleanup := func(e error) error {
		errs := []error{e, file.Close()}
		if created {
			errs = append(errs, os.Remove(path))
		}
		return multierr.Combine(errs...)
	}

	info, e := file.Stat()
	if e != nil {
		return cleanup(e)
	}
	switch {
	case created:
		if e = file.Truncate(int64(size)); e != nil {
			return cleanup(fmt.Errorf("ftruncate: %w", e))
		}
	case info.Size() != int64(size):
		// an existing file may be mapped by another process; never resize it
		return cleanup(fmt.Errorf("%w: %s has %d octets, want %d", ErrSizeMismatch, path, info.Size(), size))
	}

	mem, e := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if e != nil {
		return cleanup(fmt.Errorf("mmap: %w", e))
	}

	b.mem, b.kind, b.file, b.path, b.created = mem, PageFile, file, path, created
	return nil
}

func (b *Blob) mapAnonymous(size int) (e error) {
	const prot = unix.PROT_READ | unix.PROT_WRITE
	const flags = unix.MAP_PRIVATE | unix.MAP_ANONYMOUS

	if size%DefaultHugePage == 0 {
		if mem, e := unix.Mmap(-1, 0, size, prot, flags|unix.MAP_HUGETLB); e == nil {
			b.mem, b.kind = mem, PageAnonymousHuge
			return nil
		}
	}

	mem, e := unix.Mmap(-1, 0, size, prot, flags)
	if e != nil {
		return fmt.Errorf("%w: mmap %d octets: %w", ErrResourceExhausted, size, e)
	}
	b.mem, b.kind = mem, PageAnonymous

	if e := unix.Madvise(mem, unix.MADV_HUGEPAGE); e != nil {
		logger.Debug("MADV_HUGEPAGE rejected", zap.Error(e))
	} else {
		b.kind = PageAnonymousHuge
	}
	return nil
}

func unmap(mem []byte) error {
	if e := unix.Munmap(mem); e != nil {
		return fmt.Errorf("munmap: %w", e)
	}
	return nil
}
