// Package mmfile implements the lowest layer of the store: a
// memory-mapped file that grows by a configurable multiplicative
// policy and tracks its own logical size ("payload size") in its first
// eight bytes, independent of the larger physical size backing it.
//
// persistent.NewFileStore and alloc.NewState both open an mmap over a
// file descriptor with golang.org/x/sys/unix and hand back a byte slice
// plus an unmap-on-close callback; this package generalizes that to
// support growth in place (Resize/Reserve), which neither of those
// needs because their regions are allocated once up front.
package mmfile

import (
	"encoding/binary"
	"math"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// HeaderSize is the number of bytes at the start of every mapped file
// reserved for the little-endian payload-size high-water mark.
const HeaderSize = 8

// DefaultGrowthRate is the default multiplier applied by Reserve when
// the file must grow: the new size is ceil(n * growthRate).
const DefaultGrowthRate = 1.5

// File is a growable memory-mapped file. The zero value is not usable;
// construct with Open.
type File struct {
	mu         sync.RWMutex
	file       *os.File
	data       []byte
	growthRate float64
}

// Open opens (creating if necessary) the file at path and maps it into
// memory. If the file is smaller than HeaderSize it is grown to
// HeaderSize and its payload size initialized to HeaderSize.
func Open(path string, growthRate float64) (*File, error) {
	if growthRate < 1 {
		growthRate = DefaultGrowthRate
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "statting %q", path)
	}

	physicalSize := info.Size()
	if physicalSize < HeaderSize {
		if err := f.Truncate(HeaderSize); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "truncating %q", path)
		}
		physicalSize = HeaderSize
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(physicalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "mapping %q", path)
	}

	mf := &File{
		file:       f,
		data:       data,
		growthRate: growthRate,
	}

	if binary.LittleEndian.Uint64(data[:HeaderSize]) == 0 {
		binary.LittleEndian.PutUint64(data[:HeaderSize], HeaderSize)
	}

	return mf, nil
}

// PayloadSize returns the logical size recorded in the file's header.
func (f *File) PayloadSize() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return binary.LittleEndian.Uint64(f.data[:HeaderSize])
}

// SetPayloadSize updates the logical size recorded in the file's header.
// Callers (slab/record managers) use this to publish their high-water
// mark; it does not itself grow the mapping.
func (f *File) SetPayloadSize(n uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	binary.LittleEndian.PutUint64(f.data[:HeaderSize], n)
}

// Size returns the current physical size of the mapping.
func (f *File) Size() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return uint64(len(f.data))
}

// Data returns the full mapped byte slice, including the HeaderSize-byte
// payload-size field at its start. The slice is invalidated by any call
// to Reserve or Resize that grows the mapping; callers that hold the
// remap lock held shared (see the coordinator's remap mutex) are safe
// across the lifetime of a single operation.
func (f *File) Data() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.data
}

// Reserve ensures the mapping is at least n bytes. If the current size is
// already sufficient it is a cheap no-op; otherwise it grows the file by
// the configured growth rate.
func (f *File) Reserve(n uint64) error {
	f.mu.RLock()
	size := uint64(len(f.data))
	f.mu.RUnlock()

	if n <= size {
		return nil
	}

	target := uint64(math.Ceil(float64(n) * f.growthRate))
	if target < n {
		target = n
	}
	return f.Resize(target)
}

// Resize grows or shrinks the mapping to exactly n bytes, truncating the
// underlying file and remapping in place where the platform allows it.
func (f *File) Resize(n uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if uint64(len(f.data)) == n {
		return nil
	}

	if err := f.file.Truncate(int64(n)); err != nil {
		return errors.Wrap(err, "truncating during resize")
	}

	newData, err := unix.Mremap(f.data, int(n), unix.MREMAP_MAYMOVE)
	if err != nil {
		// Fall back to unmap + remap if the platform-specific in-place
		// remap is unavailable.
		if uerr := unix.Munmap(f.data); uerr != nil {
			return errors.Wrap(uerr, "unmapping during resize fallback")
		}
		newData, err = unix.Mmap(int(f.file.Fd()), 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return errors.Wrap(err, "remapping during resize fallback")
		}
	}

	f.data = newData
	return nil
}

// Flush synchronously flushes dirty pages then syncs the file descriptor.
// A false-equivalent failure (non-nil error) means the caller must treat
// the mapping as corrupt.
func (f *File) Flush() error {
	f.mu.RLock()
	data := f.data
	f.mu.RUnlock()

	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		return errors.Wrap(err, "msync")
	}
	if err := f.file.Sync(); err != nil {
		return errors.Wrap(err, "fsync")
	}
	return nil
}

// Close flushes then unmaps the file. It is idempotent.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.data == nil {
		return nil
	}

	var err error
	if ferr := unix.Msync(f.data, unix.MS_SYNC); ferr != nil {
		err = errors.Wrap(ferr, "msync on close")
	}
	if serr := f.file.Sync(); serr != nil && err == nil {
		err = errors.Wrap(serr, "fsync on close")
	}
	if uerr := unix.Munmap(f.data); uerr != nil && err == nil {
		err = errors.Wrap(uerr, "munmap on close")
	}
	f.data = nil
	if cerr := f.file.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "close file on close")
	}
	return err
}
