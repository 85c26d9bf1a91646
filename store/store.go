// Package store implements filesystem-level write coordination for a
// database directory: a per-directory exclusive lock file held for
// the process's lifetime, and a flush-lock sentinel file bracketing
// every top-level write so a crash mid-write is detectable on the
// next open.
//
// There is no teacher or pack analog for directory-level presence
// locks over golang.org/x/sys/unix.Flock; os and unix are used here as
// the filesystem primitives they are, not as a substitute for a
// pluggable concern.
package store

import (
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"lukechampine.com/blake3"
)

const (
	exclusiveLockName = "exclusive_lock"
	flushLockName     = "flush_lock"
)

// checksumHexLen is the length of a hex-encoded 32-byte blake3 digest,
// the expected content of a flush-lock sentinel.
const checksumHexLen = 64

// ErrAlreadyOpen is returned by Open when another process holds the
// directory's exclusive lock.
var ErrAlreadyOpen = errors.New("database directory is locked by another process")

// ErrDirtyShutdown is returned by Open when the flush-lock sentinel is
// present: a previous write began and never completed, and the
// directory requires operator recovery before it can be reopened.
var ErrDirtyShutdown = errors.New("flush lock present: previous write did not complete cleanly")

// Store coordinates filesystem-level access to a database directory.
type Store struct {
	dir         string
	exclusiveFd *os.File
}

// Open acquires the directory's exclusive lock and checks for a
// flush-lock sentinel left by a crashed write.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating database directory")
	}

	fd, err := os.OpenFile(dir+"/"+exclusiveLockName, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening exclusive lock file")
	}

	if err := unix.Flock(int(fd.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fd.Close()
		return nil, ErrAlreadyOpen
	}

	if sentinel, err := os.ReadFile(dir + "/" + flushLockName); err == nil {
		unix.Flock(int(fd.Fd()), unix.LOCK_UN)
		fd.Close()
		if !isWellFormedChecksum(sentinel) {
			return nil, errors.Wrap(ErrDirtyShutdown, "flush lock sentinel payload is malformed, not just present")
		}
		return nil, ErrDirtyShutdown
	}

	return &Store{dir: dir, exclusiveFd: fd}, nil
}

// isWellFormedChecksum reports whether data is shaped like a value
// manifestChecksum could have produced: the sentinel's checksum can't
// be recomputed and compared against anything at Open (the sizes it
// covers are a pre-write snapshot, not the post-crash state), but a
// read-back that isn't even a well-formed digest means the sentinel
// itself was corrupted rather than just left behind by a clean
// BeginWrite.
func isWellFormedChecksum(data []byte) bool {
	if len(data) != checksumHexLen {
		return false
	}
	for _, b := range data {
		if !(b >= '0' && b <= '9') && !(b >= 'a' && b <= 'f') {
			return false
		}
	}
	return true
}

// Close releases the directory's exclusive lock.
func (s *Store) Close() error {
	if err := unix.Flock(int(s.exclusiveFd.Fd()), unix.LOCK_UN); err != nil {
		return errors.Wrap(err, "releasing exclusive lock")
	}
	return s.exclusiveFd.Close()
}

// BeginWrite creates the flush-lock sentinel file, recording a blake3
// digest of the managed files' sizes as they were when the write
// started. It must be called with
// write_mutex held, before any database mutation.
func (s *Store) BeginWrite(sizes map[string]uint64) error {
	f, err := os.OpenFile(s.dir+"/"+flushLockName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "creating flush lock sentinel")
	}
	defer f.Close()

	if _, err := f.WriteString(manifestChecksum(sizes)); err != nil {
		return errors.Wrap(err, "writing flush lock sentinel")
	}
	return f.Sync()
}

// EndWrite deletes the flush-lock sentinel file. It must only be
// called after every sub-database commit in the write has succeeded.
func (s *Store) EndWrite() error {
	if err := os.Remove(s.dir + "/" + flushLockName); err != nil {
		return errors.Wrap(err, "deleting flush lock sentinel")
	}
	return nil
}

func manifestChecksum(sizes map[string]uint64) string {
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)

	h := blake3.New(32, nil)
	for _, name := range names {
		fmt.Fprintf(h, "%s:%d\n", name, sizes[name])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
