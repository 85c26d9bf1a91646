package coordinator

import "github.com/pkg/errors"

// Error kinds surfaced to callers of a write operation. A nil error
// means success; every non-nil error a write operation returns is one
// of these sentinels (optionally wrapped with context via pkg/errors),
// so callers compare with errors.Is.
var (
	// ErrOperationFailed is the generic fatal store error: I/O, remap,
	// lock acquisition, or a structural invariant violation. A write
	// that fails with this leaves the flush-lock sentinel in place. The
	// other kinds below are preflight rejections, returned before the
	// write touches anything; they leave no sentinel behind.
	ErrOperationFailed = errors.New("operation failed")

	// ErrEmptyBlock is returned by a block push with zero transactions.
	ErrEmptyBlock = errors.New("block has no transactions")

	// ErrInvalidHeight is returned when a push/pop height disagrees
	// with the current chain top.
	ErrInvalidHeight = errors.New("height does not match chain top")

	// ErrMissingParent is returned when a pushed header or block's
	// previous-block hash does not match the hash at height-1.
	ErrMissingParent = errors.New("parent hash does not match chain top")

	// ErrUnspentDuplicate is returned when pooling a transaction whose
	// hash already has a record with unspent outputs.
	ErrUnspentDuplicate = errors.New("duplicate transaction hash has unspent outputs")
)
