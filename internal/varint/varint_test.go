package varint_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/internal/varint"
)

func TestRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0xfc, 0xfd, 0xfe, 0xffff, 0x10000, 0xffffffff, 0x100000000, ^uint64(0)}
	for _, v := range values {
		buf := varint.Append(nil, v)
		require.Len(t, buf, varint.Size(v))

		got, n, err := varint.Get(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestGetTruncated(t *testing.T) {
	buf := varint.Append(nil, 0x100000000)
	_, _, err := varint.Get(buf[:len(buf)-1])
	require.Error(t, err)
}
