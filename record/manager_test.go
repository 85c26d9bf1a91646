package record_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
	"github.com/MicrohexHQ/libbitcoin-database/record"
)

func TestNewAndGet(t *testing.T) {
	dir := t.TempDir()
	f, err := mmfile.Open(filepath.Join(dir, "data"), 1.5)
	require.NoError(t, err)
	defer f.Close()

	m, err := record.Open(f, mmfile.HeaderSize, 16)
	require.NoError(t, err)

	i0, err := m.New(1)
	require.NoError(t, err)
	require.Equal(t, uint32(0), i0)

	i1, err := m.New(3)
	require.NoError(t, err)
	require.Equal(t, uint32(1), i1)
	require.Equal(t, uint32(4), m.Count())

	copy(m.Get(i0), []byte("0123456789abcdef"))
	require.Equal(t, "0123456789abcdef", string(m.Get(i0)))
}

func TestNullSentinel(t *testing.T) {
	require.Equal(t, uint32(0xffffffff), record.Null)
}
