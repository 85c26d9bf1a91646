package mmfile_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
)

func TestOpenInitializesHeader(t *testing.T) {
	dir := t.TempDir()
	f, err := mmfile.Open(filepath.Join(dir, "data"), 0)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, uint64(mmfile.HeaderSize), f.PayloadSize())
	require.Equal(t, uint64(mmfile.HeaderSize), f.Size())
}

func TestReserveGrowsByRate(t *testing.T) {
	dir := t.TempDir()
	f, err := mmfile.Open(filepath.Join(dir, "data"), 2)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Reserve(1000))
	require.GreaterOrEqual(t, f.Size(), uint64(1000))
	require.GreaterOrEqual(t, f.Size(), uint64(2000))

	// Reserving a smaller amount is a no-op.
	sizeBefore := f.Size()
	require.NoError(t, f.Reserve(10))
	require.Equal(t, sizeBefore, f.Size())
}

func TestDataSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")

	f, err := mmfile.Open(path, 1.5)
	require.NoError(t, err)
	require.NoError(t, f.Reserve(100))
	copy(f.Data()[mmfile.HeaderSize:], []byte("hello"))
	f.SetPayloadSize(100)
	require.NoError(t, f.Flush())
	require.NoError(t, f.Close())

	f2, err := mmfile.Open(path, 1.5)
	require.NoError(t, err)
	defer f2.Close()

	require.Equal(t, uint64(100), f2.PayloadSize())
	require.Equal(t, "hello", string(f2.Data()[mmfile.HeaderSize:mmfile.HeaderSize+5]))
}

func TestCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	f, err := mmfile.Open(filepath.Join(dir, "data"), 0)
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}
