package slab_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
	"github.com/MicrohexHQ/libbitcoin-database/slab"
)

func TestNewAndGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := mmfile.Open(filepath.Join(dir, "data"), 1.5)
	require.NoError(t, err)
	defer f.Close()

	m, err := slab.Open(f, mmfile.HeaderSize)
	require.NoError(t, err)

	off1, err := m.New(10)
	require.NoError(t, err)
	copy(m.Get(off1, 10), []byte("0123456789"))

	off2, err := m.New(5)
	require.NoError(t, err)
	require.Equal(t, off1+10, off2)
	copy(m.Get(off2, 5), []byte("abcde"))

	require.Equal(t, "0123456789", string(m.Get(off1, 10)))
	require.Equal(t, "abcde", string(m.Get(off2, 5)))
}

func TestSyncPublishesHighWaterMark(t *testing.T) {
	dir := t.TempDir()
	f, err := mmfile.Open(filepath.Join(dir, "data"), 1.5)
	require.NoError(t, err)
	defer f.Close()

	m, err := slab.Open(f, mmfile.HeaderSize)
	require.NoError(t, err)

	_, err = m.New(100)
	require.NoError(t, err)
	m.Sync()

	require.Greater(t, f.PayloadSize(), uint64(mmfile.HeaderSize))
}
