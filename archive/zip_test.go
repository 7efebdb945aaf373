package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, entries map[string][]byte) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return bytes.NewReader(buf.Bytes())
}

func TestZipReaderOpensNamedEntry(t *testing.T) {
	r := buildZip(t, map[string][]byte{
		EntryOutputLeaves: []byte("output-leaf-bytes"),
		EntryKernelHashes: []byte("kernel-hash-bytes"),
	})

	zr, err := NewZipReader(r, int64(r.Len()))
	require.NoError(t, err)

	rc, err := zr.Open(EntryOutputLeaves)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "output-leaf-bytes", string(got))
}

func TestZipReaderOpenMissingEntryFails(t *testing.T) {
	r := buildZip(t, map[string][]byte{EntryOutputLeaves: []byte("x")})
	zr, err := NewZipReader(r, int64(r.Len()))
	require.NoError(t, err)

	_, err = zr.Open(EntryKernelLeaves)
	require.Error(t, err)
}

func TestZipReaderSatisfiesReaderInterface(t *testing.T) {
	var _ Reader = (*ZipReader)(nil)
}
