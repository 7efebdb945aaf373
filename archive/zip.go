package archive

import (
	"archive/zip"
	"io"
)

// ZipReader is the production Reader backed by the standard library's zip
// reader. The extraction format itself is out of scope (§1); this is the
// thinnest possible adapter satisfying Reader so cmd/node has a concrete
// implementation to wire.
type ZipReader struct {
	zr *zip.Reader
}

// NewZipReader wraps an already-opened random-access zip archive.
func NewZipReader(r io.ReaderAt, size int64) (*ZipReader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return &ZipReader{zr: zr}, nil
}

func (z *ZipReader) Open(name string) (io.ReadCloser, error) {
	return z.zr.Open(name)
}

var _ Reader = (*ZipReader)(nil)
