package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/pierrec/lz4/v4"
)

// ErrPartialWrite is returned when an entry body was not written in full.
var ErrPartialWrite = errors.New("partial data write")

const defaultFileMode = 0o644

// Writer builds a repository archive.
type Writer struct {
	tw    *tar.Writer
	inner io.WriteCloser
}

// NewWriter returns a Writer emitting an archive with compression c to w.
// Close must be called to flush the archive; it does not close w.
func NewWriter(w io.Writer, c Compression) *Writer {
	aw := &Writer{}

	switch c {
	case CompressionGzip:
		aw.inner = gzip.NewWriter(w)
	case CompressionLZ4:
		aw.inner = lz4.NewWriter(w)
	}

	if aw.inner != nil {
		aw.tw = tar.NewWriter(aw.inner)
	} else {
		aw.tw = tar.NewWriter(w)
	}

	return aw
}

// AddFile appends a regular file entry. A zero mode selects 0644.
func (w *Writer) AddFile(name string, mode fs.FileMode, data []byte) error {
	if mode == 0 {
		mode = defaultFileMode
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     int64(len(data)),
		Mode:     int64(mode.Perm()),
	}

	err := w.tw.WriteHeader(hdr)
	if err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}

	n, err := w.tw.Write(data)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	if n != len(data) {
		return fmt.Errorf("%w: %s", ErrPartialWrite, name)
	}

	return nil
}

// Close flushes the tar stream and the compressor.
func (w *Writer) Close() error {
	tarErr := w.tw.Close()
	if tarErr != nil {
		return fmt.Errorf("close tar: %w", tarErr)
	}

	if w.inner == nil {
		return nil
	}

	closeErr := w.inner.Close()
	if closeErr != nil {
		return fmt.Errorf("close compressor: %w", closeErr)
	}

	return nil
}
