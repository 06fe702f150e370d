package archive

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pierrec/lz4/v4"
)

const sniffLen = 4

// Loader opens repository archives from a Source and decodes them.
type Loader struct {
	Source Source
}

// NewLoader returns a loader reading archives from src.
func NewLoader(src Source) *Loader {
	return &Loader{Source: src}
}

// Load fetches and decodes the archive of repo. Files are returned in archive order.
func (l *Loader) Load(ctx context.Context, repo string) ([]File, error) {
	rc, err := l.Source.Open(ctx, repo)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	files, err := Read(rc, repo)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", repo, err)
	}

	return files, nil
}

// Read decodes an archive stream. The "<repo>/" prefix is stripped from entry
// names; invalid UTF-8 sequences are replaced.
func Read(r io.Reader, repo string) ([]File, error) {
	br := bufio.NewReader(r)

	header, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrFetch, err)
	}

	stream, closeFn, err := decompressor(Detect(header), br)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return readTar(stream, repo+"/")
}

func decompressor(c Compression, r io.Reader) (io.Reader, func(), error) {
	switch c {
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, errors.Join(ErrDecompress, err)
		}

		return gz, func() { _ = gz.Close() }, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return r, func() {}, nil
	}
}

func readTar(r io.Reader, prefix string) ([]File, error) {
	tr := tar.NewReader(r)

	var files []File

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}

		if err != nil {
			return nil, classifyStreamErr(err)
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, classifyStreamErr(err)
		}

		files = append(files, File{
			Name:   strings.TrimPrefix(hdr.Name, prefix),
			Source: toValidUTF8(data),
		})
	}
}

// classifyStreamErr keeps size-limit and decompression failures distinguishable
// from malformed tar data.
func classifyStreamErr(err error) error {
	switch {
	case errors.Is(err, ErrTooLarge):
		return err
	case errors.Is(err, gzip.ErrChecksum), errors.Is(err, gzip.ErrHeader), isLZ4Error(err):
		return errors.Join(ErrDecompress, err)
	default:
		return errors.Join(ErrDecode, err)
	}
}

func isLZ4Error(err error) bool {
	return strings.HasPrefix(err.Error(), "lz4:")
}

func toValidUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}
