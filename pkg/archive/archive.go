// Package archive reads and writes the per-repository tar archives of a corpus.
//
// An archive holds the minified sources of one repository, each entry named
// "<repo>/<path>". Archives may be gzip or lz4 compressed or plain tar; the
// compression is detected from the leading magic bytes.
package archive

import (
	"bytes"
	"errors"
)

// Sentinel errors for archive loading.
var (
	ErrFetch      = errors.New("fetch archive")
	ErrDecompress = errors.New("decompress archive")
	ErrDecode     = errors.New("decode archive")
	ErrTooLarge   = errors.New("archive exceeds size limit")
)

// File is one decoded source file of a repository archive.
type File struct {
	// Name is relative to the repository root and matches corpus.File.Name.
	Name   string
	Source string
}

// Compression identifies an archive encoding.
type Compression int

// Supported compressions.
const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionLZ4
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Detect returns the compression indicated by the archive header.
func Detect(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(header, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Extension returns the file suffix used for archives with compression c.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".tar.gz"
	case CompressionLZ4:
		return ".tar.lz4"
	default:
		return ".tar"
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression maps a compression name to its value.
func ParseCompression(name string) (Compression, bool) {
	switch name {
	case "gzip", "gz":
		return CompressionGzip, true
	case "lz4":
		return CompressionLZ4, true
	case "none", "":
		return CompressionNone, true
	default:
		return CompressionNone, false
	}
}
