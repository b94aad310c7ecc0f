package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is the container/compression combination of an archive file.
type Format int

const (
	FormatTar Format = iota
	FormatTarGzip
	FormatTarZstd
)

func (f Format) String() string {
	switch f {
	case FormatTarGzip:
		return "tar+gzip"
	case FormatTarZstd:
		return "tar+zstd"
	default:
		return "tar"
	}
}

// DetectFormat picks the format from the file name.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGzip, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZstd, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	default:
		return FormatTar, fmt.Errorf("unsupported archive extension: %s", name)
	}
}

// decompress wraps r so that it yields the raw tar stream.
func decompress(f Format, r io.Reader) (io.ReadCloser, error) {
	switch f {
	case FormatTarGzip:
		return gzip.NewReader(r)
	case FormatTarZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// compress wraps w so that a tar stream written to it is compressed.
func compress(f Format, w io.Writer) (io.WriteCloser, error) {
	switch f {
	case FormatTarGzip:
		return gzip.NewWriter(w), nil
	case FormatTarZstd:
		return zstd.NewWriter(w)
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
