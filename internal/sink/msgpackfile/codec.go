// Package msgpackfile writes profiles as MessagePack documents, optionally compressed with zstd
// or lz4, and reads them back.
package msgpackfile

import (
	"bytes"
	"fmt"
	"io"

	"github.com/chrissnell/riverprofile/pkg/config"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Extension returns the file extension for a compression codec
func Extension(compression string) string {
	switch compression {
	case config.CompressionZstd:
		return ".msgpack.zst"
	case config.CompressionLZ4:
		return ".msgpack.lz4"
	}
	return ".msgpack"
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func compressor(w io.Writer, compression string) (io.WriteCloser, error) {
	switch compression {
	case "", config.CompressionNone:
		return nopCloser{w}, nil
	case config.CompressionZstd:
		return zstd.NewWriter(w)
	case config.CompressionLZ4:
		return lz4.NewWriter(w), nil
	}
	return nil, fmt.Errorf("unsupported compression %q", compression)
}

// Encode writes v to w as MessagePack through the compression codec
func Encode(w io.Writer, compression string, v any) error {
	cw, err := compressor(w, compression)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(cw).Encode(v); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

// Marshal encodes v into a buffer
func Marshal(compression string, v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, compression, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads one MessagePack document written by Encode
func Decode(r io.Reader, compression string, v any) error {
	switch compression {
	case "", config.CompressionNone:
	case config.CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	case config.CompressionLZ4:
		r = lz4.NewReader(r)
	default:
		return fmt.Errorf("unsupported compression %q", compression)
	}
	return msgpack.NewDecoder(r).Decode(v)
}
