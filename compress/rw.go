// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package compress provides convenience functions for creating compressors and
// uncompressors based on filenames or on the magic header of the input.
package compress

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/grailbio/decryptfilter/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is a compression format.
type Format int

const (
	// None is uncompressed data.
	None Format = iota
	// Gzip is RFC 1952.
	Gzip
	// Zstd is RFC 8878.
	Zstd
	// Bzip2 can only be read.
	Bzip2
)

var formatNames = [...]string{
	None:  "none",
	Gzip:  "gzip",
	Zstd:  "zstd",
	Bzip2: "bzip2",
}

func (f Format) String() string {
	if f < None || f > Bzip2 {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// DetermineFormat returns the compression format for path, going by
// its extension:
//
//	.gz => Gzip
//	.zst, .zstd => Zstd
//	.bz2 => Bzip2
//
// Any other path is None.
func DetermineFormat(path string) Format {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return Gzip
	case strings.HasSuffix(path, ".zst"), strings.HasSuffix(path, ".zstd"):
		return Zstd
	case strings.HasSuffix(path, ".bz2"):
		return Bzip2
	}
	return None
}

// errorReader is a ReadCloser implementation that always returns the given
// error.
type errorReader struct{ err error }

func (r *errorReader) Read(buf []byte) (int, error) { return 0, r.err }
func (r *errorReader) Close() error                 { return r.err }

func isBzip2Header(buf []byte) bool {
	// https://www.forensicswiki.org/wiki/Bzip2
	if len(buf) < 10 {
		return false
	}
	if !(buf[0] == 'B' && buf[1] == 'Z' && buf[2] == 'h' && buf[3] >= '1' && buf[3] <= '9') {
		return false
	}
	blockMagic := buf[4] == 0x31 && buf[5] == 0x41 && buf[6] == 0x59 &&
		buf[7] == 0x26 && buf[8] == 0x53 && buf[9] == 0x59
	eosMagic := buf[4] == 0x17 && buf[5] == 0x72 && buf[6] == 0x45 &&
		buf[7] == 0x38 && buf[8] == 0x50 && buf[9] == 0x90 // empty bz2 file
	return blockMagic || eosMagic
}

func isGzipHeader(buf []byte) bool {
	if len(buf) < 10 {
		return false
	}
	if !(buf[0] == 0x1f && buf[1] == 0x8b) {
		return false
	}
	if !(buf[2] <= 3 || buf[2] == 8) {
		return false
	}
	if (buf[3] & 0xc0) != 0 {
		return false
	}
	if !(buf[9] <= 0xd || buf[9] == 0xff) {
		return false
	}
	return true
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func isZstdHeader(buf []byte) bool {
	return bytes.HasPrefix(buf, zstdMagic)
}

type zstdReader struct{ *zstd.Decoder }

func (r zstdReader) Close() error {
	r.Decoder.Close()
	return nil
}

func newReader(r io.Reader, format Format) (io.ReadCloser, error) {
	switch format {
	case Gzip:
		return gzip.NewReader(r)
	case Zstd:
		z, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReader{z}, nil
	case Bzip2:
		return ioutil.NopCloser(bzip2.NewReader(r)), nil
	}
	return ioutil.NopCloser(r), nil
}

// NewReader creates an uncompressing reader by reading the first few bytes of
// the input and finding a magic header for gzip, zstd or bzip2. It
// returns the reader and the detected format.
//
// CAUTION: this function will misbehave when the input is a binary string that
// happens to have the same magic header.  Thus, you should use
// this function only when the input is expected to be ASCII.
func NewReader(r io.Reader) (io.ReadCloser, Format) {
	buf := bytes.Buffer{}
	_, err := io.CopyN(&buf, r, 128)
	var m io.Reader
	switch err {
	case io.EOF:
		m = &buf
	case nil:
		m = io.MultiReader(&buf, r)
	default:
		m = io.MultiReader(&buf, &errorReader{err})
	}
	format := None
	switch header := buf.Bytes(); {
	case isGzipHeader(header):
		format = Gzip
	case isZstdHeader(header):
		format = Zstd
	case isBzip2Header(header):
		format = Bzip2
	}
	rc, err := newReader(m, format)
	if err != nil {
		return &errorReader{err}, None
	}
	return rc, format
}

// NewReaderPath creates a reader that uncompresses data read from r, in
// the format given by path's extension (see DetermineFormat). For
// uncompressed paths it returns r as is.
//
// The caller must close the reader after use. For some file formats,
// Close() is the only place that reports file corruption.
func NewReaderPath(r io.Reader, path string) (io.ReadCloser, error) {
	rc, err := newReader(r, DetermineFormat(path))
	if err != nil {
		return nil, errors.E(errors.Data, path, err)
	}
	return rc, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriterPath creates a WriteCloser that compresses data written to w,
// in the format given by path's extension. For uncompressed paths, the
// returned writer writes through to w. The caller must call Close()
// once after writing all the data; Close does not close w.
func NewWriterPath(w io.Writer, path string) (io.WriteCloser, error) {
	switch format := DetermineFormat(path); format {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		z, err := zstd.NewWriter(w)
		if err != nil {
			return nil, errors.E(errors.Invalid, path, err)
		}
		return z, nil
	case Bzip2:
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("%s: bzip2 writer not supported", path))
	}
	return nopWriteCloser{w}, nil
}
