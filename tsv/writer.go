// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tsv

import (
	"bufio"
	"io"
	"strconv"
	"time"
)

// Null is the text of a null field.
const Null = `\N`

// Writer appends a field at a time to a TSV line. Text fields are
// escaped; numbers are converted with strconv.Append* so that no
// intermediate strings are allocated.
type Writer struct {
	w    *bufio.Writer
	line []byte
}

// NewWriter creates a new tsv.Writer from an io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:    bufio.NewWriter(w),
		line: make([]byte, 0, 256),
	}
}

// WriteString escapes s and appends it and a tab to the current line.
// A string equal to Null is written as \\N.
func (w *Writer) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			w.line = append(w.line, '\\', '\\')
		case '\t':
			w.line = append(w.line, '\\', 't')
		case '\n':
			w.line = append(w.line, '\\', 'n')
		case '\r':
			w.line = append(w.line, '\\', 'r')
		default:
			w.line = append(w.line, c)
		}
	}
	w.line = append(w.line, '\t')
}

// WriteNull appends a null field.
func (w *Writer) WriteNull() {
	w.line = append(w.line, Null...)
	w.line = append(w.line, '\t')
}

// WriteBool appends true or false and a tab to the current line.
func (w *Writer) WriteBool(b bool) {
	w.line = strconv.AppendBool(w.line, b)
	w.line = append(w.line, '\t')
}

// WriteInt64 converts the given int64 to a string, and appends that and a
// tab to the current line.
func (w *Writer) WriteInt64(i int64) {
	w.line = strconv.AppendInt(w.line, i, 10)
	w.line = append(w.line, '\t')
}

// WriteFloat64 converts the given float64 to its shortest exact
// representation, and appends that and a tab to the current line.
func (w *Writer) WriteFloat64(f float64) {
	w.line = strconv.AppendFloat(w.line, f, 'g', -1, 64)
	w.line = append(w.line, '\t')
}

// WriteTime appends t in RFC 3339 format with nanoseconds and a tab to
// the current line.
func (w *Writer) WriteTime(t time.Time) {
	w.line = t.AppendFormat(w.line, time.RFC3339Nano)
	w.line = append(w.line, '\t')
}

// EndLine finishes the current line. It must be nonempty.
func (w *Writer) EndLine() (err error) {
	w.line[len(w.line)-1] = '\n'
	_, err = w.w.Write(w.line)
	w.line = w.line[:0]
	return
}

// Flush flushes all finished lines.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
