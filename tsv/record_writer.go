// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tsv

import (
	"io"
	"strings"
	"time"

	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/record"
)

// RecordWriter writes records of a fixed schema, one per line. It
// implements record.Output. Finish flushes buffered lines; Close
// flushes as well but does not close the underlying writer.
type RecordWriter struct {
	w        *Writer
	schema   *record.Schema
	fields   fieldWriter
	finished bool
}

var _ record.Output = (*RecordWriter)(nil)

// NewRecordWriter returns a writer of schema's records to w.
func NewRecordWriter(w io.Writer, schema *record.Schema) *RecordWriter {
	tw := NewWriter(w)
	return &RecordWriter{w: tw, schema: schema, fields: fieldWriter{tw}}
}

// WriteHeader writes the schema header line. It must be called before
// any record is added.
func (w *RecordWriter) WriteHeader() error {
	if w.schema.Len() == 0 {
		_, err := w.w.w.WriteString("\n")
		return err
	}
	for _, col := range w.schema.Columns() {
		w.w.WriteString(col.Name + ":" + col.Type.String())
	}
	return w.w.EndLine()
}

// Add writes r as a line.
func (w *RecordWriter) Add(r record.Record) error {
	if w.finished {
		return errors.E(errors.Invalid, "tsv: add after finish")
	}
	if err := w.schema.Check(r); err != nil {
		return err
	}
	if w.schema.Len() == 0 {
		_, err := w.w.w.WriteString("\n")
		return err
	}
	if err := record.Visit(w.schema, r, w.fields); err != nil {
		return err
	}
	return w.w.EndLine()
}

// Finish flushes all written lines.
func (w *RecordWriter) Finish() error {
	w.finished = true
	return w.w.Flush()
}

// Close flushes all written lines.
func (w *RecordWriter) Close() error {
	w.finished = true
	return w.w.Flush()
}

type fieldWriter struct{ w *Writer }

func (f fieldWriter) Null(record.Column) error { f.w.WriteNull(); return nil }

func (f fieldWriter) Boolean(_ record.Column, v bool) error { f.w.WriteBool(v); return nil }

func (f fieldWriter) Long(_ record.Column, v int64) error { f.w.WriteInt64(v); return nil }

func (f fieldWriter) Double(_ record.Column, v float64) error { f.w.WriteFloat64(v); return nil }

func (f fieldWriter) String(_ record.Column, v string) error { f.w.WriteString(v); return nil }

func (f fieldWriter) Timestamp(_ record.Column, v time.Time) error { f.w.WriteTime(v); return nil }

func (f fieldWriter) JSON(_ record.Column, doc string) error {
	f.w.WriteString(strings.TrimSpace(doc))
	return nil
}
