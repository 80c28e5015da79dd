// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tsv

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/record"
)

// MaxLineLen is the longest line a RecordReader accepts.
const MaxLineLen = 64 << 20

// RecordReader reads records of a fixed schema, one per line. Thread
// compatible.
type RecordReader struct {
	scanner *bufio.Scanner
	schema  *record.Schema
	// nLine is the number of lines read so far, including the header.
	nLine int
}

// NewRecordReader returns a reader of schema's records from r. The input
// must not have a header line.
func NewRecordReader(r io.Reader, schema *record.Schema) *RecordReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64<<10), MaxLineLen)
	return &RecordReader{scanner: s, schema: schema}
}

// ReadSchemaHeader reads the schema header line from r. It returns the
// header's schema and a reader positioned at the first record.
func ReadSchemaHeader(r io.Reader) (*record.Schema, *RecordReader, error) {
	rr := NewRecordReader(r, nil)
	line, err := rr.next()
	if err == io.EOF {
		return nil, nil, errors.E(errors.Data, "empty file: could not read the header row")
	}
	if err != nil {
		return nil, nil, err
	}
	var cols []record.Column
	if line != "" {
		for i, field := range strings.Split(line, "\t") {
			name, err := unescape(field)
			if err != nil {
				return nil, nil, rr.wrapError(err, i, "")
			}
			colon := strings.LastIndexByte(name, ':')
			if colon < 0 {
				return nil, nil, rr.wrapError(fmt.Errorf("header field %q is not of the form name:type", name), i, "")
			}
			typ, err := record.ParseType(name[colon+1:])
			if err != nil {
				return nil, nil, rr.wrapError(err, i, name[:colon])
			}
			cols = append(cols, record.Column{Name: name[:colon], Type: typ})
		}
	}
	schema, err := record.NewSchema(cols...)
	if err != nil {
		return nil, nil, errors.E(errors.Data, "tsv header", err)
	}
	rr.schema = schema
	return schema, rr, nil
}

// Schema returns the schema of the records read.
func (r *RecordReader) Schema() *record.Schema { return r.schema }

func (r *RecordReader) next() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", errors.E(errors.Data, fmt.Sprintf("line %d", r.nLine+1), err)
		}
		return "", io.EOF
	}
	r.nLine++
	return strings.TrimSuffix(r.scanner.Text(), "\r"), nil
}

func (r *RecordReader) wrapError(err error, col int, name string) error {
	if name == "" {
		return errors.E(errors.Data, fmt.Sprintf("line %d, column %d", r.nLine, col), err)
	}
	return errors.E(errors.Data, fmt.Sprintf("line %d, column %d, '%s'", r.nLine, col, name), err)
}

// Read reads the next record. It returns io.EOF at the end of input.
func (r *RecordReader) Read() (record.Record, error) {
	line, err := r.next()
	if err != nil {
		return nil, err
	}
	n := r.schema.Len()
	if n == 0 {
		if line != "" {
			return nil, r.wrapError(fmt.Errorf("expected an empty line"), 0, "")
		}
		return record.Record{}, nil
	}
	fields := strings.Split(line, "\t")
	if len(fields) != n {
		return nil, errors.E(errors.Data, fmt.Sprintf("line %d: row has %d columns, want %d", r.nLine, len(fields), n))
	}
	rec := make(record.Record, n)
	for i, field := range fields {
		col := r.schema.Column(i)
		if rec[i], err = parseField(col.Type, field); err != nil {
			return nil, r.wrapError(err, i, col.Name)
		}
	}
	return rec, nil
}

// ReadBatch reads up to n records. It returns io.EOF only when no
// record was read.
func (r *RecordReader) ReadBatch(n int) ([]record.Record, error) {
	batch := make([]record.Record, 0, n)
	for len(batch) < n {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, rec)
	}
	if len(batch) == 0 && n > 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func parseField(typ record.Type, field string) (record.Value, error) {
	if field == Null {
		return record.Null(typ), nil
	}
	s, err := unescape(field)
	if err != nil {
		return record.Value{}, err
	}
	switch typ {
	case record.Boolean:
		switch s {
		case "Y", "yes":
			return record.BoolValue(true), nil
		case "N", "no":
			return record.BoolValue(false), nil
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			return record.Value{}, err
		}
		return record.BoolValue(v), nil
	case record.Long:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return record.Value{}, err
		}
		return record.LongValue(v), nil
	case record.Double:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return record.Value{}, err
		}
		return record.DoubleValue(v), nil
	case record.String:
		return record.StringValue(s), nil
	case record.Timestamp:
		v, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return record.Value{}, err
		}
		return record.TimestampValue(v), nil
	case record.JSON:
		if !json.Valid([]byte(s)) {
			return record.Value{}, fmt.Errorf("invalid JSON text %q", s)
		}
		return record.JSONValue(s), nil
	}
	return record.Value{}, fmt.Errorf("unsupported type %v", typ)
}

// unescape reverses the escaping done by Writer.WriteString.
func unescape(field string) (string, error) {
	i := strings.IndexByte(field, '\\')
	if i < 0 {
		return field, nil
	}
	var b strings.Builder
	b.Grow(len(field))
	b.WriteString(field[:i])
	for ; i < len(field); i++ {
		c := field[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 == len(field) {
			return "", fmt.Errorf("trailing backslash in %q", field)
		}
		i++
		switch field[i] {
		case '\\':
			b.WriteByte('\\')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			return "", fmt.Errorf("invalid escape \\%c in %q", field[i], field)
		}
	}
	return b.String(), nil
}
