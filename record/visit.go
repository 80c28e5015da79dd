// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package record

import (
	"fmt"
	"time"

	"github.com/grailbio/decryptfilter/errors"
)

// A Visitor receives the fields of a record one at a time, in column
// order. It has one method per column type; adding a type adds a
// method, so that every Visitor must handle it.
type Visitor interface {
	Null(col Column) error
	Boolean(col Column, v bool) error
	Long(col Column, v int64) error
	Double(col Column, v float64) error
	String(col Column, v string) error
	Timestamp(col Column, v time.Time) error
	JSON(col Column, doc string) error
}

// Record is a sequence of values, one per column of its schema.
type Record []Value

// Visit calls the visitor method matching each field of r. Visit
// stops at the first error. r must match schema (see Schema.Check).
func Visit(schema *Schema, r Record, v Visitor) error {
	for i, val := range r {
		if err := visitValue(schema.Column(i), val, v); err != nil {
			return err
		}
	}
	return nil
}

func visitValue(col Column, val Value, v Visitor) error {
	if val.null {
		return v.Null(col)
	}
	switch val.typ {
	case Boolean:
		return v.Boolean(col, val.b)
	case Long:
		return v.Long(col, val.i)
	case Double:
		return v.Double(col, val.f)
	case String:
		return v.String(col, val.s)
	case Timestamp:
		return v.Timestamp(col, val.t)
	case JSON:
		return v.JSON(col, val.s)
	}
	panic(fmt.Sprintf("record: invalid type %v in column '%s'", val.typ, col.Name))
}

// Builder is a Visitor that assembles a record field by field, in the
// manner of a page builder.
type Builder struct {
	schema *Schema
	fields Record
	set    []bool
}

var _ Visitor = (*Builder)(nil)

// NewBuilder returns a builder of records of schema.
func NewBuilder(schema *Schema) *Builder {
	return &Builder{
		schema: schema,
		fields: make(Record, schema.Len()),
		set:    make([]bool, schema.Len()),
	}
}

func (b *Builder) put(col Column, v Value) error {
	if want := b.schema.Column(col.Index).Type; v.typ != want {
		return errors.E(errors.Invalid, fmt.Sprintf("record: column '%s': cannot set %v value on %v column", col.Name, v.typ, want))
	}
	b.fields[col.Index] = v
	b.set[col.Index] = true
	return nil
}

// Null sets column col to null.
func (b *Builder) Null(col Column) error {
	return b.put(col, Null(b.schema.Column(col.Index).Type))
}

// Boolean sets a Boolean column.
func (b *Builder) Boolean(col Column, v bool) error { return b.put(col, BoolValue(v)) }

// Long sets a Long column.
func (b *Builder) Long(col Column, v int64) error { return b.put(col, LongValue(v)) }

// Double sets a Double column.
func (b *Builder) Double(col Column, v float64) error { return b.put(col, DoubleValue(v)) }

// String sets a String column.
func (b *Builder) String(col Column, v string) error { return b.put(col, StringValue(v)) }

// Timestamp sets a Timestamp column.
func (b *Builder) Timestamp(col Column, v time.Time) error { return b.put(col, TimestampValue(v)) }

// JSON sets a JSON column.
func (b *Builder) JSON(col Column, doc string) error { return b.put(col, JSONValue(doc)) }

// Record returns the assembled record and resets the builder. Every
// column must have been set.
func (b *Builder) Record() (Record, error) {
	for i, ok := range b.set {
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("record: column '%s' was not set", b.schema.Column(i).Name))
		}
	}
	r := b.fields
	b.fields = make(Record, b.schema.Len())
	for i := range b.set {
		b.set[i] = false
	}
	return r, nil
}
