// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package record defines the typed records that flow between a batch
// source, the decrypt transform and a batch sink.
package record

import (
	"fmt"

	"github.com/grailbio/decryptfilter/errors"
)

// Type is the declared type of a column.
type Type int

const (
	Boolean Type = iota + 1
	Long
	Double
	String
	Timestamp
	JSON
	maxType
)

var typeNames = [...]string{
	Boolean:   "boolean",
	Long:      "long",
	Double:    "double",
	String:    "string",
	Timestamp: "timestamp",
	JSON:      "json",
}

func (t Type) String() string {
	if t < Boolean || t >= maxType {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType returns the type named s, as printed by Type.String.
func ParseType(s string) (Type, error) {
	for t := Boolean; t < maxType; t++ {
		if typeNames[t] == s {
			return t, nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown column type '%s'", s))
}

// Column is a named, typed position in a schema.
type Column struct {
	Index int
	Name  string
	Type  Type
}

// Schema is an ordered list of columns with unique names.
type Schema struct {
	columns []Column
	byName  map[string]int
}

// NewSchema returns a schema with the given columns. Column indexes
// are assigned from the order of cols.
func NewSchema(cols ...Column) (*Schema, error) {
	s := &Schema{
		columns: make([]Column, len(cols)),
		byName:  make(map[string]int, len(cols)),
	}
	for i, col := range cols {
		if col.Type < Boolean || col.Type >= maxType {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("column '%s' has invalid type %v", col.Name, col.Type))
		}
		if _, ok := s.byName[col.Name]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("duplicate column '%s'", col.Name))
		}
		col.Index = i
		s.columns[i] = col
		s.byName[col.Name] = i
	}
	return s, nil
}

// MustNewSchema is NewSchema that panics on error.
func MustNewSchema(cols ...Column) *Schema {
	s, err := NewSchema(cols...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Column returns the column at index i.
func (s *Schema) Column(i int) Column { return s.columns[i] }

// Columns returns the columns in order.
func (s *Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// Lookup returns the column named name.
func (s *Schema) Lookup(name string) (Column, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// Check verifies that r has one value per column and that every value
// has its column's type.
func (s *Schema) Check(r Record) error {
	if len(r) != len(s.columns) {
		return errors.E(errors.Invalid, fmt.Sprintf("record has %d fields, schema has %d columns", len(r), len(s.columns)))
	}
	for i, v := range r {
		if v.Type() != s.columns[i].Type {
			return errors.E(errors.Invalid, fmt.Sprintf("column '%s': value of type %v, want %v", s.columns[i].Name, v.Type(), s.columns[i].Type))
		}
	}
	return nil
}
