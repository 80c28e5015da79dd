// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package filter

import (
	"fmt"
	"strings"

	"github.com/grailbio/decryptfilter/codec"
	"github.com/grailbio/decryptfilter/crypto/blockcipher"
	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/record"
)

// Transform decrypts the target columns of each record it is given and
// forwards the result to its output. Non-target columns, columns that
// are not strings, and nulls are copied unchanged. A Transform is not
// safe for concurrent use.
type Transform struct {
	schema  *record.Schema
	out     record.Output
	fields  fieldDecrypter
	records int
	closed  bool
}

// fieldDecrypter copies each field into a builder, decrypting target
// string fields on the way.
type fieldDecrypter struct {
	*record.Builder
	codec   codec.Codec
	dec     *blockcipher.Decrypter
	targets *Targets
}

var _ record.Visitor = fieldDecrypter{}

func newTransform(j *Job, d *blockcipher.Decrypter, out record.Output) *Transform {
	return &Transform{
		schema: j.schema,
		out:    out,
		fields: fieldDecrypter{
			Builder: record.NewBuilder(j.schema),
			codec:   j.codec,
			dec:     d,
			targets: j.targets,
		},
	}
}

// String decrypts v if col is a target.
func (f fieldDecrypter) String(col record.Column, v string) error {
	if !f.targets.Contains(col.Index) {
		return f.Builder.String(col, v)
	}
	ciphertext, err := f.codec.Decode(v)
	if err != nil {
		return errors.E(errors.Data, fmt.Sprintf("column '%s': cannot decode %s text", col.Name, f.codec), err)
	}
	plaintext, err := f.dec.Decrypt(ciphertext)
	if err != nil {
		return errors.E(errors.Data, fmt.Sprintf("column '%s'", col.Name), err)
	}
	return f.Builder.String(col, strings.ToValidUTF8(string(plaintext), "\uFFFD"))
}

// Apply returns the transformed copy of r.
func (t *Transform) Apply(r record.Record) (record.Record, error) {
	if err := t.schema.Check(r); err != nil {
		return nil, err
	}
	if err := record.Visit(t.schema, r, t.fields); err != nil {
		return nil, err
	}
	return t.fields.Record()
}

// Add transforms every record of batch and adds it to the output. Add
// stops at the first failing record; the records before it have
// already been added.
func (t *Transform) Add(batch []record.Record) error {
	if t.closed {
		return errors.E(errors.Invalid, "add to closed transform")
	}
	for _, r := range batch {
		out, err := t.Apply(r)
		if err != nil {
			return errors.E(fmt.Sprintf("record %d", t.records), err)
		}
		if err := t.out.Add(out); err != nil {
			return err
		}
		t.records++
	}
	return nil
}

// Records returns the number of records added so far.
func (t *Transform) Records() int { return t.records }

// Finish signals the end of input to the output.
func (t *Transform) Finish() error {
	return t.out.Finish()
}

// Close closes the output. Close is idempotent.
func (t *Transform) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.out.Close()
}
