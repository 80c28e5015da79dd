// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package record

import "github.com/grailbio/decryptfilter/errors"

// Output is a sink of records. Add appends one record; Finish signals
// that no more records follow and flushes buffered output; Close
// releases the output's resources and may be called without Finish
// when processing failed.
type Output interface {
	Add(Record) error
	Finish() error
	Close() error
}

// Buffer is an Output that keeps records in memory.
type Buffer struct {
	Records  []Record
	finished bool
	closed   bool
}

var _ Output = (*Buffer)(nil)

// Add implements Output.
func (b *Buffer) Add(r Record) error {
	if b.finished || b.closed {
		return errors.E(errors.Invalid, "record: add to finished buffer")
	}
	b.Records = append(b.Records, r)
	return nil
}

// Finish implements Output.
func (b *Buffer) Finish() error {
	b.finished = true
	return nil
}

// Close implements Output.
func (b *Buffer) Close() error {
	b.closed = true
	return nil
}

// Finished tells whether Finish was called.
func (b *Buffer) Finished() bool { return b.finished }
