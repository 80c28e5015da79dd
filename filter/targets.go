// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package filter

import (
	"fmt"

	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/log"
	"github.com/grailbio/decryptfilter/record"
	"github.com/willf/bitset"
)

// Targets is the set of column positions to decrypt.
type Targets struct {
	set  *bitset.BitSet
	cols []record.Column
}

// NewTargets resolves names against schema. It fails on the first name
// that is not a column of schema. Columns that are not of type string
// are kept in the set but will be passed through unchanged.
func NewTargets(schema *record.Schema, names []string) (*Targets, error) {
	t := &Targets{set: bitset.New(uint(schema.Len()))}
	for _, name := range names {
		col, ok := schema.Lookup(name)
		if !ok {
			return nil, errors.E(errors.Config, fmt.Sprintf("Column '%s' is not found", name))
		}
		if t.set.Test(uint(col.Index)) {
			continue
		}
		if col.Type != record.String {
			log.Warning.Printf("Column '%s' is of type %v; only string columns are decrypted", col.Name, col.Type)
		}
		t.set.Set(uint(col.Index))
		t.cols = append(t.cols, col)
	}
	return t, nil
}

// Contains tells whether the column at index i is a target.
func (t *Targets) Contains(i int) bool {
	return i >= 0 && t.set.Test(uint(i))
}

// Len returns the number of distinct target columns.
func (t *Targets) Len() int { return len(t.cols) }

// Columns returns the target columns in configuration order.
func (t *Targets) Columns() []record.Column {
	return append([]record.Column(nil), t.cols...)
}
