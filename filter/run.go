// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package filter

import (
	"context"
	"fmt"

	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/log"
	"github.com/grailbio/decryptfilter/record"
	"golang.org/x/sync/errgroup"
)

// RunBatches transforms batches using up to parallelism workers, each
// with its own transform, and returns the transformed batches in input
// order. The first error cancels the remaining work.
func RunBatches(ctx context.Context, job *Job, batches [][]record.Record, parallelism int) ([][]record.Record, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(batches) {
		parallelism = len(batches)
	}
	results := make([][]record.Record, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < parallelism; w++ {
		w := w
		g.Go(func() (err error) {
			var buf record.Buffer
			t, err := job.Open(&buf)
			if err != nil {
				return err
			}
			defer errors.CleanUp(t.Close, &err)
			for i := w; i < len(batches); i += parallelism {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := len(buf.Records)
				if err := t.Add(batches[i]); err != nil {
					return errors.E(fmt.Sprintf("batch %d", i), err)
				}
				n := len(buf.Records)
				results[i] = buf.Records[start:n:n]
			}
			log.Debug.Printf("worker %d: transformed %d records", w, t.Records())
			return t.Finish()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
