// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package retry contains utilities for implementing retry logic: retry
// policies, which decide whether and for how long to wait before the
// next attempt, and an Executor, which drives an operation through a
// policy and interprets each failure's severity.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/log"
)

// A Policy is an interface that abstracts retry policies. Typically
// users will not call methods directly on a Policy but rather use
// an Executor or the package function retry.Wait.
type Policy interface {
	// Retry tells whether the a new retry should be attempted,
	// and after how long. The retry number is zero-based: Retry(0)
	// is consulted after the first attempt failed.
	Retry(retry int) (bool, time.Duration)
}

// Wait queries the provided policy at the provided retry number and
// sleeps until the next try should be attempted. Wait returns an
// error if the policy prohibits further tries or if the context was
// canceled, or if its deadline would run out while waiting for the
// next try.
func Wait(ctx context.Context, policy Policy, retry int) error {
	keepgoing, wait := policy.Retry(retry)
	if !keepgoing {
		return errors.E(errors.TooManyTries, fmt.Sprintf("gave up after %d tries", retry+1))
	}
	return sleep(ctx, wait)
}

func sleep(ctx context.Context, wait time.Duration) error {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
		return errors.E(errors.Timeout, "ran out of time while waiting for retry")
	}
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type backoff struct {
	factor       float64
	initial, max time.Duration
}

// Backoff returns a Policy that initially waits for the amount of
// time specified by parameter initial; on each try this value is
// multiplied by the provided factor, up to the max duration. The
// sequence of waits is non-decreasing for factor >= 1.
func Backoff(initial, max time.Duration, factor float64) Policy {
	return &backoff{
		initial: initial,
		max:     max,
		factor:  factor,
	}
}

func (b *backoff) Retry(retries int) (bool, time.Duration) {
	// Compute in floating point so that large retry numbers saturate at
	// max instead of overflowing time.Duration.
	wait := float64(b.initial) * math.Pow(b.factor, float64(retries))
	if math.IsInf(wait, 0) || math.IsNaN(wait) || wait > float64(b.max) {
		return true, b.max
	}
	return true, time.Duration(wait)
}

type maxretries struct {
	policy Policy
	max    int
}

// MaxRetries returns a policy that permits at most n retries, that is,
// n+1 attempts in total. The provided policy is invoked when the
// current number of retries is within the permissible limit. If policy
// is nil, the returned policy will permit an immediate retry when the
// number of retries is within the allowable limits.
func MaxRetries(policy Policy, n int) Policy {
	if n < 0 {
		panic("retry.MaxRetries: n < 0")
	}
	return &maxretries{policy, n}
}

// MaxTries returns a policy that enforces a maximum number of
// attempts. It is MaxRetries(policy, n-1).
func MaxTries(policy Policy, n int) Policy {
	if n < 1 {
		panic("retry.MaxTries: n < 1")
	}
	return MaxRetries(policy, n-1)
}

func (m *maxretries) Retry(retries int) (bool, time.Duration) {
	if retries >= m.max {
		return false, time.Duration(0)
	}
	if m.policy != nil {
		return m.policy.Retry(retries)
	}
	return true, time.Duration(0)
}

// An Executor runs an operation under a retry policy. Failures whose
// severity is Temporary or Retriable (see errors.IsTemporary) are
// retried; any other failure is returned immediately.
type Executor struct {
	// Policy decides whether and when to retry.
	Policy Policy
	// Name describes the operation in log and error messages.
	Name string
	// Sleep waits for the given duration, returning early with an
	// error if ctx is done. Nil uses a timer. Tests substitute a
	// function that records the duration and returns immediately.
	Sleep func(ctx context.Context, wait time.Duration) error
}

// Run calls fn with a zero-based attempt number until it succeeds,
// returns a non-temporary error, or the policy gives up. When the
// policy gives up, Run returns a fatal TooManyTries error whose cause
// is the last error returned by fn, so that callers can inspect the
// original failure.
func (e Executor) Run(ctx context.Context, fn func(ctx context.Context, try int) error) error {
	wait := e.Sleep
	if wait == nil {
		wait = sleep
	}
	for try := 0; ; try++ {
		err := fn(ctx, try)
		if err == nil {
			return nil
		}
		if !errors.IsTemporary(err) {
			return err
		}
		keepgoing, d := e.Policy.Retry(try)
		if !keepgoing {
			return errors.E(errors.TooManyTries, errors.Fatal,
				fmt.Sprintf("%s: gave up after %d tries", e.Name, try+1), err)
		}
		log.Warning.Printf("retry %s in %v (attempt %d failed): %v", e.Name, d, try+1, err)
		if werr := wait(ctx, d); werr != nil {
			return errors.E(werr, fmt.Sprintf("%s: interrupted after %d tries, last error: %v", e.Name, try+1, err))
		}
	}
}
