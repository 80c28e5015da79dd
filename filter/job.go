// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package filter implements a record filter that decrypts selected text
// columns. A job is validated once, which resolves and checks all of
// its key material, and then opened any number of times to obtain
// independent transforms, one per worker.
package filter

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/grailbio/decryptfilter/codec"
	"github.com/grailbio/decryptfilter/crypto/blockcipher"
	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/keys"
	"github.com/grailbio/decryptfilter/log"
	"github.com/grailbio/decryptfilter/record"
)

// Options holds the collaborators that Validate uses to fetch remote key
// documents. The zero Options uses S3 and real time.
type Options struct {
	NewClient func(src keys.Remote) (s3iface.S3API, error)
	Sleep     func(ctx context.Context, wait time.Duration) error
}

// Job is a validated decrypt job.
type Job struct {
	alg      blockcipher.Algorithm
	codec    codec.Codec
	schema   *record.Schema
	targets  *Targets
	names    []string
	material *keys.Material
}

// Validate checks cfg against the input schema and resolves its key
// material, fetching it from S3 if so configured. Every error is a
// configuration error, except that a fetch that kept failing for
// environmental reasons returns a TooManyTries error, and a canceled
// fetch returns a Canceled error. No record is seen before Validate
// succeeds.
func Validate(ctx context.Context, cfg *Config, schema *record.Schema, opts Options) (*Job, error) {
	if cfg.Algorithm == "" {
		return nil, errors.E(errors.Config, "Field 'algorithm' is required but not set")
	}
	alg, err := blockcipher.Lookup(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	encoding, err := cfg.Encoding()
	if err != nil {
		return nil, err
	}
	c, err := codec.Lookup(encoding)
	if err != nil {
		return nil, err
	}
	if cfg.ColumnNames == nil {
		return nil, errors.E(errors.Config, "Field 'column_names' is required but not set")
	}
	targets, err := NewTargets(schema, cfg.ColumnNames)
	if err != nil {
		return nil, err
	}
	policy, err := cfg.RetryPolicy()
	if err != nil {
		return nil, err
	}
	src, err := cfg.Source()
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("validating %s job on %d columns with %s", alg, targets.Len(), src.Describe())
	resolver := keys.Resolver{Policy: policy, Sleep: opts.Sleep, NewClient: opts.NewClient}
	material, err := resolver.Resolve(ctx, alg, src)
	if err != nil {
		return nil, err
	}
	return &Job{
		alg:      alg,
		codec:    c,
		schema:   schema,
		targets:  targets,
		names:    append([]string(nil), cfg.ColumnNames...),
		material: material,
	}, nil
}

// Algorithm returns the job's algorithm.
func (j *Job) Algorithm() blockcipher.Algorithm { return j.alg }

// Codec returns the encoding of the ciphertext.
func (j *Job) Codec() codec.Codec { return j.codec }

// Schema returns the schema of both input and output records.
func (j *Job) Schema() *record.Schema { return j.schema }

// Targets returns the columns that are decrypted.
func (j *Job) Targets() *Targets { return j.targets }

// Open returns a new transform that writes to out. Each transform has
// its own cipher state; transforms of the same job may be used
// concurrently.
func (j *Job) Open(out record.Output) (*Transform, error) {
	d, err := j.material.Decrypter()
	if err != nil {
		return nil, err
	}
	return newTransform(j, d, out), nil
}

// Close destroys the job's key material. Transforms that are already
// open keep working; Open fails afterwards.
func (j *Job) Close() {
	j.material.Destroy()
}

// Task is the resolved form of a job. It holds key material in the
// clear and must be handled as a secret.
type Task struct {
	Algorithm   string   `yaml:"algorithm"`
	Encoding    string   `yaml:"output_encoding"`
	KeyHex      string   `yaml:"key_hex"`
	IVHex       string   `yaml:"iv_hex,omitempty"`
	ColumnNames []string `yaml:"column_names"`
}

// Task returns the job's resolved task, from which an equivalent job
// can be opened without access to the original key source.
func (j *Job) Task() (Task, error) {
	keyHex, ivHex, err := j.material.Hex()
	if err != nil {
		return Task{}, err
	}
	return Task{
		Algorithm:   j.alg.String(),
		Encoding:    j.codec.String(),
		KeyHex:      keyHex,
		IVHex:       ivHex,
		ColumnNames: append([]string(nil), j.names...),
	}, nil
}

// OpenTask validates task against schema and returns its job.
func OpenTask(task Task, schema *record.Schema) (*Job, error) {
	cfg := DefaultConfig()
	cfg.Algorithm = task.Algorithm
	cfg.OutputEncoding = task.Encoding
	cfg.KeyHex = task.KeyHex
	cfg.IVHex = task.IVHex
	cfg.ColumnNames = task.ColumnNames
	if cfg.ColumnNames == nil {
		cfg.ColumnNames = []string{}
	}
	return Validate(context.Background(), &cfg, schema, Options{})
}
