// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package keys

import (
	"context"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/awnumar/memguard"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/grailbio/decryptfilter/cloud/awssession"
	"github.com/grailbio/decryptfilter/codec"
	"github.com/grailbio/decryptfilter/crypto/blockcipher"
	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/log"
	"github.com/grailbio/decryptfilter/retry"
	"github.com/grailbio/decryptfilter/s3util"
)

// Defaults for Resolver's retry policy.
const (
	DefaultMaxRetries   = 7
	DefaultInitialWait  = 30 * time.Second
	DefaultMaxWait      = 480 * time.Second
	DefaultWaitMultiple = 2
)

// DefaultPolicy is the retry policy used to fetch remote key documents
// when Resolver.Policy is nil.
var DefaultPolicy = retry.MaxRetries(retry.Backoff(DefaultInitialWait, DefaultMaxWait, DefaultWaitMultiple), DefaultMaxRetries)

// NewS3Client returns an S3 client for the region and credentials of
// src. The SDK's own retryer is disabled: Resolver's policy is the only
// bound on attempts.
func NewS3Client(src Remote) (s3iface.S3API, error) {
	sess, err := awssession.NewWithStaticCredentials(src.Region, src.AccessKey, src.SecretKey,
		aws.NewConfig().WithMaxRetries(0))
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

// A Resolver turns a Source into validated Material. The zero Resolver
// fetches remote documents from S3 under DefaultPolicy.
type Resolver struct {
	// Policy bounds the attempts made to fetch a remote key document.
	Policy retry.Policy
	// Sleep waits between attempts. Nil uses a timer.
	Sleep func(ctx context.Context, wait time.Duration) error
	// NewClient returns the client used to fetch src. Nil uses
	// NewS3Client.
	NewClient func(src Remote) (s3iface.S3API, error)
}

// Resolve returns the material for alg described by src. All errors
// have kind Config, except that a remote fetch which keeps failing
// with transport or server errors returns a TooManyTries error whose
// cause is the last such failure, and a canceled fetch returns a
// Canceled error.
func (r Resolver) Resolve(ctx context.Context, alg blockcipher.Algorithm, src Source) (*Material, error) {
	switch src := src.(type) {
	case Inline:
		return finalize(alg, src.KeyHex, src.IVHex)
	case Remote:
		if err := src.Validate(); err != nil {
			return nil, err
		}
		keyHex, ivHex, err := r.fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		return finalize(alg, keyHex, ivHex)
	case nil:
		return nil, errors.E(errors.Config, "no key source")
	default:
		panic(fmt.Sprintf("keys.Resolve: unknown source %T", src))
	}
}

// finalize applies the IV policy of alg, decodes the hex strings and
// validates the result.
func finalize(alg blockcipher.Algorithm, keyHex, ivHex string) (*Material, error) {
	if keyHex == "" {
		return nil, errors.E(errors.Config, "Field 'key_hex' is required but not set")
	}
	switch {
	case alg.RequiresIV() && ivHex == "":
		return nil, errors.E(errors.Config, fmt.Sprintf("Algorithm '%s' requires initialization vector. Please generate one and set it to iv_hex option.", alg))
	case !alg.RequiresIV() && ivHex != "":
		log.Warning.Printf("Algorithm '%s' doesn't use initialization vector. iv_hex is ignored", alg)
		ivHex = ""
	}
	key, err := codec.Hex.Decode(keyHex)
	if err != nil {
		return nil, errors.E(errors.Config, "Field 'key_hex' is not valid hex", err)
	}
	defer memguard.WipeBytes(key)
	var iv []byte
	if ivHex != "" {
		iv, err = codec.Hex.Decode(ivHex)
		if err != nil {
			return nil, errors.E(errors.Config, "Field 'iv_hex' is not valid hex", err)
		}
		defer memguard.WipeBytes(iv)
	}
	return NewMaterial(alg, key, iv)
}

func (r Resolver) fetch(ctx context.Context, src Remote) (keyHex, ivHex string, err error) {
	newClient := r.NewClient
	if newClient == nil {
		newClient = NewS3Client
	}
	client, err := newClient(src)
	if err != nil {
		return "", "", errors.E(errors.Config, "creating S3 client for "+src.URL(), err)
	}
	policy := r.Policy
	if policy == nil {
		policy = DefaultPolicy
	}
	var (
		doc  []byte
		last s3util.Class
	)
	exec := retry.Executor{Policy: policy, Name: "fetch " + src.URL(), Sleep: r.Sleep}
	err = exec.Run(ctx, func(ctx context.Context, try int) error {
		var err error
		doc, err = getObject(ctx, client, src)
		if err != nil {
			last = s3util.Classify(err)
			return s3util.Annotate(err, src.URL())
		}
		return nil
	})
	defer memguard.WipeBytes(doc)
	switch {
	case err == nil:
	case errors.Is(errors.Canceled, err), errors.Is(errors.Timeout, err):
		return "", "", err
	case errors.Is(errors.TooManyTries, err) && last != s3util.ExpiredToken:
		return "", "", err
	default:
		return "", "", errors.E(errors.Config, malformedDocument, err)
	}
	return parseDocument(doc)
}

// getObject reads the object at src. The response body is closed
// before getObject returns.
func getObject(ctx context.Context, client s3iface.S3API, src Remote) (_ []byte, err error) {
	out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Path),
	})
	if err != nil {
		return nil, s3util.CtxErr(ctx, err)
	}
	defer errors.CleanUp(out.Body.Close, &err)
	b, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, s3util.CtxErr(ctx, err)
	}
	return b, nil
}
