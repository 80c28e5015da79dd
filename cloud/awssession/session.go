// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package awssession provides a simple way to obtain an AWS
// session.Session from a static access key pair and an explicit
// region.
package awssession

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/endpoints"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/decryptfilter/errors"
)

// ValidRegion tells whether region names a region of a known AWS
// partition, or matches the region naming scheme of one.
func ValidRegion(region string) bool {
	if region == "" {
		return false
	}
	_, ok := endpoints.PartitionForRegion(endpoints.DefaultPartitions(), region)
	return ok
}

// NewWithStaticCredentials creates an AWS session for region using the
// given access key pair. The region is used exactly as given; an
// unknown region is a configuration error. Additional configs are
// applied after the credentials and region, so that tests may point the
// session at another endpoint.
func NewWithStaticCredentials(region, accessKey, secretKey string, cfgs ...*aws.Config) (*session.Session, error) {
	return NewWithProvider(region, &Provider{AccessKey: accessKey, SecretKey: secretKey}, cfgs...)
}

// NewWithProvider creates an AWS session for region using a provider.
func NewWithProvider(region string, provider credentials.Provider, cfgs ...*aws.Config) (*session.Session, error) {
	if !ValidRegion(region) {
		return nil, errors.E(errors.Config, fmt.Sprintf("unknown AWS region '%s'", region))
	}
	creds := credentials.NewCredentials(provider)
	cfg := aws.NewConfig().WithCredentials(creds).WithRegion(region)
	cfgs = append([]*aws.Config{cfg}, cfgs...)
	sess, err := session.NewSession(cfgs...)
	if err != nil {
		return nil, errors.E(errors.Config, "creating AWS session", err)
	}
	return sess, nil
}
