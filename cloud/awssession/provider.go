// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package awssession

import (
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/grailbio/decryptfilter/errors"
)

// ProviderName is reported as the credentials.Value.ProviderName of
// credentials returned by Provider.
const ProviderName = "DecryptFilterStaticProvider"

// Provider implements the aws/credentials.Provider interface using an
// access key pair taken from job configuration. The pair never
// expires.
type Provider struct {
	AccessKey string
	SecretKey string
}

var _ credentials.Provider = (*Provider)(nil)

// Retrieve implements the github.com/aws/aws-sdk-go/aws/credentials.Provider
// interface.
func (p *Provider) Retrieve() (credentials.Value, error) {
	switch {
	case p.AccessKey == "":
		return credentials.Value{ProviderName: ProviderName}, errors.E(errors.Config, "Field 'access_key' is required but not set")
	case p.SecretKey == "":
		return credentials.Value{ProviderName: ProviderName}, errors.E(errors.Config, "Field 'secret_key' is required but not set")
	}
	return credentials.Value{
		AccessKeyID:     p.AccessKey,
		SecretAccessKey: p.SecretKey,
		ProviderName:    ProviderName,
	}, nil
}

// IsExpired implements the github.com/aws/aws-sdk-go/aws/credentials.Provider
// interface.
func (p *Provider) IsExpired() bool {
	return false
}
