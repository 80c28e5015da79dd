// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package keys

import (
	"fmt"
	"strings"

	"github.com/grailbio/decryptfilter/errors"
)

// A Source tells where the key and IV of a job come from. It is
// either Inline or Remote.
type Source interface {
	// Describe returns a description of the source that is safe to
	// log: it never includes key material or credentials.
	Describe() string

	source()
}

// Inline is key material given directly in the job configuration.
type Inline struct {
	KeyHex string
	// IVHex is empty if no IV was configured.
	IVHex string
}

// Describe implements Source.
func (Inline) Describe() string { return "inline key" }

func (Inline) source() {}

// Remote is a key document stored in S3.
type Remote struct {
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Path is the object key of the document within Bucket.
	Path string
}

// Describe implements Source.
func (r Remote) Describe() string { return r.URL() }

func (Remote) source() {}

// URL returns the s3:// URL of the key document.
func (r Remote) URL() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, strings.TrimPrefix(r.Path, "/"))
}

// Validate checks that every parameter of r is set. The error names
// each missing parameter by its configuration key.
func (r Remote) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"region", r.Region},
		{"access_key", r.AccessKey},
		{"secret_key", r.SecretKey},
		{"bucket", r.Bucket},
		{"full_path", r.Path},
	} {
		if f.value == "" {
			missing = append(missing, fmt.Sprintf("Field '%s' is required but not set", f.name))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.E(errors.Config, strings.Join(missing, "; "))
}
