// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package filter

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"time"

	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/keys"
	"github.com/grailbio/decryptfilter/retry"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a decrypt job, as read from YAML.
type Config struct {
	// Type is the plugin name used by hosts that select filters by
	// type. It is ignored.
	Type string `yaml:"type,omitempty"`

	Algorithm string `yaml:"algorithm"`
	// OutputEncoding is the encoding of the ciphertext in the target
	// columns. InputEncoding is a synonym; when both are set they must
	// agree. Empty means base64.
	OutputEncoding string `yaml:"output_encoding,omitempty"`
	InputEncoding  string `yaml:"input_encoding,omitempty"`

	// KeyType is "inline" or "s3", in any case.
	KeyType   string     `yaml:"key_type"`
	KeyHex    string     `yaml:"key_hex,omitempty"`
	IVHex     string     `yaml:"iv_hex,omitempty"`
	AWSParams *AWSParams `yaml:"aws_params,omitempty"`

	ColumnNames []string `yaml:"column_names"`

	MaximumRetries             int `yaml:"maximum_retries"`
	InitialRetryIntervalMillis int `yaml:"initial_retry_interval_millis"`
	MaximumRetryIntervalMillis int `yaml:"maximum_retry_interval_millis"`
}

// AWSParams locates a key document in S3.
type AWSParams struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	FullPath  string `yaml:"full_path"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	return Config{
		KeyType:                    "inline",
		MaximumRetries:             keys.DefaultMaxRetries,
		InitialRetryIntervalMillis: int(keys.DefaultInitialWait / time.Millisecond),
		MaximumRetryIntervalMillis: int(keys.DefaultMaxWait / time.Millisecond),
	}
}

// ParseConfig decodes a YAML configuration on top of DefaultConfig.
// Unknown keys are rejected.
func ParseConfig(b []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if err == io.EOF {
			return nil, errors.E(errors.Config, "empty configuration")
		}
		return nil, errors.E(errors.Config, "parsing configuration", err)
	}
	return &cfg, nil
}

// LoadConfig reads and parses the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.E(errors.Config, "reading configuration", err)
	}
	cfg, err := ParseConfig(b)
	if err != nil {
		return nil, errors.E(path, err)
	}
	return cfg, nil
}

// Encoding returns the configured ciphertext encoding name.
func (c *Config) Encoding() (string, error) {
	out, in := c.OutputEncoding, c.InputEncoding
	switch {
	case out != "" && in != "" && out != in:
		return "", errors.E(errors.Config, fmt.Sprintf("Fields 'output_encoding' and 'input_encoding' disagree: '%s' vs '%s'", out, in))
	case out != "":
		return out, nil
	case in != "":
		return in, nil
	}
	return "base64", nil
}

// KeyType selects where key material comes from.
type KeyType int

const (
	// KeyInline takes key_hex and iv_hex from the configuration.
	KeyInline KeyType = iota + 1
	// KeyS3 fetches a key document described by aws_params.
	KeyS3
)

func (k KeyType) String() string {
	switch k {
	case KeyInline:
		return "inline"
	case KeyS3:
		return "s3"
	}
	return fmt.Sprintf("KeyType(%d)", int(k))
}

// ParseKeyType parses s case-insensitively.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(s) {
	case "inline":
		return KeyInline, nil
	case "s3":
		return KeyS3, nil
	}
	return 0, errors.E(errors.Config, fmt.Sprintf("Key type [%s] is not supported", s))
}

// Source returns the key source described by the configuration.
func (c *Config) Source() (keys.Source, error) {
	kt, err := ParseKeyType(c.KeyType)
	if err != nil {
		return nil, err
	}
	switch kt {
	case KeyInline:
		return keys.Inline{KeyHex: c.KeyHex, IVHex: c.IVHex}, nil
	case KeyS3:
		if c.AWSParams == nil {
			return nil, errors.E(errors.Config, "AWS Params are required for S3 Key type")
		}
		p := c.AWSParams
		src := keys.Remote{
			Region:    p.Region,
			AccessKey: p.AccessKey,
			SecretKey: p.SecretKey,
			Bucket:    p.Bucket,
			Path:      p.FullPath,
		}
		if err := src.Validate(); err != nil {
			return nil, err
		}
		return src, nil
	}
	panic(kt)
}

// RetryPolicy returns the policy for fetching remote key documents:
// exponential backoff, doubling from the initial interval up to the
// maximum interval, for at most MaximumRetries retries.
func (c *Config) RetryPolicy() (retry.Policy, error) {
	switch {
	case c.MaximumRetries < 0:
		return nil, errors.E(errors.Config, fmt.Sprintf("Field 'maximum_retries' must not be negative, got %d", c.MaximumRetries))
	case c.InitialRetryIntervalMillis < 0:
		return nil, errors.E(errors.Config, fmt.Sprintf("Field 'initial_retry_interval_millis' must not be negative, got %d", c.InitialRetryIntervalMillis))
	case c.MaximumRetryIntervalMillis < c.InitialRetryIntervalMillis:
		return nil, errors.E(errors.Config, fmt.Sprintf("Field 'maximum_retry_interval_millis' (%d) must be at least 'initial_retry_interval_millis' (%d)",
			c.MaximumRetryIntervalMillis, c.InitialRetryIntervalMillis))
	}
	initial := time.Duration(c.InitialRetryIntervalMillis) * time.Millisecond
	max := time.Duration(c.MaximumRetryIntervalMillis) * time.Millisecond
	return retry.MaxRetries(retry.Backoff(initial, max, keys.DefaultWaitMultiple), c.MaximumRetries), nil
}
