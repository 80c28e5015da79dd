// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package keys

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/grailbio/decryptfilter/crypto/blockcipher"
	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/log"
	"github.com/grailbio/decryptfilter/retry"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/s3test"
)

const (
	testKey = "098F6BCD4621D373CADE4E832627B4F60A9172716AE6428409885B8B829CCB05"
	testIV  = "C9DD4BB33B827EB1FBA1B16A0074D460"
	testDoc = "key_hex: " + testKey + "\niv_hex: " + testIV + "\n"
)

var testRemote = Remote{
	Region:    "us-east-1",
	AccessKey: "AKID",
	SecretKey: "SECRET",
	Bucket:    "b",
	Path:      "keys/key.yml",
}

// capture records log output.
type capture struct {
	mu       sync.Mutex
	messages map[log.Level][]string
}

func captureLog(t *testing.T) *capture {
	c := &capture{messages: make(map[log.Level][]string)}
	old := log.SetOutputter(c)
	t.Cleanup(func() { log.SetOutputter(old) })
	return c
}

func (c *capture) Level() log.Level { return log.Debug }

func (c *capture) Output(calldepth int, level log.Level, s string) error {
	c.mu.Lock()
	c.messages[level] = append(c.messages[level], s)
	c.mu.Unlock()
	return nil
}

func (c *capture) at(level log.Level) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages[level]...)
}

func decryptSecret(t *testing.T, m *Material, ciphertext string) string {
	t.Helper()
	d, err := m.Decrypter()
	assert.NoError(t, err)
	ct, err := hex.DecodeString(ciphertext)
	assert.NoError(t, err)
	p, err := d.Decrypt(ct)
	assert.NoError(t, err)
	return string(p)
}

func TestInline(t *testing.T) {
	var r Resolver
	ctx := context.Background()

	m, err := r.Resolve(ctx, blockcipher.AES256CBC, Inline{KeyHex: testKey, IVHex: testIV})
	assert.NoError(t, err)
	expect.True(t, m.HasIV())
	expect.EQ(t, decryptSecret(t, m, "814CF30BE9C94812DB3D30332656DB30"), "secret")

	// Lower case hex is accepted.
	m, err = r.Resolve(ctx, blockcipher.AES256CBC, Inline{KeyHex: strings.ToLower(testKey), IVHex: strings.ToLower(testIV)})
	assert.NoError(t, err)
	keyHex, ivHex, err := m.Hex()
	assert.NoError(t, err)
	expect.EQ(t, keyHex, testKey)
	expect.EQ(t, ivHex, testIV)
}

func TestInlineErrors(t *testing.T) {
	var r Resolver
	ctx := context.Background()
	for _, c := range []struct {
		alg blockcipher.Algorithm
		src Inline
		msg string
	}{
		{blockcipher.AES256CBC, Inline{IVHex: testIV}, "Field 'key_hex' is required but not set"},
		{blockcipher.AES256CBC, Inline{KeyHex: testKey}, "Algorithm 'AES-256-CBC' requires initialization vector. Please generate one and set it to iv_hex option."},
		{blockcipher.AES128CBC, Inline{KeyHex: testKey[:32]}, "Algorithm 'AES-128-CBC' requires initialization vector."},
		{blockcipher.AES256CBC, Inline{KeyHex: "X", IVHex: testIV}, `invalid hex character 'X'`},
		{blockcipher.AES256CBC, Inline{KeyHex: testKey, IVHex: "X"}, `iv_hex`},
		{blockcipher.AES256CBC, Inline{KeyHex: testKey, IVHex: "X"}, `invalid hex character 'X'`},
		{blockcipher.AES256ECB, Inline{KeyHex: testKey[:32]}, "requires a 256-bit key"},
		{blockcipher.AES256CBC, Inline{KeyHex: testKey, IVHex: testIV[:30]}, "requires a 128-bit initialization vector"},
	} {
		_, err := r.Resolve(ctx, c.alg, c.src)
		if err == nil {
			t.Errorf("%v %+v: expected error", c.alg, c.src)
			continue
		}
		expect.True(t, errors.Is(errors.Config, err), err)
		expect.HasSubstr(t, err.Error(), c.msg)
	}
	_, err := r.Resolve(ctx, blockcipher.AES256CBC, nil)
	expect.True(t, errors.Is(errors.Config, err))
}

func TestIVIgnored(t *testing.T) {
	logs := captureLog(t)
	m, err := Resolver{}.Resolve(context.Background(), blockcipher.AES256ECB, Inline{KeyHex: testKey, IVHex: testIV})
	assert.NoError(t, err)
	expect.False(t, m.HasIV())
	expect.EQ(t, decryptSecret(t, m, "08EE5C1F7A466C3E136D4569F4A88E8C"), "secret")
	expect.EQ(t, logs.at(log.Warning), []string{"Algorithm 'AES-256-ECB' doesn't use initialization vector. iv_hex is ignored"})
	_, ivHex, err := m.Hex()
	assert.NoError(t, err)
	expect.EQ(t, ivHex, "")

	// The IV is not validated when it is ignored.
	_, err = Resolver{}.Resolve(context.Background(), blockcipher.AES128ECB, Inline{KeyHex: testKey[:32], IVHex: "X"})
	assert.NoError(t, err)
}

func TestMaterialDestroy(t *testing.T) {
	key, _ := hex.DecodeString(testKey)
	m, err := NewMaterial(blockcipher.AES256ECB, key, nil)
	assert.NoError(t, err)
	// NewMaterial leaves its arguments alone.
	expect.EQ(t, fmt.Sprintf("%X", key), testKey)
	_, err = m.Decrypter()
	assert.NoError(t, err)
	m.Destroy()
	m.Destroy()
	_, err = m.Decrypter()
	expect.True(t, errors.Is(errors.Invalid, err))
	_, _, err = m.Hex()
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestRemoteValidate(t *testing.T) {
	assert.NoError(t, testRemote.Validate())
	err := Remote{Bucket: "b"}.Validate()
	expect.True(t, errors.Is(errors.Config, err))
	for _, field := range []string{"region", "access_key", "secret_key", "full_path"} {
		expect.HasSubstr(t, err.Error(), fmt.Sprintf("Field '%s' is required but not set", field))
	}
	expect.False(t, strings.Contains(err.Error(), "'bucket'"))
	expect.EQ(t, testRemote.URL(), "s3://b/keys/key.yml")
	expect.EQ(t, testRemote.Describe(), "s3://b/keys/key.yml")
	expect.False(t, strings.Contains(testRemote.Describe(), "SECRET"))
}

func TestParseDocument(t *testing.T) {
	for _, c := range []struct {
		doc, key, iv string
	}{
		{testDoc, testKey, testIV},
		{"key_hex: '00112233'\n", "00112233", ""},
		// Digit-only hex must not be reinterpreted as a number.
		{"key_hex: 0011223344556677\niv_hex: 1e10\n", "0011223344556677", "1e10"},
		{"comment: hello\nkey_hex: ab\niv_hex: ~\n", "ab", ""},
		{"{}", "", ""},
	} {
		key, iv, err := parseDocument([]byte(c.doc))
		assert.NoError(t, err, c.doc)
		expect.EQ(t, key, c.key, c.doc)
		expect.EQ(t, iv, c.iv, c.doc)
	}
	for _, doc := range []string{"", "- a\n- b\n", "just a string", "key_hex: [1, 2]\n", "key_hex: {a: b}\n", "key_hex: 'unterminated\n"} {
		_, _, err := parseDocument([]byte(doc))
		if err == nil {
			t.Errorf("%q: expected error", doc)
			continue
		}
		expect.True(t, errors.Is(errors.Config, err), doc)
		expect.HasSubstr(t, err.Error(), "Key file is in incorrect format or not enable to be retrieved")
	}
}

// fakeS3 serves a single key document. Attempts fail in order with the
// errors in errs; a nil entry, or an attempt past the end of errs,
// succeeds. readErrs similarly makes the body of an attempt fail
// mid-read.
type fakeS3 struct {
	s3iface.S3API
	doc      string
	errs     []error
	readErrs []error

	mu     sync.Mutex
	calls  int
	opened int
	closed int
	inputs []*s3.GetObjectInput
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.inputs = append(f.inputs, in)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	var r io.Reader = strings.NewReader(f.doc)
	if i < len(f.readErrs) && f.readErrs[i] != nil {
		r = io.MultiReader(strings.NewReader(f.doc[:len(f.doc)/2]), &errReader{f.readErrs[i]})
	}
	f.opened++
	return &s3.GetObjectOutput{Body: &trackingBody{Reader: r, f: f}}, nil
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

type trackingBody struct {
	io.Reader
	f *fakeS3
}

func (b *trackingBody) Close() error {
	b.f.mu.Lock()
	b.f.closed++
	b.f.mu.Unlock()
	return nil
}

type sleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return nil
}

func resolverFor(client s3iface.S3API, retries int, s *sleeps) Resolver {
	return Resolver{
		Policy: retry.MaxRetries(retry.Backoff(30*time.Second, 480*time.Second, 2), retries),
		Sleep:  s.sleep,
		NewClient: func(src Remote) (s3iface.S3API, error) {
			if src != testRemote {
				return nil, errors.E("unexpected source", src.URL())
			}
			return client, nil
		},
	}
}

func serverError() error {
	return awserr.NewRequestFailure(awserr.New("InternalError", "We encountered an internal error.", nil), 500, "req")
}

func expiredToken() error {
	return awserr.NewRequestFailure(awserr.New("ExpiredToken", "The provided token has expired.", nil), 400, "req")
}

func TestRemote(t *testing.T) {
	client := &fakeS3{doc: testDoc}
	var s sleeps
	m, err := resolverFor(client, 7, &s).Resolve(context.Background(), blockcipher.AES256CBC, testRemote)
	assert.NoError(t, err)
	expect.EQ(t, decryptSecret(t, m, "814CF30BE9C94812DB3D30332656DB30"), "secret")
	expect.EQ(t, client.calls, 1)
	expect.EQ(t, client.closed, 1)
	expect.EQ(t, aws.StringValue(client.inputs[0].Bucket), "b")
	expect.EQ(t, aws.StringValue(client.inputs[0].Key), "keys/key.yml")
	expect.EQ(t, len(s.waits), 0)
}

func TestRemoteS3Test(t *testing.T) {
	client := s3test.NewClient(t, "b")
	_, err := client.PutObjectWithContext(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String("b"),
		Key:    aws.String("keys/key.yml"),
		Body:   bytes.NewReader([]byte("key_hex: " + testKey + "\n")),
	})
	assert.NoError(t, err)
	var s sleeps
	m, err := resolverFor(client, 7, &s).Resolve(context.Background(), blockcipher.AES256ECB, testRemote)
	assert.NoError(t, err)
	expect.EQ(t, decryptSecret(t, m, "08EE5C1F7A466C3E136D4569F4A88E8C"), "secret")

	// A missing object is a client error and is not retried.
	var calls int
	client.Err = func(api string, input interface{}) error {
		// GetObjectWithContext also consults the hook via GetObjectRequest.
		if api == "GetObjectWithContext" {
			calls++
		}
		return nil
	}
	missing := testRemote
	missing.Path = "keys/missing.yml"
	r := resolverFor(client, 7, &s)
	r.NewClient = func(Remote) (s3iface.S3API, error) { return client, nil }
	_, err = r.Resolve(context.Background(), blockcipher.AES256ECB, missing)
	expect.True(t, errors.Is(errors.Config, err), err)
	expect.EQ(t, calls, 1)
	expect.EQ(t, len(s.waits), 0)
}

func TestRemoteRetry(t *testing.T) {
	for _, c := range []struct {
		name     string
		errs     []error
		readErrs []error
		calls    int
		ok       bool
	}{
		{"5xx then success", []error{serverError(), serverError()}, nil, 3, true},
		{"transport then success", []error{awserr.New(request.ErrCodeRequestError, "send request failed", io.ErrUnexpectedEOF)}, nil, 2, true},
		{"truncated body then success", nil, []error{io.ErrUnexpectedEOF}, 2, true},
		{"expired token then success", []error{expiredToken(), expiredToken()}, nil, 3, true},
		{"expired token every time", []error{expiredToken(), expiredToken(), expiredToken(), expiredToken()}, nil, 4, false},
		{"5xx every time", []error{serverError(), serverError(), serverError(), serverError()}, nil, 4, false},
		{"access denied", []error{awserr.NewRequestFailure(awserr.New("AccessDenied", "Access Denied", nil), 403, "req")}, nil, 1, false},
		{"bad request after 5xx", []error{serverError(), awserr.NewRequestFailure(awserr.New("InvalidRequest", "bad", nil), 400, "req")}, nil, 2, false},
	} {
		t.Run(c.name, func(t *testing.T) {
			client := &fakeS3{doc: testDoc, errs: c.errs, readErrs: c.readErrs}
			var s sleeps
			m, err := resolverFor(client, 3, &s).Resolve(context.Background(), blockcipher.AES256CBC, testRemote)
			expect.EQ(t, client.calls, c.calls)
			expect.EQ(t, client.closed, client.opened)
			expect.EQ(t, len(s.waits), c.calls-1)
			if c.ok {
				assert.NoError(t, err)
				expect.EQ(t, decryptSecret(t, m, "814CF30BE9C94812DB3D30332656DB30"), "secret")
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRemoteGiveUp(t *testing.T) {
	// maximum_retries 7: eight attempts, all failing with 5xx.
	var errs []error
	for i := 0; i < 8; i++ {
		errs = append(errs, serverError())
	}
	client := &fakeS3{doc: testDoc, errs: errs}
	var s sleeps
	_, err := resolverFor(client, 7, &s).Resolve(context.Background(), blockcipher.AES256CBC, testRemote)
	expect.EQ(t, client.calls, 8)
	expect.False(t, errors.Is(errors.Config, err), err)
	expect.True(t, errors.Is(errors.TooManyTries, err), err)
	var rf awserr.RequestFailure
	if !errors.As(err, &rf) {
		t.Fatalf("%v does not preserve the S3 error", err)
	}
	expect.EQ(t, rf.StatusCode(), 500)
	expect.EQ(t, rf.Code(), "InternalError")
	want := []time.Duration{30, 60, 120, 240, 480, 480, 480}
	assert.EQ(t, len(s.waits), len(want))
	for i := range want {
		expect.EQ(t, s.waits[i], want[i]*time.Second)
	}
}

func TestRemoteExpiredExhausted(t *testing.T) {
	client := &fakeS3{doc: testDoc, errs: []error{expiredToken(), expiredToken(), expiredToken()}}
	var s sleeps
	_, err := resolverFor(client, 2, &s).Resolve(context.Background(), blockcipher.AES256CBC, testRemote)
	expect.EQ(t, client.calls, 3)
	expect.True(t, errors.Is(errors.Config, err), err)
	expect.HasSubstr(t, err.Error(), "ExpiredToken")
}

func TestRemoteClientError(t *testing.T) {
	client := &fakeS3{doc: testDoc, errs: []error{awserr.NewRequestFailure(awserr.New("NoSuchBucket", "The specified bucket does not exist", nil), 404, "req")}}
	var s sleeps
	_, err := resolverFor(client, 7, &s).Resolve(context.Background(), blockcipher.AES256CBC, testRemote)
	expect.EQ(t, client.calls, 1)
	expect.True(t, errors.Is(errors.Config, err), err)
	expect.HasSubstr(t, err.Error(), "Key file is in incorrect format or not enable to be retrieved")
	expect.HasSubstr(t, err.Error(), "NoSuchBucket")
}

func TestRemoteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeS3{doc: testDoc, errs: []error{serverError()}}
	r := Resolver{
		Policy: retry.MaxRetries(retry.Backoff(time.Hour, time.Hour, 1), 3),
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
		NewClient: func(Remote) (s3iface.S3API, error) { return client, nil },
	}
	_, err := r.Resolve(ctx, blockcipher.AES256CBC, testRemote)
	expect.True(t, errors.Is(errors.Canceled, err), err)
	expect.EQ(t, client.calls, 1)
}

func TestRemoteDocument(t *testing.T) {
	for _, c := range []struct {
		alg blockcipher.Algorithm
		doc string
		msg string
	}{
		{blockcipher.AES256CBC, "iv_hex: " + testIV + "\n", "Field 'key_hex' is required but not set"},
		{blockcipher.AES256CBC, "key_hex: " + testKey + "\n", "Algorithm 'AES-256-CBC' requires initialization vector"},
		{blockcipher.AES256CBC, "key_hex: X\niv_hex: " + testIV + "\n", "invalid hex character 'X'"},
		{blockcipher.AES256CBC, "- not a mapping\n", "Key file is in incorrect format"},
	} {
		client := &fakeS3{doc: c.doc}
		_, err := resolverFor(client, 7, &sleeps{}).Resolve(context.Background(), c.alg, testRemote)
		if err == nil {
			t.Errorf("%q: expected error", c.doc)
			continue
		}
		expect.True(t, errors.Is(errors.Config, err), err)
		expect.HasSubstr(t, err.Error(), c.msg)
		expect.EQ(t, client.closed, 1)
	}

	logs := captureLog(t)
	client := &fakeS3{doc: testDoc}
	m, err := resolverFor(client, 7, &sleeps{}).Resolve(context.Background(), blockcipher.AES256ECB, testRemote)
	assert.NoError(t, err)
	expect.False(t, m.HasIV())
	expect.EQ(t, len(logs.at(log.Warning)), 1)
}

func TestRemoteMissingParams(t *testing.T) {
	client := &fakeS3{doc: testDoc}
	src := testRemote
	src.Region = ""
	_, err := resolverFor(client, 7, &sleeps{}).Resolve(context.Background(), blockcipher.AES256CBC, src)
	expect.True(t, errors.Is(errors.Config, err))
	expect.HasSubstr(t, err.Error(), "Field 'region' is required but not set")
	expect.EQ(t, client.calls, 0)
}

func TestNewS3Client(t *testing.T) {
	client, err := NewS3Client(testRemote)
	assert.NoError(t, err)
	svc := client.(*s3.S3)
	expect.EQ(t, aws.StringValue(svc.Config.Region), "us-east-1")
	// One executor attempt is one HTTP request.
	expect.EQ(t, aws.IntValue(svc.Config.MaxRetries), 0)
	expect.EQ(t, svc.Client.Retryer.MaxRetries(), 0)

	bad := testRemote
	bad.Region = "moon-1"
	_, err = NewS3Client(bad)
	expect.True(t, errors.Is(errors.Config, err))

	// An invalid region surfaces as a configuration error of the
	// job rather than at fetch time.
	_, err = Resolver{}.Resolve(context.Background(), blockcipher.AES256CBC, bad)
	expect.True(t, errors.Is(errors.Config, err))
}
