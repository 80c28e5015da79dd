// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package s3util interprets errors returned by the AWS S3 API for
// callers that fetch single objects under a retry policy.
package s3util

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/grailbio/decryptfilter/errors"
)

// Class is the retry class of an S3 API error.
type Class int

const (
	// Transport errors happen before S3 produced a response: the
	// endpoint was unreachable, the connection was reset, or the
	// response could not be read. They are retried.
	Transport Class = iota
	// Server errors are 5xx responses, including throttling. They are
	// retried.
	Server
	// ExpiredToken is a 4xx response caused by expired or refreshing
	// credentials. It is retried; if retries run out it is reported
	// as a configuration error.
	ExpiredToken
	// Client errors are all other 4xx responses. They are not retried
	// and are reported as configuration errors.
	Client
	// Canceled means the request's context was done.
	Canceled
)

var classNames = [...]string{
	Transport:    "transport",
	Server:       "server",
	ExpiredToken: "expired token",
	Client:       "client",
	Canceled:     "canceled",
}

func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return "unknown"
	}
	return classNames[c]
}

// Retryable tells whether errors of class c should be retried.
func (c Class) Retryable() bool {
	return c == Transport || c == Server || c == ExpiredToken
}

// CtxErr will return the context's error (if any) or the other error.
// This is particularly useful to interpret AWS S3 API call errors
// because AWS sometimes wraps context errors (context.Canceled or context.DeadlineExceeded).
func CtxErr(ctx context.Context, other error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return other
}

// Codes that S3 returns with a 4xx status when the caller's temporary
// credentials need to be refreshed.
var expiredTokenCodes = map[string]bool{
	"expiredtoken":         true,
	"tokenrefreshrequired": true,
	"requestexpired":       true,
}

// Classify returns the retry class of err. Errors that are not AWS
// errors are considered transport errors, except for context errors,
// which are Canceled.
func Classify(err error) Class {
	for err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded {
			return Canceled
		}
		if rf, ok := err.(awserr.RequestFailure); ok && rf.StatusCode() > 0 {
			switch code := rf.StatusCode(); {
			case code >= 500:
				return Server
			case code == 429 || code == 408:
				return Server
			case code >= 400:
				if expiredTokenCodes[strings.ToLower(rf.Code())] {
					return ExpiredToken
				}
				return Client
			}
		}
		aerr, ok := err.(awserr.Error)
		if !ok {
			return Transport
		}
		if class, ok := classifyCode(aerr.Code()); ok {
			return class
		}
		err = aerr.OrigErr()
	}
	return Transport
}

func classifyCode(code string) (Class, bool) {
	if expiredTokenCodes[strings.ToLower(code)] {
		return ExpiredToken, true
	}
	switch code {
	case request.CanceledErrorCode:
		return Canceled, true
	// Code NotFound is not documented, but it's what the API actually returns.
	case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NoSuchVersion", "NotFound",
		"AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccountProblem",
		"InvalidRequest", "InvalidArgument", "InvalidBucketName", "InvalidObjectState",
		"AuthorizationHeaderMalformed", "PermanentRedirect", "MethodNotAllowed":
		return Client, true
	// AWS recommends retrying InternalErrors:
	// https://aws.amazon.com/premiumsupport/knowledge-center/http-5xx-errors-s3/
	case "InternalError", "ServiceUnavailable", "SlowDown", "RequestTimeout", "OperationAborted":
		return Server, true
	case request.ErrCodeRequestError, request.ErrCodeSerialization, request.ErrCodeRead,
		request.ErrCodeResponseTimeout:
		return Transport, true
	}
	return 0, false
}

// Annotate returns err annotated with the kind and severity implied
// by its class. The optional args are passed to errors.E.
func Annotate(err error, args ...interface{}) error {
	var kind errors.Kind
	var severity errors.Severity
	switch Classify(err) {
	case Canceled:
		kind, severity = errors.Canceled, errors.Fatal
	case Transport:
		kind, severity = errors.Net, errors.Temporary
	case Server:
		kind, severity = errors.Unavailable, errors.Retriable
	case ExpiredToken:
		kind, severity = errors.NotAllowed, errors.Retriable
	case Client:
		kind, severity = errors.Config, errors.Fatal
	}
	return errors.E(append([]interface{}{kind, severity, err}, args...)...)
}
