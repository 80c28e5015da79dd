// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errors

import "fmt"

// CleanUp is defer-able syntactic sugar that calls release and reports its
// error, if any, to *dst. Pass the caller's named return error:
//
//	func readObject(out *s3.GetObjectOutput) (_ []byte, err error) {
//		defer errors.CleanUp(out.Body.Close, &err)
//		return ioutil.ReadAll(out.Body)
//	}
//
// If the caller already returns an error, the release error is appended to
// its message rather than replacing it, since the first error is the one
// that explains the failure.
func CleanUp(release func() error, dst *error) {
	err := release()
	if err == nil {
		return
	}
	if *dst == nil {
		*dst = err
		return
	}
	*dst = E(*dst, fmt.Sprintf("second error in Close: %v", err))
}
