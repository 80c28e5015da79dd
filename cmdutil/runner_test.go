// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmdutil_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/decryptfilter/cmdutil"
	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/log"
	"github.com/grailbio/testutil/expect"
	"v.io/x/lib/cmdline"
)

func TestRunnerFunc(t *testing.T) {
	defer log.SetLevel(log.CurrentLevel())
	log.SetLevel(log.Warning)
	var stderr bytes.Buffer
	env := &cmdline.Env{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	var args []string
	runner := cmdutil.RunnerFunc(func(env *cmdline.Env, a []string) error {
		args = a
		log.Printf("not shown")
		log.Warning.Printf("Column '%s' is of type long", "id")
		return errors.E(errors.Config, "bad config")
	})
	err := runner.Run(env, []string{"a", "b"})
	expect.True(t, errors.Is(errors.Config, err))
	expect.EQ(t, args, []string{"a", "b"})
	out := stderr.String()
	expect.HasSubstr(t, out, "WARN")
	expect.HasSubstr(t, out, "Column 'id' is of type long")
	expect.False(t, strings.Contains(out, "not shown"))
}

func TestVersionCommand(t *testing.T) {
	var stdout bytes.Buffer
	env := &cmdline.Env{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	cmd := cmdutil.CreateVersionCommand("version", "decrypt-filter")
	expect.NoError(t, cmd.Runner.Run(env, nil))
	expect.HasSubstr(t, stdout.String(), "decrypt-filter/(missing) (os=")
}
