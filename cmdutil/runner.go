// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cmdutil provides utility routines for implementing command line
// tools.
package cmdutil

import (
	"github.com/grailbio/decryptfilter/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"v.io/x/lib/cmdline"
)

// RunnerFunc is an adapter that turns regular functions into cmdline.Runners.
type RunnerFunc func(*cmdline.Env, []string) error

// Run implements the cmdline.Runner interface method by calling f(env, args).
// While f runs, log messages at or above the -log level go to
// env.Stderr as structured zap entries; they are flushed before Run
// returns.
func (f RunnerFunc) Run(env *cmdline.Env, args []string) error {
	out := log.NewZapOutputter(NewLogger(env), log.CurrentLevel())
	prev := log.SetOutputter(out)
	defer log.SetOutputter(prev)
	err := f(env, args)
	// Syncing fails when stderr is a terminal.
	_ = log.Sync(out)
	return err
}

// NewLogger returns a console zap logger that writes to env.Stderr.
func NewLogger(env *cmdline.Env) *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(env.Stderr),
		zapcore.DebugLevel,
	)
	return zap.New(core, zap.AddCaller())
}
