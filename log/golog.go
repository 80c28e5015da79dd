// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package log

import (
	"flag"
	"io"
	golog "log"
	"sync/atomic"
)

var golevel = Info

var called int32 = 0

// AddFlags adds a standard log level flag to the provided flag set.
func AddFlags(fs *flag.FlagSet) {
	if atomic.AddInt32(&called, 1) != 1 {
		Error.Printf("log.AddFlags: called twice!")
		return
	}
	fs.Var(new(logFlag), "log", "set log level (off, error, warning, info, debug)")
}

// SetFlags sets the output flags for the Go standard logger.
func SetFlags(flag int) {
	golog.SetFlags(flag)
}

// SetOutput sets the output destination for the Go standard logger.
func SetOutput(w io.Writer) {
	golog.SetOutput(w)
}

// SetLevel sets the log level for the Go standard logger and for any
// outputter that defers to it. It should be called once at the
// beginning of a program's main.
func SetLevel(level Level) {
	golevel = level
}

// CurrentLevel returns the level set by SetLevel or the -log flag.
func CurrentLevel() Level {
	return golevel
}

type logFlag string

func (f logFlag) String() string {
	return string(f)
}

func (f *logFlag) Set(level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	*f = logFlag(level)
	golevel = l
	return nil
}

// Get implements flag.Getter.
func (logFlag) Get() interface{} {
	return golevel
}

type gologOutputter struct{}

func (gologOutputter) Level() Level { return golevel }

func (gologOutputter) Output(calldepth int, level Level, s string) error {
	if golevel < level {
		return nil
	}
	return golog.Output(calldepth+1, s)
}
