// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapOutputter struct {
	logger *zap.Logger
	level  Level
}

// NewZapOutputter returns an Outputter that writes messages at or
// above level to logger. Debug levels beyond Debug are folded into
// zap's debug level.
func NewZapOutputter(logger *zap.Logger, level Level) Outputter {
	return &zapOutputter{logger: logger, level: level}
}

func (z *zapOutputter) Level() Level { return z.level }

func (z *zapOutputter) Output(calldepth int, level Level, s string) error {
	if z.level < level {
		return nil
	}
	// calldepth counts Output itself; zap's skip counts frames above
	// the logger method.
	logger := z.logger.WithOptions(zap.AddCallerSkip(calldepth - 1))
	if ce := logger.Check(zapLevel(level), s); ce != nil {
		ce.Write()
	}
	return nil
}

// Sync flushes the outputter's logger if it is a zap outputter.
func Sync(o Outputter) error {
	if z, ok := o.(*zapOutputter); ok {
		return z.logger.Sync()
	}
	return nil
}

func zapLevel(level Level) zapcore.Level {
	switch {
	case level <= Error:
		return zapcore.ErrorLevel
	case level == Warning:
		return zapcore.WarnLevel
	case level == Info:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
