// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

// LoggerInterface is the small logging surface the codec writes debug output
// to. Both Print and Printf have the same signatures as package log in the
// standard library, so a *log.Logger (or hclog's StandardLogger) fits.
//
// For verbose logging to stdout:
//
//	ber.NewLogger(log.New(os.Stdout, "", 0))
type LoggerInterface interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
}

// Logger wraps a LoggerInterface. The zero Logger discards everything.
type Logger struct {
	logger LoggerInterface
}

// NewLogger returns a Logger writing to logger.
func NewLogger(logger LoggerInterface) Logger {
	return Logger{logger: logger}
}

func (l *Logger) Print(v ...interface{}) {
	if l.logger != nil {
		l.logger.Print(v...)
	}
}

func (l *Logger) Printf(format string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Printf(format, v...)
	}
}

// Enabled reports whether the Logger writes anywhere. Callers use it to skip
// building expensive debug strings.
func (l *Logger) Enabled() bool {
	return l.logger != nil
}
