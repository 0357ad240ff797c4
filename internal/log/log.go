// Copyright 2026 The NSB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is a thin leveled-logging façade over logrus.
//
// The call shape (Debugf/Infof/Warningf/Errorf against a package-level
// target) mirrors the way the teacher's own pkg/log is used from its CLI:
// a single target is installed once at startup and every component logs
// through package-level functions rather than threading a logger value
// through every call.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var target = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLevel controls whether Debugf output is emitted.
func SetLevel(debug bool) {
	if debug {
		target.SetLevel(logrus.DebugLevel)
		return
	}
	target.SetLevel(logrus.InfoLevel)
}

// SetLevelName parses one of debug/info/warning/error and installs it,
// falling back to info on anything else rather than erroring out.
func SetLevelName(name string) {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	target.SetLevel(lvl)
}

// SetOutput redirects all subsequent log output.
func SetOutput(w io.Writer) {
	target.SetOutput(w)
}

// SetJSON switches the formatter to structured JSON output, for callers
// that want to pipe diagnostics into something that parses logs.
func SetJSON(json bool) {
	if json {
		target.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	target.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func Debugf(format string, args ...any) { target.Debugf(format, args...) }
func Infof(format string, args ...any)  { target.Infof(format, args...) }
func Warningf(format string, args ...any) { target.Warnf(format, args...) }
func Errorf(format string, args ...any) { target.Errorf(format, args...) }

// WithField returns an entry pre-populated with a single field, for the
// call sites (the seize loop) that want to tag
// every line with the pid they're operating on.
func WithField(key string, value any) *logrus.Entry {
	return target.WithField(key, value)
}
