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

package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind discriminates the fatal error categories this package reports.
// Transient conditions (EAGAIN, a thread racing to exit between enumerate
// and stop) never reach this type: they're absorbed internally by Seize and
// Suspend.
type Kind int

const (
	// KindBadAlignment: a remote memory access whose size isn't a multiple
	// of the machine word size. Programmer error in the caller of the
	// gateway; always fatal.
	KindBadAlignment Kind = iota + 1
	// KindBusy: a thread is already stopped by a foreign tracer.
	KindBusy
	// KindNoThreads: enumeration yielded an empty thread set.
	KindNoThreads
	// KindOS: a syscall or debugger primitive returned a kernel errno.
	KindOS
	// KindTimeout: Suspend exhausted its retry budget.
	KindTimeout
	// KindPredicate: the backtrace predicate returned a fatal (non-EAGAIN,
	// non-zero) code.
	KindPredicate
	// KindPrepare: the debugger adapter failed to attach / allocate its
	// per-session control structures.
	KindPrepare
)

func (k Kind) String() string {
	switch k {
	case KindBadAlignment:
		return "bad-alignment"
	case KindBusy:
		return "busy"
	case KindNoThreads:
		return "no-threads"
	case KindOS:
		return "os"
	case KindTimeout:
		return "timeout"
	case KindPredicate:
		return "predicate"
	case KindPrepare:
		return "prepare"
	default:
		return "unknown"
	}
}

// Error is the single discriminated error type every component in this
// package returns on a fatal path. Kind classifies the failure; Errno and
// Err carry whatever detail is available, without the caller needing to
// sniff a raw errno out of a generic error value.
type Error struct {
	Kind  Kind
	Phase string // which operation was in flight: "link", "seize", "suspend", ...
	Errno unix.Errno
	Err   error
}

func (e *Error) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("%s: %s (errno %d: %s)", e.Phase, e.Kind, int(e.Errno), e.Errno)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Phase, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Phase, e.Kind)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Errno != 0 {
		return e.Errno
	}
	return nil
}

func newOSError(phase string, errno unix.Errno) *Error {
	return &Error{Kind: KindOS, Phase: phase, Errno: errno}
}

func newError(kind Kind, phase string, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Err: err}
}

// errAgain is the transient sentinel a backtrace predicate returns to ask
// for a retry. It is never wrapped in *Error: Suspend catches it by identity
// before it could ever become fatal.
var errAgain = unix.EAGAIN

// IsAgain reports whether err is the transient "unsafe now, retry" signal.
func IsAgain(err error) bool {
	return errors.Is(err, errAgain)
}

// KindOf extracts the Kind of a fatal error, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
