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
	"encoding/binary"

	"github.com/talismancer/nsb/internal/log"
)

// Backtrace is the opaque sequence of return addresses produced for one
// thread. It is read-only and scoped to a single predicate call:
// ForEachThread destroys it before moving to the next thread, so nothing
// downstream may retain one across iterations.
type Backtrace struct {
	ThreadID int32
	PCs      []uint64
}

// Predicate is the caller-supplied stack check. It has three outcomes:
//
//	nil        -> frame is safe to patch, continue to the next thread
//	IsAgain(e) -> the thread's stack is in a transient bad state (e.g. mid
//	              syscall in a function we're about to patch); ForEachThread
//	              stops and the caller should cure and retry the whole seize
//	err        -> any other error is fatal and aborts the walk immediately
type Predicate func(t *Thread, bt *Backtrace) error

// Unwinder produces and destroys backtraces. The frame-pointer walker below
// is the only production implementation; tests substitute one that returns
// canned backtraces without touching a Debugger at all.
type Unwinder interface {
	BacktraceOf(dbg Debugger, tid int32) (*Backtrace, error)
	Destroy(bt *Backtrace)
}

// FrameUnwinder walks the classic rbp chain: [rbp] holds the caller's saved
// rbp, [rbp+8] holds the return address, until a null or non-increasing
// frame pointer ends the chain. This assumes frame pointers aren't omitted
// in the target's compiled code.
type FrameUnwinder struct {
	MaxFrames int
}

// NewFrameUnwinder returns a walker bounded to a sane default frame count.
func NewFrameUnwinder() *FrameUnwinder {
	return &FrameUnwinder{MaxFrames: 64}
}

func (u *FrameUnwinder) BacktraceOf(dbg Debugger, tid int32) (*Backtrace, error) {
	regs, err := dbg.Registers(tid)
	if err != nil {
		return nil, err
	}

	bt := &Backtrace{ThreadID: tid, PCs: []uint64{regs.PC}}
	fp := regs.FP
	buf := make([]byte, 16)
	for i := 0; i < u.MaxFrames && fp != 0; i++ {
		if err := dbg.Read(tid, uintptr(fp), buf); err != nil {
			// A read failure ends the walk rather than failing it outright:
			// the frames collected so far are still a valid (if truncated)
			// backtrace for the predicate to judge.
			log.Debugf("stack: thread %d unwind stopped at depth %d: %v", tid, i, err)
			break
		}
		savedFP := binary.LittleEndian.Uint64(buf[0:8])
		retAddr := binary.LittleEndian.Uint64(buf[8:16])
		if retAddr == 0 {
			break
		}
		bt.PCs = append(bt.PCs, retAddr)
		if savedFP <= fp {
			// Non-increasing frame pointer: either the chain bottomed out at
			// the thread's entry frame or it's corrupt. Either way, stop.
			break
		}
		fp = savedFP
	}
	return bt, nil
}

func (u *FrameUnwinder) Destroy(bt *Backtrace) {
	bt.PCs = nil
}

// ForEachThread walks the seized set in observation order, unwinding each
// thread's stack, invoking pred, and destroying the backtrace before moving
// on. It stops at the first non-nil result. The set itself is left
// untouched; callers decide what to do with a Predicate error.
func (p *TargetProcess) ForEachThread(unwinder Unwinder, pred Predicate) error {
	for _, t := range p.threads.Threads() {
		if !t.Seized {
			continue
		}
		bt, err := unwinder.BacktraceOf(p.dbg, t.ID)
		if err != nil {
			return newError(KindOS, "check-stack", err)
		}
		perr := pred(t, bt)
		unwinder.Destroy(bt)
		if perr != nil {
			return perr
		}
	}
	return nil
}
