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
	"fmt"

	"golang.org/x/sys/unix"
)

// StopResult is the classification a debugger primitive reports after trying
// to stop a thread.
type StopResult int

const (
	// Alive: the thread is now seized and under our control.
	Alive StopResult = iota
	// Stopped: the thread was already stopped by a foreign tracer.
	Stopped
	// Zombie: the thread has exited but not been reaped.
	Zombie
	// Dead: the thread is gone.
	Dead
	// Vanished: ESRCH. The thread disappeared between enumeration and stop.
	Vanished
)

func (r StopResult) String() string {
	switch r {
	case Alive:
		return "alive"
	case Stopped:
		return "stopped"
	case Zombie:
		return "zombie"
	case Dead:
		return "dead"
	case Vanished:
		return "vanished"
	default:
		return "unknown"
	}
}

// Handle is the opaque per-session control object returned by Prepare: the
// register save area and scratch-stub address the gateway uses to inject
// syscalls. Its lifetime brackets link/unlink.
type Handle struct {
	Pid       int32
	savedRegs unix.PtraceRegs
	stubAddr  uintptr
}

// Debugger is the contract over OS debugger primitives. One implementation
// exists for linux/amd64 (ptrace-backed); tests use a fake that never
// touches the kernel.
type Debugger interface {
	// Prepare attaches the per-session control thread (the thread group
	// leader) and returns a handle usable with InjectSyscall.
	Prepare(pid int32) (*Handle, error)
	// Cure detaches the control thread and releases the handle.
	Cure(h *Handle) error
	// BindStub records the scratch-region address the control thread
	// should use as its syscall trampoline, and writes whatever bytes
	// that requires. Called once link has mapped the ScratchRegion.
	BindStub(h *Handle, addr uintptr) error

	// Stop seizes a single thread. On Alive, the thread will not schedule
	// again until Resume is called.
	Stop(id int32) (StopResult, error)
	// Resume returns a previously-stopped thread to its prior scheduling
	// state. Must be paired with every successful Stop.
	Resume(id int32) error

	// Read/Write perform word-aligned remote memory access.
	Read(id int32, addr uintptr, buf []byte) error
	Write(id int32, addr uintptr, buf []byte) error

	// InjectSyscall runs a single syscall in the target's context on behalf
	// of the control thread. result is the kernel's signed return value;
	// negative values encode -errno, exactly as a raw syscall would.
	InjectSyscall(h *Handle, nr int, a1, a2, a3, a4, a5, a6 uintptr) (result int64, err error)

	// Registers reads the program counter and frame pointer of a seized
	// thread, for the Stack Inspector's frame-pointer walk.
	Registers(id int32) (Regs, error)
}

// Regs is the minimal register slice the Stack Inspector needs: enough to
// start a frame-pointer unwind. The full register file lives behind the
// Debugger Adapter and is never exposed beyond this.
type Regs struct {
	PC uint64
	FP uint64
}

const wordSize = 8

// errBadAlignmentSentinel is the errno carried by the KindBadAlignment error
// Read/Write return when size%wordSize != 0.
var errBadAlignmentSentinel = unix.EINVAL

// errScratchUnset guards Gateway.Open against being called before link has
// mapped the ScratchRegion.
var errScratchUnset = fmt.Errorf("scratch region not mapped")

func checkAligned(size int) error {
	if size%wordSize != 0 {
		return &Error{Kind: KindBadAlignment, Phase: "memory-access", Errno: errBadAlignmentSentinel}
	}
	return nil
}
