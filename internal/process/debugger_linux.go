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

//go:build linux && amd64

package process

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/talismancer/nsb/internal/log"
)

// syscallStub is "syscall; int3", written once into the session's scratch
// region and reused for every injected syscall: set up argument registers,
// point rip at this address, PTRACE_CONT, and the int3 traps back to us with
// rax holding the kernel's return value.
var syscallStub = [3]byte{0x0f, 0x05, 0xcc}

// PtraceDebugger is the linux/amd64 Debugger implementation. A single
// instance is only ever driven from one locked OS thread for the lifetime of
// a session: ptrace requires the tracer and tracee relationship to live on
// one thread.
type PtraceDebugger struct {
	attached map[int32]bool
}

// NewPtraceDebugger locks the calling goroutine to its OS thread for the
// remainder of the session, as ptrace requires, and returns a fresh adapter.
func NewPtraceDebugger() *PtraceDebugger {
	runtime.LockOSThread()
	return &PtraceDebugger{attached: make(map[int32]bool)}
}

func (d *PtraceDebugger) Prepare(pid int32) (*Handle, error) {
	if err := unix.PtraceAttach(int(pid)); err != nil {
		return nil, newOSError("prepare", err.(unix.Errno))
	}
	var status unix.WaitStatus
	if _, err := unix.Wait4(int(pid), &status, 0, nil); err != nil {
		unix.PtraceDetach(int(pid))
		return nil, newOSError("prepare", err.(unix.Errno))
	}
	if !status.Stopped() {
		return nil, &Error{Kind: KindPrepare, Phase: "prepare", Err: fmt.Errorf("pid %d did not stop on attach: %v", pid, status)}
	}
	d.attached[pid] = true

	h := &Handle{Pid: pid}
	if err := unix.PtraceGetRegs(int(pid), &h.savedRegs); err != nil {
		d.Cure(h)
		return nil, newOSError("prepare", err.(unix.Errno))
	}
	return h, nil
}

// BindStub records the scratch-region address the control thread should
// jump to when injecting a syscall, and writes the stub bytes there. Called
// once link has mapped the ScratchRegion.
func (d *PtraceDebugger) BindStub(h *Handle, addr uintptr) error {
	h.stubAddr = addr
	return d.Write(h.Pid, addr, syscallStub[:])
}

func (d *PtraceDebugger) Cure(h *Handle) error {
	if h == nil {
		return nil
	}
	if err := unix.PtraceSetRegs(int(h.Pid), &h.savedRegs); err != nil {
		log.Warningf("cure: failed to restore registers for %d: %v", h.Pid, err)
	}
	delete(d.attached, h.Pid)
	if err := unix.PtraceDetach(int(h.Pid)); err != nil {
		return newOSError("cure", err.(unix.Errno))
	}
	return nil
}

func (d *PtraceDebugger) Stop(id int32) (StopResult, error) {
	if d.attached[id] {
		// Already under our control (this is the session's control
		// thread, prepared in Prepare).
		return Alive, nil
	}

	if err := unix.PtraceAttach(int(id)); err != nil {
		switch err {
		case unix.ESRCH:
			return Vanished, nil
		case unix.EPERM:
			// Either a foreign tracer already owns this thread, or it's a
			// zombie (EPERM on attach to a zombie on some kernels).
			if state, serr := taskState(id); serr == nil {
				switch state {
				case 'Z':
					return Zombie, nil
				case 'X', 'x':
					return Dead, nil
				}
			}
			return Stopped, nil
		default:
			return 0, newOSError("stop", err.(unix.Errno))
		}
	}

	var status unix.WaitStatus
	if _, err := unix.Wait4(int(id), &status, 0, nil); err != nil {
		if err == unix.ESRCH {
			return Vanished, nil
		}
		return 0, newOSError("stop", err.(unix.Errno))
	}
	if status.Exited() || status.Signaled() {
		return Dead, nil
	}
	d.attached[id] = true
	return Alive, nil
}

func (d *PtraceDebugger) Resume(id int32) error {
	if !d.attached[id] {
		return nil
	}
	delete(d.attached, id)
	if err := unix.PtraceDetach(int(id)); err != nil {
		if err == unix.ESRCH {
			// Thread exited while seized; nothing left to resume.
			return nil
		}
		return newOSError("resume", err.(unix.Errno))
	}
	return nil
}

func (d *PtraceDebugger) Read(id int32, addr uintptr, buf []byte) error {
	if err := checkAligned(len(buf)); err != nil {
		return err
	}
	n, err := unix.PtracePeekData(int(id), addr, buf)
	if err != nil {
		return newOSError("read", err.(unix.Errno))
	}
	if n != len(buf) {
		return newOSError("read", unix.EIO)
	}
	return nil
}

func (d *PtraceDebugger) Write(id int32, addr uintptr, buf []byte) error {
	if err := checkAligned(len(buf)); err != nil {
		return err
	}
	n, err := unix.PtracePokeData(int(id), addr, buf)
	if err != nil {
		return newOSError("write", err.(unix.Errno))
	}
	if n != len(buf) {
		return newOSError("write", unix.EIO)
	}
	return nil
}

func (d *PtraceDebugger) InjectSyscall(h *Handle, nr int, a1, a2, a3, a4, a5, a6 uintptr) (int64, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(int(h.Pid), &regs); err != nil {
		return 0, newOSError("inject-syscall", err.(unix.Errno))
	}

	call := regs
	call.Rax = uint64(nr)
	call.Rdi = uint64(a1)
	call.Rsi = uint64(a2)
	call.Rdx = uint64(a3)
	call.R10 = uint64(a4)
	call.R8 = uint64(a5)
	call.R9 = uint64(a6)
	call.Rip = uint64(h.stubAddr)
	call.Rsp = regs.Rsp // reuse the thread's live stack; the stub never pushes.

	if err := unix.PtraceSetRegs(int(h.Pid), &call); err != nil {
		return 0, newOSError("inject-syscall", err.(unix.Errno))
	}
	if err := unix.PtraceCont(int(h.Pid), 0); err != nil {
		return 0, newOSError("inject-syscall", err.(unix.Errno))
	}

	var status unix.WaitStatus
	if _, err := unix.Wait4(int(h.Pid), &status, 0, nil); err != nil {
		return 0, newOSError("inject-syscall", err.(unix.Errno))
	}
	if !status.Stopped() || status.StopSignal() != unix.SIGTRAP {
		return 0, &Error{Kind: KindOS, Phase: "inject-syscall", Err: fmt.Errorf("unexpected wait status %v", status)}
	}

	var after unix.PtraceRegs
	if err := unix.PtraceGetRegs(int(h.Pid), &after); err != nil {
		return 0, newOSError("inject-syscall", err.(unix.Errno))
	}

	// Restore the registers the thread had before we hijacked it; the
	// syscall's effect on the target's address space survives, only the
	// register window is put back.
	if err := unix.PtraceSetRegs(int(h.Pid), &regs); err != nil {
		return 0, newOSError("inject-syscall", err.(unix.Errno))
	}

	return int64(after.Rax), nil
}

func (d *PtraceDebugger) Registers(id int32) (Regs, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(int(id), &regs); err != nil {
		return Regs{}, newOSError("registers", err.(unix.Errno))
	}
	return Regs{PC: regs.Rip, FP: regs.Rbp}, nil
}

// taskState reads the single-character process state field out of
// /proc/<id>/stat (field 3), used to disambiguate EPERM-on-attach into
// Zombie/Dead vs. foreign-tracer-Stopped.
func taskState(id int32) (byte, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", id))
	if err != nil {
		return 0, err
	}
	// Fields: pid (comm) state ...  comm may itself contain parens, so
	// scan from the last ')' rather than splitting naively on spaces.
	end := -1
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] == ')' {
			end = i
			break
		}
	}
	if end < 0 || end+2 >= len(data) {
		return 0, fmt.Errorf("malformed /proc/%d/stat", id)
	}
	return data[end+2], nil
}
