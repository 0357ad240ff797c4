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
	"golang.org/x/sys/unix"
)

// Typed envelopes over the debugger's InjectSyscall, decoding the kernel's
// signed return value into either a positive result or an *Error carrying
// the negated errno. Syscall numbers are the linux/amd64 native numbers.
const (
	sysOpen   = 2
	sysClose  = 3
	sysMmap   = 9
	sysMunmap = 11
)

// Gateway marshals typed syscall requests into a target process via a
// Debugger handle, staging variable-length arguments (paths) through a
// ScratchRegion when the kernel needs a stable remote address for them.
type Gateway struct {
	dbg     Debugger
	handle  *Handle
	scratch *ScratchRegion
}

// NewGateway builds a gateway bound to one session's control handle and
// scratch region. The scratch region may be nil until link has mapped it;
// Open will fail loudly if called before that.
func NewGateway(dbg Debugger, h *Handle, scratch *ScratchRegion) *Gateway {
	return &Gateway{dbg: dbg, handle: h, scratch: scratch}
}

func (g *Gateway) setScratch(s *ScratchRegion) { g.scratch = s }

func (g *Gateway) call(phase string, nr int, a1, a2, a3, a4, a5, a6 uintptr) (int64, error) {
	result, err := g.dbg.InjectSyscall(g.handle, nr, a1, a2, a3, a4, a5, a6)
	if err != nil {
		return 0, newError(KindOS, phase, err)
	}
	if result < 0 {
		return 0, newOSError(phase, unix.Errno(-result))
	}
	return result, nil
}

// Mmap requests an anonymous or file-backed mapping inside the target.
func (g *Gateway) Mmap(fd int, offset int64, addr uintptr, size uintptr, flags, prot int) (uintptr, error) {
	result, err := g.call("mmap", sysMmap, addr, size, uintptr(prot), uintptr(flags), uintptr(fd), uintptr(offset))
	if err != nil {
		return 0, err
	}
	return uintptr(result), nil
}

// Munmap tears down a mapping previously created with Mmap.
func (g *Gateway) Munmap(addr uintptr, size uintptr) error {
	_, err := g.call("munmap", sysMunmap, addr, size, 0, 0, 0, 0)
	return err
}

// roundUp8 rounds n up to the next 8-byte boundary.
func roundUp8(n int) int {
	return (n + 7) &^ 7
}

// Open stages path (NUL-terminated, padded to an 8-byte boundary) into the
// ScratchRegion, then invokes open(2) against that remote address. This is
// the one wrapper that touches the scratch region directly, which is why
// the region exists and why it must be RWX at a stable address.
func (g *Gateway) Open(path string, flags int, mode uint32) (int, error) {
	if g.scratch == nil {
		return 0, newError(KindPrepare, "open", errScratchUnset)
	}
	padded := make([]byte, roundUp8(len(path)+1))
	copy(padded, path)
	if err := g.dbg.Write(g.handle.Pid, g.scratch.Addr, padded); err != nil {
		return 0, err
	}
	result, err := g.call("open", sysOpen, g.scratch.Addr, uintptr(flags), uintptr(mode), 0, 0, 0)
	if err != nil {
		return 0, err
	}
	return int(result), nil
}

// Close closes a file descriptor previously opened in the target.
func (g *Gateway) Close(fd int) error {
	_, err := g.call("close", sysClose, uintptr(fd), 0, 0, 0, 0, 0)
	return err
}
