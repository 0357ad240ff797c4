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

import "github.com/talismancer/nsb/internal/log"

// Patch is the top-level entry point: link into pid, suspend it at a point
// where ops' backtrace check passes on every thread, apply the patch, and
// unlink, leaving the target running with the new code.
func Patch(pid int32, dbg Debugger, cfg Config, ops PatchOps, vmas []VMA) error {
	p := NewTargetProcess(pid, dbg, cfg)

	if err := p.Link(); err != nil {
		return err
	}
	defer func() {
		if err := p.Unlink(); err != nil {
			log.Errorf("patch %d: unlink failed: %v", pid, err)
		}
	}()

	unwinder := NewFrameUnwinder()
	if err := p.Suspend(unwinder, AsPredicate(ops, vmas)); err != nil {
		return err
	}

	if err := ops.Apply(p); err != nil {
		p.cureThreads()
		return err
	}

	return p.cureThreads()
}

// Check is Patch's dry-run counterpart: link, suspend, then unlink without
// writing the patch into the target; its only writes are Link's scratch page
// and syscall stub, which Unlink unmaps. Suspend succeeding already proves every
// thread's backtrace clears ops' check, which is the entire feasibility
// question; there is nothing left to verify by actually writing the patch
// in and reverting it.
func Check(pid int32, dbg Debugger, cfg Config, ops PatchOps, vmas []VMA) error {
	p := NewTargetProcess(pid, dbg, cfg)

	if err := p.Link(); err != nil {
		return err
	}
	defer func() {
		if err := p.Unlink(); err != nil {
			log.Errorf("check %d: unlink failed: %v", pid, err)
		}
	}()

	unwinder := NewFrameUnwinder()
	if err := p.Suspend(unwinder, AsPredicate(ops, vmas)); err != nil {
		return err
	}

	return p.cureThreads()
}
