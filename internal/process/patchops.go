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
	"github.com/mohae/deepcopy"
)

// VMA describes one mapped region of the target's address space, the unit
// CheckBacktrace reasons about when deciding whether a return address falls
// inside code about to be rewritten.
type VMA struct {
	Start uintptr
	End   uintptr
	Perms string
	Path  string
}

// Contains reports whether pc falls within this mapping.
func (v VMA) Contains(pc uint64) bool {
	return uintptr(pc) >= v.Start && uintptr(pc) < v.End
}

// PatchOps is the three-function capability a patch description supplies:
// apply the bytes, judge whether a given thread's backtrace is safe to patch
// under, and revert. Patch and Check never interpret these beyond calling
// them in order; everything domain-specific about a particular patch lives
// behind this interface.
type PatchOps interface {
	// Apply rewrites the target through p once every thread is quiescent.
	Apply(p *TargetProcess) error
	// CheckBacktrace is the Predicate passed to Suspend/ForEachThread: it
	// receives the patch's own target VMA list so it can tell whether bt
	// passes through code this patch is about to touch.
	CheckBacktrace(t *Thread, bt *Backtrace, vmas []VMA) error
	// Revert undoes Apply, used when Apply's caller decides not to keep a
	// committed patch.
	Revert(p *TargetProcess) error
}

// AsPredicate closes a PatchOps' CheckBacktrace over a fixed VMA list so it
// can be handed to ForEachThread/Suspend directly. The VMA slice is
// defensively copied, once from the caller and again for every call:
// CheckBacktrace runs once per thread across however
// many suspend attempts it takes, and nothing in this package should let a
// predicate's accidental mutation of one thread's view leak into another's.
func AsPredicate(ops PatchOps, vmas []VMA) Predicate {
	fixed := deepcopy.Copy(vmas).([]VMA)
	return func(t *Thread, bt *Backtrace) error {
		return ops.CheckBacktrace(t, bt, deepcopy.Copy(fixed).([]VMA))
	}
}
