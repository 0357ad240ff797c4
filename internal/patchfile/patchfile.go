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

// Package patchfile reads the on-disk description of a patch: the target
// VMAs a backtrace check must avoid, and the byte-level edits to apply. The
// file format is plain JSON; per-field changes against a previously loaded
// revision are reported as RFC 6902 operations so a caller can log exactly
// what a patchfile update touched before committing it.
package patchfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattbaird/jsonpatch"

	"github.com/talismancer/nsb/internal/process"
)

// Edit is one byte-range rewrite: Original is kept so Revert can restore it
// without re-reading the target. Load does not compare Original against the
// target's memory.
type Edit struct {
	Addr     uintptr `json:"addr"`
	Original []byte  `json:"original"`
	Patched  []byte  `json:"patched"`
}

// Region mirrors process.VMA in the patchfile's JSON shape; kept separate so
// this package's wire format doesn't change if process.VMA grows unrelated
// fields.
type Region struct {
	Start uintptr `json:"start"`
	End   uintptr `json:"end"`
	Path  string  `json:"path,omitempty"`
}

// Descriptor is the parsed form of a patchfile: the target binary, the
// memory regions the patch touches, and the byte-level edits to apply.
type Descriptor struct {
	Binary  string   `json:"binary"`
	Regions []Region `json:"regions"`
	Edits   []Edit   `json:"edits"`
}

// Load reads and parses a patchfile from disk.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("patchfile: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("patchfile: %s: %w", path, err)
	}
	return &d, nil
}

// Diff reports what changed between two patchfile revisions as RFC 6902
// operations, so an operator re-running a patch can see exactly which edits
// or regions moved since the last run.
func Diff(previous, next *Descriptor) ([]jsonpatch.JsonPatchOperation, error) {
	before, err := json.Marshal(previous)
	if err != nil {
		return nil, err
	}
	after, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreatePatch(before, after)
}

// VMAs converts the descriptor's regions into the process package's VMA
// type, for handing to process.AsPredicate.
func (d *Descriptor) VMAs() []process.VMA {
	out := make([]process.VMA, 0, len(d.Regions))
	for _, r := range d.Regions {
		out = append(out, process.VMA{Start: r.Start, End: r.End, Path: r.Path, Perms: "rwxp"})
	}
	return out
}

// Ops turns a Descriptor into a process.PatchOps: Apply writes every edit's
// Patched bytes, CheckBacktrace asks for a retry while any address in a
// thread's backtrace (its program counter or a return address) sits inside
// one of the declared regions, and Revert
// writes each edit's Original bytes back.
func (d *Descriptor) Ops() process.PatchOps {
	return &byteOps{d: d}
}

type byteOps struct {
	d *Descriptor
}

func (o *byteOps) Apply(p *process.TargetProcess) error {
	for _, e := range o.d.Edits {
		if err := p.WriteEdit(e.Addr, e.Patched); err != nil {
			return fmt.Errorf("apply edit at %#x: %w", e.Addr, err)
		}
	}
	return nil
}

func (o *byteOps) Revert(p *process.TargetProcess) error {
	var first error
	for _, e := range o.d.Edits {
		if err := p.WriteEdit(e.Addr, e.Original); err != nil && first == nil {
			first = fmt.Errorf("revert edit at %#x: %w", e.Addr, err)
		}
	}
	return first
}

func (o *byteOps) CheckBacktrace(t *process.Thread, bt *process.Backtrace, vmas []process.VMA) error {
	for _, pc := range bt.PCs {
		for _, v := range vmas {
			if v.Contains(pc) {
				return process.ErrAgain()
			}
		}
	}
	return nil
}
