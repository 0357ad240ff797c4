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
	"errors"
	"testing"
)

func TestFrameUnwinderWalksChain(t *testing.T) {
	dbg := newFakeDebugger()
	const tid = 200
	dbg.regs[tid] = Regs{PC: 0x1000, FP: 0x2000}

	// frame at 0x2000: saved rbp = 0 (end of chain), return addr = 0x900
	writeFrame(dbg, 0x2000, 0, 0x900)

	u := NewFrameUnwinder()
	bt, err := u.BacktraceOf(dbg, tid)
	if err != nil {
		t.Fatalf("BacktraceOf() = %v, want nil", err)
	}
	want := []uint64{0x1000, 0x900}
	if len(bt.PCs) != len(want) || bt.PCs[0] != want[0] || bt.PCs[1] != want[1] {
		t.Fatalf("PCs = %v, want %v", bt.PCs, want)
	}
}

func TestFrameUnwinderStopsOnCorruptChain(t *testing.T) {
	dbg := newFakeDebugger()
	const tid = 201
	dbg.regs[tid] = Regs{PC: 0x1000, FP: 0x2000}
	// saved rbp points backwards: must not loop forever.
	writeFrame(dbg, 0x2000, 0x1000, 0x900)

	u := NewFrameUnwinder()
	bt, err := u.BacktraceOf(dbg, tid)
	if err != nil {
		t.Fatalf("BacktraceOf() = %v, want nil", err)
	}
	if len(bt.PCs) != 2 {
		t.Fatalf("PCs = %v, want exactly 2 frames (chain must stop)", bt.PCs)
	}
}

func writeFrame(dbg *fakeDebugger, fp uintptr, savedFP, retAddr uint64) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], savedFP)
	binary.LittleEndian.PutUint64(buf[8:16], retAddr)
	dbg.Write(0, fp, buf)
}

type scriptedUnwinder struct {
	bts map[int32]*Backtrace
}

func (u *scriptedUnwinder) BacktraceOf(dbg Debugger, tid int32) (*Backtrace, error) {
	if bt, ok := u.bts[tid]; ok {
		return bt, nil
	}
	return &Backtrace{ThreadID: tid}, nil
}
func (u *scriptedUnwinder) Destroy(bt *Backtrace) { bt.PCs = nil }

func TestForEachThreadStopsAtFirstNonNil(t *testing.T) {
	dbg := newFakeDebugger()
	p := NewTargetProcess(1, dbg, DefaultConfig())
	p.threads.Append(1).Seized = true
	p.threads.Append(2).Seized = true
	p.threads.Append(3).Seized = true

	var visited []int32
	boom := errors.New("boom")
	err := p.ForEachThread(&scriptedUnwinder{bts: map[int32]*Backtrace{}}, func(t *Thread, bt *Backtrace) error {
		visited = append(visited, t.ID)
		if t.ID == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ForEachThread() = %v, want boom", err)
	}
	if len(visited) != 2 {
		t.Fatalf("visited = %v, want exactly threads [1 2]", visited)
	}
}

func TestForEachThreadSkipsUnseized(t *testing.T) {
	dbg := newFakeDebugger()
	p := NewTargetProcess(1, dbg, DefaultConfig())
	p.threads.Append(1).Seized = true
	p.threads.Append(2) // never seized, e.g. dropped before inspection

	var visited []int32
	err := p.ForEachThread(&scriptedUnwinder{bts: map[int32]*Backtrace{}}, func(t *Thread, bt *Backtrace) error {
		visited = append(visited, t.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachThread() = %v, want nil", err)
	}
	if len(visited) != 1 || visited[0] != 1 {
		t.Fatalf("visited = %v, want [1]", visited)
	}
}
