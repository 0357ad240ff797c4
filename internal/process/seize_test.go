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
	"testing"
)

func TestSeizeSimpleSet(t *testing.T) {
	dbg := newFakeDebugger()
	p := NewTargetProcess(100, dbg, DefaultConfig())
	p.SetTaskLister(&fakeTaskLister{snapshots: [][]int32{{100, 101}}})

	if err := p.Seize(); err != nil {
		t.Fatalf("Seize() = %v, want nil", err)
	}
	got := p.threads.Snapshot()
	if len(got) != 2 || got[0] != 100 || got[1] != 101 {
		t.Fatalf("threads = %v, want [100 101]", got)
	}
	for _, id := range got {
		if !dbg.seized[id] {
			t.Fatalf("thread %d should have been seized", id)
		}
	}
}

// TestSeizeObservesLateThread simulates a new thread appearing between the
// first and second enumeration: quiescence must not be declared until a
// pass where the tail was already seized.
func TestSeizeObservesLateThread(t *testing.T) {
	dbg := newFakeDebugger()
	p := NewTargetProcess(100, dbg, DefaultConfig())
	p.SetTaskLister(&fakeTaskLister{snapshots: [][]int32{
		{100},
		{100, 101}, // 101 forked in between enumeration passes
		{100, 101},
	}})

	if err := p.Seize(); err != nil {
		t.Fatalf("Seize() = %v, want nil", err)
	}
	got := p.threads.Snapshot()
	if len(got) != 2 {
		t.Fatalf("threads = %v, want 2 entries", got)
	}
	if !p.threads.Contains(101) {
		t.Fatalf("the late-appearing thread should have been collected")
	}
}

func TestSeizeRejectsForeignTracer(t *testing.T) {
	dbg := newFakeDebugger()
	dbg.stop[101] = Stopped
	p := NewTargetProcess(100, dbg, DefaultConfig())
	p.SetTaskLister(&fakeTaskLister{snapshots: [][]int32{{100, 101}}})

	err := p.Seize()
	if err == nil {
		t.Fatalf("Seize() = nil, want KindBusy error")
	}
	if kind, ok := KindOf(err); !ok || kind != KindBusy {
		t.Fatalf("KindOf(err) = %v, want KindBusy", kind)
	}
	// seize must have released everything it stopped before failing.
	if len(dbg.seized) != 0 {
		t.Fatalf("seized = %v, want everything released on failure", dbg.seized)
	}
}

func TestSeizeDropsVanishedThreads(t *testing.T) {
	dbg := newFakeDebugger()
	dbg.stop[101] = Vanished
	p := NewTargetProcess(100, dbg, DefaultConfig())
	// Once 101 is found vanished it no longer shows up in /proc either, so
	// the next enumeration pass settles on just the surviving thread.
	p.SetTaskLister(&fakeTaskLister{snapshots: [][]int32{{100, 101}, {100}}})

	if err := p.Seize(); err != nil {
		t.Fatalf("Seize() = %v, want nil", err)
	}
	if p.threads.Contains(101) {
		t.Fatalf("vanished thread 101 should have been dropped from the set")
	}
}

func TestCureReleasesEveryThreadEvenOnPartialFailure(t *testing.T) {
	dbg := newFakeDebugger()
	p := NewTargetProcess(100, dbg, DefaultConfig())
	p.SetTaskLister(&fakeTaskLister{snapshots: [][]int32{{100, 101, 102}}})
	if err := p.Seize(); err != nil {
		t.Fatalf("Seize() = %v, want nil", err)
	}

	dbg.resumeErr[101] = errors.New("resume failed")
	if err := p.cureThreads(); err == nil {
		t.Fatalf("cureThreads() = nil, want the resume failure of thread 101")
	}
	if !p.threads.Empty() {
		t.Fatalf("cure should empty the thread set regardless of resume errors")
	}
	if dbg.seized[102] {
		t.Fatalf("thread 102 should still be resumed after thread 101 failed")
	}
}
