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

func fastConfig() Config {
	c := DefaultConfig()
	c.InitialBackoffMillis = 1
	c.MaxBackoffMillis = 2
	c.MaxAttempts = 3
	return c
}

func TestSuspendSucceedsImmediatelyWhenPredicatePasses(t *testing.T) {
	dbg := newFakeDebugger()
	p := NewTargetProcess(1, dbg, fastConfig())
	p.SetTaskLister(&fakeTaskLister{snapshots: [][]int32{{1}}})

	calls := 0
	err := p.Suspend(&scriptedUnwinder{bts: map[int32]*Backtrace{}}, func(t *Thread, bt *Backtrace) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Suspend() = %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("predicate called %d times, want exactly 1", calls)
	}
}

func TestSuspendRetriesOnAgainThenSucceeds(t *testing.T) {
	dbg := newFakeDebugger()
	p := NewTargetProcess(1, dbg, fastConfig())
	p.SetTaskLister(&fakeTaskLister{snapshots: [][]int32{{1}}})

	attempt := 0
	err := p.Suspend(&scriptedUnwinder{bts: map[int32]*Backtrace{}}, func(t *Thread, bt *Backtrace) error {
		attempt++
		if attempt < 2 {
			return ErrAgain()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Suspend() = %v, want nil", err)
	}
	if attempt != 2 {
		t.Fatalf("predicate ran %d times, want exactly 2", attempt)
	}
	// A successful Suspend leaves the target seized so Patch/Check can run
	// their own work before curing; only the retried (failed) attempt's
	// threads were released.
	if p.threads.Empty() {
		t.Fatalf("successful suspend should leave the target seized")
	}
}

func TestSuspendGivesUpAfterMaxAttempts(t *testing.T) {
	dbg := newFakeDebugger()
	p := NewTargetProcess(1, dbg, fastConfig())
	p.SetTaskLister(&fakeTaskLister{snapshots: [][]int32{{1}}})

	err := p.Suspend(&scriptedUnwinder{bts: map[int32]*Backtrace{}}, func(t *Thread, bt *Backtrace) error {
		return ErrAgain()
	})
	kind, ok := KindOf(err)
	if !ok || kind != KindTimeout {
		t.Fatalf("KindOf(err) = %v, ok=%v, want KindTimeout", kind, ok)
	}
	if !p.threads.Empty() {
		t.Fatalf("every thread must be released once the retry budget is exhausted")
	}
}

func TestSuspendAbortsImmediatelyOnFatalPredicateError(t *testing.T) {
	dbg := newFakeDebugger()
	p := NewTargetProcess(1, dbg, fastConfig())
	p.SetTaskLister(&fakeTaskLister{snapshots: [][]int32{{1}}})

	fatal := errors.New("unrecoverable")
	calls := 0
	err := p.Suspend(&scriptedUnwinder{bts: map[int32]*Backtrace{}}, func(t *Thread, bt *Backtrace) error {
		calls++
		return fatal
	})
	if calls != 1 {
		t.Fatalf("predicate ran %d times, want exactly 1 (no retry on a fatal error)", calls)
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindPredicate {
		t.Fatalf("KindOf(err) = %v, ok=%v, want KindPredicate", kind, ok)
	}
}
