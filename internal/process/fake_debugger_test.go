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

import "fmt"

// fakeDebugger simulates the Debugger Adapter in memory, so the Seize
// Controller, Stack Inspector and Suspend Orchestrator can be exercised
// without ever touching a real kernel or a real target.
type fakeDebugger struct {
	seized map[int32]bool
	stop   map[int32]StopResult // scripted result for every Stop(id)
	regs   map[int32]Regs
	mem    map[uintptr]byte

	prepareErr error
	injectRax  int64
	injectErr  error
	resumeErr  map[int32]error // scripted failure for every Resume(id)
}

func newFakeDebugger() *fakeDebugger {
	return &fakeDebugger{
		seized:    make(map[int32]bool),
		stop:      make(map[int32]StopResult),
		regs:      make(map[int32]Regs),
		mem:       make(map[uintptr]byte),
		resumeErr: make(map[int32]error),
	}
}

func (d *fakeDebugger) Prepare(pid int32) (*Handle, error) {
	if d.prepareErr != nil {
		return nil, d.prepareErr
	}
	d.seized[pid] = true
	return &Handle{Pid: pid}, nil
}

func (d *fakeDebugger) Cure(h *Handle) error {
	if h != nil {
		delete(d.seized, h.Pid)
	}
	return nil
}

func (d *fakeDebugger) BindStub(h *Handle, addr uintptr) error {
	h.stubAddr = addr
	return nil
}

func (d *fakeDebugger) Stop(id int32) (StopResult, error) {
	if r, ok := d.stop[id]; ok && r != Alive {
		return r, nil
	}
	d.seized[id] = true
	return Alive, nil
}

func (d *fakeDebugger) Resume(id int32) error {
	if err := d.resumeErr[id]; err != nil {
		return err
	}
	delete(d.seized, id)
	return nil
}

func (d *fakeDebugger) Read(id int32, addr uintptr, buf []byte) error {
	if err := checkAligned(len(buf)); err != nil {
		return err
	}
	for i := range buf {
		buf[i] = d.mem[addr+uintptr(i)]
	}
	return nil
}

func (d *fakeDebugger) Write(id int32, addr uintptr, buf []byte) error {
	if err := checkAligned(len(buf)); err != nil {
		return err
	}
	for i, b := range buf {
		d.mem[addr+uintptr(i)] = b
	}
	return nil
}

func (d *fakeDebugger) InjectSyscall(h *Handle, nr int, a1, a2, a3, a4, a5, a6 uintptr) (int64, error) {
	if d.injectErr != nil {
		return 0, d.injectErr
	}
	return d.injectRax, nil
}

func (d *fakeDebugger) Registers(id int32) (Regs, error) {
	r, ok := d.regs[id]
	if !ok {
		return Regs{}, fmt.Errorf("fakeDebugger: no registers scripted for thread %d", id)
	}
	return r, nil
}

// fakeTaskLister hands out a scripted sequence of /proc/<pid>/task
// snapshots, one per call, repeating the last one once exhausted. Used to
// simulate a thread being created mid-seize.
type fakeTaskLister struct {
	snapshots [][]int32
	call      int
}

func (l *fakeTaskLister) ListTasks(pid int32) ([]int32, error) {
	i := l.call
	if i >= len(l.snapshots) {
		i = len(l.snapshots) - 1
	}
	l.call++
	return l.snapshots[i], nil
}
