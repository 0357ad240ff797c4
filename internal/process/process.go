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
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/talismancer/nsb/internal/log"
)

// ScratchRegion is the single page of anonymous, private, RWX memory mapped
// into the target at link time. It's the bounce buffer the gateway uses for
// variable-length syscall arguments, and it also hosts the syscall-injection
// trampoline the debugger jumps to.
type ScratchRegion struct {
	Addr uintptr
	Size uintptr
}

// TargetProcess is the session handle for one patch attempt against one
// target pid. Its lifetime brackets Link..Unlink; nothing about it is
// process-wide or shared across sessions, so concurrent sessions against
// different pids never contend on anything but the filesystem lock.
type TargetProcess struct {
	Pid     int32
	cfg     Config
	dbg     Debugger
	handle  *Handle // non-nil only between Link and Unlink
	scratch *ScratchRegion
	gateway *Gateway
	threads *ThreadSet
	lock    *flock.Flock
	lister  TaskLister
}

// Config carries the handful of knobs the orchestrator needs. Kept separate
// from internal/config.Config so this package has no import-time dependency
// on flag registration.
type Config struct {
	// MaxAttempts bounds Suspend's retry loop.
	MaxAttempts int
	// InitialBackoffMillis and MaxBackoffMillis bound the doubling backoff
	// sequence, in milliseconds.
	InitialBackoffMillis int
	MaxBackoffMillis     int
	// LockDir, if non-empty, is where the per-pid session lock is created.
	// Empty disables the lock.
	LockDir string
}

// DefaultConfig returns the conservative defaults: 25 attempts, 1ms initial
// backoff, 1000ms cap.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:          25,
		InitialBackoffMillis: 1,
		MaxBackoffMillis:     1000,
		LockDir:              "",
	}
}

// NewTargetProcess constructs a session for pid, not yet linked.
func NewTargetProcess(pid int32, dbg Debugger, cfg Config) *TargetProcess {
	return &TargetProcess{
		Pid:     pid,
		cfg:     cfg,
		dbg:     dbg,
		threads: NewThreadSet(),
		lister:  DefaultTaskLister,
	}
}

// SetTaskLister overrides the directory-enumeration collaborator; tests use
// this to script thread churn.
func (p *TargetProcess) SetTaskLister(l TaskLister) { p.lister = l }

// Link acquires the session lock, prepares the debugger's control thread,
// maps the scratch region, and binds the syscall trampoline. Any failure
// unwinds everything acquired so far before returning, never a partial
// success.
func (p *TargetProcess) Link() error {
	if err := p.acquireLock(); err != nil {
		return err
	}

	h, err := p.dbg.Prepare(p.Pid)
	if err != nil {
		p.releaseLock()
		return newError(KindPrepare, "link", err)
	}
	p.handle = h

	p.gateway = NewGateway(p.dbg, h, nil)
	size := uintptr(unix.Getpagesize())
	addr, err := p.gateway.Mmap(-1, 0, 0, size,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC)
	if err != nil {
		p.dbg.Cure(h)
		p.handle = nil
		p.releaseLock()
		return err
	}
	p.scratch = &ScratchRegion{Addr: addr, Size: size}
	p.gateway.setScratch(p.scratch)

	// The stub lives in the page's last word, so Gateway.Open can stage paths
	// from the start of the page without overwriting it.
	if err := p.dbg.BindStub(h, addr+size-wordSize); err != nil {
		p.gateway.Munmap(addr, size)
		p.dbg.Cure(h)
		p.handle, p.scratch = nil, nil
		p.releaseLock()
		return err
	}

	return nil
}

// Unlink tears down everything Link acquired. Idempotent: calling it again
// once the handle is nil is a no-op. A munmap failure is logged but does not
// prevent Cure from running: unlink is best-effort after the first failure,
// never abandoning the debugger handle.
func (p *TargetProcess) Unlink() error {
	if p.handle == nil {
		return nil
	}

	var first error
	if p.scratch != nil {
		if err := p.gateway.Munmap(p.scratch.Addr, p.scratch.Size); err != nil {
			log.Warningf("unlink %d: munmap of scratch region failed: %v", p.Pid, err)
			first = err
		}
		p.scratch = nil
	}

	if err := p.dbg.Cure(p.handle); err != nil {
		log.Errorf("unlink %d: cure failed: %v", p.Pid, err)
		if first == nil {
			first = err
		}
	}
	p.handle = nil
	p.releaseLock()
	return first
}

// WriteEdit writes an arbitrary-length byte range into the target at addr,
// splicing it into the word-aligned blocks the debugger requires (Read and
// Write only accept sizes that are multiples of the machine word). Used by
// patch descriptors whose edits rarely land on 8-byte boundaries or lengths.
func (p *TargetProcess) WriteEdit(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	alignedStart := addr &^ uintptr(wordSize-1)
	end := addr + uintptr(len(data))
	alignedEnd := (end + uintptr(wordSize-1)) &^ uintptr(wordSize-1)

	block := make([]byte, alignedEnd-alignedStart)
	if err := p.dbg.Read(p.handle.Pid, alignedStart, block); err != nil {
		return err
	}
	copy(block[addr-alignedStart:], data)
	return p.dbg.Write(p.handle.Pid, alignedStart, block)
}

// ErrAgain exposes the transient "not safe yet" signal a PatchOps
// CheckBacktrace implementation returns to ask Suspend to release every
// thread and retry.
func ErrAgain() error {
	return errAgain
}

func (p *TargetProcess) acquireLock() error {
	if p.cfg.LockDir == "" {
		return nil
	}
	path := filepath.Join(p.cfg.LockDir, fmt.Sprintf("nsb-%d.lock", p.Pid))
	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return newError(KindPrepare, "link", err)
	}
	if !locked {
		return &Error{Kind: KindBusy, Phase: "link", Err: fmt.Errorf("pid %d already held by another nsb session", p.Pid)}
	}
	p.lock = l
	return nil
}

func (p *TargetProcess) releaseLock() {
	if p.lock == nil {
		return
	}
	if err := p.lock.Unlock(); err != nil {
		log.Warningf("unlink %d: failed to release session lock: %v", p.Pid, err)
	}
	p.lock = nil
}
