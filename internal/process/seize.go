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

	"github.com/talismancer/nsb/internal/log"
)

// Seize brings every thread of the target under our control. It enumerates
// the target's threads, stops every one not yet seized, and repeats until
// the most recently appended thread is itself already seized: at that point
// no thread could have been created between its sighting and its stop
// without becoming the new tail.
func (p *TargetProcess) Seize() error {
	log.WithField("pid", p.Pid).Debugf("seize: stopping every thread")

	for {
		ids, err := p.lister.ListTasks(p.Pid)
		if err != nil {
			p.cureThreads()
			return newError(KindOS, "seize", err)
		}
		for _, id := range ids {
			if !p.threads.Contains(id) {
				p.threads.Append(id)
			}
		}

		if p.threads.Empty() {
			return &Error{Kind: KindNoThreads, Phase: "seize", Err: fmt.Errorf("pid %d: no threads collected", p.Pid)}
		}

		if !p.needsSeize() {
			break
		}

		if err := p.seizeThreads(); err != nil {
			p.cureThreads()
			return err
		}
	}

	return nil
}

// needsSeize reports whether seizing is still in progress: it's done only
// once the set is non-empty and its tail is already seized.
func (p *TargetProcess) needsSeize() bool {
	last, ok := p.threads.Last()
	if !ok {
		return true
	}
	return !last.Seized
}

// seizeThreads walks the set oldest to newest, stopping every unseized
// thread.
func (p *TargetProcess) seizeThreads() error {
	for _, t := range p.threads.Threads() {
		if t.Seized {
			continue
		}
		result, err := p.dbg.Stop(t.ID)
		if err != nil {
			return err
		}
		switch result {
		case Alive:
			t.Seized = true
		case Stopped:
			return &Error{Kind: KindBusy, Phase: "seize", Err: fmt.Errorf("thread %d already traced by another debugger", t.ID)}
		case Zombie, Dead, Vanished:
			log.Debugf("seize: thread %d is %s, dropping", t.ID, result)
			p.threads.Remove(t)
		default:
			return newError(KindOS, "seize", fmt.Errorf("unexpected stop result %v for thread %d", result, t.ID))
		}
	}
	return nil
}

// cureThreads resumes every seized thread and drops its entry, propagating
// the first error but walking unconditionally so no thread is ever
// abandoned on a partial failure.
func (p *TargetProcess) cureThreads() error {
	var first error
	for _, t := range p.threads.Threads() {
		if t.Seized {
			if err := p.dbg.Resume(t.ID); err != nil {
				log.Warningf("cure: failed to resume thread %d: %v", t.ID, err)
				if first == nil {
					first = err
				}
			}
		}
		p.threads.Remove(t)
	}
	return first
}
