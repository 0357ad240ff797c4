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
	"time"

	"github.com/cenkalti/backoff"

	"github.com/talismancer/nsb/internal/log"
)

// Suspend repeats {seize; inspect stacks} until every thread's backtrace is
// judged safe, or the attempt budget runs out. A predicate asking to retry
// means some thread is mid-something it shouldn't be patched during; we
// release everyone and give the target a moment to make progress before
// trying again, backing off between attempts up to a cap.
func (p *TargetProcess) Suspend(unwinder Unwinder, pred Predicate) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Duration(p.cfg.InitialBackoffMillis) * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(p.cfg.MaxBackoffMillis) * time.Millisecond,
		MaxElapsedTime:      0, // we drive the cutoff ourselves, by attempt count
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(b.NextBackOff())
		}

		if err := p.Seize(); err != nil {
			return err
		}

		err := p.ForEachThread(unwinder, pred)
		if err == nil {
			return nil
		}

		if !IsAgain(err) {
			p.cureThreads()
			if _, ok := KindOf(err); ok {
				// Already discriminated (e.g. a backtrace read failure);
				// preserve its Kind rather than relabeling it.
				return err
			}
			return newError(KindPredicate, "suspend", err)
		}

		log.Debugf("suspend: attempt %d/%d not yet quiescent, releasing and retrying", attempt+1, p.cfg.MaxAttempts)
		p.cureThreads()
	}

	return newError(KindTimeout, "suspend", fmt.Errorf("pid %d: no quiescent point after %d attempts", p.Pid, p.cfg.MaxAttempts))
}
