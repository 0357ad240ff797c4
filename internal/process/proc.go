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
	"os"
	"strconv"
)

// TaskLister enumerates the thread ids of a process. The default
// implementation reads /proc/<pid>/task; tests substitute a fake that can
// grow the set between calls to exercise the quiescence race Seize guards
// against.
type TaskLister interface {
	ListTasks(pid int32) ([]int32, error)
}

// procTaskLister reads the real /proc filesystem. Plain os.ReadDir is used
// rather than a third-party walker: this is a single non-recursive read of
// a kernel-maintained directory, with nothing to gain from a heavier walker.
type procTaskLister struct{}

// DefaultTaskLister is the production TaskLister backed by /proc.
var DefaultTaskLister TaskLister = procTaskLister{}

func (procTaskLister) ListTasks(pid int32) ([]int32, error) {
	dir := "/proc/" + strconv.Itoa(int(pid)) + "/task"
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]int32, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.ParseInt(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, int32(tid))
	}
	return ids, nil
}
