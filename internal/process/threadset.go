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

import "container/list"

// Thread is one observed thread of the target, tagged with its seize state.
type Thread struct {
	ID     int32
	Seized bool
}

// ThreadSet is an append-only, insertion-ordered collection of threads. The
// quiescence loop only needs membership test, tail-append, in-order walk,
// and O(1) inspection of the most recently appended element, so a plain
// container/list backs it rather than anything fancier.
type ThreadSet struct {
	order *list.List
	index map[int32]*list.Element
}

// NewThreadSet returns an empty thread set.
func NewThreadSet() *ThreadSet {
	return &ThreadSet{
		order: list.New(),
		index: make(map[int32]*list.Element),
	}
}

// Contains reports whether id has already been observed.
func (s *ThreadSet) Contains(id int32) bool {
	_, ok := s.index[id]
	return ok
}

// Append inserts a newly observed thread at the tail. The caller must have
// checked Contains first: duplicate ids are forbidden by invariant.
func (s *ThreadSet) Append(id int32) *Thread {
	t := &Thread{ID: id}
	s.index[id] = s.order.PushBack(t)
	return t
}

// Remove deletes a thread, wherever it sits in the order. Used when a thread
// is found dead/zombie/vanished at stop time, or after a successful resume.
func (s *ThreadSet) Remove(t *Thread) {
	elem, ok := s.index[t.ID]
	if !ok {
		return
	}
	s.order.Remove(elem)
	delete(s.index, t.ID)
}

// Len reports the number of threads currently tracked.
func (s *ThreadSet) Len() int { return s.order.Len() }

// Empty reports whether the set holds no threads.
func (s *ThreadSet) Empty() bool { return s.order.Len() == 0 }

// Iter walks the set oldest to newest, calling fn for each thread. fn may
// not mutate the set; callers that need to remove while walking should
// collect and remove afterwards (see cure, in seize.go).
func (s *ThreadSet) Iter(fn func(*Thread)) {
	for e := s.order.Front(); e != nil; e = e.Next() {
		fn(e.Value.(*Thread))
	}
}

// Last returns the most recently appended thread and whether the set is
// non-empty. Seizing is complete once this thread is itself seized: nothing
// could have been created after it without becoming the new tail.
func (s *ThreadSet) Last() (*Thread, bool) {
	e := s.order.Back()
	if e == nil {
		return nil, false
	}
	return e.Value.(*Thread), true
}

// ClearInPlace empties the set without reallocating its index, for when an
// entire session is abandoned.
func (s *ThreadSet) ClearInPlace() {
	s.order.Init()
	for k := range s.index {
		delete(s.index, k)
	}
}

// Threads returns the tracked threads in insertion order, as pointers so
// callers (the Seize Controller) can flip Seized in place. The slice is a
// point-in-time copy of the list structure; mutating Seized through it is
// fine, removing from the set should go through Remove.
func (s *ThreadSet) Threads() []*Thread {
	out := make([]*Thread, 0, s.order.Len())
	s.Iter(func(t *Thread) { out = append(out, t) })
	return out
}

// Snapshot returns the current ids in insertion order, for tests asserting
// quiescence against a simulated /proc listing.
func (s *ThreadSet) Snapshot() []int32 {
	ids := make([]int32, 0, s.order.Len())
	s.Iter(func(t *Thread) { ids = append(ids, t.ID) })
	return ids
}
