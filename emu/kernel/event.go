/*
 * CTREMU - Kernel synchronization objects
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package kernel

// Object is anything that can be placed in a handle table.
type Object interface {
	TypeName() string
	Name() string
}

// WaitObject is an object a thread can block on.
type WaitObject interface {
	Object
	shouldWait(th *Thread) bool // True if th must block.
	acquire(th *Thread)         // Take ownership once signaled.
	addWaiter(th *Thread)
	removeWaiter(th *Thread)
	waitingThreads() []*Thread
}

// List of threads blocked on an object.
type waitList struct {
	waiters []*Thread
}

func (w *waitList) addWaiter(th *Thread) {
	for _, t := range w.waiters {
		if t == th {
			return
		}
	}
	w.waiters = append(w.waiters, th)
}

func (w *waitList) removeWaiter(th *Thread) {
	for i, t := range w.waiters {
		if t == th {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

func (w *waitList) waitingThreads() []*Thread {
	return append([]*Thread{}, w.waiters...)
}

// ResetType controls how an Event behaves once a waiter acquires it.
type ResetType uint32

const (
	OneShot ResetType = iota // Cleared when one waiter is released.
	Sticky                   // Stays signaled until cleared.
)

// Event is a guest visible event object.
type Event struct {
	waitList
	name     string
	reset    ResetType
	signaled bool
}

func (e *Event) TypeName() string {
	return "Event"
}

func (e *Event) Name() string {
	return e.name
}

func (e *Event) Signaled() bool {
	return e.signaled
}

func (e *Event) ResetType() ResetType {
	return e.reset
}

func (e *Event) shouldWait(_ *Thread) bool {
	return !e.signaled
}

func (e *Event) acquire(_ *Thread) {
	if e.reset == OneShot {
		e.signaled = false
	}
}

// Create a new event.
func (k *Kernel) CreateEvent(reset ResetType, name string) *Event {
	return &Event{name: name, reset: reset}
}

// Signal event and release waiting threads.
func (k *Kernel) SignalEvent(e *Event) {
	e.signaled = true
	k.wakeupWaiters(e)
}

// Clear event.
func (k *Kernel) ClearEvent(e *Event) {
	e.signaled = false
}

// Best priority waiter, first to wait among equals.
func highestWaiter(obj WaitObject) *Thread {
	var best *Thread
	for _, th := range obj.waitingThreads() {
		if best == nil || th.priority < best.priority {
			best = th
		}
	}
	return best
}

// Release threads waiting on obj by priority while it stays available.
func (k *Kernel) wakeupWaiters(obj WaitObject) {
	for {
		th := highestWaiter(obj)
		if th == nil || obj.shouldWait(th) {
			return
		}
		obj.acquire(th)
		obj.removeWaiter(th)
		th.waitingOn = nil
		k.resumeThread(th, ResultSuccess)
	}
}
