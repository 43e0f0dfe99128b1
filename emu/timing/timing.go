package timing

/*
 * CTREMU - Core timing event scheduler
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

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/rcornwell/ctremu/util/debug"
)

const (
	BaseClockRate  = 268111856 // ARM11 cycles per second.
	MaxSliceLength = 20000     // Longest run of the CPU without checking events.
)

// Callback is invoked when an event fires. cyclesLate is how far past
// the target the clock was when the event was dispatched.
type Callback = func(userData uint64, cyclesLate int64)

// EventType is a registered callback.
type EventType struct {
	name     string
	callback Callback
	timing   *Timing // Registry that owns this type.
}

// Name of the event type.
func (et *EventType) Name() string {
	return et.name
}

type event struct {
	target   uint64     // Absolute cycle to fire at.
	et       *EventType // What to call.
	userData uint64     // Argument to callback.
	prev     *event
	next     *event
}

// Pending describes one queued event.
type Pending struct {
	Name     string
	Target   uint64
	UserData uint64
}

// Timing owns the virtual clock and the event queue.
type Timing struct {
	ticks       uint64 // Current cycle count.
	idledCycles uint64 // Cycles skipped by Idle.
	sliceLength int64  // Length of current slice.
	downcount   int64  // Cycles left in current slice.
	strict      bool   // Panic on duplicate registration.
	events      map[string]*EventType
	head        *event
	tail        *event
	log         *slog.Logger
}

// Create a new timing core.
func New(logger *slog.Logger) *Timing {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Timing{log: logger}
	t.Init()
	return t
}

// Reset the clock and forget all events and registrations.
func (t *Timing) Init() {
	t.ticks = 0
	t.idledCycles = 0
	t.sliceLength = MaxSliceLength
	t.downcount = MaxSliceLength
	t.events = map[string]*EventType{}
	t.head = nil
	t.tail = nil
}

// Drop everything, event types from this session are no longer valid.
func (t *Timing) Shutdown() {
	for ev := t.head; ev != nil; ev = ev.next {
		ev.prev = nil
	}
	t.head = nil
	t.tail = nil
	for _, et := range t.events {
		et.timing = nil
	}
	t.events = map[string]*EventType{}
}

// Duplicate registrations panic instead of warning.
func (t *Timing) SetStrict(strict bool) {
	t.strict = strict
}

// Register a new event type.
func (t *Timing) RegisterEvent(name string, cb Callback) *EventType {
	if et, ok := t.events[name]; ok {
		if t.strict {
			panic("timing: event type already registered: " + name)
		}
		t.log.Warn("timing: event type already registered", "name", name)
		return et
	}
	et := &EventType{name: name, callback: cb, timing: t}
	t.events[name] = et
	return et
}

// Validate event type belongs to this session.
func (t *Timing) check(et *EventType) {
	if et == nil {
		panic("timing: nil event type")
	}
	if et.timing != t || t.events[et.name] != et {
		panic("timing: event type not registered: " + et.name)
	}
}

// Schedule an event cyclesIntoFuture from now.
func (t *Timing) ScheduleEvent(cyclesIntoFuture int64, et *EventType, userData uint64) {
	t.check(et)

	target := t.ticks
	if cyclesIntoFuture > 0 {
		target += uint64(cyclesIntoFuture)
	} else if uint64(-cyclesIntoFuture) < target {
		target -= uint64(-cyclesIntoFuture)
	} else {
		target = 0
	}

	ev := &event{target: target, et: et, userData: userData}
	debug.Debugf("timing", debug.Mask(), debug.Timing, "schedule %s at %d (now %d)", et.name, target, t.ticks)

	// Walk back from tail, most events go at the end.
	evptr := t.tail
	for evptr != nil && evptr.target > target {
		evptr = evptr.prev
	}

	if evptr == nil {
		// New head of list.
		ev.next = t.head
		if t.head != nil {
			t.head.prev = ev
		} else {
			t.tail = ev
		}
		t.head = ev
	} else {
		// Insert after evptr, keeps equal targets in order.
		ev.prev = evptr
		ev.next = evptr.next
		if evptr.next != nil {
			evptr.next.prev = ev
		} else {
			t.tail = ev
		}
		evptr.next = ev
	}

	t.forceCheck(target)
}

// Shorten current slice if event lands before it ends.
func (t *Timing) forceCheck(target uint64) {
	var left int64
	if target > t.ticks {
		left = int64(target - t.ticks)
	}
	if left < t.downcount {
		t.sliceLength -= t.downcount - left
		t.downcount = left
	}
}

// Remove an event from the list.
func (t *Timing) unlink(ev *event) {
	if ev.prev != nil {
		ev.prev.next = ev.next
	} else {
		t.head = ev.next
	}
	if ev.next != nil {
		ev.next.prev = ev.prev
	} else {
		t.tail = ev.prev
	}
	ev.prev = nil
	ev.next = nil
}

// Remove all events matching type and user data.
func (t *Timing) UnscheduleEvent(et *EventType, userData uint64) {
	t.check(et)
	evptr := t.head
	for evptr != nil {
		nxt := evptr.next
		if evptr.et == et && evptr.userData == userData {
			t.unlink(evptr)
		}
		evptr = nxt
	}
}

// Remove every event of a type.
func (t *Timing) UnscheduleAll(et *EventType) {
	t.check(et)
	evptr := t.head
	for evptr != nil {
		nxt := evptr.next
		if evptr.et == et {
			t.unlink(evptr)
		}
		evptr = nxt
	}
}

// Fire all events that are due, then start a new slice.
func (t *Timing) Advance() {
	for t.head != nil && t.head.target <= t.ticks {
		ev := t.head
		t.unlink(ev)
		late := int64(t.ticks - ev.target)
		debug.Debugf("timing", debug.Mask(), debug.Timing, "fire %s late %d", ev.et.name, late)
		ev.et.callback(ev.userData, late)
	}

	t.sliceLength = MaxSliceLength
	if t.head != nil {
		next := t.head.target - t.ticks
		if next < MaxSliceLength {
			t.sliceLength = int64(next)
		}
	}
	t.downcount = t.sliceLength
}

// Nothing can run, move the clock to the next event.
func (t *Timing) Idle() {
	if t.head == nil {
		t.idledCycles += MaxSliceLength
		t.ticks += MaxSliceLength
		t.downcount = 0
		return
	}
	if t.head.target > t.ticks {
		skip := t.head.target - t.ticks
		t.idledCycles += skip
		t.ticks = t.head.target
	}
	t.downcount = 0
}

// Account for cycles executed by the CPU.
func (t *Timing) AddTicks(cycles uint64) {
	t.ticks += cycles
	t.downcount -= int64(cycles)
}

// Cycles left before the CPU should return.
func (t *Timing) GetDowncount() int64 {
	return t.downcount
}

// Current cycle count.
func (t *Timing) GetTicks() uint64 {
	return t.ticks
}

// Cycles spent idling.
func (t *Timing) IdleTicks() uint64 {
	return t.idledCycles
}

// Emulated time since Init in microseconds.
func (t *Timing) GetGlobalTimeUs() uint64 {
	return CyclesToUs(t.ticks)
}

// Snapshot of queued events in firing order.
func (t *Timing) PendingEvents() []Pending {
	list := []Pending{}
	for ev := t.head; ev != nil; ev = ev.next {
		list = append(list, Pending{Name: ev.et.name, Target: ev.target, UserData: ev.userData})
	}
	return list
}

// Target of next event, false if queue empty.
func (t *Timing) NextEvent() (uint64, bool) {
	if t.head == nil {
		return 0, false
	}
	return t.head.target, true
}

func (p Pending) String() string {
	return fmt.Sprintf("%-32s %12d %016x", p.Name, p.Target, p.UserData)
}

// Convert cycles to microseconds without overflow.
func CyclesToUs(cycles uint64) uint64 {
	hi, lo := bits.Mul64(cycles, 1000000)
	us, _ := bits.Div64(hi, lo, BaseClockRate)
	return us
}

func UsToCycles(us uint64) int64 {
	hi, lo := bits.Mul64(us, BaseClockRate)
	cycles, _ := bits.Div64(hi%1000000, lo, 1000000)
	return int64(cycles)
}

func MsToCycles(ms uint64) int64 {
	hi, lo := bits.Mul64(ms, BaseClockRate)
	cycles, _ := bits.Div64(hi%1000, lo, 1000)
	return int64(cycles)
}

func NsToCycles(ns uint64) int64 {
	hi, lo := bits.Mul64(ns, BaseClockRate)
	cycles, _ := bits.Div64(hi%1000000000, lo, 1000000000)
	return int64(cycles)
}
