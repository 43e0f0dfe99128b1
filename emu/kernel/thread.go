/*
 * CTREMU - Kernel threads and scheduler
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

import (
	"fmt"

	"github.com/rcornwell/ctremu/emu/cpu"
	"github.com/rcornwell/ctremu/emu/timing"
	"github.com/rcornwell/ctremu/util/debug"
)

const (
	HighestPriority = 0
	LowestPriority  = 63
	numPriorities   = LowestPriority + 1
)

// ThreadState is the scheduling state of a thread.
type ThreadState int

const (
	Dormant ThreadState = iota
	Ready
	Running
	WaitSync
	WaitSleep
	Dead
)

var stateNames = []string{"dormant", "ready", "running", "wait_sync", "wait_sleep", "dead"}

func (s ThreadState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Thread is a guest thread.
type Thread struct {
	waitList
	id        uint32
	name      string
	priority  int
	state     ThreadState
	process   *Process
	context   cpu.ThreadContext
	waitingOn WaitObject // Object blocked on, nil if none.
	kernel    *Kernel
}

func (th *Thread) TypeName() string {
	return "Thread"
}

func (th *Thread) Name() string {
	return th.name
}

func (th *Thread) ID() uint32 {
	return th.id
}

func (th *Thread) Priority() int {
	return th.priority
}

func (th *Thread) State() ThreadState {
	return th.state
}

func (th *Thread) Process() *Process {
	return th.process
}

// Registers as last saved, or live registers if running.
func (th *Thread) Context() cpu.ThreadContext {
	if th.kernel != nil && th.kernel.current == th {
		var ctx cpu.ThreadContext
		th.kernel.cpu.SaveContext(&ctx)
		return ctx
	}
	return th.context
}

// Check if thread is blocked on obj.
func (th *Thread) IsWaitingOn(obj WaitObject) bool {
	return th.state == WaitSync && th.waitingOn == obj
}

// Threads waiting on a thread are released when it exits.
func (th *Thread) shouldWait(_ *Thread) bool {
	return th.state != Dead
}

func (th *Thread) acquire(_ *Thread) {
}

// ThreadInfo is a snapshot of a thread for display.
type ThreadInfo struct {
	ID        uint32
	Name      string
	Process   string
	Priority  int
	State     ThreadState
	PC        uint32
	WaitingOn string
	Current   bool
}

func (ti ThreadInfo) String() string {
	mark := " "
	if ti.Current {
		mark = "*"
	}
	return fmt.Sprintf("%s%4d %-16s %-12s %2d %-10s %08x %s", mark, ti.ID, ti.Name, ti.Process,
		ti.Priority, ti.State, ti.PC, ti.WaitingOn)
}

// Ready threads by priority, FIFO within a priority.
type readyQueue struct {
	queues [numPriorities][]*Thread
}

func (q *readyQueue) pushBack(th *Thread) {
	q.queues[th.priority] = append(q.queues[th.priority], th)
}

func (q *readyQueue) pushFront(th *Thread) {
	q.queues[th.priority] = append([]*Thread{th}, q.queues[th.priority]...)
}

func (q *readyQueue) remove(th *Thread) {
	list := q.queues[th.priority]
	for i, t := range list {
		if t == th {
			q.queues[th.priority] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Remove and return first thread with priority better than limit.
func (q *readyQueue) pop(limit int) *Thread {
	for prio := range limit {
		if len(q.queues[prio]) != 0 {
			th := q.queues[prio][0]
			q.queues[prio] = q.queues[prio][1:]
			return th
		}
	}
	return nil
}

func (q *readyQueue) clear() {
	for i := range q.queues {
		q.queues[i] = nil
	}
}

// Create a new thread in the ready state.
func (k *Kernel) CreateThread(name string, entry uint32, priority int, arg uint32,
	stackTop uint32, process *Process,
) (*Thread, ResultCode) {
	if priority < HighestPriority || priority > LowestPriority {
		return nil, ErrOutOfRange
	}
	if process == nil {
		return nil, ErrNotFound
	}
	k.nextThreadID++
	th := &Thread{
		id:       k.nextThreadID,
		name:     name,
		priority: priority,
		state:    Dormant,
		process:  process,
		kernel:   k,
	}
	th.context.PC = entry
	th.context.Regs[0] = arg
	th.context.Regs[cpu.RegSP] = stackTop
	k.threads = append(k.threads, th)
	k.threadByID[th.id] = th
	debug.DebugThreadf(th.id, debug.Mask(), debug.Kernel, "create %s entry %08x prio %d", name, entry, priority)
	k.makeReady(th)
	return th, ResultSuccess
}

// Thread currently owning the CPU, nil if idle.
func (k *Kernel) GetCurrentThread() *Thread {
	return k.current
}

// Put thread on ready queue and ask for a reschedule.
func (k *Kernel) makeReady(th *Thread) {
	th.state = Ready
	k.ready.pushBack(th)
	k.prepareReschedule()
}

func (k *Kernel) prepareReschedule() {
	if k.sched != nil {
		k.sched.PrepareReschedule()
	}
}

// Make a waiting thread ready again.
func (k *Kernel) WakeupThread(th *Thread) {
	if th.state != WaitSync && th.state != WaitSleep {
		return
	}
	if th.waitingOn != nil {
		th.waitingOn.removeWaiter(th)
		th.waitingOn = nil
	}
	k.tm.UnscheduleEvent(k.wakeupEvent, uint64(th.id))
	k.makeReady(th)
}

// Finish a wait with result placed in r0.
func (k *Kernel) resumeThread(th *Thread, result ResultCode) {
	k.setWaitResult(th, result)
	k.WakeupThread(th)
}

// Store result in live registers if thread holds CPU, otherwise saved context.
func (k *Kernel) setWaitResult(th *Thread, result ResultCode) {
	if th == k.current {
		k.cpu.SetReg(0, uint32(result))
		return
	}
	th.context.Regs[0] = uint32(result)
}

// Timer expired for a sleeping or waiting thread.
func (k *Kernel) wakeupCallback(threadID uint64, _ int64) {
	th, ok := k.threadByID[uint32(threadID)]
	if !ok {
		return
	}
	switch th.state {
	case WaitSleep:
		k.WakeupThread(th)
	case WaitSync:
		k.resumeThread(th, ErrTimeout)
	}
}

// Schedule thread to wake after ns nanoseconds.
func (k *Kernel) wakeAfterDelay(th *Thread, ns int64) {
	if ns < 0 {
		return
	}
	k.tm.ScheduleEvent(timing.NsToCycles(uint64(ns)), k.wakeupEvent, uint64(th.id))
}

// Put current thread to sleep for ns nanoseconds.
func (k *Kernel) SleepThread(ns int64) {
	th := k.current
	if th == nil {
		return
	}
	if ns == 0 {
		k.YieldThread()
		return
	}
	th.state = WaitSleep
	k.wakeAfterDelay(th, ns)
	k.prepareReschedule()
}

// Move current thread to the back of its priority.
func (k *Kernel) YieldThread() {
	th := k.current
	if th == nil || th.state != Running {
		return
	}
	k.makeReady(th)
}

// Block current thread on obj, ns < 0 waits forever.
func (k *Kernel) waitOn(obj WaitObject, ns int64) {
	th := k.current
	th.state = WaitSync
	th.waitingOn = obj
	obj.addWaiter(th)
	k.wakeAfterDelay(th, ns)
	k.prepareReschedule()
}

// Terminate a thread and release anyone waiting on it.
func (k *Kernel) ExitThread(th *Thread) {
	if th == nil || th.state == Dead {
		return
	}
	debug.DebugThreadf(th.id, debug.Mask(), debug.Kernel, "exit from %s", th.state)
	switch th.state {
	case Ready:
		k.ready.remove(th)
	case WaitSync:
		if th.waitingOn != nil {
			th.waitingOn.removeWaiter(th)
			th.waitingOn = nil
		}
	}
	k.tm.UnscheduleEvent(k.wakeupEvent, uint64(th.id))
	th.state = Dead
	k.wakeupWaiters(th)
	k.prepareReschedule()
}

// Change priority, moving thread in ready queue if needed.
func (k *Kernel) SetThreadPriority(th *Thread, priority int) ResultCode {
	if priority < HighestPriority || priority > LowestPriority {
		return ErrOutOfRange
	}
	if th.state == Ready {
		k.ready.remove(th)
		th.priority = priority
		k.ready.pushBack(th)
	} else {
		th.priority = priority
	}
	k.prepareReschedule()
	return ResultSuccess
}

// Pick the thread to run and switch to it.
func (k *Kernel) Reschedule() {
	cur := k.current
	var next *Thread
	if cur != nil && cur.state == Running {
		// Only a better priority thread can take the CPU.
		next = k.ready.pop(cur.priority)
		if next == nil {
			return
		}
		k.saveCurrent()
		cur.state = Ready
		k.ready.pushFront(cur)
	} else {
		next = k.ready.pop(numPriorities)
		if cur != nil {
			if next == cur {
				cur.state = Running
				return
			}
			k.saveCurrent()
		}
	}

	k.current = next
	if next == nil {
		debug.Debugf("kernel", debug.Mask(), debug.Kernel, "idle")
		return
	}
	debug.DebugThreadf(next.id, debug.Mask(), debug.Kernel, "switch in prio %d pc %08x", next.priority, next.context.PC)
	next.state = Running
	k.mem.SetCurrentPageTable(next.process.pageTable)
	k.cpu.LoadContext(&next.context)
}

// Copy CPU registers to the current thread.
func (k *Kernel) saveCurrent() {
	if k.current != nil {
		k.cpu.SaveContext(&k.current.context)
	}
}

// Snapshot of thread table.
func (k *Kernel) Threads() []ThreadInfo {
	list := make([]ThreadInfo, 0, len(k.threads))
	for _, th := range k.threads {
		ctx := th.Context()
		info := ThreadInfo{
			ID:       th.id,
			Name:     th.name,
			Priority: th.priority,
			State:    th.state,
			PC:       ctx.PC,
			Current:  th == k.current,
		}
		if th.process != nil {
			info.Process = th.process.name
		}
		if th.waitingOn != nil {
			info.WaitingOn = th.waitingOn.TypeName() + " " + th.waitingOn.Name()
		}
		list = append(list, info)
	}
	return list
}
