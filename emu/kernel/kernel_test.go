/*
 * CTREMU - Kernel test cases
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
	"encoding/binary"
	"testing"

	"github.com/rcornwell/ctremu/emu/cpu"
	"github.com/rcornwell/ctremu/emu/memory"
	"github.com/rcornwell/ctremu/emu/timing"
)

// CPU that only holds registers.
type fakeCPU struct {
	ctx  cpu.ThreadContext
	stop int
}

func (c *fakeCPU) Run() {}
func (c *fakeCPU) Step() {}
func (c *fakeCPU) PrepareReschedule() { c.stop++ }
func (c *fakeCPU) SaveContext(ctx *cpu.ThreadContext) { *ctx = c.ctx }
func (c *fakeCPU) LoadContext(ctx *cpu.ThreadContext) { c.ctx = *ctx }
func (c *fakeCPU) GetReg(n int) uint32 { return c.ctx.Regs[n] }
func (c *fakeCPU) SetReg(n int, value uint32) { c.ctx.Regs[n] = value }
func (c *fakeCPU) GetPC() uint32 { return c.ctx.PC }
func (c *fakeCPU) SetPC(pc uint32) { c.ctx.PC = pc }
func (c *fakeCPU) ClearInstructionCache() {}
func (c *fakeCPU) Kind() cpu.Kind { return cpu.Interpreter }
func (c *fakeCPU) Instructions() uint64 { return 0 }

type fakeSched struct {
	count int
}

func (s *fakeSched) PrepareReschedule() {
	s.count++
}

var (
	tm    *timing.Timing
	mem   *memory.Memory
	core  *fakeCPU
	sched *fakeSched
	k     *Kernel
	proc  *Process
)

func setup(t *testing.T) {
	t.Helper()
	tm = timing.New(nil)
	mem = memory.New()
	core = &fakeCPU{}
	sched = &fakeSched{}
	k = New(tm, core, mem, sched, nil)
	if err := k.Init(0); err != nil {
		t.Fatal(err)
	}
	proc = k.CreateProcess("test")
}

func newThread(t *testing.T, name string, priority int) *Thread {
	t.Helper()
	th, res := k.CreateThread(name, 0x1000*uint32(k.nextThreadID+1), priority, 0, memory.StackVAddrEnd, proc)
	if !res.IsSuccess() {
		t.Fatalf("CreateThread %s failed: %s", name, res)
	}
	return th
}

// Issue supervisor call with registers.
func svc(num uint32, regs ...uint32) {
	for i, r := range regs {
		core.SetReg(i, r)
	}
	k.CallSVC(num)
}

// Highest priority ready thread is picked.
func TestPriority(t *testing.T) {
	setup(t)
	newThread(t, "low", 30)
	hi := newThread(t, "high", 10)
	newThread(t, "mid", 20)
	if sched.count != 3 {
		t.Errorf("Creating threads did not request reschedule: %d", sched.count)
	}
	if k.GetCurrentThread() != nil {
		t.Errorf("Thread running before reschedule")
	}
	k.Reschedule()
	if k.GetCurrentThread() != hi {
		t.Fatalf("Wrong thread selected: %s", k.GetCurrentThread().Name())
	}
	if hi.State() != Running {
		t.Errorf("Selected thread not running: %s", hi.State())
	}
	if core.GetPC() != hi.context.PC {
		t.Errorf("Context not loaded")
	}
	if mem.CurrentPageTable() != proc.PageTable() {
		t.Errorf("Page table not installed")
	}

	// Nothing changes, nothing happens.
	k.Reschedule()
	if k.GetCurrentThread() != hi {
		t.Errorf("Idempotent reschedule switched thread")
	}
	running := 0
	for _, th := range k.threads {
		if th.State() == Running {
			running++
		}
	}
	if running != 1 {
		t.Errorf("Expected one running thread got: %d", running)
	}
}

// Equal priority does not preempt, better priority does.
func TestPreempt(t *testing.T) {
	setup(t)
	a := newThread(t, "a", 20)
	k.Reschedule()
	b := newThread(t, "b", 20)
	k.Reschedule()
	if k.GetCurrentThread() != a {
		t.Fatalf("Equal priority thread preempted")
	}
	core.SetReg(5, 55)

	c := newThread(t, "c", 19)
	k.Reschedule()
	if k.GetCurrentThread() != c || a.State() != Ready {
		t.Fatalf("Better priority did not preempt")
	}
	if a.context.Regs[5] != 55 {
		t.Errorf("Context not saved on preempt")
	}

	// Preempted thread resumes ahead of equal priority.
	k.ExitThread(c)
	k.Reschedule()
	if k.GetCurrentThread() != a {
		t.Errorf("Preempted thread did not resume first got: %s", k.GetCurrentThread().Name())
	}
	if core.GetReg(5) != 55 {
		t.Errorf("Context not restored")
	}
	if b.State() != Ready {
		t.Errorf("Thread b state: %s", b.State())
	}
}

// Yield rotates equal priority threads.
func TestYield(t *testing.T) {
	setup(t)
	a := newThread(t, "a", 40)
	b := newThread(t, "b", 40)
	c := newThread(t, "c", 40)
	k.Reschedule()
	order := []*Thread{a, b, c, a, b}
	for i, want := range order {
		if k.GetCurrentThread() != want {
			t.Fatalf("Step %d expected %s got %s", i, want.Name(), k.GetCurrentThread().Name())
		}
		svc(SVCSleepThread, 0, 0)
		k.Reschedule()
	}

	// Yield with nothing else ready keeps running.
	setup(t)
	a = newThread(t, "a", 40)
	k.Reschedule()
	k.YieldThread()
	k.Reschedule()
	if k.GetCurrentThread() != a || a.State() != Running {
		t.Errorf("Lone thread did not continue after yield")
	}
}

// Sleep removes thread until timer fires.
func TestSleep(t *testing.T) {
	setup(t)
	a := newThread(t, "a", 10)
	k.Reschedule()
	svc(SVCSleepThread, 1000000, 0)
	if a.State() != WaitSleep {
		t.Fatalf("Thread not sleeping: %s", a.State())
	}
	k.Reschedule()
	if k.GetCurrentThread() != nil {
		t.Fatalf("Thread running while sleeping")
	}
	tm.Idle()
	if tm.GetTicks() != uint64(timing.NsToCycles(1000000)) {
		t.Errorf("Wakeup at wrong time: %d", tm.GetTicks())
	}
	count := sched.count
	tm.Advance()
	if a.State() != Ready || sched.count == count {
		t.Errorf("Thread not woken: %s", a.State())
	}
	k.Reschedule()
	if k.GetCurrentThread() != a {
		t.Errorf("Woken thread not scheduled")
	}
}

// Wait on event until signaled by another thread.
func TestWaitEvent(t *testing.T) {
	setup(t)
	a := newThread(t, "a", 10)
	b := newThread(t, "b", 20)
	k.Reschedule()

	svc(SVCCreateEvent, uint32(OneShot))
	if ResultCode(core.GetReg(0)) != ResultSuccess {
		t.Fatalf("CreateEvent failed: %s", ResultCode(core.GetReg(0)))
	}
	handle := core.GetReg(1)
	obj, _ := proc.Handles().Get(handle)
	ev := obj.(*Event)

	svc(SVCWaitSynchronization1, handle, 0xffffffff, 0xffffffff)
	if !a.IsWaitingOn(ev) {
		t.Fatalf("Thread not waiting on event: %s", a.State())
	}
	k.Reschedule()
	if k.GetCurrentThread() != b {
		t.Fatalf("Thread b not running")
	}

	svc(SVCSignalEvent, handle)
	if a.State() != Ready {
		t.Fatalf("Waiter not released: %s", a.State())
	}
	if ResultCode(a.context.Regs[0]) != ResultSuccess {
		t.Errorf("Wait result not success: %s", ResultCode(a.context.Regs[0]))
	}
	if ev.Signaled() {
		t.Errorf("One shot event still signaled")
	}
	k.Reschedule()
	if k.GetCurrentThread() != a {
		t.Errorf("Released thread did not preempt")
	}
	if len(tm.PendingEvents()) != 0 {
		t.Errorf("Infinite wait left a timer")
	}
}

// Sticky event releases every waiter.
func TestStickyEvent(t *testing.T) {
	setup(t)
	ev := k.CreateEvent(Sticky, "sticky")
	handle, _ := proc.Handles().Create(ev)
	a := newThread(t, "a", 10)
	b := newThread(t, "b", 10)
	k.Reschedule()
	svc(SVCWaitSynchronization1, handle, 0xffffffff, 0xffffffff)
	k.Reschedule()
	svc(SVCWaitSynchronization1, handle, 0xffffffff, 0xffffffff)
	k.Reschedule()
	if k.GetCurrentThread() != nil {
		t.Fatalf("Thread running with all waiting")
	}
	k.SignalEvent(ev)
	if a.State() != Ready || b.State() != Ready {
		t.Errorf("Sticky event did not release all: %s %s", a.State(), b.State())
	}
	if !ev.Signaled() {
		t.Errorf("Sticky event was cleared")
	}

	// Already signaled, no wait.
	k.Reschedule()
	svc(SVCWaitSynchronization1, handle, 0, 0)
	if ResultCode(core.GetReg(0)) != ResultSuccess || k.GetCurrentThread().State() != Running {
		t.Errorf("Wait on signaled event blocked")
	}
	svc(SVCClearEvent, handle)
	svc(SVCWaitSynchronization1, handle, 0, 0)
	if ResultCode(core.GetReg(0)) != ErrTimeout {
		t.Errorf("Poll on clear event got: %s", ResultCode(core.GetReg(0)))
	}
}

// One shot event goes to the best priority waiter, not the first.
func TestWaitPriority(t *testing.T) {
	setup(t)
	ev := k.CreateEvent(OneShot, "prio")
	handle, _ := proc.Handles().Create(ev)
	low := newThread(t, "low", 40)
	k.Reschedule()
	svc(SVCWaitSynchronization1, handle, 0xffffffff, 0xffffffff)
	k.Reschedule()
	high := newThread(t, "high", 10)
	k.Reschedule()
	if k.GetCurrentThread() != high {
		t.Fatalf("High priority thread not running")
	}
	svc(SVCWaitSynchronization1, handle, 0xffffffff, 0xffffffff)
	k.Reschedule()

	k.SignalEvent(ev)
	if high.State() != Ready {
		t.Errorf("High priority waiter got: %s expected: %s", high.State(), Ready)
	}
	if low.State() != WaitSync || !low.IsWaitingOn(ev) {
		t.Errorf("Low priority waiter got: %s expected: %s", low.State(), WaitSync)
	}
	if ev.Signaled() {
		t.Errorf("One shot event still signaled")
	}

	// Next signal releases the remaining waiter.
	k.SignalEvent(ev)
	if low.State() != Ready {
		t.Errorf("Low priority waiter not released: %s", low.State())
	}
}

// Equal priority waiters are released in the order they waited.
func TestWaitFIFO(t *testing.T) {
	setup(t)
	ev := k.CreateEvent(OneShot, "fifo")
	handle, _ := proc.Handles().Create(ev)
	a := newThread(t, "a", 20)
	b := newThread(t, "b", 20)
	k.Reschedule()
	svc(SVCWaitSynchronization1, handle, 0xffffffff, 0xffffffff)
	k.Reschedule()
	svc(SVCWaitSynchronization1, handle, 0xffffffff, 0xffffffff)
	k.Reschedule()
	k.SignalEvent(ev)
	if a.State() != Ready || b.State() != WaitSync {
		t.Errorf("Release order got: a=%s b=%s", a.State(), b.State())
	}
}

// Wait times out.
func TestWaitTimeout(t *testing.T) {
	setup(t)
	a := newThread(t, "a", 10)
	k.Reschedule()
	ev := k.CreateEvent(OneShot, "never")
	handle, _ := proc.Handles().Create(ev)
	svc(SVCWaitSynchronization1, handle, 5000, 0)
	k.Reschedule()
	tm.Idle()
	tm.Advance()
	if a.State() != Ready {
		t.Fatalf("Wait did not time out: %s", a.State())
	}
	if ResultCode(a.context.Regs[0]) != ErrTimeout {
		t.Errorf("Timeout result got: %s", ResultCode(a.context.Regs[0]))
	}
	if len(ev.waitingThreads()) != 0 {
		t.Errorf("Thread still on wait list")
	}

	// Signal after timeout does nothing.
	k.SignalEvent(ev)
	if !ev.Signaled() {
		t.Errorf("Event not left signaled")
	}
}

// Waiters on a thread are released when it exits.
func TestWaitThread(t *testing.T) {
	setup(t)
	a := newThread(t, "a", 10)
	k.Reschedule()
	svc(SVCCreateThread, 20, 0x2000, 7, 0x0fff0000)
	if ResultCode(core.GetReg(0)) != ResultSuccess {
		t.Fatalf("CreateThread failed: %s", ResultCode(core.GetReg(0)))
	}
	handle := core.GetReg(1)
	child, ok := proc.thread(handle)
	if !ok {
		t.Fatalf("Thread handle not valid")
	}
	if child.context.Regs[0] != 7 || child.context.PC != 0x2000 || child.context.Regs[cpu.RegSP] != 0x0fff0000 {
		t.Errorf("Thread context not set up: %+v", child.context)
	}

	svc(SVCWaitSynchronization1, handle, 0xffffffff, 0xffffffff)
	k.Reschedule()
	if k.GetCurrentThread() != child {
		t.Fatalf("Child not running")
	}
	svc(SVCExitThread)
	if child.State() != Dead || a.State() != Ready {
		t.Errorf("Exit did not release waiter: %s %s", child.State(), a.State())
	}
	k.Reschedule()
	if k.GetCurrentThread() != a {
		t.Errorf("Parent not resumed")
	}
}

// Priority calls.
func TestThreadPriority(t *testing.T) {
	setup(t)
	a := newThread(t, "a", 30)
	b := newThread(t, "b", 40)
	k.Reschedule()
	svc(SVCGetThreadPriority, CurrentThread)
	if core.GetReg(1) != 30 {
		t.Errorf("GetThreadPriority got: %d", core.GetReg(1))
	}
	svc(SVCSetThreadPriority, CurrentThread, 64)
	if ResultCode(core.GetReg(0)) != ErrOutOfRange {
		t.Errorf("Invalid priority accepted")
	}
	svc(SVCSetThreadPriority, CurrentThread, 50)
	k.Reschedule()
	if k.GetCurrentThread() != b || a.Priority() != 50 {
		t.Errorf("Lowering priority did not switch thread")
	}
	svc(SVCCreateThread, 64, 0x2000, 0, 0)
	if ResultCode(core.GetReg(0)) != ErrOutOfRange {
		t.Errorf("CreateThread with bad priority got: %s", ResultCode(core.GetReg(0)))
	}
	svc(SVCGetThreadPriority, 0x1234)
	if ResultCode(core.GetReg(0)) != ErrInvalidHandle {
		t.Errorf("Bad handle accepted")
	}
}

// Handle table operations.
func TestHandles(t *testing.T) {
	setup(t)
	newThread(t, "a", 10)
	k.Reschedule()
	h := proc.Handles()
	ev := k.CreateEvent(OneShot, "x")
	handle, res := h.Create(ev)
	if !res.IsSuccess() || handle != firstHandle {
		t.Errorf("Create handle got: %x %s", handle, res)
	}
	svc(SVCCloseHandle, handle)
	if ResultCode(core.GetReg(0)) != ResultSuccess || h.Len() != 0 {
		t.Errorf("CloseHandle failed")
	}
	svc(SVCCloseHandle, handle)
	if ResultCode(core.GetReg(0)) != ErrInvalidHandle {
		t.Errorf("Double close accepted")
	}
	svc(SVCSignalEvent, handle)
	if ResultCode(core.GetReg(0)) != ErrInvalidHandle {
		t.Errorf("Signal on closed handle accepted")
	}
	for range maxHandles {
		h.Create(ev)
	}
	if _, res := h.Create(ev); res != ErrOutOfMemory {
		t.Errorf("Handle table did not fill")
	}
}

func TestUnknownSVC(t *testing.T) {
	setup(t)
	newThread(t, "a", 10)
	k.Reschedule()
	svc(0x7f)
	if ResultCode(core.GetReg(0)) != ErrNotImplemented {
		t.Errorf("Unknown svc got: %s", ResultCode(core.GetReg(0)))
	}
}

func TestSystemTick(t *testing.T) {
	setup(t)
	newThread(t, "a", 10)
	k.Reschedule()
	tm.AddTicks(0x123456789)
	svc(SVCGetSystemTick)
	if core.GetReg(0) != 0x23456789 || core.GetReg(1) != 1 {
		t.Errorf("GetSystemTick got: %x %x", core.GetReg(1), core.GetReg(0))
	}
}

// Fault and break kill threads.
func TestFault(t *testing.T) {
	setup(t)
	a := newThread(t, "a", 10)
	b := newThread(t, "b", 10)
	k.Reschedule()
	k.Fault(0x1234, "undefined instruction")
	if a.State() != Dead {
		t.Errorf("Faulting thread not killed")
	}
	k.Reschedule()
	if k.GetCurrentThread() != b {
		t.Errorf("Next thread not scheduled")
	}
	svc(SVCBreak, 1)
	if b.State() != Dead {
		t.Errorf("Break did not kill process")
	}
	k.Reschedule()
	if k.GetCurrentThread() != nil {
		t.Errorf("Thread running after break")
	}
}

type echoService struct {
	requests int
}

func (s *echoService) ServiceName() string {
	return "echo"
}

func (s *echoService) HandleSyncRequest(cmd []uint32) {
	s.requests++
	cmd[0] = cmd[0]&0xffff0000 | 2<<6
	cmd[1] = 0
	cmd[2] = cmd[1] + 42
}

type ports struct {
	echo *echoService
}

func (p *ports) ConnectToPort(name string) (SessionHandler, ResultCode) {
	if name != "echo" {
		return nil, ErrNotFound
	}
	return p.echo, ResultSuccess
}

// Connect to a port and send a request.
func TestSyncRequest(t *testing.T) {
	setup(t)
	echo := &echoService{}
	k.SetPortResolver(&ports{echo: echo})
	if res := proc.MapMemory(memory.HeapVAddr, memory.PageSize); !res.IsSuccess() {
		t.Fatalf("MapMemory failed: %s", res)
	}
	newThread(t, "a", 10)
	k.Reschedule()

	name := memory.HeapVAddr
	mem.WriteBlock(name, []byte("nope\x00"))
	svc(SVCConnectToPort, 0, name)
	if ResultCode(core.GetReg(0)) != ErrNotFound {
		t.Errorf("Unknown port got: %s", ResultCode(core.GetReg(0)))
	}
	mem.WriteBlock(name, []byte("echo\x00"))
	svc(SVCConnectToPort, 0, name)
	if ResultCode(core.GetReg(0)) != ResultSuccess {
		t.Fatalf("ConnectToPort failed: %s", ResultCode(core.GetReg(0)))
	}
	session := core.GetReg(1)

	buf := memory.HeapVAddr + 0x100
	mem.Write32(buf, 0x00010040)
	svc(SVCSendSyncRequest, session, buf)
	if ResultCode(core.GetReg(0)) != ResultSuccess || echo.requests != 1 {
		t.Fatalf("SendSyncRequest failed")
	}
	data, _ := mem.ReadBlock(buf, 12)
	if binary.LittleEndian.Uint32(data) != 0x00010080 || binary.LittleEndian.Uint32(data[8:]) != 42 {
		t.Errorf("Response not written back: %x", data)
	}
	svc(SVCSendSyncRequest, firstHandle+100, buf)
	if ResultCode(core.GetReg(0)) != ErrInvalidHandle {
		t.Errorf("Bad session accepted")
	}
}

// Process memory and main thread.
func TestProcessRun(t *testing.T) {
	setup(t)
	page := make([]byte, memory.PageSize)
	page[0] = 0xaa
	k.SetSharedPage(page)
	p := k.CreateProcess("app")
	p.Entry = memory.CodeVAddr
	th, res := p.Run(48, 0x4000)
	if !res.IsSuccess() {
		t.Fatalf("Run failed: %s", res)
	}
	if p.MainThread() != th || th.Priority() != 48 || th.context.PC != memory.CodeVAddr {
		t.Errorf("Main thread not set up")
	}
	if !p.PageTable().IsMapped(memory.StackVAddrEnd-0x4000) || p.PageTable().IsMapped(memory.StackVAddrEnd-0x4001) {
		t.Errorf("Stack not mapped correctly")
	}
	if by, _ := p.PageTable().Read8(memory.SharedPageVAddr); by != 0xaa {
		t.Errorf("Shared page not mapped")
	}
	size, _ := p.PageTable().Read32(memory.ConfigMemVAddr + configAppMemAlloc)
	if size != 64<<20 {
		t.Errorf("Config memory size got: %x", size)
	}
	if res := p.MapMemory(memory.HeapVAddr, 64<<20); res != ErrOutOfMemory {
		t.Errorf("Memory limit not enforced: %s", res)
	}
}

func TestInitShutdown(t *testing.T) {
	setup(t)
	if err := k.Init(NumSystemModes); err == nil {
		t.Errorf("Invalid system mode accepted")
	}
	newThread(t, "a", 10)
	newThread(t, "b", 10)
	k.Reschedule()
	svc(SVCSleepThread, 100, 0)
	k.Shutdown()
	if k.GetCurrentThread() != nil || len(k.Threads()) != 0 || len(k.Processes()) != 0 {
		t.Errorf("Shutdown left state")
	}
	if len(tm.PendingEvents()) != 0 {
		t.Errorf("Shutdown left wakeup pending")
	}
	k.Shutdown()
}

func TestThreadsSnapshot(t *testing.T) {
	setup(t)
	a := newThread(t, "a", 10)
	newThread(t, "b", 11)
	k.Reschedule()
	core.SetPC(0x4444)
	list := k.Threads()
	if len(list) != 2 {
		t.Fatalf("Expected 2 threads got: %d", len(list))
	}
	if !list[0].Current || list[0].PC != 0x4444 || list[0].ID != a.ID() || list[0].Process != "test" {
		t.Errorf("Current thread info wrong: %+v", list[0])
	}
	if list[1].State != Ready || list[1].String() == "" {
		t.Errorf("Ready thread info wrong: %+v", list[1])
	}
}
