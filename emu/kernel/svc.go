/*
 * CTREMU - Supervisor call handlers
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
	"fmt"

	"github.com/rcornwell/ctremu/util/debug"
)

// Supervisor call numbers.
const (
	SVCCreateThread         = 0x08
	SVCExitThread           = 0x09
	SVCSleepThread          = 0x0A
	SVCGetThreadPriority    = 0x0B
	SVCSetThreadPriority    = 0x0C
	SVCCreateEvent          = 0x17
	SVCSignalEvent          = 0x18
	SVCClearEvent           = 0x19
	SVCCloseHandle          = 0x23
	SVCWaitSynchronization1 = 0x24
	SVCGetSystemTick        = 0x28
	SVCConnectToPort        = 0x2D
	SVCSendSyncRequest      = 0x32
	SVCBreak                = 0x3C
	SVCOutputDebugString    = 0x3D
)

const (
	CommandBufferWords   = 64 // Size of IPC command buffer.
	maxPortNameLength    = 12
	maxDebugStringLength = 256
)

type svcFunc func(k *Kernel, th *Thread)

var svcTable = map[uint32]struct {
	name string
	fn   svcFunc
}{
	SVCCreateThread:         {"CreateThread", svcCreateThread},
	SVCExitThread:           {"ExitThread", svcExitThread},
	SVCSleepThread:          {"SleepThread", svcSleepThread},
	SVCGetThreadPriority:    {"GetThreadPriority", svcGetThreadPriority},
	SVCSetThreadPriority:    {"SetThreadPriority", svcSetThreadPriority},
	SVCCreateEvent:          {"CreateEvent", svcCreateEvent},
	SVCSignalEvent:          {"SignalEvent", svcSignalEvent},
	SVCClearEvent:           {"ClearEvent", svcClearEvent},
	SVCCloseHandle:          {"CloseHandle", svcCloseHandle},
	SVCWaitSynchronization1: {"WaitSynchronization1", svcWaitSynchronization1},
	SVCGetSystemTick:        {"GetSystemTick", svcGetSystemTick},
	SVCConnectToPort:        {"ConnectToPort", svcConnectToPort},
	SVCSendSyncRequest:      {"SendSyncRequest", svcSendSyncRequest},
	SVCBreak:                {"Break", svcBreak},
	SVCOutputDebugString:    {"OutputDebugString", svcOutputDebugString},
}

// Dispatch a supervisor call from the current thread.
func (k *Kernel) CallSVC(num uint32) {
	th := k.current
	if th == nil {
		k.log.Error("kernel: svc with no current thread", "svc", num)
		return
	}
	entry, ok := svcTable[num]
	if !ok {
		k.log.Warn("kernel: unimplemented svc", "svc", fmt.Sprintf("0x%02X", num), "thread", th.id)
		k.setResult(ErrNotImplemented)
		return
	}
	debug.DebugThreadf(th.id, debug.Mask(), debug.SVC, "svc %s", entry.name)
	entry.fn(k, th)
}

// Guest fault kills the thread.
func (k *Kernel) Fault(pc uint32, reason string) {
	th := k.current
	if th == nil {
		k.log.Error("kernel: fault with no current thread", "pc", fmt.Sprintf("%08x", pc), "reason", reason)
		return
	}
	k.log.Error("kernel: thread fault", "thread", th.id, "name", th.name,
		"pc", fmt.Sprintf("%08x", pc), "reason", reason)
	k.ExitThread(th)
}

func (k *Kernel) reg(n int) uint32 {
	return k.cpu.GetReg(n)
}

func (k *Kernel) setReg(n int, value uint32) {
	k.cpu.SetReg(n, value)
}

func (k *Kernel) setResult(res ResultCode) {
	k.cpu.SetReg(0, uint32(res))
}

// Nanoseconds passed in two registers.
func (k *Kernel) nanoseconds(lo, hi int) int64 {
	return int64(uint64(k.reg(hi))<<32 | uint64(k.reg(lo)))
}

// r0 priority, r1 entry, r2 arg, r3 stack top. Returns handle in r1.
func svcCreateThread(k *Kernel, th *Thread) {
	priority := int(k.reg(0))
	name := fmt.Sprintf("thread%d", k.nextThreadID+1)
	nt, res := k.CreateThread(name, k.reg(1), priority, k.reg(2), k.reg(3), th.process)
	if !res.IsSuccess() {
		k.setResult(res)
		return
	}
	handle, res := th.process.handles.Create(nt)
	if !res.IsSuccess() {
		k.ExitThread(nt)
		k.setResult(res)
		return
	}
	k.setResult(ResultSuccess)
	k.setReg(1, handle)
}

func svcExitThread(k *Kernel, th *Thread) {
	k.ExitThread(th)
}

// r0/r1 nanoseconds, zero yields.
func svcSleepThread(k *Kernel, _ *Thread) {
	k.SleepThread(k.nanoseconds(0, 1))
}

// r0 handle. Returns priority in r1.
func svcGetThreadPriority(k *Kernel, th *Thread) {
	target, ok := th.process.thread(k.reg(0))
	if !ok {
		k.setResult(ErrInvalidHandle)
		return
	}
	k.setResult(ResultSuccess)
	k.setReg(1, uint32(target.priority))
}

// r0 handle, r1 priority.
func svcSetThreadPriority(k *Kernel, th *Thread) {
	target, ok := th.process.thread(k.reg(0))
	if !ok {
		k.setResult(ErrInvalidHandle)
		return
	}
	k.setResult(k.SetThreadPriority(target, int(k.reg(1))))
}

// r0 reset type. Returns handle in r1.
func svcCreateEvent(k *Kernel, th *Thread) {
	reset := ResetType(k.reg(0))
	if reset > Sticky {
		k.setResult(ErrOutOfRange)
		return
	}
	ev := k.CreateEvent(reset, "")
	handle, res := th.process.handles.Create(ev)
	k.setResult(res)
	if res.IsSuccess() {
		k.setReg(1, handle)
	}
}

func (p *Process) event(handle uint32) (*Event, bool) {
	obj, ok := p.handles.Get(handle)
	if !ok {
		return nil, false
	}
	ev, ok := obj.(*Event)
	return ev, ok
}

// r0 handle.
func svcSignalEvent(k *Kernel, th *Thread) {
	ev, ok := th.process.event(k.reg(0))
	if !ok {
		k.setResult(ErrInvalidHandle)
		return
	}
	k.setResult(ResultSuccess)
	k.SignalEvent(ev)
}

// r0 handle.
func svcClearEvent(k *Kernel, th *Thread) {
	ev, ok := th.process.event(k.reg(0))
	if !ok {
		k.setResult(ErrInvalidHandle)
		return
	}
	k.ClearEvent(ev)
	k.setResult(ResultSuccess)
}

// r0 handle.
func svcCloseHandle(k *Kernel, th *Thread) {
	k.setResult(th.process.handles.Close(k.reg(0)))
}

// r0 handle, r1/r2 timeout in nanoseconds, negative waits forever.
func svcWaitSynchronization1(k *Kernel, th *Thread) {
	obj, ok := th.process.waitObject(k.reg(0))
	if !ok {
		k.setResult(ErrInvalidHandle)
		return
	}
	ns := k.nanoseconds(1, 2)
	if !obj.shouldWait(th) {
		obj.acquire(th)
		k.setResult(ResultSuccess)
		return
	}
	k.setResult(ErrTimeout)
	if ns != 0 {
		k.waitOn(obj, ns)
	}
}

// Returns ticks in r0/r1.
func svcGetSystemTick(k *Kernel, _ *Thread) {
	ticks := k.tm.GetTicks()
	k.setReg(0, uint32(ticks))
	k.setReg(1, uint32(ticks>>32))
}

// r1 address of port name. Returns session handle in r1.
func svcConnectToPort(k *Kernel, th *Thread) {
	name, ok := k.mem.ReadCString(k.reg(1), maxPortNameLength)
	if !ok {
		k.setResult(ErrInvalidAddress)
		return
	}
	if k.ports == nil {
		k.setResult(ErrNotFound)
		return
	}
	handler, res := k.ports.ConnectToPort(name)
	if !res.IsSuccess() {
		k.setResult(res)
		return
	}
	handle, res := th.process.handles.Create(&ClientSession{handler: handler})
	k.setResult(res)
	if res.IsSuccess() {
		k.setReg(1, handle)
	}
}

// r0 session handle, r1 address of command buffer.
func svcSendSyncRequest(k *Kernel, th *Thread) {
	obj, ok := th.process.handles.Get(k.reg(0))
	if !ok {
		k.setResult(ErrInvalidHandle)
		return
	}
	session, ok := obj.(*ClientSession)
	if !ok {
		k.setResult(ErrInvalidHandle)
		return
	}
	addr := k.reg(1)
	data, ok := k.mem.ReadBlock(addr, CommandBufferWords*4)
	if !ok {
		k.setResult(ErrInvalidAddress)
		return
	}
	cmd := make([]uint32, CommandBufferWords)
	for i := range cmd {
		cmd[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	debug.DebugThreadf(th.id, debug.Mask(), debug.Service, "request %s header %08x", session.Name(), cmd[0])
	session.handler.HandleSyncRequest(cmd)
	for i, word := range cmd {
		binary.LittleEndian.PutUint32(data[i*4:], word)
	}
	k.mem.WriteBlock(addr, data)
	k.setResult(ResultSuccess)
}

// r0 reason. Stops the whole process.
func svcBreak(k *Kernel, th *Thread) {
	k.log.Error("kernel: break", "reason", k.reg(0), "thread", th.id, "process", th.process.name)
	th.process.terminate()
}

// r0 address, r1 length.
func svcOutputDebugString(k *Kernel, th *Thread) {
	length := min(k.reg(1), maxDebugStringLength)
	data, ok := k.mem.ReadBlock(k.reg(0), length)
	if !ok {
		k.setResult(ErrInvalidAddress)
		return
	}
	k.log.Info("guest: "+string(data), "thread", th.id)
	k.setResult(ResultSuccess)
}
