/*
 * CTREMU - Kernel processes and handle tables
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
	"github.com/rcornwell/ctremu/emu/memory"
)

// Pseudo handles.
const (
	CurrentThread  uint32 = 0xFFFF8000
	CurrentProcess uint32 = 0xFFFF8001
)

const (
	maxHandles  = 4096
	firstHandle = 0x8000
)

// HandleTable maps guest handles to kernel objects.
type HandleTable struct {
	objects map[uint32]Object
	next    uint32
}

func newHandleTable() *HandleTable {
	return &HandleTable{objects: map[uint32]Object{}, next: firstHandle}
}

// Add object, return new handle.
func (h *HandleTable) Create(obj Object) (uint32, ResultCode) {
	if len(h.objects) >= maxHandles {
		return 0, ErrOutOfMemory
	}
	for {
		handle := h.next
		h.next++
		if h.next >= CurrentThread {
			h.next = firstHandle
		}
		if _, ok := h.objects[handle]; !ok {
			h.objects[handle] = obj
			return handle, ResultSuccess
		}
	}
}

// Find object for handle.
func (h *HandleTable) Get(handle uint32) (Object, bool) {
	obj, ok := h.objects[handle]
	return obj, ok
}

// Remove handle.
func (h *HandleTable) Close(handle uint32) ResultCode {
	if _, ok := h.objects[handle]; !ok {
		return ErrInvalidHandle
	}
	delete(h.objects, handle)
	return ResultSuccess
}

// Number of open handles.
func (h *HandleTable) Len() int {
	return len(h.objects)
}

func (h *HandleTable) clear() {
	h.objects = map[uint32]Object{}
	h.next = firstHandle
}

// Process owns an address space and handle table.
type Process struct {
	id        uint32
	name      string
	Entry     uint32 // Start address of main thread.
	pageTable *memory.PageTable
	handles   *HandleTable
	used      uint32 // Bytes of application memory mapped.
	kernel    *Kernel
	main      *Thread
}

func (p *Process) TypeName() string {
	return "Process"
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) SetName(name string) {
	p.name = name
}

func (p *Process) ID() uint32 {
	return p.id
}

func (p *Process) PageTable() *memory.PageTable {
	return p.pageTable
}

func (p *Process) Handles() *HandleTable {
	return p.handles
}

// Main thread, nil before Run.
func (p *Process) MainThread() *Thread {
	return p.main
}

// Bytes of application memory in use.
func (p *Process) MemoryUsed() uint32 {
	return p.used
}

// Create a process with the shared pages mapped.
func (k *Kernel) CreateProcess(name string) *Process {
	k.nextProcessID++
	p := &Process{
		id:        k.nextProcessID,
		name:      name,
		pageTable: memory.NewPageTable(),
		handles:   newHandleTable(),
		kernel:    k,
	}
	if err := p.pageTable.MapPage(memory.ConfigMemVAddr, k.configMem); err != nil {
		k.log.Error("kernel: mapping config memory", "error", err)
	}
	if k.sharedPage != nil {
		if err := p.pageTable.MapPage(memory.SharedPageVAddr, k.sharedPage); err != nil {
			k.log.Error("kernel: mapping shared page", "error", err)
		}
	}
	k.processes = append(k.processes, p)
	return p
}

// Map zeroed memory charged against the application region.
func (p *Process) MapMemory(base, size uint32) ResultCode {
	size = (size + memory.PageMask) &^ memory.PageMask
	if uint64(p.used)+uint64(size) > uint64(p.kernel.memSize) {
		return ErrOutOfMemory
	}
	if err := p.pageTable.MapRegion(base, size); err != nil {
		p.kernel.log.Warn("kernel: map memory", "process", p.name, "error", err)
		return ErrInvalidAddress
	}
	p.used += size
	return ResultSuccess
}

// Map stack and start main thread.
func (p *Process) Run(priority int, stackSize uint32) (*Thread, ResultCode) {
	stackSize = (stackSize + memory.PageMask) &^ memory.PageMask
	if stackSize == 0 {
		stackSize = memory.PageSize
	}
	if res := p.MapMemory(memory.StackVAddrEnd-stackSize, stackSize); !res.IsSuccess() {
		return nil, res
	}
	th, res := p.kernel.CreateThread("main", p.Entry, priority, 0, memory.StackVAddrEnd, p)
	if !res.IsSuccess() {
		return nil, res
	}
	p.main = th
	return th, ResultSuccess
}

// Find wait object by handle, resolving pseudo handles.
func (p *Process) waitObject(handle uint32) (WaitObject, bool) {
	if handle == CurrentThread {
		if th := p.kernel.current; th != nil {
			return th, true
		}
		return nil, false
	}
	obj, ok := p.handles.Get(handle)
	if !ok {
		return nil, false
	}
	wo, ok := obj.(WaitObject)
	return wo, ok
}

// Find thread by handle.
func (p *Process) thread(handle uint32) (*Thread, bool) {
	if handle == CurrentThread {
		th := p.kernel.current
		return th, th != nil
	}
	obj, ok := p.handles.Get(handle)
	if !ok {
		return nil, false
	}
	th, ok := obj.(*Thread)
	return th, ok
}

// Kill every thread of the process.
func (p *Process) terminate() {
	for _, th := range p.kernel.threads {
		if th.process == p {
			p.kernel.ExitThread(th)
		}
	}
}
