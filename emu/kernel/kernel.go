/*
 * CTREMU - HLE kernel
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
	"log/slog"

	"github.com/rcornwell/ctremu/emu/cpu"
	"github.com/rcornwell/ctremu/emu/memory"
	"github.com/rcornwell/ctremu/emu/timing"
)

// Rescheduler is told when the kernel wants a new thread picked.
type Rescheduler interface {
	PrepareReschedule()
}

// SessionHandler is a service reachable through a port.
type SessionHandler interface {
	ServiceName() string
	HandleSyncRequest(cmd []uint32)
}

// PortResolver connects clients to named ports.
type PortResolver interface {
	ConnectToPort(name string) (SessionHandler, ResultCode)
}

// ClientSession is the handle side of a service connection.
type ClientSession struct {
	handler SessionHandler
}

func (s *ClientSession) TypeName() string {
	return "ClientSession"
}

func (s *ClientSession) Name() string {
	return s.handler.ServiceName()
}

// Application memory size for each system mode.
var systemModeMemory = []uint32{
	64 << 20, // Prod
	96 << 20, // Dev1
	80 << 20, // Dev2
	72 << 20, // Dev3
	32 << 20, // Dev4
}

// Number of system modes.
const NumSystemModes = 5

// Offsets in config memory.
const (
	configKernelVersion = 0x00
	configAppMemType    = 0x40
	configAppMemAlloc   = 0x44
	kernelVersion       = 0x022C0600
)

// Kernel holds threads, processes and the scheduler.
type Kernel struct {
	tm            *timing.Timing
	cpu           cpu.Core
	mem           *memory.Memory
	sched         Rescheduler
	ports         PortResolver
	log           *slog.Logger
	systemMode    uint32
	memSize       uint32 // Bytes of application memory.
	configMem     []byte
	sharedPage    []byte
	ready         readyQueue
	current       *Thread
	threads       []*Thread
	threadByID    map[uint32]*Thread
	processes     []*Process
	nextThreadID  uint32
	nextProcessID uint32
	wakeupEvent   *timing.EventType
}

// Create kernel bound to its collaborators.
func New(tm *timing.Timing, core cpu.Core, mem *memory.Memory, sched Rescheduler, logger *slog.Logger) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kernel{
		tm:         tm,
		cpu:        core,
		mem:        mem,
		sched:      sched,
		log:        logger,
		threadByID: map[uint32]*Thread{},
	}
}

// Set up memory layout for systemMode and register timing events.
func (k *Kernel) Init(systemMode uint32) error {
	if systemMode >= NumSystemModes {
		return fmt.Errorf("invalid system mode %d", systemMode)
	}
	k.systemMode = systemMode
	k.memSize = systemModeMemory[systemMode]
	k.configMem = make([]byte, memory.PageSize)
	binary.LittleEndian.PutUint32(k.configMem[configKernelVersion:], kernelVersion)
	binary.LittleEndian.PutUint32(k.configMem[configAppMemType:], systemMode)
	binary.LittleEndian.PutUint32(k.configMem[configAppMemAlloc:], k.memSize)
	k.ready.clear()
	k.current = nil
	k.threads = nil
	k.threadByID = map[uint32]*Thread{}
	k.processes = nil
	k.nextThreadID = 0
	k.nextProcessID = 0
	k.wakeupEvent = k.tm.RegisterEvent("ThreadWakeupCallback", k.wakeupCallback)
	k.log.Debug("kernel: initialized", "mode", systemMode, "memory", k.memSize)
	return nil
}

// Kill all threads and forget all processes.
func (k *Kernel) Shutdown() {
	for _, th := range k.threads {
		th.state = Dead
		th.waiters = nil
		th.waitingOn = nil
	}
	for _, p := range k.processes {
		p.handles.clear()
	}
	if k.wakeupEvent != nil {
		k.tm.UnscheduleAll(k.wakeupEvent)
		k.wakeupEvent = nil
	}
	k.ready.clear()
	k.current = nil
	k.threads = nil
	k.threadByID = map[uint32]*Thread{}
	k.processes = nil
}

// Page mapped into every process at SharedPageVAddr.
func (k *Kernel) SetSharedPage(page []byte) {
	k.sharedPage = page
}

// Service manager used by ConnectToPort.
func (k *Kernel) SetPortResolver(ports PortResolver) {
	k.ports = ports
}

func (k *Kernel) SystemMode() uint32 {
	return k.systemMode
}

// Bytes of memory available to the application.
func (k *Kernel) MemorySize() uint32 {
	return k.memSize
}

func (k *Kernel) Processes() []*Process {
	return k.processes
}

// Current process, nil if idle.
func (k *Kernel) CurrentProcess() *Process {
	if k.current == nil {
		return nil
	}
	return k.current.process
}

// Thread by id.
func (k *Kernel) Thread(id uint32) (*Thread, bool) {
	th, ok := k.threadByID[id]
	return th, ok
}
