/*
 * CTREMU - Guest CPU core
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

package cpu

import (
	"log/slog"
	"runtime"

	"github.com/rcornwell/ctremu/emu/memory"
	"github.com/rcornwell/ctremu/emu/timing"
	"github.com/rcornwell/ctremu/util/debug"
)

// Kind of CPU core.
type Kind int

const (
	Interpreter Kind = iota
	Dispatcher
)

func (k Kind) String() string {
	if k == Dispatcher {
		return "dispatcher"
	}
	return "interpreter"
}

// Registers saved for a thread while it is not running.
type ThreadContext struct {
	Regs [NumRegs]uint32
	PC   uint32
}

// SVCHandler services supervisor calls and faults from guest code.
type SVCHandler interface {
	CallSVC(num uint32)
	Fault(pc uint32, reason string)
}

// Core executes guest code for the current thread.
type Core interface {
	Run()                           // Execute until downcount expires or reschedule.
	Step()                          // Execute one instruction.
	PrepareReschedule()             // Stop execution at next instruction boundary.
	SaveContext(ctx *ThreadContext) // Store registers.
	LoadContext(ctx *ThreadContext) // Restore registers.
	GetReg(n int) uint32
	SetReg(n int, value uint32)
	GetPC() uint32
	SetPC(pc uint32)
	ClearInstructionCache()
	Kind() Kind
	Instructions() uint64 // Instructions executed.
}

// Decide which core to build, dispatcher only on hosts it is tuned for.
func SelectKind(useJIT bool) Kind {
	if !useJIT {
		return Interpreter
	}
	if hostSupportsDispatcher() {
		return Dispatcher
	}
	slog.Warn("CPU dispatcher requested, but not available on " + runtime.GOARCH)
	return Interpreter
}

func hostSupportsDispatcher() bool {
	return runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
}

// Create a CPU core.
func New(kind Kind, tm *timing.Timing, mem *memory.Memory, svc SVCHandler) Core {
	if kind == Dispatcher {
		return newDispatcher(tm, mem, svc)
	}
	return newInterpreter(tm, mem, svc)
}

// Information about instruction being executed.
type stepInfo struct {
	inst Instruction
	pc   uint32 // Address of instruction.
	next uint32 // Address of following instruction, updated by branches.
}

// State shared by both cores.
type state struct {
	regs  [NumRegs]uint32
	pc    uint32
	tm    *timing.Timing
	mem   *memory.Memory
	svc   SVCHandler
	stop  bool   // Reschedule requested.
	count uint64 // Instructions executed.
	table [256]func(*state, *stepInfo)
}

func (s *state) init(tm *timing.Timing, mem *memory.Memory, svc SVCHandler) {
	s.tm = tm
	s.mem = mem
	s.svc = svc
	s.createTable()
}

func (s *state) PrepareReschedule() {
	s.stop = true
}

func (s *state) SaveContext(ctx *ThreadContext) {
	ctx.Regs = s.regs
	ctx.PC = s.pc
}

func (s *state) LoadContext(ctx *ThreadContext) {
	s.regs = ctx.Regs
	s.pc = ctx.PC
}

func (s *state) GetReg(n int) uint32 {
	return s.regs[n&0xf]
}

func (s *state) SetReg(n int, value uint32) {
	s.regs[n&0xf] = value
}

func (s *state) GetPC() uint32 {
	return s.pc
}

func (s *state) SetPC(pc uint32) {
	s.pc = pc
}

func (s *state) Instructions() uint64 {
	return s.count
}

// Report fault to kernel and stop running.
func (s *state) fault(pc uint32, reason string) {
	debug.Debugf("cpu", debug.Mask(), debug.CPU, "fault at %08x: %s", pc, reason)
	s.stop = true
	if s.svc != nil {
		s.svc.Fault(pc, reason)
	}
}

// Fetch and decode instruction at pc.
func (s *state) fetch(pc uint32) (Instruction, bool) {
	if pc&3 != 0 {
		return Instruction{}, false
	}
	word, ok := s.mem.Read32(pc)
	if !ok {
		return Instruction{}, false
	}
	return Decode(word), true
}

// Execute one decoded instruction, return address of next.
func (s *state) execute(inst Instruction, pc uint32) uint32 {
	step := stepInfo{inst: inst, pc: pc, next: pc + 4}
	s.count++
	s.pc = step.next
	s.table[inst.Op](s, &step)
	if s.pc == pc+4 {
		s.pc = step.next
	}
	s.tm.AddTicks(inst.Cycles())
	return s.pc
}

// Build instruction dispatch table.
func (s *state) createTable() {
	for i := range s.table {
		s.table[i] = opUndefined
	}
	s.table[OpNOP] = func(_ *state, _ *stepInfo) {}
	s.table[OpMOVI] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] = uint32(st.inst.Imm)
	}
	s.table[OpMOVHI] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] = (s.regs[st.inst.Rd] & 0xffff) | uint32(st.inst.Imm)<<16
	}
	s.table[OpADDI] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] += uint32(st.inst.SImm())
	}
	s.table[OpADD] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] += s.regs[st.inst.Rs]
	}
	s.table[OpSUB] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] -= s.regs[st.inst.Rs]
	}
	s.table[OpMOV] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] = s.regs[st.inst.Rs]
	}
	s.table[OpAND] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] &= s.regs[st.inst.Rs]
	}
	s.table[OpORR] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] |= s.regs[st.inst.Rs]
	}
	s.table[OpLSL] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] <<= st.inst.Imm & 31
	}
	s.table[OpLSR] = func(s *state, st *stepInfo) {
		s.regs[st.inst.Rd] >>= st.inst.Imm & 31
	}
	s.table[OpLDR] = func(s *state, st *stepInfo) {
		addr := s.regs[st.inst.Rs] + uint32(st.inst.SImm())
		value, ok := s.mem.Read32(addr)
		if !ok {
			s.fault(st.pc, "data abort on read")
			return
		}
		s.regs[st.inst.Rd] = value
	}
	s.table[OpSTR] = func(s *state, st *stepInfo) {
		addr := s.regs[st.inst.Rs] + uint32(st.inst.SImm())
		if !s.mem.Write32(addr, s.regs[st.inst.Rd]) {
			s.fault(st.pc, "data abort on write")
		}
	}
	s.table[OpB] = func(_ *state, st *stepInfo) {
		st.next = branchTarget(st)
	}
	s.table[OpBNZ] = func(s *state, st *stepInfo) {
		if s.regs[st.inst.Rd] != 0 {
			st.next = branchTarget(st)
		}
	}
	s.table[OpBZ] = func(s *state, st *stepInfo) {
		if s.regs[st.inst.Rd] == 0 {
			st.next = branchTarget(st)
		}
	}
	s.table[OpBL] = func(s *state, st *stepInfo) {
		s.regs[RegLR] = st.pc + 4
		st.next = branchTarget(st)
	}
	s.table[OpRET] = func(s *state, st *stepInfo) {
		st.next = s.regs[RegLR]
	}
	s.table[OpWAIT] = func(_ *state, _ *stepInfo) {}
	s.table[OpSVC] = func(s *state, st *stepInfo) {
		debug.Debugf("cpu", debug.Mask(), debug.SVC, "svc %02x at %08x", st.inst.Imm, st.pc)
		if s.svc == nil {
			s.fault(st.pc, "no supervisor")
			return
		}
		// PC already points past the SVC, handler may change registers.
		s.svc.CallSVC(uint32(st.inst.Imm))
	}
}

func branchTarget(st *stepInfo) uint32 {
	return st.pc + 4 + uint32(st.inst.SImm()*4)
}

func opUndefined(s *state, st *stepInfo) {
	s.fault(st.pc, "undefined instruction")
}
