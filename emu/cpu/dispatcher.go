/*
 * CTREMU - Guest CPU block dispatcher
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
	"github.com/rcornwell/ctremu/emu/memory"
	"github.com/rcornwell/ctremu/emu/timing"
)

const maxBlockLength = 32

type blockKey struct {
	pt *memory.PageTable
	pc uint32
}

// Decoded straight line run of instructions.
type block struct {
	start uint32
	insts []Instruction
}

// dispatcher decodes each basic block once and replays the decoded block.
type dispatcher struct {
	state
	cache   map[blockKey]*block
	lo      uint32 // Lowest address in cache.
	hi      uint64 // One past highest address in cache.
	flushed bool   // Cache cleared while running a block.
}

func newDispatcher(tm *timing.Timing, mem *memory.Memory, svc SVCHandler) *dispatcher {
	c := &dispatcher{}
	c.init(tm, mem, svc)
	c.ClearInstructionCache()
	mem.AddWriteWatcher(c.invalidate)
	return c
}

func (c *dispatcher) Kind() Kind {
	return Dispatcher
}

func (c *dispatcher) ClearInstructionCache() {
	c.cache = map[blockKey]*block{}
	c.lo = ^uint32(0)
	c.hi = 0
	c.flushed = true
}

// Drop cache when code is written.
func (c *dispatcher) invalidate(addr uint32, size uint32) {
	if uint64(addr)+uint64(size) > uint64(c.lo) && uint64(addr) < c.hi {
		c.ClearInstructionCache()
	}
}

// Find or build block starting at pc.
func (c *dispatcher) lookup(pc uint32) *block {
	key := blockKey{pt: c.mem.CurrentPageTable(), pc: pc}
	if b, ok := c.cache[key]; ok {
		return b
	}

	b := &block{start: pc}
	for addr := pc; len(b.insts) < maxBlockLength; addr += 4 {
		inst, ok := c.fetch(addr)
		if !ok {
			break
		}
		b.insts = append(b.insts, inst)
		if inst.EndsBlock() {
			break
		}
	}
	if len(b.insts) == 0 {
		return nil
	}

	c.cache[key] = b
	end := uint64(pc) + uint64(len(b.insts))*4
	if pc < c.lo {
		c.lo = pc
	}
	if end > c.hi {
		c.hi = end
	}
	return b
}

// Run whole blocks until out of cycles or asked to reschedule.
func (c *dispatcher) Run() {
	c.stop = false
	for !c.stop && c.tm.GetDowncount() > 0 {
		b := c.lookup(c.pc)
		if b == nil {
			c.tm.AddTicks(1)
			c.fault(c.pc, "prefetch abort")
			return
		}
		c.runBlock(b)
	}
}

func (c *dispatcher) runBlock(b *block) {
	c.flushed = false
	pc := b.start
	for _, inst := range b.insts {
		next := c.execute(inst, pc)
		if next != pc+4 || c.stop || c.flushed {
			return
		}
		pc = next
	}
}

// Execute a single instruction, bypassing the cache.
func (c *dispatcher) Step() {
	inst, ok := c.fetch(c.pc)
	if !ok {
		c.tm.AddTicks(1)
		c.fault(c.pc, "prefetch abort")
		return
	}
	c.execute(inst, c.pc)
}
