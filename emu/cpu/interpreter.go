/*
 * CTREMU - Guest CPU interpreter
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

// interpreter decodes every instruction as it is executed.
type interpreter struct {
	state
}

func newInterpreter(tm *timing.Timing, mem *memory.Memory, svc SVCHandler) *interpreter {
	c := &interpreter{}
	c.init(tm, mem, svc)
	return c
}

func (c *interpreter) Kind() Kind {
	return Interpreter
}

// Nothing cached.
func (c *interpreter) ClearInstructionCache() {
}

// Run until out of cycles or asked to reschedule.
func (c *interpreter) Run() {
	c.stop = false
	for !c.stop && c.tm.GetDowncount() > 0 {
		c.Step()
	}
}

// Execute a single instruction.
func (c *interpreter) Step() {
	inst, ok := c.fetch(c.pc)
	if !ok {
		c.tm.AddTicks(1)
		c.fault(c.pc, "prefetch abort")
		return
	}
	c.execute(inst, c.pc)
}
