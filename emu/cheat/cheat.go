/*
 * CTREMU - Cheat engine
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

package cheat

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rcornwell/ctremu/emu/hw"
	"github.com/rcornwell/ctremu/emu/memory"
	"github.com/rcornwell/ctremu/emu/settings"
	"github.com/rcornwell/ctremu/emu/timing"
)

// Engine applies memory write cheats once per frame.
type Engine struct {
	tm      *timing.Timing
	mem     *memory.Memory
	log     *slog.Logger
	event   *timing.EventType
	cheats  []settings.Cheat
	applied uint64
}

func New(tm *timing.Timing, mem *memory.Memory, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tm: tm, mem: mem, log: logger}
}

// Load cheat list and start running them.
func (e *Engine) Init(cheats []settings.Cheat) {
	e.cheats = append([]settings.Cheat(nil), cheats...)
	e.applied = 0
	e.event = e.tm.RegisterEvent("CheatEngine::RunCheats", e.run)
	e.tm.ScheduleEvent(hw.FrameTicks, e.event, 0)
}

func (e *Engine) Shutdown() {
	if e.event != nil {
		e.tm.UnscheduleAll(e.event)
		e.event = nil
	}
	e.cheats = nil
}

// Copy of current cheats.
func (e *Engine) Cheats() []settings.Cheat {
	return append([]settings.Cheat(nil), e.cheats...)
}

// Add a cheat, replaces one with same name.
func (e *Engine) Add(c settings.Cheat) error {
	switch c.Size {
	case 1, 2, 4:
	default:
		return fmt.Errorf("cheat %s invalid size %d", c.Name, c.Size)
	}
	for i := range e.cheats {
		if e.cheats[i].Name == c.Name {
			e.cheats[i] = c
			return nil
		}
	}
	e.cheats = append(e.cheats, c)
	return nil
}

// Enable or disable a cheat by name.
func (e *Engine) Enable(name string, enable bool) error {
	for i := range e.cheats {
		if e.cheats[i].Name == name {
			e.cheats[i].Enabled = enable
			return nil
		}
	}
	return errors.New("no cheat named: " + name)
}

// Number of writes done.
func (e *Engine) Applied() uint64 {
	return e.applied
}

func (e *Engine) run(_ uint64, cyclesLate int64) {
	for _, c := range e.cheats {
		if !c.Enabled {
			continue
		}
		var ok bool
		switch c.Size {
		case 1:
			ok = e.mem.Write8(c.Addr, uint8(c.Value))
		case 2:
			ok = e.mem.Write16(c.Addr, uint16(c.Value))
		default:
			ok = e.mem.Write32(c.Addr, c.Value)
		}
		if ok {
			e.applied++
		} else {
			e.log.Debug("cheat write to unmapped address", "cheat", c.Name, "addr", fmt.Sprintf("%08x", c.Addr))
		}
	}
	e.tm.ScheduleEvent(hw.FrameTicks-cyclesLate, e.event, 0)
}
