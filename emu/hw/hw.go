/*
 * CTREMU - Hardware timing
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

package hw

import (
	"log/slog"

	"github.com/rcornwell/ctremu/emu/timing"
)

// Cycles between LCD vertical blanks.
const FrameTicks = timing.BaseClockRate / 60

// Hardware drives the LCD frame timing and the per step update hooks.
type Hardware struct {
	tm          *timing.Timing
	log         *slog.Logger
	vblankEvent *timing.EventType
	vblanks     []func(frame uint64)
	updaters    []func()
	frames      uint64
}

func New(tm *timing.Timing, logger *slog.Logger) *Hardware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hardware{tm: tm, log: logger}
}

// Start frame timing.
func (h *Hardware) Init() {
	h.frames = 0
	h.vblankEvent = h.tm.RegisterEvent("LCD::VBlankCallback", h.vblankCallback)
	h.tm.ScheduleEvent(FrameTicks, h.vblankEvent, 0)
}

// Stop frame timing and drop hooks.
func (h *Hardware) Shutdown() {
	if h.vblankEvent != nil {
		h.tm.UnscheduleAll(h.vblankEvent)
		h.vblankEvent = nil
	}
	h.vblanks = nil
	h.updaters = nil
}

// Call fn at every vertical blank.
func (h *Hardware) AddVBlankHandler(fn func(frame uint64)) {
	h.vblanks = append(h.vblanks, fn)
}

// Call fn on every Update.
func (h *Hardware) AddUpdater(fn func()) {
	h.updaters = append(h.updaters, fn)
}

// Run update hooks, called once per run loop step.
func (h *Hardware) Update() {
	for _, fn := range h.updaters {
		fn()
	}
}

// Frames since Init.
func (h *Hardware) Frames() uint64 {
	return h.frames
}

func (h *Hardware) vblankCallback(_ uint64, cyclesLate int64) {
	h.frames++
	for _, fn := range h.vblanks {
		fn(h.frames)
	}
	h.tm.ScheduleEvent(FrameTicks-cyclesLate, h.vblankEvent, 0)
}
