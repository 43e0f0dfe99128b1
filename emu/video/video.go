/*
 * CTREMU - Video core
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

package video

import (
	"errors"
	"sync/atomic"

	"github.com/rcornwell/ctremu/emu/perfstats"
)

// EmuWindow is the frontend surface frames are presented on.
type EmuWindow interface {
	PollEvents()       // Handle pending input and window events.
	SwapBuffers()      // Present a finished frame.
	ShouldClose() bool // User asked to close the window.
}

var ErrNoWindow = errors.New("no render window")

// Video presents frames at every vertical blank.
type Video struct {
	window   EmuWindow
	perf     *perfstats.PerfStats
	shutdown func()
	frames   uint64
	closing  bool
}

func New() *Video {
	return &Video{}
}

// Attach to window, shutdown is called once the window wants to close.
func (v *Video) Init(window EmuWindow, perf *perfstats.PerfStats, shutdown func()) error {
	if window == nil {
		return ErrNoWindow
	}
	v.window = window
	v.perf = perf
	v.shutdown = shutdown
	v.frames = 0
	v.closing = false
	return nil
}

func (v *Video) Shutdown() {
	v.window = nil
	v.perf = nil
	v.shutdown = nil
}

// Present a frame.
func (v *Video) OnVBlank(_ uint64) {
	if v.window == nil {
		return
	}
	v.window.SwapBuffers()
	v.frames++
	if v.perf != nil {
		v.perf.EndSystemFrame()
		v.perf.EndGameFrame()
		v.perf.BeginSystemFrame()
	}
}

// Poll frontend, called from the hardware update.
func (v *Video) Update() {
	if v.window == nil {
		return
	}
	v.window.PollEvents()
	if v.window.ShouldClose() && !v.closing {
		v.closing = true
		if v.shutdown != nil {
			v.shutdown()
		}
	}
}

// Frames presented since Init.
func (v *Video) Frames() uint64 {
	return v.frames
}

// HeadlessWindow is a window with no display, used for tests and batch runs.
type HeadlessWindow struct {
	polls  atomic.Uint64
	swaps  atomic.Uint64
	closed atomic.Bool
}

func (w *HeadlessWindow) PollEvents() {
	w.polls.Add(1)
}

func (w *HeadlessWindow) SwapBuffers() {
	w.swaps.Add(1)
}

func (w *HeadlessWindow) ShouldClose() bool {
	return w.closed.Load()
}

// Ask window to close, safe from any goroutine.
func (w *HeadlessWindow) Close() {
	w.closed.Store(true)
}

func (w *HeadlessWindow) Polls() uint64 {
	return w.polls.Load()
}

func (w *HeadlessWindow) Swaps() uint64 {
	return w.swaps.Load()
}
