/*
 * CTREMU - Emulation driver test cases
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

package core

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rcornwell/ctremu/emu/settings"
)

func startRunner(t *testing.T) *Runner {
	t.Helper()
	r := NewRunner(sys, window)
	r.Start()
	t.Cleanup(r.Stop)
	return r
}

// Wait until cond is true on the stepping goroutine.
func waitFor(t *testing.T, r *Runner, cond func(*System) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		done := false
		if err := r.Call(func(s *System) { done = cond(s) }); err != nil {
			t.Fatal(err)
		}
		if done {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Condition not reached")
}

func TestRunnerStartStop(t *testing.T) {
	setup(t)
	settings.Values.UseFrameLimit = false
	r := startRunner(t)
	if err := r.SendStart(); err != ErrNotLoaded {
		t.Errorf("Start with nothing loaded got: %v", err)
	}
	if err := r.SendJump(0, 0); err != ErrNotLoaded {
		t.Errorf("Jump with nothing loaded got: %v", err)
	}
	if err := r.SendLoad(filepath.Join(t.TempDir(), "none.gxe")); err == nil {
		t.Errorf("Load of missing file worked")
	}
	if err := r.SendLoad(program(t, spin)); err != nil {
		t.Fatal(err)
	}
	if err := r.SendStart(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, r, func(s *System) bool { return s.Ticks() > 100000 })
	if err := r.SendStop(); err != nil {
		t.Fatal(err)
	}
	var before, after uint64
	r.Call(func(s *System) { before = s.Ticks() })
	time.Sleep(10 * time.Millisecond)
	r.Call(func(s *System) { after = s.Ticks() })
	if before != after {
		t.Errorf("System ran while stopped")
	}
	if err := r.SendShutdown(); err != nil {
		t.Fatal(err)
	}
	powered := true
	r.Call(func(s *System) { powered = s.IsPoweredOn() })
	if powered {
		t.Errorf("System still powered on")
	}
}

// Stepping stops and reports when the guest shuts down.
func TestRunnerNotify(t *testing.T) {
	setup(t)
	settings.Values.UseFrameLimit = false
	status := make(chan ResultStatus, 1)
	r := NewRunner(sys, window)
	r.Notify = func(s ResultStatus) { status <- s }
	r.Start()
	t.Cleanup(r.Stop)
	if err := r.SendLoad(program(t, spin)); err != nil {
		t.Fatal(err)
	}
	if err := r.SendStart(); err != nil {
		t.Fatal(err)
	}
	r.Call(func(s *System) { s.RequestShutdown() })
	select {
	case s := <-status:
		if s != ShutdownRequested {
			t.Errorf("Status got: %s expected: %s", s, ShutdownRequested)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("No status reported")
	}
	powered := true
	r.Call(func(s *System) { powered = s.IsPoweredOn() })
	if powered {
		t.Errorf("System not shut down")
	}
}

// Frame limiter paces emulated time to wall time.
func TestRunnerFrameLimit(t *testing.T) {
	setup(t)
	settings.Values.UseFrameLimit = true
	settings.Values.FrameLimit = 100
	r := startRunner(t)
	if err := r.SendLoad(program(t, spin)); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := r.SendStart(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, r, func(s *System) bool { return s.Frames() >= 6 })
	// Six frames are 100ms of emulated time, allow for the lag limit.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Frames not limited, took: %v", elapsed)
	}
}

func TestRunnerStop(t *testing.T) {
	setup(t)
	r := NewRunner(sys, window)
	r.Start()
	if err := r.SendLoad(program(t, spin)); err != nil {
		t.Fatal(err)
	}
	r.Stop()
	if sys.IsPoweredOn() {
		t.Errorf("Stop did not shut system down")
	}
	if err := r.SendStart(); err != ErrNotRunning {
		t.Errorf("Send after stop got: %v", err)
	}
}

// Frame pacing restarts when a jump resets emulated time.
func TestRunnerJumpResetsLimiter(t *testing.T) {
	setup(t)
	settings.Values.UseFrameLimit = true
	settings.Values.FrameLimit = 100
	load(t, program(t, spin))
	r := NewRunner(sys, window)
	r.running = true
	for sys.Frames() < 3 {
		r.step()
	}
	old := r.limiter
	frames := r.frame

	sys.RequestJump(0, 0)
	r.step()
	if !sys.IsPoweredOn() || sys.Frames() >= frames {
		t.Fatalf("Jump did not restart session, frames: %d", sys.Frames())
	}
	for sys.Frames() == 0 {
		r.step()
	}
	if r.limiter == old {
		t.Errorf("Limiter kept after jump")
	}
	if r.frame != sys.Frames() {
		t.Errorf("Frame got: %d expected: %d", r.frame, sys.Frames())
	}
}
