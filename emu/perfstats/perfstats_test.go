/*
 * CTREMU - Performance statistics test cases
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

package perfstats

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func (c *fakeClock) sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func TestStats(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	ps := New()
	ps.now = clock.now
	ps.Reset(0)

	for range 30 {
		ps.BeginSystemFrame()
		clock.advance(expectedFrameTime / 2)
		ps.EndSystemFrame()
		ps.EndGameFrame()
		clock.advance(expectedFrameTime / 2)
	}
	r := ps.GetAndResetStats(250000)
	if !near(r.SystemFPS, 60) || !near(r.GameFPS, 60) {
		t.Errorf("Frame rate got: %f %f", r.SystemFPS, r.GameFPS)
	}
	if !near(r.EmulationSpeed, 0.5) {
		t.Errorf("Emulation speed got: %f", r.EmulationSpeed)
	}
	if !near(r.FrameTimeScale, 0.5) || !near(ps.GetLastFrameTimeScale(), 0.5) {
		t.Errorf("Frame time scale got: %f", r.FrameTimeScale)
	}

	// Nothing happened since reset.
	r = ps.GetAndResetStats(250000)
	if r.SystemFPS != 0 || r.FrameTimeScale != 0 || r.EmulationSpeed != 0 {
		t.Errorf("Empty interval got: %+v", r)
	}
	if r.String() == "" {
		t.Errorf("No string form")
	}
}

func TestFrameLimiter(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fl := NewFrameLimiter()
	fl.now = clock.now
	fl.sleep = clock.sleep
	fl.previousWallTime = clock.t

	// Emulation ran 16ms in 4ms wall time, sleep the difference.
	clock.advance(4 * time.Millisecond)
	fl.DoFrameLimiting(16000, 100)
	if len(clock.slept) != 1 || clock.slept[0] != 12*time.Millisecond {
		t.Fatalf("Limiter slept: %v", clock.slept)
	}

	// Behind, no sleep.
	clock.advance(50 * time.Millisecond)
	fl.DoFrameLimiting(32000, 100)
	if len(clock.slept) != 1 {
		t.Errorf("Limiter slept while behind: %v", clock.slept)
	}
	if fl.deltaErr != -maxLagTime {
		t.Errorf("Lag not clamped: %v", fl.deltaErr)
	}

	// Double speed halves sleep.
	fl.deltaErr = 0
	fl.DoFrameLimiting(48000, 200)
	if len(clock.slept) != 2 || clock.slept[1] != 8*time.Millisecond {
		t.Errorf("Double speed slept: %v", clock.slept)
	}

	// Disabled limiter only tracks time.
	fl.DoFrameLimiting(1000000, 0)
	if len(clock.slept) != 2 || fl.previousSystemUs != 1000000 {
		t.Errorf("Disabled limiter slept")
	}
}

// Emulated time going backwards resyncs without sleeping.
func TestFrameLimiterRestart(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fl := NewFrameLimiter()
	fl.now = clock.now
	fl.sleep = clock.sleep
	fl.previousWallTime = clock.t

	clock.advance(10 * time.Millisecond)
	fl.DoFrameLimiting(5000000, 0)
	fl.deltaErr = maxLagTime
	clock.advance(10 * time.Millisecond)
	fl.DoFrameLimiting(2000, 100)
	if fl.previousSystemUs != 2000 || fl.deltaErr != 0 {
		t.Errorf("Limiter not resynced got: %d %v", fl.previousSystemUs, fl.deltaErr)
	}
	if len(clock.slept) != 0 {
		t.Errorf("Limiter slept on restart: %v", clock.slept)
	}

	// Normal pacing resumes from the new origin.
	clock.advance(4 * time.Millisecond)
	fl.DoFrameLimiting(18000, 100)
	if len(clock.slept) != 1 || clock.slept[0] != 12*time.Millisecond {
		t.Errorf("Limiter after restart slept: %v", clock.slept)
	}
}
