/*
 * CTREMU - Performance statistics
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
	"fmt"
	"sync"
	"time"
)

// Results of one measurement interval.
type Results struct {
	SystemFPS      float64 // Frames rendered by the system per second.
	GameFPS        float64 // Frames submitted by the game per second.
	FrameTimeScale float64 // Mean frame time over the ideal frame time.
	EmulationSpeed float64 // Emulated time over wall time, 1.0 is full speed.
}

func (r Results) String() string {
	return fmt.Sprintf("speed %.1f%% system %.1f fps game %.1f fps frame %.2f",
		r.EmulationSpeed*100, r.SystemFPS, r.GameFPS, r.FrameTimeScale)
}

// Ideal length of a frame.
const expectedFrameTime = time.Second / 60

// PerfStats measures how fast emulation runs relative to real hardware.
type PerfStats struct {
	mu                   sync.Mutex
	now                  func() time.Time
	resetPoint           time.Time
	resetPointSystemUs   uint64
	frameBegin           time.Time
	accumulatedFrameTime time.Duration
	previousFrameLength  time.Duration
	systemFrames         uint32
	gameFrames           uint32
}

func New() *PerfStats {
	ps := &PerfStats{now: time.Now}
	ps.Reset(0)
	return ps
}

// Start a new measurement interval.
func (ps *PerfStats) Reset(systemUs uint64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.resetPoint = ps.now()
	ps.resetPointSystemUs = systemUs
	ps.frameBegin = ps.resetPoint
	ps.accumulatedFrameTime = 0
	ps.systemFrames = 0
	ps.gameFrames = 0
}

// Mark start of a system frame.
func (ps *PerfStats) BeginSystemFrame() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.frameBegin = ps.now()
}

// Mark end of a system frame.
func (ps *PerfStats) EndSystemFrame() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	end := ps.now()
	ps.previousFrameLength = end.Sub(ps.frameBegin)
	ps.accumulatedFrameTime += ps.previousFrameLength
	ps.systemFrames++
}

// Count a frame submitted by the game.
func (ps *PerfStats) EndGameFrame() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.gameFrames++
}

// Compute results since last reset and start a new interval.
func (ps *PerfStats) GetAndResetStats(currentSystemUs uint64) Results {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	now := ps.now()
	interval := now.Sub(ps.resetPoint).Seconds()

	var r Results
	if interval > 0 {
		systemUs := currentSystemUs - ps.resetPointSystemUs
		r.SystemFPS = float64(ps.systemFrames) / interval
		r.GameFPS = float64(ps.gameFrames) / interval
		r.EmulationSpeed = float64(systemUs) / 1e6 / interval
	}
	if ps.systemFrames != 0 {
		mean := ps.accumulatedFrameTime / time.Duration(ps.systemFrames)
		r.FrameTimeScale = float64(mean) / float64(expectedFrameTime)
	}

	ps.resetPoint = now
	ps.resetPointSystemUs = currentSystemUs
	ps.accumulatedFrameTime = 0
	ps.systemFrames = 0
	ps.gameFrames = 0
	return r
}

// Length of last frame over the ideal length.
func (ps *PerfStats) GetLastFrameTimeScale() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return float64(ps.previousFrameLength) / float64(expectedFrameTime)
}
