/*
 * CTREMU - Frame limiter
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
	"time"
)

// Longest the limiter lets emulation fall behind or run ahead.
const maxLagTime = 25 * time.Millisecond

// FrameLimiter slows the host driver so emulated time tracks wall time.
type FrameLimiter struct {
	now              func() time.Time
	sleep            func(time.Duration)
	previousSystemUs uint64
	previousWallTime time.Time
	deltaErr         time.Duration // Positive when emulation is ahead.
}

func NewFrameLimiter() *FrameLimiter {
	fl := &FrameLimiter{now: time.Now, sleep: time.Sleep}
	fl.previousWallTime = fl.now()
	return fl
}

// Sleep until wall time catches up with emulated time.
// Percent is the target speed, 100 is real time.
func (fl *FrameLimiter) DoFrameLimiting(currentSystemUs uint64, percent int) {
	now := fl.now()
	if percent <= 0 || currentSystemUs < fl.previousSystemUs {
		// Disabled, or emulated time restarted with a new session.
		fl.deltaErr = 0
		fl.previousSystemUs = currentSystemUs
		fl.previousWallTime = now
		return
	}
	scale := float64(percent) / 100
	emulated := time.Duration(float64(currentSystemUs-fl.previousSystemUs)/scale) * time.Microsecond
	fl.deltaErr += emulated - now.Sub(fl.previousWallTime)
	fl.deltaErr = min(max(fl.deltaErr, -maxLagTime), maxLagTime)

	if fl.deltaErr > 0 {
		fl.sleep(fl.deltaErr)
		after := fl.now()
		fl.deltaErr -= after.Sub(now)
		now = after
	}
	fl.previousSystemUs = currentSystemUs
	fl.previousWallTime = now
}
