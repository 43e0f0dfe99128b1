/*
 * CTREMU - Audio DSP core
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

package audio

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/ctremu/emu/timing"
)

const (
	SamplesPerFrame = 160     // Stereo samples per audio frame.
	FrameTicks      = 1310252 // Cycles per audio frame.
	NumChannels     = 2
	SampleRate      = timing.BaseClockRate * SamplesPerFrame / FrameTicks
	queueDepth      = 32 // Frames buffered for the sink.
	stretchLimit    = 8  // Frames held back while stretching.
)

// Frame is interleaved stereo samples.
type Frame [SamplesPerFrame * NumChannels]int16

// Source fills the next frame.
type Source func(frame *Frame)

var errStopTimeout = errors.New("audio sink did not stop")

// DSP produces audio frames on the emulated clock and feeds a sink.
type DSP struct {
	tm       *timing.Timing
	log      *slog.Logger
	event    *timing.EventType
	source   Source
	sink     Sink
	stretch  bool
	pending  []Frame // Produced but not yet queued.
	queue    chan Frame
	wg       sync.WaitGroup
	produced uint64
	dropped  uint64
	mu       sync.Mutex
	played   uint64
}

func New(tm *timing.Timing, logger *slog.Logger) *DSP {
	if logger == nil {
		logger = slog.Default()
	}
	return &DSP{tm: tm, log: logger}
}

// Start audio frames into sink.
func (d *DSP) Init(sink Sink, stretch bool) {
	if sink == nil {
		sink = NullSink{}
	}
	d.sink = sink
	d.stretch = stretch
	d.pending = nil
	d.produced = 0
	d.dropped = 0
	d.played = 0
	d.queue = make(chan Frame, queueDepth)
	d.wg.Add(1)
	go d.play(d.queue)
	d.event = d.tm.RegisterEvent("DSP::AudioTickCallback", d.tick)
	d.tm.ScheduleEvent(FrameTicks, d.event, 0)
	d.log.Debug("audio started", "sink", sink.Name(), "rate", SampleRate)
}

// Stop sink, waits at most one second for it to drain.
func (d *DSP) Shutdown() error {
	if d.event != nil {
		d.tm.UnscheduleAll(d.event)
		d.event = nil
	}
	if d.queue == nil {
		return nil
	}
	close(d.queue)
	d.queue = nil
	stopped := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(stopped)
	}()
	var err error
	select {
	case <-stopped:
	case <-time.After(time.Second):
		err = errStopTimeout
		d.log.Warn("audio sink did not stop")
	}
	if cerr := d.sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	d.pending = nil
	return err
}

// Replace generator of samples, nil gives silence.
func (d *DSP) SetSource(src Source) {
	d.source = src
}

func (d *DSP) SetStretching(enable bool) {
	d.stretch = enable
}

func (d *DSP) Stretching() bool {
	return d.stretch
}

// Pass produced frames to the sink goroutine, called from the hardware update.
func (d *DSP) Flush() {
	if d.queue == nil {
		return
	}
	for len(d.pending) > 0 {
		select {
		case d.queue <- d.pending[0]:
			d.pending = d.pending[1:]
		default:
			// Sink is behind.
			if d.stretch && len(d.pending) <= stretchLimit {
				return
			}
			d.dropped++
			d.pending = d.pending[1:]
		}
	}
}

// Frames generated.
func (d *DSP) Produced() uint64 {
	return d.produced
}

// Frames discarded because sink was full.
func (d *DSP) Dropped() uint64 {
	return d.dropped
}

// Frames handed to sink.
func (d *DSP) Played() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.played
}

func (d *DSP) tick(_ uint64, cyclesLate int64) {
	var frame Frame
	if d.source != nil {
		d.source(&frame)
	}
	d.pending = append(d.pending, frame)
	d.produced++
	d.tm.ScheduleEvent(FrameTicks-cyclesLate, d.event, 0)
}

// Sink goroutine.
func (d *DSP) play(queue <-chan Frame) {
	defer d.wg.Done()
	for frame := range queue {
		if err := d.sink.Push(frame[:]); err != nil {
			d.log.Error("audio sink: " + err.Error())
			continue
		}
		d.mu.Lock()
		d.played++
		d.mu.Unlock()
	}
}
