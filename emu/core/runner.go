/*
 * CTREMU - Emulation driver
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
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/ctremu/emu/master"
	"github.com/rcornwell/ctremu/emu/perfstats"
	"github.com/rcornwell/ctremu/emu/settings"
	"github.com/rcornwell/ctremu/emu/video"
)

var (
	ErrNotLoaded  = errors.New("no title loaded")
	ErrNotRunning = errors.New("driver not running")
)

// Runner steps the system on its own goroutine.
type Runner struct {
	wg      sync.WaitGroup
	done    chan struct{} // Signal to shutdown driver.
	running bool          // Indicate when system should step or not.
	system  *System
	window  video.EmuWindow
	limiter *perfstats.FrameLimiter
	frame   uint64
	Master  chan master.Packet
	Notify  func(ResultStatus) // Called when stepping stops on a status.
}

// Create driver for system.
func NewRunner(system *System, window video.EmuWindow) *Runner {
	return &Runner{
		system:  system,
		window:  window,
		limiter: perfstats.NewFrameLimiter(),
		Master:  make(chan master.Packet),
		done:    make(chan struct{}),
	}
}

// Start driver goroutine.
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.loop()
}

func (r *Runner) loop() {
	defer r.wg.Done()
	for {
		if r.running {
			r.step()
			select {
			case <-r.done:
				r.system.Shutdown()
				return
			case packet := <-r.Master:
				r.processPacket(packet)
			default:
			}
			continue
		}

		// Nothing to do, wait for work.
		select {
		case <-r.done:
			r.system.Shutdown()
			return
		case packet := <-r.Master:
			r.processPacket(packet)
		}
	}
}

// One run loop step, stop on anything but success.
func (r *Runner) step() {
	status := r.system.RunLoop()
	if status != Success {
		r.running = false
		if status == ShutdownRequested {
			slog.Info("system shutdown requested")
			r.system.Shutdown()
		} else {
			slog.Error("emulation stopped: " + status.String())
		}
		if r.Notify != nil {
			r.Notify(status)
		}
		return
	}

	// Pace by frames.
	if frame := r.system.Frames(); frame != r.frame {
		if frame < r.frame {
			// Jump started a new session, emulated time restarted.
			r.limiter = perfstats.NewFrameLimiter()
		}
		r.frame = frame
		if settings.Values.UseFrameLimit {
			r.limiter.DoFrameLimiting(r.system.Timing().GetGlobalTimeUs(), settings.Values.FrameLimit)
		}
	}
}

// Stop driver, shuts the system down.
func (r *Runner) Stop() {
	slog.Info("Shutting down emulation")
	close(r.done)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for emulation to finish.")
		return
	}
}

// Process a packet sent to driver.
func (r *Runner) processPacket(packet master.Packet) {
	switch packet.Msg {
	case master.Start:
		if !r.system.IsPoweredOn() {
			packet.Reply(ErrNotLoaded)
			return
		}
		r.running = true
		r.frame = r.system.Frames()
		r.limiter = perfstats.NewFrameLimiter()
		packet.Reply(nil)
	case master.Stop:
		r.running = false
		packet.Reply(nil)
	case master.Load:
		r.running = false
		if status := r.system.Load(r.window, packet.Path); status != Success {
			packet.Reply(errors.New(status.String()))
			return
		}
		packet.Reply(nil)
	case master.Jump:
		if !r.system.IsPoweredOn() {
			packet.Reply(ErrNotLoaded)
			return
		}
		r.system.RequestJump(packet.Media, packet.TitleID)
		packet.Reply(nil)
	case master.Shutdown:
		r.running = false
		r.system.Shutdown()
		packet.Reply(nil)
	case master.Call:
		if packet.Fn != nil {
			packet.Fn()
		}
		packet.Reply(nil)
	default:
		packet.Reply(errors.New("unknown request " + packet.Msg.String()))
	}
}

// Send packet and wait for the reply.
func (r *Runner) Send(packet master.Packet) error {
	packet.Done = make(chan error, 1)
	select {
	case r.Master <- packet:
	case <-r.done:
		return ErrNotRunning
	}
	return <-packet.Done
}

// Start stepping.
func (r *Runner) SendStart() error {
	return r.Send(master.Packet{Msg: master.Start})
}

// Pause stepping.
func (r *Runner) SendStop() error {
	return r.Send(master.Packet{Msg: master.Stop})
}

// Load file.
func (r *Runner) SendLoad(path string) error {
	return r.Send(master.Packet{Msg: master.Load, Path: path})
}

// Jump to title.
func (r *Runner) SendJump(media uint32, titleID uint64) error {
	return r.Send(master.Packet{Msg: master.Jump, Media: media, TitleID: titleID})
}

// Shut system down.
func (r *Runner) SendShutdown() error {
	return r.Send(master.Packet{Msg: master.Shutdown})
}

// Run fn on the stepping goroutine, system is safe to inspect inside fn.
func (r *Runner) Call(fn func(*System)) error {
	return r.Send(master.Packet{Msg: master.Call, Fn: func() { fn(r.system) }})
}
