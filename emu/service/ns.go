/*
 * CTREMU - NS service
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

package service

import (
	"log/slog"

	"github.com/rcornwell/ctremu/emu/kernel"
)

// NS commands.
const (
	NSLaunchTitle       = 0x0002
	NSShutdownAsync     = 0x000E
	NSRebootSystemClean = 0x0010
)

// NS handles title launch and power requests.
type NS struct {
	ctl Controller
	log *slog.Logger
}

func NewNS(ctl Controller, logger *slog.Logger) *NS {
	return &NS{ctl: ctl, log: logger}
}

func (ns *NS) ServiceName() string {
	return "ns:s"
}

func (ns *NS) HandleSyncRequest(cmd []uint32) {
	switch CommandID(cmd[0]) {
	case NSLaunchTitle: // title id low, title id high, media
		titleID := uint64(cmd[2])<<32 | uint64(cmd[1])
		media := cmd[3]
		ns.log.Info("ns: launch title", "title", titleID, "media", media)
		ns.ctl.RequestJump(media, titleID)
		reply(cmd, kernel.ResultSuccess, 0)
	case NSShutdownAsync:
		ns.log.Info("ns: shutdown requested")
		ns.ctl.RequestShutdown()
		reply(cmd, kernel.ResultSuccess)
	case NSRebootSystemClean: // Restart current title.
		ns.log.Info("ns: reboot requested")
		ns.ctl.RequestJump(0, 0)
		reply(cmd, kernel.ResultSuccess)
	default:
		unknown(ns.log, ns.ServiceName(), cmd)
	}
}
