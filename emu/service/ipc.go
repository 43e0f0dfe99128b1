/*
 * CTREMU - Service IPC helpers
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

/* Command buffer header word:
 *
 *   31            16 15     12 11       6 5          0
 *  +----------------+---------+----------+------------+
 *  |   command id   |  unused | normal   | translate  |
 *  +----------------+---------+----------+------------+
 *
 * Replies put the result code in word 1 followed by normal values.
 */

// Build a header word.
func MakeHeader(command uint16, normal, translate uint32) uint32 {
	return uint32(command)<<16 | (normal&0x3f)<<6 | translate&0x3f
}

// Command id from header.
func CommandID(header uint32) uint16 {
	return uint16(header >> 16)
}

// Fill reply, values follow the result.
func reply(cmd []uint32, res kernel.ResultCode, values ...uint32) {
	cmd[0] = MakeHeader(CommandID(cmd[0]), uint32(len(values)+1), 0)
	cmd[1] = uint32(res)
	copy(cmd[2:], values)
}

// Reply for unknown command.
func unknown(log *slog.Logger, service string, cmd []uint32) {
	log.Warn("service: unimplemented function", "service", service, "command", CommandID(cmd[0]))
	reply(cmd, kernel.ErrNotImplemented)
}

// Register all services.
func InstallInterfaces(sm *ServiceManager, ctl Controller, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := sm.RegisterService(NewNS(ctl, logger), 0); err != nil {
		return err
	}
	return sm.RegisterService(NewAM(logger), 0)
}
