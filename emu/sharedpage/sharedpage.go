/*
 * CTREMU - Shared page
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

package sharedpage

import (
	"encoding/binary"
	"log/slog"
	"math"
	"time"

	"github.com/rcornwell/ctremu/emu/memory"
	"github.com/rcornwell/ctremu/emu/settings"
	"github.com/rcornwell/ctremu/emu/timing"
)

// Offsets in shared page.
const (
	OffsetDateTimeSelector = 0x000
	OffsetRunningHW        = 0x004
	OffsetDateTime0        = 0x008
	OffsetDateTime1        = 0x028
	OffsetWifiMAC          = 0x048
	OffsetWifiLinkLevel    = 0x04E
	OffsetNetworkState     = 0x04F
	OffsetSlider3D         = 0x058
	OffsetLED3D            = 0x05C
	OffsetBatteryState     = 0x05D
	dateTimeSize           = 0x20
)

// Milliseconds from 1900 to 1970.
const epochDelta = 2208988800000

const updateInterval = 60 * 60 * 1000 // One hour in ms.

var wifiMAC = []byte{0x40, 0xF4, 0x07, 0x00, 0x00, 0x00}

// Handler owns the shared page and keeps its clock current.
type Handler struct {
	tm          *timing.Timing
	page        []byte
	initTime    time.Time // Console time at tick zero.
	updateEvent *timing.EventType
	log         *slog.Logger
}

func New(tm *timing.Timing, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{tm: tm, log: logger}
}

// Build page and start the time update event.
func (h *Handler) Init() {
	h.page = make([]byte, memory.PageSize)
	switch settings.Values.InitClock {
	case settings.FixedTime:
		h.initTime = time.Unix(int64(settings.Values.InitTime), 0).UTC()
	default:
		h.initTime = time.Now().UTC()
	}
	h.page[OffsetRunningHW] = 1 // Product.
	copy(h.page[OffsetWifiMAC:], wifiMAC)
	h.page[OffsetWifiLinkLevel] = byte(settings.Values.WifiLinkLevel)
	h.page[OffsetNetworkState] = byte(settings.Values.NetworkState)
	h.Set3DSlider(settings.Values.Factor3D)
	h.SetBattery(settings.Values.BatteryLevel, settings.Values.AdapterConnected, settings.Values.BatteryCharging)

	h.updateEvent = h.tm.RegisterEvent("SharedPage.UpdateTimeCallback", h.updateTimeCallback)
	h.updateTimeCallback(0, 0)
}

// Stop updating.
func (h *Handler) Shutdown() {
	if h.updateEvent != nil {
		h.tm.UnscheduleAll(h.updateEvent)
		h.updateEvent = nil
	}
}

// Backing memory mapped into processes.
func (h *Handler) Page() []byte {
	return h.page
}

// Console time now.
func (h *Handler) GetSystemTime() time.Time {
	return h.initTime.Add(time.Duration(h.tm.GetGlobalTimeUs()) * time.Microsecond)
}

// Milliseconds since 1900.
func consoleTime(t time.Time) uint64 {
	return uint64(t.UnixMilli() + epochDelta)
}

// Write new time into the inactive slot then flip selector.
func (h *Handler) updateTimeCallback(_ uint64, cyclesLate int64) {
	selector := binary.LittleEndian.Uint32(h.page[OffsetDateTimeSelector:])
	next := (selector + 1) & 1
	slot := h.page[OffsetDateTime0+int(next)*dateTimeSize:]
	binary.LittleEndian.PutUint64(slot[0x00:], consoleTime(h.GetSystemTime()))
	binary.LittleEndian.PutUint64(slot[0x08:], h.tm.GetTicks())
	binary.LittleEndian.PutUint64(slot[0x10:], timing.BaseClockRate)
	binary.LittleEndian.PutUint64(slot[0x18:], 0)
	binary.LittleEndian.PutUint32(h.page[OffsetDateTimeSelector:], next)
	h.tm.ScheduleEvent(timing.MsToCycles(updateInterval)-cyclesLate, h.updateEvent, 0)
}

// Time stored in active slot, ms since 1900.
func (h *Handler) DateTime() uint64 {
	selector := binary.LittleEndian.Uint32(h.page[OffsetDateTimeSelector:])
	return binary.LittleEndian.Uint64(h.page[OffsetDateTime0+int(selector)*dateTimeSize:])
}

// Battery level 0-5 with adapter and charging flags.
func (h *Handler) SetBattery(level int, adapter, charging bool) {
	state := byte(min(max(level, 0), 5)) << 2
	if adapter {
		state |= 1
	}
	if charging {
		state |= 2
	}
	h.page[OffsetBatteryState] = state
}

// 3D slider as a percentage.
func (h *Handler) Set3DSlider(percent int) {
	value := float32(min(max(percent, 0), 100)) / 100
	binary.LittleEndian.PutUint32(h.page[OffsetSlider3D:], math.Float32bits(value))
	if percent > 0 {
		h.page[OffsetLED3D] = 1
	} else {
		h.page[OffsetLED3D] = 0
	}
}
