/*
 * CTREMU - System run loop and lifecycle
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
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/rcornwell/ctremu/emu/audio"
	"github.com/rcornwell/ctremu/emu/cheat"
	"github.com/rcornwell/ctremu/emu/cpu"
	"github.com/rcornwell/ctremu/emu/hw"
	"github.com/rcornwell/ctremu/emu/kernel"
	"github.com/rcornwell/ctremu/emu/loader"
	"github.com/rcornwell/ctremu/emu/memory"
	"github.com/rcornwell/ctremu/emu/perfstats"
	"github.com/rcornwell/ctremu/emu/rpc"
	"github.com/rcornwell/ctremu/emu/service"
	"github.com/rcornwell/ctremu/emu/settings"
	"github.com/rcornwell/ctremu/emu/sharedpage"
	"github.com/rcornwell/ctremu/emu/timing"
	"github.com/rcornwell/ctremu/emu/video"
	"github.com/rcornwell/ctremu/util/debug"
)

// Title requested by RequestJump, titleID 0 reloads current file.
type jumpTarget struct {
	media   uint32
	titleID uint64
}

// Builds the CPU core for a session.
type CoreFactory func(kind cpu.Kind, tm *timing.Timing, mem *memory.Memory, svc cpu.SVCHandler) cpu.Core

// System owns every subsystem of one emulation session.
// RunLoop and everything it reaches must be called from one goroutine,
// RequestJump and RequestShutdown may be called from any.
type System struct {
	log        *slog.Logger
	newCore    CoreFactory
	tm         *timing.Timing
	mem        *memory.Memory
	cpu        cpu.Core
	dsp        *audio.DSP
	rpcServer  *rpc.Server
	sm         *service.ServiceManager
	sharedPage *sharedpage.Handler
	hw         *hw.Hardware
	kernel     *kernel.Kernel
	cheats     *cheat.Engine
	video      *video.Video
	perf       *perfstats.PerfStats
	appLoader  loader.Loader
	filePath   string
	window     video.EmuWindow

	reschedulePending bool
	reschedules       uint64 // Kernel reschedules performed.

	jumpRequested     atomic.Pointer[jumpTarget]
	shutdownRequested atomic.Bool
}

func New(logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{log: logger, newCore: cpu.New, perf: perfstats.New()}
}

// Replace CPU constructor, used by tests.
func (s *System) SetCoreFactory(factory CoreFactory) {
	s.newCore = factory
}

// Execute one step of emulation.
func (s *System) RunLoop() ResultStatus {
	if s.cpu == nil {
		return ErrorNotInitialized
	}

	if s.kernel.GetCurrentThread() == nil {
		debug.Debugf("core", debug.Mask(), debug.Core, "idling at %d", s.tm.GetTicks())
		s.tm.Idle()
		s.tm.Advance()
		s.PrepareReschedule()
	} else {
		s.tm.Advance()
		s.cpu.Run()
	}

	s.hw.Update()
	s.Reschedule()

	if target := s.jumpRequested.Swap(nil); target != nil {
		return s.Jump(target.media, target.titleID)
	}
	if s.shutdownRequested.Swap(false) {
		return ShutdownRequested
	}
	return Success
}

// Stop the CPU at the next instruction and switch threads after this step.
func (s *System) PrepareReschedule() {
	if s.cpu != nil {
		s.cpu.PrepareReschedule()
	}
	s.reschedulePending = true
}

// Switch threads if a reschedule is pending.
func (s *System) Reschedule() {
	if !s.reschedulePending {
		return
	}
	s.reschedulePending = false
	s.reschedules++
	s.kernel.Reschedule()
}

// Kernel reschedules performed this session.
func (s *System) Reschedules() uint64 {
	return s.reschedules
}

// A reschedule will happen at the end of this step.
func (s *System) ReschedulePending() bool {
	return s.reschedulePending
}

// Ask to load another title at the end of the step, titleID 0 reloads current file.
func (s *System) RequestJump(media uint32, titleID uint64) {
	s.jumpRequested.Store(&jumpTarget{media: media, titleID: titleID})
}

// Ask RunLoop to return ShutdownRequested.
func (s *System) RequestShutdown() {
	s.shutdownRequested.Store(true)
}

// Tear down session and load the requested title.
func (s *System) Jump(media uint32, titleID uint64) ResultStatus {
	path := s.filePath
	window := s.window
	s.Shutdown()
	if titleID != 0 {
		path = service.GetTitleContentPath(media, titleID)
	}
	s.log.Info("jumping to " + path)
	return s.Load(window, path)
}

// Load an executable and start a session for it.
func (s *System) Load(window video.EmuWindow, path string) ResultStatus {
	appLoader := loader.GetLoader(path)
	if appLoader == nil {
		s.log.Error("failed to obtain loader for " + path)
		return ErrorGetLoader
	}
	if s.cpu != nil {
		s.Shutdown()
	}
	s.appLoader = appLoader

	systemMode, status := appLoader.LoadKernelSystemMode()
	if status != loader.Success {
		s.log.Error("failed to determine system mode", "error", status.String())
		s.appLoader = nil
		return loaderError(status, ErrorSystemMode)
	}

	if result := s.Init(window, systemMode); result != Success {
		s.log.Error("failed to initialize system", "error", result.String())
		s.Shutdown()
		return result
	}

	process := s.kernel.CreateProcess("app")
	if status := appLoader.Load(process); status != loader.Success {
		s.log.Error("failed to load " + path + ": " + status.String())
		s.Shutdown()
		return loaderError(status, ErrorLoader)
	}
	s.mem.SetCurrentPageTable(process.PageTable())
	s.filePath = path
	s.window = window
	// Main thread is ready, make it current.
	s.Reschedule()
	s.log.Info("loaded " + appLoader.Name() + " from " + path)
	return Success
}

// Map loader failure to system status.
func loaderError(status loader.ResultStatus, other ResultStatus) ResultStatus {
	switch status {
	case loader.ErrorEncrypted:
		return ErrorLoader_ErrorEncrypted
	case loader.ErrorInvalidFormat:
		return ErrorLoader_ErrorInvalidFormat
	}
	return other
}

// Build all subsystems for a session.
func (s *System) Init(window video.EmuWindow, systemMode uint32) ResultStatus {
	s.log.Debug("initializing system", "mode", systemMode)

	s.reschedules = 0
	s.tm = timing.New(s.log)
	s.tm.SetStrict(settings.Values.Strict)
	s.mem = memory.New()

	kind := cpu.SelectKind(settings.Values.UseCPUJIT)
	s.cpu = s.newCore(kind, s.tm, s.mem, s)
	s.log.Debug("CPU core " + kind.String())

	sink, err := audio.NewSink(settings.Values.SinkID, settings.Values.AudioDeviceID)
	if err != nil {
		s.log.Warn("audio sink: " + err.Error() + ", using null sink")
		sink = audio.NullSink{}
	}
	s.dsp = audio.New(s.tm, s.log)
	s.dsp.Init(sink, settings.Values.EnableAudioStretching)

	if settings.Values.RPCPort != 0 {
		address := "127.0.0.1:" + strconv.Itoa(settings.Values.RPCPort)
		s.rpcServer, err = rpc.Start(address, s.log)
		if err != nil {
			s.log.Error(err.Error())
			s.rpcServer = nil
		}
	}

	s.sm = service.NewServiceManager(s.log)

	s.sharedPage = sharedpage.New(s.tm, s.log)
	s.sharedPage.Init()

	s.hw = hw.New(s.tm, s.log)
	s.hw.Init()
	s.hw.AddUpdater(s.dsp.Flush)
	s.hw.AddUpdater(s.processRequests)

	s.kernel = kernel.New(s.tm, s.cpu, s.mem, s, s.log)
	if err := s.kernel.Init(systemMode); err != nil {
		s.log.Error(err.Error())
		return ErrorSystemMode
	}
	s.kernel.SetSharedPage(s.sharedPage.Page())
	s.kernel.SetPortResolver(s.sm)

	if err := service.InstallInterfaces(s.sm, s, s.log); err != nil {
		s.log.Error(err.Error())
	}

	s.cheats = cheat.New(s.tm, s.mem, s.log)
	s.cheats.Init(settings.Values.Cheats)

	s.video = video.New()
	if err := s.video.Init(window, s.perf, s.RequestShutdown); err != nil {
		s.log.Error("video core: " + err.Error())
		return ErrorVideoCore
	}
	s.hw.AddVBlankHandler(s.video.OnVBlank)
	s.hw.AddUpdater(s.video.Update)

	s.perf.Reset(s.tm.GetGlobalTimeUs())
	s.perf.BeginSystemFrame()
	s.log.Debug("system initialized")
	return Success
}

// Tear down everything, safe on partly built system.
func (s *System) Shutdown() {
	if s.cheats != nil {
		s.cheats.Shutdown()
		s.cheats = nil
	}
	if s.video != nil {
		s.video.Shutdown()
		s.video = nil
	}
	if s.sm != nil {
		s.sm.Shutdown()
	}
	if s.kernel != nil {
		s.kernel.Shutdown()
		s.kernel = nil
	}
	if s.hw != nil {
		s.hw.Shutdown()
		s.hw = nil
	}
	if s.sharedPage != nil {
		s.sharedPage.Shutdown()
		s.sharedPage = nil
	}
	s.sm = nil
	if s.dsp != nil {
		if err := s.dsp.Shutdown(); err != nil {
			s.log.Warn(err.Error())
		}
		s.dsp = nil
	}
	if s.mem != nil {
		s.mem.ClearWatchers()
		s.mem.SetCurrentPageTable(nil)
	}
	s.cpu = nil
	if s.tm != nil {
		s.tm.Shutdown()
		s.tm = nil
	}
	s.appLoader = nil
	if s.rpcServer != nil {
		s.rpcServer.Stop()
		s.rpcServer = nil
	}
	s.mem = nil
	s.reschedulePending = false
	s.log.Debug("shutdown complete")
}

// Performance counters since last call.
func (s *System) GetAndResetPerfStats() perfstats.Results {
	if s.tm == nil {
		return perfstats.Results{}
	}
	return s.perf.GetAndResetStats(s.tm.GetGlobalTimeUs())
}

// Session is loaded and can run.
func (s *System) IsPoweredOn() bool {
	return s.cpu != nil
}

// Path of loaded file.
func (s *System) FilePath() string {
	return s.filePath
}

func (s *System) Timing() *timing.Timing {
	return s.tm
}

func (s *System) Kernel() *kernel.Kernel {
	return s.kernel
}

func (s *System) Memory() *memory.Memory {
	return s.mem
}

func (s *System) CPU() cpu.Core {
	return s.cpu
}

func (s *System) Cheats() *cheat.Engine {
	return s.cheats
}

func (s *System) ServiceManager() *service.ServiceManager {
	return s.sm
}

func (s *System) Audio() *audio.DSP {
	return s.dsp
}

func (s *System) RPCServer() *rpc.Server {
	return s.rpcServer
}

// Frames since session start.
func (s *System) Frames() uint64 {
	if s.hw == nil {
		return 0
	}
	return s.hw.Frames()
}

// Supervisor calls go to the kernel.
func (s *System) CallSVC(num uint32) {
	s.kernel.CallSVC(num)
}

func (s *System) Fault(pc uint32, reason string) {
	s.kernel.Fault(pc, reason)
}

func (s *System) processRequests() {
	s.rpcServer.ProcessRequests(s)
}

// Debug server access, runs on the stepping goroutine.

func (s *System) Ticks() uint64 {
	return s.tm.GetTicks()
}

func (s *System) ReadMemory(addr, size uint32) ([]byte, bool) {
	return s.mem.ReadBlock(addr, size)
}

func (s *System) WriteMemory(addr, value uint32) bool {
	return s.mem.Write32(addr, value)
}

func (s *System) ThreadList() []string {
	list := []string{}
	for _, th := range s.kernel.Threads() {
		list = append(list, th.String())
	}
	return list
}

func (s *System) Stats() string {
	return fmt.Sprintf("frames %d time %dus reschedules %d frame_time_scale %.3f", s.hw.Frames(),
		s.tm.GetGlobalTimeUs(), s.reschedules, s.perf.GetLastFrameTimeScale())
}
