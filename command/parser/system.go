/*
 * CTREMU - Console system settings and status
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

package parser

import (
	"errors"
	"fmt"
	"strings"

	command "github.com/rcornwell/ctremu/command/command"
	core "github.com/rcornwell/ctremu/emu/core"
	"github.com/rcornwell/ctremu/emu/settings"
)

var errNotLoaded = errors.New("no title loaded")

var systemOptions = []command.Options{
	{Name: "limit", OptionType: command.OptionNumber, OptionValid: command.ValidSet},
	{Name: "stretch", OptionType: command.OptionSwitch, OptionValid: command.ValidSet},
	{Name: "strict", OptionType: command.OptionSwitch, OptionValid: command.ValidSet},
	{Name: "jit", OptionType: command.OptionSwitch, OptionValid: command.ValidSet},
	{Name: "cheat", OptionType: command.OptionName, OptionValid: command.ValidSet},
	{Name: "ticks", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "threads", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "events", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "stats", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "services", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "cheats", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "processes", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "settings", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
}

// System settings and status as seen by the console.
type system struct {
	runner *core.Runner
}

func (s *system) Options(_ string) []command.Options {
	return systemOptions
}

// Set or unset options, runs on the stepping goroutine.
func (s *system) Set(set bool, options []*command.CmdOption) error {
	var err error
	callErr := s.runner.Call(func(sys *core.System) {
		for _, opt := range options {
			switch opt.Name {
			case "limit":
				settings.Values.UseFrameLimit = set
				if set {
					if opt.Value == 0 {
						err = errors.New("limit must be a percentage")
						return
					}
					settings.Values.FrameLimit = int(opt.Value)
				}
			case "stretch":
				settings.Values.EnableAudioStretching = set
				if sys.Audio() != nil {
					sys.Audio().SetStretching(set)
				}
			case "strict":
				settings.Values.Strict = set
			case "jit":
				settings.Values.UseCPUJIT = set
			case "cheat":
				if sys.Cheats() == nil {
					err = errNotLoaded
					return
				}
				if err = sys.Cheats().Enable(opt.EqualOpt, set); err != nil {
					return
				}
			}
		}
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Show status, runs on the stepping goroutine.
func (s *system) Show(options []*command.CmdOption) (string, error) {
	if len(options) == 0 {
		options = []*command.CmdOption{{Name: "ticks"}, {Name: "stats"}}
	}
	var str strings.Builder
	var err error
	callErr := s.runner.Call(func(sys *core.System) {
		for _, opt := range options {
			if opt.Name == "settings" {
				showSettings(&str)
				continue
			}
			if !sys.IsPoweredOn() {
				err = errNotLoaded
				return
			}
			showItem(&str, sys, opt.Name)
		}
	})
	if callErr != nil {
		return "", callErr
	}
	return strings.TrimRight(str.String(), "\n"), err
}

func showItem(str *strings.Builder, sys *core.System, name string) {
	switch name {
	case "ticks":
		tm := sys.Timing()
		fmt.Fprintf(str, "Ticks: %d idle: %d time: %dus\n", tm.GetTicks(), tm.IdleTicks(), tm.GetGlobalTimeUs())
	case "threads":
		for _, th := range sys.Kernel().Threads() {
			str.WriteString(th.String() + "\n")
		}
	case "events":
		for _, ev := range sys.Timing().PendingEvents() {
			str.WriteString(ev.String() + "\n")
		}
	case "stats":
		str.WriteString(sys.GetAndResetPerfStats().String() + "\n")
	case "services":
		str.WriteString(strings.Join(sys.ServiceManager().Services(), " ") + "\n")
	case "cheats":
		for _, c := range sys.Cheats().Cheats() {
			state := "off"
			if c.Enabled {
				state = "on"
			}
			fmt.Fprintf(str, "%-16s %08x %08x %d %s\n", c.Name, c.Addr, c.Value, c.Size, state)
		}
	case "processes":
		for _, p := range sys.Kernel().Processes() {
			fmt.Fprintf(str, "%4d %-16s memory: %08x handles: %d\n", p.ID(), p.Name(), p.MemoryUsed(), p.Handles().Len())
		}
	}
}

func showSettings(str *strings.Builder) {
	v := settings.Values
	if v.UseCPUJIT {
		str.WriteString("CPU: jit\n")
	} else {
		str.WriteString("CPU: interpreter\n")
	}
	if v.UseFrameLimit {
		fmt.Fprintf(str, "Frame limit: %d%%\n", v.FrameLimit)
	} else {
		str.WriteString("Frame limit: off\n")
	}
	fmt.Fprintf(str, "Audio sink: %s stretch: %v\n", v.SinkID, v.EnableAudioStretching)
	fmt.Fprintf(str, "Content: %s\n", v.ContentDir)
	fmt.Fprintf(str, "Strict: %v\n", v.Strict)
}
