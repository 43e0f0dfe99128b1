/*
 * CTREMU - Console commands
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
	"log/slog"
	"os"

	"github.com/bradleyjkemp/memviz"
	command "github.com/rcornwell/ctremu/command/command"
	assembler "github.com/rcornwell/ctremu/emu/assemble"
	core "github.com/rcornwell/ctremu/emu/core"
	"github.com/rcornwell/ctremu/emu/kernel"
	"github.com/rcornwell/ctremu/emu/loader"
	"github.com/rcornwell/ctremu/emu/service"
	"github.com/rcornwell/ctremu/emu/timing"
)

var cmdList = []cmd{
	{Name: "load", Min: 1, Process: load},
	{Name: "start", Min: 3, Process: start},
	{Name: "continue", Min: 1, Process: cont},
	{Name: "stop", Min: 3, Process: stop},
	{Name: "jump", Min: 1, Process: jump, Complete: jumpComplete},
	{Name: "shutdown", Min: 2, Process: shutdown},
	{Name: "set", Min: 3, Process: set, Complete: setComplete},
	{Name: "unset", Min: 3, Process: unset, Complete: setComplete},
	{Name: "show", Min: 2, Process: show, Complete: showComplete},
	{Name: "examine", Min: 2, Process: examine},
	{Name: "deposit", Min: 2, Process: deposit},
	{Name: "dump", Min: 2, Process: dump},
	{Name: "assemble", Min: 2, Process: assemble},
	{Name: "quit", Min: 4, Process: quit},
}

// Load a title.
func load(line *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Load")
	path, ok := line.parseQuoteString()
	if !ok || path == "" {
		return false, errors.New("load requires a file name")
	}
	return false, runner.SendLoad(path)
}

// Start running loaded title.
func start(_ *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Start")
	return false, runner.SendStart()
}

// Continue from where it stopped.
func cont(_ *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Continue")
	return false, runner.SendStart()
}

// Stop stepping.
func stop(_ *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Stop")
	return false, runner.SendStop()
}

var mediaNames = []string{
	service.MediaNAND:     "nand",
	service.MediaSDMC:     "sdmc",
	service.MediaGameCard: "card",
}

// Jump to a title: jump [media titleid], no arguments reloads current title.
func jump(line *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Jump")
	line.skipSpace()
	if line.isEOL() {
		return false, runner.SendJump(0, 0)
	}
	name := line.getWord(false)
	media := -1
	for i, m := range mediaNames {
		if m == name {
			media = i
		}
	}
	if media < 0 {
		return false, errors.New("media must be nand, sdmc or card")
	}
	low, err := line.getHex(':')
	if err != nil {
		return false, errors.New("title id must be hex high:low")
	}
	var titleID uint64
	if line.getCurrent() == ':' {
		high := low
		low, err = line.getHex(0)
		if err != nil {
			return false, errors.New("title id must be hex high:low")
		}
		titleID = uint64(high) << 32
	}
	titleID |= uint64(low)
	if titleID == 0 {
		return false, errors.New("title id must not be zero")
	}
	return false, runner.SendJump(uint32(media), titleID)
}

func jumpComplete(line *cmdLine) []string {
	line.skipSpace()
	leading := line.line[:line.pos]
	word := line.line[line.pos:]
	matches := []string{}
	for _, m := range mediaNames {
		if len(word) <= len(m) && m[:len(word)] == word {
			matches = append(matches, leading+m+" ")
		}
	}
	return matches
}

// Shut system down.
func shutdown(_ *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Shutdown")
	return false, runner.SendShutdown()
}

// Handle set commands.
func set(line *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Set")
	target := &system{runner: runner}
	optlist, err := line.getOptions(target, command.ValidSet)
	if err != nil {
		return false, err
	}
	if len(optlist) == 0 {
		return false, errors.New("no options given to set command")
	}
	return false, target.Set(true, optlist)
}

// Handle unset commands.
func unset(line *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Unset")
	target := &system{runner: runner}
	optlist, err := line.getOptions(target, command.ValidShow|command.ValidSet)
	if err != nil {
		return false, err
	}
	if len(optlist) == 0 {
		return false, errors.New("no options given to unset command")
	}
	return false, target.Set(false, optlist)
}

// Set/Unset command completion.
func setComplete(line *cmdLine) []string {
	return line.scanOptions(command.ValidSet)
}

// Process the show command.
func show(line *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Show")
	target := &system{runner: runner}
	optlist, err := line.getOptions(target, command.ValidShow)
	if err != nil {
		return false, err
	}
	str, err := target.Show(optlist)
	if err != nil {
		return false, err
	}
	fmt.Fprintln(out, str)
	return false, nil
}

// Show command completion.
func showComplete(line *cmdLine) []string {
	return line.scanOptions(command.ValidShow)
}

// State written by dump command.
type snapshot struct {
	Threads []kernel.ThreadInfo
	Events  []timing.Pending
}

// Write graph of kernel threads and pending events.
func dump(line *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Dump")
	path, ok := line.parseQuoteString()
	if !ok || path == "" {
		return false, errors.New("dump requires a file name")
	}

	var snap *snapshot
	err := runner.Call(func(sys *core.System) {
		if !sys.IsPoweredOn() {
			return
		}
		snap = &snapshot{Threads: sys.Kernel().Threads(), Events: sys.Timing().PendingEvents()}
	})
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, errNotLoaded
	}

	file, err := os.Create(path)
	if err != nil {
		return false, err
	}
	memviz.Map(file, snap)
	return false, file.Close()
}

// Assemble source file into an image: assemble <source> <image>.
func assemble(line *cmdLine, _ *core.Runner) (bool, error) {
	slog.Debug("Command Assemble")
	source, ok := line.parseQuoteString()
	if !ok || source == "" {
		return false, errors.New("assemble requires source and image file names")
	}
	image, ok := line.parseQuoteString()
	if !ok || image == "" {
		return false, errors.New("assemble requires source and image file names")
	}

	file, err := os.Open(source)
	if err != nil {
		return false, err
	}
	defer file.Close()
	img, err := assembler.Assemble(file)
	if err != nil {
		return false, fmt.Errorf("%s: %w", source, err)
	}
	if err := loader.WriteFile(image, img); err != nil {
		return false, err
	}
	fmt.Fprintf(out, "%s: %d bytes entry %08x\n", image, len(img.Code), img.Entry)
	return false, nil
}

// Handle commands that quit.
func quit(_ *cmdLine, _ *core.Runner) (bool, error) {
	slog.Debug("Command Quit")
	return true, nil
}
