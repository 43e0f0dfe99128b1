/*
 * CTREMU - Memory and register commands
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
	"strconv"
	"strings"
	"unicode"

	core "github.com/rcornwell/ctremu/emu/core"
	"github.com/rcornwell/ctremu/emu/cpu"
)

const (
	regPC  = cpu.NumRegs // Pseudo register number for pc.
	maxRun = 1024        // Largest range examine will show.
)

type memoryOpts struct {
	bytes     bool   // Show bytes rather than words.
	symbolic  bool   // Disassemble words.
	register  int    // Register number, -1 for memory.
	high      bool   // High value defined.
	lowRange  uint32 // Lower start to display.
	highRange uint32 // Highest value to display.
}

// Parse register name, r0-r15, sp, lr or pc.
func parseRegister(name string) (int, bool) {
	switch name {
	case "sp":
		return cpu.RegSP, true
	case "lr":
		return cpu.RegLR, true
	case "pc":
		return regPC, true
	}
	if len(name) < 2 || name[0] != 'r' {
		return 0, false
	}
	num, err := strconv.Atoi(name[1:])
	if err != nil || num < 0 || num >= cpu.NumRegs {
		return 0, false
	}
	return num, true
}

// Parse memory option word.
func (line *cmdLine) parseMemoryValue() string {
	line.skipSpace()
	value := ""
	for !line.isEOL() {
		by := line.line[line.pos]
		if by == '-' || unicode.IsSpace(rune(by)) {
			break
		}
		value += string([]byte{by})
		line.pos++
	}
	return strings.ToLower(value)
}

// Get options and location for examine or deposit.
func (line *cmdLine) parseMemoryOptions(options *memoryOpts, ranges bool) error {
	options.register = -1
	for {
		line.skipSpace()
		if line.isEOL() {
			return errors.New("address or register required")
		}
		if line.line[line.pos] != '-' {
			break
		}
		line.pos++
		for !line.isEOL() && !unicode.IsSpace(rune(line.line[line.pos])) {
			switch unicode.ToLower(rune(line.line[line.pos])) {
			case 'b':
				options.bytes = true
			case 's':
				options.symbolic = true
			default:
				return errors.New("unknown option: " + string(line.line[line.pos]))
			}
			line.pos++
		}
	}

	value := line.parseMemoryValue()
	if reg, ok := parseRegister(value); ok {
		options.register = reg
		return nil
	}

	addr, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return errors.New("not a valid address: " + value)
	}
	options.lowRange = uint32(addr)
	options.highRange = options.lowRange
	if !line.isEOL() && line.line[line.pos] == '-' {
		if !ranges {
			return errors.New("range not allowed")
		}
		line.pos++
		value = line.parseMemoryValue()
		addr, err = strconv.ParseUint(value, 16, 32)
		if err != nil {
			return errors.New("not a valid address: " + value)
		}
		options.highRange = uint32(addr)
		options.high = true
		if options.highRange < options.lowRange {
			return errors.New("end of range before start")
		}
		if options.highRange-options.lowRange > maxRun {
			return errors.New("range too large")
		}
	}
	return nil
}

// Display memory or a register of current thread.
func examine(line *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Examine")
	var options memoryOpts
	if err := line.parseMemoryOptions(&options, true); err != nil {
		return false, err
	}
	line.skipSpace()
	if !line.isEOL() {
		return false, errors.New("extra text after address")
	}

	var str strings.Builder
	var err error
	callErr := runner.Call(func(sys *core.System) {
		if !sys.IsPoweredOn() {
			err = errNotLoaded
			return
		}
		if options.register >= 0 {
			showRegister(&str, sys.CPU(), options.register)
			return
		}
		err = showMemory(&str, sys, &options)
	})
	if callErr != nil {
		return false, callErr
	}
	if str.Len() != 0 {
		fmt.Fprint(out, str.String())
	}
	return false, err
}

func showRegister(str *strings.Builder, c cpu.Core, reg int) {
	if reg == regPC {
		fmt.Fprintf(str, "pc=%08x\n", c.GetPC())
		return
	}
	fmt.Fprintf(str, "%s=%08x\n", cpu.RegName(uint8(reg)), c.GetReg(reg))
}

func showMemory(str *strings.Builder, sys *core.System, options *memoryOpts) error {
	mem := sys.Memory()
	if options.bytes {
		for addr := options.lowRange; addr <= options.highRange; addr++ {
			if (addr-options.lowRange)%16 == 0 {
				if addr != options.lowRange {
					str.WriteString("\n")
				}
				fmt.Fprintf(str, "%08x:", addr)
			}
			by, ok := mem.Read8(addr)
			if !ok {
				str.WriteString("\n")
				return fmt.Errorf("address not mapped: %08x", addr)
			}
			fmt.Fprintf(str, " %02x", by)
			if addr == ^uint32(0) {
				break
			}
		}
		str.WriteString("\n")
		return nil
	}

	addr := options.lowRange &^ 3
	for {
		word, ok := mem.Read32(addr)
		if !ok {
			return fmt.Errorf("address not mapped: %08x", addr)
		}
		if options.symbolic {
			fmt.Fprintf(str, "%08x: %08x  %s\n", addr, word, cpu.Disassemble(addr, word))
		} else {
			fmt.Fprintf(str, "%08x: %08x\n", addr, word)
		}
		if addr+4 > options.highRange || addr+4 < addr {
			return nil
		}
		addr += 4
	}
}

// Change memory or a register of current thread.
func deposit(line *cmdLine, runner *core.Runner) (bool, error) {
	slog.Debug("Command Deposit")
	var options memoryOpts
	if err := line.parseMemoryOptions(&options, false); err != nil {
		return false, err
	}
	value, err := line.getHex(0)
	if err != nil {
		return false, errors.New("deposit requires hex value")
	}
	line.skipSpace()
	if !line.isEOL() {
		return false, errors.New("extra text after value")
	}
	if options.bytes && value > 0xff {
		return false, errors.New("byte value too large")
	}

	callErr := runner.Call(func(sys *core.System) {
		if !sys.IsPoweredOn() {
			err = errNotLoaded
			return
		}
		switch {
		case options.register == regPC:
			sys.CPU().SetPC(value)
		case options.register >= 0:
			sys.CPU().SetReg(options.register, value)
		case options.bytes:
			if !sys.Memory().Write8(options.lowRange, uint8(value)) {
				err = fmt.Errorf("address not mapped: %08x", options.lowRange)
			}
		default:
			if !sys.Memory().Write32(options.lowRange&^3, value) {
				err = fmt.Errorf("address not mapped: %08x", options.lowRange)
			}
		}
	})
	if callErr != nil {
		return false, callErr
	}
	return false, err
}
