/*
 * CTREMU - Guest assembler
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

package assembler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/rcornwell/ctremu/emu/cpu"
	"github.com/rcornwell/ctremu/emu/loader"
	"github.com/rcornwell/ctremu/emu/memory"
)

/* Source format, one statement per line:
 *
 *   label:  op operands   ; comment
 *
 * Directives:
 *   .name text        image name
 *   .entry label      entry point, default start of code
 *   .prio n           main thread priority
 *   .stack n          main thread stack size
 *   .mode n           kernel system mode
 *   .base addr        code base address
 *   .encrypted        mark image encrypted
 *   .word v, ...      32 bit words
 *   .asciz "text"     NUL terminated string, padded to a word
 *   .space n          n zero bytes, rounded to a word
 *
 * li rd, value loads a full 32 bit value with movi and movhi.
 */

const (
	defaultPriority  = 48
	defaultStackSize = 0x4000
)

type statement struct {
	line    int
	op      string
	args    []string
	address uint32
}

type assembler struct {
	img       *loader.Image
	labels    map[string]uint32
	stmts     []statement
	entry     string
	pc        uint32
	haveEntry bool
}

// Assemble source text into a loadable image.
func Assemble(src io.Reader) (*loader.Image, error) {
	a := &assembler{
		img: &loader.Image{
			CodeBase:  memory.CodeVAddr,
			Priority:  defaultPriority,
			StackSize: defaultStackSize,
		},
		labels: map[string]uint32{},
	}
	if err := a.scan(src); err != nil {
		return nil, err
	}
	if err := a.emit(); err != nil {
		return nil, err
	}
	return a.img, nil
}

// Assemble from a string.
func AssembleString(src string) (*loader.Image, error) {
	return Assemble(strings.NewReader(src))
}

// First pass, collect labels and directives.
func (a *assembler) scan(src io.Reader) error {
	scanner := bufio.NewScanner(src)
	lineNumber := 0
	started := false
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(stripComment(scanner.Text()))

		// Labels.
		for {
			i := strings.IndexByte(line, ':')
			if i <= 0 || !isName(line[:i]) {
				break
			}
			label := line[:i]
			if _, ok := a.labels[label]; ok {
				return fmt.Errorf("line %d: label %s defined twice", lineNumber, label)
			}
			a.labels[label] = a.img.CodeBase + a.pc
			line = strings.TrimSpace(line[i+1:])
		}
		if line == "" {
			continue
		}

		var op string
		op, line = getName(line)
		op = strings.ToLower(op)
		stmt := statement{line: lineNumber, op: op, args: splitArgs(line), address: a.img.CodeBase + a.pc}
		size, err := a.directive(&stmt, started)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNumber, err)
		}
		if size != 0 {
			started = true
			a.stmts = append(a.stmts, stmt)
			a.pc += size
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	return nil
}

// Handle directive or return size of statement.
func (a *assembler) directive(stmt *statement, started bool) (uint32, error) {
	switch stmt.op {
	case ".name":
		a.img.Name = unquote(strings.Join(stmt.args, ","))
		return 0, nil
	case ".entry":
		if len(stmt.args) != 1 {
			return 0, errors.New(".entry needs one value")
		}
		a.entry = stmt.args[0]
		a.haveEntry = true
		return 0, nil
	case ".prio", ".stack", ".mode", ".base":
		if len(stmt.args) != 1 {
			return 0, fmt.Errorf("%s needs one value", stmt.op)
		}
		v, err := parseNumber(stmt.args[0])
		if err != nil {
			return 0, err
		}
		switch stmt.op {
		case ".prio":
			a.img.Priority = uint32(v)
		case ".stack":
			a.img.StackSize = uint32(v)
		case ".mode":
			a.img.SystemMode = uint32(v)
		case ".base":
			if started || len(a.labels) != 0 {
				return 0, errors.New(".base must come before code")
			}
			if uint32(v)&memory.PageMask != 0 {
				return 0, errors.New(".base must be page aligned")
			}
			a.img.CodeBase = uint32(v)
		}
		return 0, nil
	case ".encrypted":
		a.img.Encrypted = true
		return 0, nil
	case ".word":
		if len(stmt.args) == 0 {
			return 0, errors.New(".word needs a value")
		}
		return uint32(len(stmt.args)) * 4, nil
	case ".asciz":
		if len(stmt.args) != 1 || !strings.HasPrefix(stmt.args[0], "\"") {
			return 0, errors.New(".asciz needs a quoted string")
		}
		return wordAlign(uint32(len(unquote(stmt.args[0]))) + 1), nil
	case ".space":
		if len(stmt.args) != 1 {
			return 0, errors.New(".space needs a size")
		}
		v, err := parseNumber(stmt.args[0])
		if err != nil {
			return 0, err
		}
		if v <= 0 {
			return 0, errors.New(".space size must be positive")
		}
		return wordAlign(uint32(v)), nil
	case "li":
		return 8, nil
	}
	if strings.HasPrefix(stmt.op, ".") {
		return 0, errors.New("unknown directive " + stmt.op)
	}
	if _, _, ok := cpu.Lookup(stmt.op); !ok {
		return 0, errors.New("undefined opcode " + stmt.op)
	}
	return 4, nil
}

// Second pass, generate code.
func (a *assembler) emit() error {
	code := make([]byte, 0, a.pc)
	for _, stmt := range a.stmts {
		words, data, err := a.encode(stmt)
		if err != nil {
			return fmt.Errorf("line %d: %w", stmt.line, err)
		}
		for _, w := range words {
			code = append(code, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
		}
		code = append(code, data...)
	}
	if len(code) == 0 {
		return errors.New("no code")
	}
	a.img.Code = code
	a.img.Entry = a.img.CodeBase
	if a.haveEntry {
		entry, err := a.value(a.entry)
		if err != nil {
			return fmt.Errorf(".entry: %w", err)
		}
		a.img.Entry = entry
	}
	return nil
}

// Encode one statement into words or raw bytes.
func (a *assembler) encode(stmt statement) ([]uint32, []byte, error) {
	switch stmt.op {
	case ".word":
		words := []uint32{}
		for _, arg := range stmt.args {
			v, err := a.value(arg)
			if err != nil {
				return nil, nil, err
			}
			words = append(words, v)
		}
		return words, nil, nil
	case ".asciz":
		str := unquote(stmt.args[0])
		data := make([]byte, wordAlign(uint32(len(str))+1))
		copy(data, str)
		return nil, data, nil
	case ".space":
		v, _ := parseNumber(stmt.args[0])
		return nil, make([]byte, wordAlign(uint32(v))), nil
	case "li":
		if len(stmt.args) != 2 {
			return nil, nil, errors.New("invalid format for li")
		}
		rd, err := getReg(stmt.args[0])
		if err != nil {
			return nil, nil, err
		}
		v, err := a.value(stmt.args[1])
		if err != nil {
			return nil, nil, err
		}
		return []uint32{
			cpu.Encode(cpu.OpMOVI, rd, 0, uint16(v)),
			cpu.Encode(cpu.OpMOVHI, rd, 0, uint16(v>>16)),
		}, nil, nil
	}
	word, err := a.instruction(stmt)
	if err != nil {
		return nil, nil, err
	}
	return []uint32{word}, nil, nil
}

// Assemble a machine instruction.
func (a *assembler) instruction(stmt statement) (uint32, error) {
	op, form, _ := cpu.Lookup(stmt.op)
	args := stmt.args
	want := map[int]int{
		cpu.FormNone: 0, cpu.FormRdImm: 2, cpu.FormRdRs: 2, cpu.FormMem: 2,
		cpu.FormBr: 1, cpu.FormRdBr: 2, cpu.FormImm: 1,
	}[form]
	if len(args) != want {
		return 0, errors.New("invalid format for " + stmt.op)
	}

	var rd, rs uint8
	var imm uint16
	var err error
	switch form {
	case cpu.FormRdImm:
		if rd, err = getReg(args[0]); err != nil {
			return 0, err
		}
		imm, err = a.immediate(args[1])
	case cpu.FormRdRs:
		if rd, err = getReg(args[0]); err != nil {
			return 0, err
		}
		rs, err = getReg(args[1])
	case cpu.FormMem:
		if rd, err = getReg(args[0]); err != nil {
			return 0, err
		}
		rs, imm, err = a.memOperand(args[1])
	case cpu.FormBr:
		imm, err = a.branch(args[0], stmt.address)
	case cpu.FormRdBr:
		if rd, err = getReg(args[0]); err != nil {
			return 0, err
		}
		imm, err = a.branch(args[1], stmt.address)
	case cpu.FormImm:
		imm, err = a.immediate(args[0])
	}
	if err != nil {
		return 0, err
	}
	return cpu.Encode(op, rd, rs, imm), nil
}

// Value of number or label.
func (a *assembler) value(arg string) (uint32, error) {
	if addr, ok := a.labels[arg]; ok {
		return addr, nil
	}
	v, err := parseNumber(arg)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// 16 bit immediate, signed or unsigned.
func (a *assembler) immediate(arg string) (uint16, error) {
	if addr, ok := a.labels[arg]; ok {
		return uint16(addr), nil
	}
	v, err := parseNumber(arg)
	if err != nil {
		return 0, err
	}
	if v < -0x8000 || v > 0xffff {
		return 0, errors.New("immediate out of range " + arg)
	}
	return uint16(v), nil
}

// Word offset to target from next instruction.
func (a *assembler) branch(arg string, pc uint32) (uint16, error) {
	target, err := a.value(arg)
	if err != nil {
		return 0, err
	}
	if target&3 != 0 {
		return 0, errors.New("branch target not word aligned " + arg)
	}
	offset := (int64(target) - int64(pc) - 4) / 4
	if offset < -0x8000 || offset > 0x7fff {
		return 0, errors.New("branch out of range " + arg)
	}
	return uint16(int16(offset)), nil
}

// Parse [rs] or [rs, offset].
func (a *assembler) memOperand(arg string) (uint8, uint16, error) {
	if !strings.HasPrefix(arg, "[") || !strings.HasSuffix(arg, "]") {
		return 0, 0, errors.New("invalid memory operand " + arg)
	}
	parts := strings.Split(arg[1:len(arg)-1], ",")
	rs, err := getReg(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	switch len(parts) {
	case 1:
		return rs, 0, nil
	case 2:
		v, err := parseNumber(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, err
		}
		if v < -0x8000 || v > 0x7fff {
			return 0, 0, errors.New("offset out of range " + arg)
		}
		return rs, uint16(int16(v)), nil
	}
	return 0, 0, errors.New("invalid memory operand " + arg)
}

// Register name to number.
func getReg(arg string) (uint8, error) {
	switch strings.ToLower(arg) {
	case "sp":
		return cpu.RegSP, nil
	case "lr":
		return cpu.RegLR, nil
	}
	if len(arg) < 2 || (arg[0] != 'r' && arg[0] != 'R') {
		return 0, errors.New("invalid register " + arg)
	}
	n, err := strconv.Atoi(arg[1:])
	if err != nil || n < 0 || n >= cpu.NumRegs {
		return 0, errors.New("invalid register " + arg)
	}
	return uint8(n), nil
}

// Decimal, 0x hex or 'c' character constant.
func parseNumber(arg string) (int64, error) {
	if len(arg) == 3 && arg[0] == '\'' && arg[2] == '\'' {
		return int64(arg[1]), nil
	}
	v, err := strconv.ParseInt(arg, 0, 64)
	if err != nil {
		return 0, errors.New("invalid number " + arg)
	}
	if v < -0x80000000 || v > 0xffffffff {
		return 0, errors.New("number out of range " + arg)
	}
	return v, nil
}

// Split operands on commas outside brackets and quotes.
func splitArgs(line string) []string {
	args := []string{}
	depth := 0
	quoted := false
	start := 0
	for i, by := range line {
		switch {
		case by == '"':
			quoted = !quoted
		case quoted:
		case by == '[':
			depth++
		case by == ']':
			depth--
		case by == ',' && depth == 0:
			args = append(args, strings.TrimSpace(line[start:i]))
			start = i + 1
		}
	}
	if last := strings.TrimSpace(line[start:]); last != "" || len(args) != 0 {
		args = append(args, last)
	}
	return args
}

// Remove ; comment outside of quotes.
func stripComment(line string) string {
	quoted := false
	for i, by := range line {
		switch {
		case by == '"':
			quoted = !quoted
		case by == ';' && !quoted:
			return line[:i]
		}
	}
	return line
}

// Get next name.
func getName(str string) (string, string) {
	str = skipSpace(str)
	for i := range str {
		if unicode.IsSpace(rune(str[i])) {
			return str[:i], str[i+1:]
		}
	}
	return str, ""
}

// Skip forward over line until none whitespace character found.
func skipSpace(str string) string {
	for i := range str {
		if !unicode.IsSpace(rune(str[i])) {
			return str[i:]
		}
	}
	return ""
}

func isName(str string) bool {
	for i, by := range str {
		if by == '_' || unicode.IsLetter(by) || (i > 0 && unicode.IsDigit(by)) {
			continue
		}
		return false
	}
	return str != ""
}

func unquote(str string) string {
	str = strings.TrimSpace(str)
	if s, err := strconv.Unquote(str); err == nil {
		return s
	}
	return str
}

func wordAlign(n uint32) uint32 {
	return (n + 3) &^ 3
}
