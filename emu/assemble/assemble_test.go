/*
 * CTREMU - Guest assembler test cases
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
	"encoding/binary"
	"strings"
	"testing"

	"github.com/rcornwell/ctremu/emu/cpu"
	"github.com/rcornwell/ctremu/emu/memory"
	"github.com/rcornwell/ctremu/emu/timing"
)

func words(code []byte) []uint32 {
	out := []uint32{}
	for i := 0; i+4 <= len(code); i += 4 {
		out = append(out, binary.LittleEndian.Uint32(code[i:]))
	}
	return out
}

func expectError(t *testing.T, src string, msg string) {
	t.Helper()
	_, err := AssembleString(src)
	if err == nil {
		t.Errorf("No error for: %q", src)
		return
	}
	if !strings.Contains(err.Error(), msg) {
		t.Errorf("Wrong error message: %s expected: %s", err.Error(), msg)
	}
}

func TestAssembleEmpty(t *testing.T) {
	expectError(t, "", "no code")
	expectError(t, "  ; just a comment\n\n", "no code")
	expectError(t, "abc", "line 1: undefined opcode abc")
	expectError(t, ".bogus 1", "unknown directive .bogus")
}

func TestAssembleForms(t *testing.T) {
	src := `
	nop
	movi r1, 0x1234
	addi r1, -1
	add r2, r1
	ldr r3, [sp, -4]
	str r3, [r2]
	svc 0x24
	wait 100
	ret
`
	img, err := AssembleString(src)
	if err != nil {
		t.Fatal(err)
	}
	match := []uint32{
		cpu.Encode(cpu.OpNOP, 0, 0, 0),
		cpu.Encode(cpu.OpMOVI, 1, 0, 0x1234),
		cpu.Encode(cpu.OpADDI, 1, 0, 0xffff),
		cpu.Encode(cpu.OpADD, 2, 1, 0),
		cpu.Encode(cpu.OpLDR, 3, cpu.RegSP, 0xfffc),
		cpu.Encode(cpu.OpSTR, 3, 2, 0),
		cpu.Encode(cpu.OpSVC, 0, 0, 0x24),
		cpu.Encode(cpu.OpWAIT, 0, 0, 100),
		cpu.Encode(cpu.OpRET, 0, 0, 0),
	}
	got := words(img.Code)
	if len(got) != len(match) {
		t.Fatalf("Returned wrong number of words: %d expected: %d", len(got), len(match))
	}
	for i := range match {
		if got[i] != match[i] {
			t.Errorf("Word %d got: %08x expected: %08x", i, got[i], match[i])
		}
	}
}

func TestAssembleBranch(t *testing.T) {
	src := `
start:	movi r0, 3
loop:	addi r0, -1
	bnz r0, loop
	bl sub
	b done
sub:	ret
done:	svc 0x09
`
	img, err := AssembleString(src)
	if err != nil {
		t.Fatal(err)
	}
	got := words(img.Code)
	base := memory.CodeVAddr
	if cpu.Disassemble(base+8, got[2]) != "bnz r0, 0x00100004" {
		t.Errorf("Backward branch got: %s", cpu.Disassemble(base+8, got[2]))
	}
	if cpu.Disassemble(base+12, got[3]) != "bl 0x00100014" {
		t.Errorf("Forward call got: %s", cpu.Disassemble(base+12, got[3]))
	}
	if cpu.Disassemble(base+16, got[4]) != "b 0x00100018" {
		t.Errorf("Forward branch got: %s", cpu.Disassemble(base+16, got[4]))
	}
	if img.Entry != base {
		t.Errorf("Default entry got: %08x", img.Entry)
	}
}

func TestAssembleDirectives(t *testing.T) {
	src := `
	.name "demo"
	.prio 30
	.stack 0x2000
	.mode 1
	.base 0x200000
	.entry main
msg:	.asciz "hi; there"
data:	.word 1, msg, -1
	.space 3
main:	li r1, msg
	li r2, 0xdeadbeef
	svc 0x09
`
	img, err := AssembleString(src)
	if err != nil {
		t.Fatal(err)
	}
	if img.Name != "demo" || img.Priority != 30 || img.StackSize != 0x2000 || img.SystemMode != 1 {
		t.Errorf("Header values wrong: %+v", img)
	}
	if img.CodeBase != 0x200000 || img.Entry != 0x200000+12+12+4 {
		t.Errorf("Base %08x entry %08x", img.CodeBase, img.Entry)
	}
	if string(img.Code[:9]) != "hi; there" || img.Code[9] != 0 {
		t.Errorf("String not stored: %q", img.Code[:12])
	}
	got := words(img.Code)
	if got[3] != 1 || got[4] != 0x200000 || got[5] != 0xffffffff || got[6] != 0 {
		t.Errorf("Words wrong: %x", got[3:7])
	}
	if got[7] != cpu.Encode(cpu.OpMOVI, 1, 0, 0) || got[8] != cpu.Encode(cpu.OpMOVHI, 1, 0, 0x20) {
		t.Errorf("li of label wrong: %08x %08x", got[7], got[8])
	}
	if got[9] != cpu.Encode(cpu.OpMOVI, 2, 0, 0xbeef) || got[10] != cpu.Encode(cpu.OpMOVHI, 2, 0, 0xdead) {
		t.Errorf("li of constant wrong: %08x %08x", got[9], got[10])
	}
	if img.Encrypted {
		t.Errorf("Image marked encrypted")
	}

	img, err = AssembleString(".encrypted\nnop\n")
	if err != nil || !img.Encrypted {
		t.Errorf("Encrypted flag not set")
	}
}

func TestAssembleErrors(t *testing.T) {
	expectError(t, "add r1", "invalid format for add")
	expectError(t, "add r1, r16", "invalid register r16")
	expectError(t, "movi x1, 2", "invalid register x1")
	expectError(t, "movi r1, 0x10000", "immediate out of range")
	expectError(t, "ldr r1, r2", "invalid memory operand")
	expectError(t, "ldr r1, [r2, 40000]", "offset out of range")
	expectError(t, "b nowhere", "invalid number nowhere")
	expectError(t, "a: nop\na: nop", "line 2: label a defined twice")
	expectError(t, "nop\n.base 0x200000", ".base must come before code")
	expectError(t, ".base 0x200010\nnop", "page aligned")
	expectError(t, ".entry missing\nnop", ".entry: invalid number missing")
	expectError(t, ".asciz hello", "quoted string")
}

// Assembled code runs on the interpreter.
func TestAssembleRun(t *testing.T) {
	src := `
	li r0, 0
	movi r1, 10
loop:	add r0, r1
	addi r1, -1
	bnz r1, loop
	svc 0x09
`
	img, err := AssembleString(src)
	if err != nil {
		t.Fatal(err)
	}
	mem := memory.New()
	pt := memory.NewPageTable()
	if err := pt.MapRegion(img.CodeBase, memory.PageSize); err != nil {
		t.Fatal(err)
	}
	pt.WriteBlock(img.CodeBase, img.Code)
	mem.SetCurrentPageTable(pt)
	core := cpu.New(cpu.Interpreter, timing.New(nil), mem, nil)
	core.SetPC(img.Entry)
	for range 100 {
		if core.GetPC() == img.CodeBase+uint32(len(img.Code))-4 {
			break
		}
		core.Step()
	}
	if core.GetReg(0) != 55 {
		t.Errorf("Sum got: %d expected: 55", core.GetReg(0))
	}
}
