/*
 * CTREMU - Guest instruction set
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

package cpu

import (
	"fmt"
)

/* Instruction format, one 32 bit little endian word:
 *
 *   31      24 23  20 19  16 15               0
 *  +----------+------+------+------------------+
 *  |  opcode  |  rd  |  rs  |      imm16       |
 *  +----------+------+------+------------------+
 *
 * Branch offsets are signed word counts from the next instruction.
 */

const (
	OpNOP   = 0x00 // No operation.
	OpMOVI  = 0x01 // rd = imm.
	OpMOVHI = 0x02 // rd = (rd & 0xffff) | imm << 16.
	OpADDI  = 0x03 // rd += simm.
	OpADD   = 0x04 // rd += rs.
	OpSUB   = 0x05 // rd -= rs.
	OpMOV   = 0x06 // rd = rs.
	OpLDR   = 0x07 // rd = [rs + simm].
	OpSTR   = 0x08 // [rs + simm] = rd.
	OpB     = 0x09 // Branch.
	OpBNZ   = 0x0A // Branch if rd != 0.
	OpBZ    = 0x0B // Branch if rd == 0.
	OpSVC   = 0x0C // Supervisor call imm.
	OpWAIT  = 0x0D // Spend imm cycles.
	OpBL    = 0x0E // Branch and link.
	OpRET   = 0x0F // Return to lr.
	OpAND   = 0x10 // rd &= rs.
	OpORR   = 0x11 // rd |= rs.
	OpLSL   = 0x12 // rd <<= imm.
	OpLSR   = 0x13 // rd >>= imm.
)

const (
	NumRegs = 16
	RegSP   = 13
	RegLR   = 14
)

// Decoded instruction.
type Instruction struct {
	Op  uint8
	Rd  uint8
	Rs  uint8
	Imm uint16
}

type opInfo struct {
	name   string
	cycles uint64
	form   int
}

// Operand forms for assembler and disassembler.
const (
	FormNone  = iota // op
	FormRdImm        // op rd, imm
	FormRdRs         // op rd, rs
	FormMem          // op rd, [rs, simm]
	FormBr           // op label
	FormRdBr         // op rd, label
	FormImm          // op imm
)

var opTable = map[uint8]opInfo{
	OpNOP:   {"nop", 1, FormNone},
	OpMOVI:  {"movi", 1, FormRdImm},
	OpMOVHI: {"movhi", 1, FormRdImm},
	OpADDI:  {"addi", 1, FormRdImm},
	OpADD:   {"add", 1, FormRdRs},
	OpSUB:   {"sub", 1, FormRdRs},
	OpMOV:   {"mov", 1, FormRdRs},
	OpLDR:   {"ldr", 3, FormMem},
	OpSTR:   {"str", 2, FormMem},
	OpB:     {"b", 3, FormBr},
	OpBNZ:   {"bnz", 3, FormRdBr},
	OpBZ:    {"bz", 3, FormRdBr},
	OpSVC:   {"svc", 4, FormImm},
	OpWAIT:  {"wait", 0, FormImm},
	OpBL:    {"bl", 3, FormBr},
	OpRET:   {"ret", 3, FormNone},
	OpAND:   {"and", 1, FormRdRs},
	OpORR:   {"orr", 1, FormRdRs},
	OpLSL:   {"lsl", 1, FormRdImm},
	OpLSR:   {"lsr", 1, FormRdImm},
}

// Split word into fields.
func Decode(word uint32) Instruction {
	return Instruction{
		Op:  uint8(word >> 24),
		Rd:  uint8(word>>20) & 0xf,
		Rs:  uint8(word>>16) & 0xf,
		Imm: uint16(word),
	}
}

// Build word from fields.
func Encode(op, rd, rs uint8, imm uint16) uint32 {
	return uint32(op)<<24 | uint32(rd&0xf)<<20 | uint32(rs&0xf)<<16 | uint32(imm)
}

// Sign extended immediate.
func (i Instruction) SImm() int32 {
	return int32(int16(i.Imm))
}

// Check if opcode defined.
func (i Instruction) Valid() bool {
	_, ok := opTable[i.Op]
	return ok
}

// Instruction ends a basic block.
func (i Instruction) EndsBlock() bool {
	switch i.Op {
	case OpB, OpBNZ, OpBZ, OpSVC, OpWAIT, OpBL, OpRET:
		return true
	}
	return !i.Valid()
}

// Cycles used by instruction.
func (i Instruction) Cycles() uint64 {
	if i.Op == OpWAIT {
		if i.Imm == 0 {
			return 1
		}
		return uint64(i.Imm)
	}
	info, ok := opTable[i.Op]
	if !ok {
		return 1
	}
	return info.cycles
}

// Look up opcode by mnemonic.
func Lookup(name string) (uint8, int, bool) {
	for op, info := range opTable {
		if info.name == name {
			return op, info.form, true
		}
	}
	return 0, 0, false
}

// Name of register.
func RegName(r uint8) string {
	switch r {
	case RegSP:
		return "sp"
	case RegLR:
		return "lr"
	}
	return fmt.Sprintf("r%d", r)
}

// Disassemble one word at pc.
func Disassemble(pc uint32, word uint32) string {
	inst := Decode(word)
	info, ok := opTable[inst.Op]
	if !ok {
		return fmt.Sprintf(".word 0x%08x", word)
	}
	target := pc + 4 + uint32(inst.SImm()*4)
	switch info.form {
	case FormRdImm:
		return fmt.Sprintf("%s %s, 0x%x", info.name, RegName(inst.Rd), inst.Imm)
	case FormRdRs:
		return fmt.Sprintf("%s %s, %s", info.name, RegName(inst.Rd), RegName(inst.Rs))
	case FormMem:
		return fmt.Sprintf("%s %s, [%s, %d]", info.name, RegName(inst.Rd), RegName(inst.Rs), inst.SImm())
	case FormBr:
		return fmt.Sprintf("%s 0x%08x", info.name, target)
	case FormRdBr:
		return fmt.Sprintf("%s %s, 0x%08x", info.name, RegName(inst.Rd), target)
	case FormImm:
		return fmt.Sprintf("%s 0x%x", info.name, inst.Imm)
	}
	return info.name
}
