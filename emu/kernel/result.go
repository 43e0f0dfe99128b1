/*
 * CTREMU - Kernel result codes
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

package kernel

import "fmt"

// ResultCode is the value returned to guest code in r0.
type ResultCode uint32

const (
	ResultSuccess     ResultCode = 0
	ErrTimeout        ResultCode = 0x09401BFE
	ErrInvalidHandle  ResultCode = 0xD8E007F7
	ErrOutOfRange     ResultCode = 0xE0E01BFD
	ErrNotFound       ResultCode = 0xD88007FA
	ErrNotImplemented ResultCode = 0xF8C007F4
	ErrOutOfMemory    ResultCode = 0xD86007F3
	ErrInvalidAddress ResultCode = 0xE0E01BF5
)

var resultNames = map[ResultCode]string{
	ResultSuccess:     "success",
	ErrTimeout:        "timeout",
	ErrInvalidHandle:  "invalid handle",
	ErrOutOfRange:     "out of range",
	ErrNotFound:       "not found",
	ErrNotImplemented: "not implemented",
	ErrOutOfMemory:    "out of memory",
	ErrInvalidAddress: "invalid address",
}

func (r ResultCode) IsSuccess() bool {
	return r == ResultSuccess
}

func (r ResultCode) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("result %08x", uint32(r))
}
