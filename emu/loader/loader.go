/*
 * CTREMU - Executable image loader
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

package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rcornwell/ctremu/emu/kernel"
	"github.com/rcornwell/ctremu/emu/memory"
)

// ResultStatus is the outcome of a loader operation.
type ResultStatus int

const (
	Success ResultStatus = iota
	Error
	ErrorInvalidFormat
	ErrorNotImplemented
	ErrorNotLoaded
	ErrorNotUsed
	ErrorAlreadyLoaded
	ErrorMemoryAllocationFailed
	ErrorEncrypted
)

var statusNames = []string{
	"success", "error", "invalid format", "not implemented", "not loaded",
	"not used", "already loaded", "memory allocation failed", "encrypted",
}

func (s ResultStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

/* Image layout, all fields little endian:
 *
 *   0x00  magic "GXE0"
 *   0x04  flags, bit 0 set if encrypted
 *   0x08  system mode
 *   0x0C  entry point
 *   0x10  code base address
 *   0x14  code size in bytes
 *   0x18  main thread priority
 *   0x1C  main thread stack size
 *   0x20  name, 16 bytes NUL padded
 *   0x30  code
 */

const (
	Magic         = "GXE0"
	HeaderSize    = 0x30
	FlagEncrypted = 1
	nameLength    = 16
)

type header struct {
	Magic      [4]byte
	Flags      uint32
	SystemMode uint32
	Entry      uint32
	CodeBase   uint32
	CodeSize   uint32
	Priority   uint32
	StackSize  uint32
	Name       [nameLength]byte
}

// Image is a decoded executable.
type Image struct {
	Name       string
	Encrypted  bool
	SystemMode uint32
	Entry      uint32
	CodeBase   uint32
	Priority   uint32
	StackSize  uint32
	Code       []byte
}

var errShort = errors.New("image too short")

// Serialize image.
func Encode(img *Image) []byte {
	hdr := header{
		SystemMode: img.SystemMode,
		Entry:      img.Entry,
		CodeBase:   img.CodeBase,
		CodeSize:   uint32(len(img.Code)),
		Priority:   img.Priority,
		StackSize:  img.StackSize,
	}
	copy(hdr.Magic[:], Magic)
	copy(hdr.Name[:], img.Name)
	if img.Encrypted {
		hdr.Flags |= FlagEncrypted
	}
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, &hdr)
	buf.Write(img.Code)
	return buf.Bytes()
}

// Write image to file.
func WriteFile(path string, img *Image) error {
	if err := os.WriteFile(path, Encode(img), 0o644); err != nil {
		return fmt.Errorf("writing image %s: %w", path, err)
	}
	return nil
}

// Decode header only.
func decodeHeader(data []byte) (*header, error) {
	if len(data) < HeaderSize {
		return nil, errShort
	}
	var hdr header
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if string(hdr.Magic[:]) != Magic {
		return nil, errors.New("bad magic")
	}
	return &hdr, nil
}

// Decode full image.
func Decode(data []byte) (*Image, error) {
	hdr, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if uint64(HeaderSize)+uint64(hdr.CodeSize) > uint64(len(data)) {
		return nil, errShort
	}
	img := &Image{
		Name:       string(bytes.TrimRight(hdr.Name[:], "\x00")),
		Encrypted:  hdr.Flags&FlagEncrypted != 0,
		SystemMode: hdr.SystemMode,
		Entry:      hdr.Entry,
		CodeBase:   hdr.CodeBase,
		Priority:   hdr.Priority,
		StackSize:  hdr.StackSize,
		Code:       data[HeaderSize : HeaderSize+hdr.CodeSize],
	}
	return img, nil
}

// Loader places an executable into a process.
type Loader interface {
	// System mode the kernel must be started in.
	LoadKernelSystemMode() (uint32, ResultStatus)
	// Map code and start the main thread.
	Load(process *kernel.Process) ResultStatus
	Path() string
	Name() string
}

// Find loader for file, nil if file is not a known format.
func GetLoader(path string) Loader {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()
	head := make([]byte, HeaderSize)
	if _, err := io.ReadFull(file, head); err != nil {
		return nil
	}
	if _, err := decodeHeader(head); err != nil {
		return nil
	}
	return &gxeLoader{path: path}
}

type gxeLoader struct {
	path   string
	img    *Image
	status ResultStatus
	loaded bool
}

func (l *gxeLoader) Path() string {
	return l.path
}

func (l *gxeLoader) Name() string {
	if l.img == nil {
		return ""
	}
	return l.img.Name
}

// Read and check file once.
func (l *gxeLoader) read() ResultStatus {
	if l.img != nil || l.status != Success {
		return l.status
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.status = Error
		return l.status
	}
	img, err := Decode(data)
	if err != nil {
		l.status = ErrorInvalidFormat
		return l.status
	}
	if img.Encrypted {
		l.status = ErrorEncrypted
		return l.status
	}
	if img.CodeBase&memory.PageMask != 0 || len(img.Code) == 0 {
		l.status = ErrorInvalidFormat
		return l.status
	}
	if img.Entry < img.CodeBase || img.Entry >= img.CodeBase+uint32(len(img.Code)) {
		l.status = ErrorInvalidFormat
		return l.status
	}
	l.img = img
	return Success
}

func (l *gxeLoader) LoadKernelSystemMode() (uint32, ResultStatus) {
	if status := l.read(); status != Success {
		return 0, status
	}
	if l.img.SystemMode >= kernel.NumSystemModes {
		return 0, Error
	}
	return l.img.SystemMode, Success
}

func (l *gxeLoader) Load(process *kernel.Process) ResultStatus {
	if l.loaded {
		return ErrorAlreadyLoaded
	}
	if status := l.read(); status != Success {
		return status
	}
	img := l.img
	priority := int(img.Priority)
	if priority > kernel.LowestPriority {
		return ErrorInvalidFormat
	}
	if res := process.MapMemory(img.CodeBase, uint32(len(img.Code))); !res.IsSuccess() {
		return ErrorMemoryAllocationFailed
	}
	if !process.PageTable().WriteBlock(img.CodeBase, img.Code) {
		return ErrorMemoryAllocationFailed
	}
	process.SetName(img.Name)
	process.Entry = img.Entry
	if _, res := process.Run(priority, img.StackSize); !res.IsSuccess() {
		return ErrorMemoryAllocationFailed
	}
	l.loaded = true
	return Success
}
