/*
 * CTREMU - Guest virtual memory
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

package memory

import (
	"encoding/binary"
	"fmt"
)

const (
	PageBits        = 12
	PageSize uint32 = 1 << PageBits
	PageMask uint32 = PageSize - 1
)

// Well known virtual addresses.
const (
	CodeVAddr        uint32 = 0x00100000
	HeapVAddr        uint32 = 0x08000000
	StackVAddrEnd    uint32 = 0x10000000
	SharedPageVAddr  uint32 = 0x1FF81000
	ConfigMemVAddr   uint32 = 0x1FF80000
	MaxCStringLength        = 256
)

// PageTable maps virtual pages of one process to host memory.
type PageTable struct {
	pages map[uint32][]byte
}

func NewPageTable() *PageTable {
	return &PageTable{pages: map[uint32][]byte{}}
}

// Allocate and map zeroed pages for a region.
func (pt *PageTable) MapRegion(base, size uint32) error {
	if base&PageMask != 0 {
		return fmt.Errorf("region base %08x not page aligned", base)
	}
	if size == 0 || uint64(base)+uint64(size) > 1<<32 {
		return fmt.Errorf("region %08x size %x invalid", base, size)
	}
	for addr := uint64(base); addr < uint64(base)+uint64(size); addr += uint64(PageSize) {
		page := uint32(addr) >> PageBits
		if _, ok := pt.pages[page]; ok {
			return fmt.Errorf("page %08x already mapped", uint32(addr))
		}
		pt.pages[page] = make([]byte, PageSize)
	}
	return nil
}

// Map existing host memory at addr, memory is shared with the caller.
func (pt *PageTable) MapPage(addr uint32, backing []byte) error {
	if addr&PageMask != 0 || uint32(len(backing)) != PageSize {
		return fmt.Errorf("bad page mapping at %08x", addr)
	}
	pt.pages[addr>>PageBits] = backing
	return nil
}

// Remove pages covering region.
func (pt *PageTable) Unmap(base, size uint32) {
	for addr := uint64(base &^ PageMask); addr < uint64(base)+uint64(size); addr += uint64(PageSize) {
		delete(pt.pages, uint32(addr)>>PageBits)
	}
}

// Check if address is backed.
func (pt *PageTable) IsMapped(addr uint32) bool {
	_, ok := pt.pages[addr>>PageBits]
	return ok
}

// Number of mapped pages.
func (pt *PageTable) Pages() int {
	return len(pt.pages)
}

// Get a byte, false if not mapped.
func (pt *PageTable) Read8(addr uint32) (uint8, bool) {
	page, ok := pt.pages[addr>>PageBits]
	if !ok {
		return 0, false
	}
	return page[addr&PageMask], true
}

// Put a byte, false if not mapped.
func (pt *PageTable) Write8(addr uint32, data uint8) bool {
	page, ok := pt.pages[addr>>PageBits]
	if !ok {
		return false
	}
	page[addr&PageMask] = data
	return true
}

// Get a word.
func (pt *PageTable) Read32(addr uint32) (uint32, bool) {
	off := addr & PageMask
	if off <= PageSize-4 {
		page, ok := pt.pages[addr>>PageBits]
		if !ok {
			return 0, false
		}
		return binary.LittleEndian.Uint32(page[off:]), true
	}

	// Word crosses page boundary.
	value := uint32(0)
	for i := range uint32(4) {
		by, ok := pt.Read8(addr + i)
		if !ok {
			return 0, false
		}
		value |= uint32(by) << (8 * i)
	}
	return value, true
}

// Put a word.
func (pt *PageTable) Write32(addr, data uint32) bool {
	off := addr & PageMask
	if off <= PageSize-4 {
		page, ok := pt.pages[addr>>PageBits]
		if !ok {
			return false
		}
		binary.LittleEndian.PutUint32(page[off:], data)
		return true
	}
	for i := range uint32(4) {
		if !pt.IsMapped(addr + i) {
			return false
		}
	}
	for i := range uint32(4) {
		pt.Write8(addr+i, uint8(data>>(8*i)))
	}
	return true
}

// Copy block into memory.
func (pt *PageTable) WriteBlock(addr uint32, data []byte) bool {
	for i := range data {
		if !pt.IsMapped(addr + uint32(i)) {
			return false
		}
	}
	for i, by := range data {
		pt.Write8(addr+uint32(i), by)
	}
	return true
}

// Copy block out of memory.
func (pt *PageTable) ReadBlock(addr uint32, size uint32) ([]byte, bool) {
	data := make([]byte, size)
	for i := range size {
		by, ok := pt.Read8(addr + i)
		if !ok {
			return nil, false
		}
		data[i] = by
	}
	return data, true
}

// Memory is the CPU view of guest memory through the active page table.
type Memory struct {
	current  *PageTable
	watchers []func(addr uint32, size uint32)
}

func New() *Memory {
	return &Memory{}
}

// Install page table used for all accesses.
func (m *Memory) SetCurrentPageTable(pt *PageTable) {
	m.current = pt
}

func (m *Memory) CurrentPageTable() *PageTable {
	return m.current
}

// Register function called after every write.
func (m *Memory) AddWriteWatcher(fn func(addr uint32, size uint32)) {
	m.watchers = append(m.watchers, fn)
}

// Drop all watchers, called at shutdown.
func (m *Memory) ClearWatchers() {
	m.watchers = nil
}

func (m *Memory) notify(addr, size uint32) {
	for _, fn := range m.watchers {
		fn(addr, size)
	}
}

func (m *Memory) Read8(addr uint32) (uint8, bool) {
	if m.current == nil {
		return 0, false
	}
	return m.current.Read8(addr)
}

func (m *Memory) Read32(addr uint32) (uint32, bool) {
	if m.current == nil {
		return 0, false
	}
	return m.current.Read32(addr)
}

func (m *Memory) Write8(addr uint32, data uint8) bool {
	if m.current == nil || !m.current.Write8(addr, data) {
		return false
	}
	m.notify(addr, 1)
	return true
}

func (m *Memory) Write16(addr uint32, data uint16) bool {
	if m.current == nil {
		return false
	}
	if !m.current.IsMapped(addr) || !m.current.IsMapped(addr+1) {
		return false
	}
	m.current.Write8(addr, uint8(data))
	m.current.Write8(addr+1, uint8(data>>8))
	m.notify(addr, 2)
	return true
}

func (m *Memory) Write32(addr, data uint32) bool {
	if m.current == nil || !m.current.Write32(addr, data) {
		return false
	}
	m.notify(addr, 4)
	return true
}

func (m *Memory) ReadBlock(addr, size uint32) ([]byte, bool) {
	if m.current == nil {
		return nil, false
	}
	return m.current.ReadBlock(addr, size)
}

func (m *Memory) WriteBlock(addr uint32, data []byte) bool {
	if m.current == nil || !m.current.WriteBlock(addr, data) {
		return false
	}
	m.notify(addr, uint32(len(data)))
	return true
}

// Read NUL terminated string of at most maxLen bytes.
func (m *Memory) ReadCString(addr uint32, maxLen int) (string, bool) {
	str := []byte{}
	for i := range maxLen {
		by, ok := m.Read8(addr + uint32(i))
		if !ok {
			return "", false
		}
		if by == 0 {
			return string(str), true
		}
		str = append(str, by)
	}
	return string(str), true
}
