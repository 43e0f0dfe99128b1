/*
 * CTREMU - AM service
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

package service

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rcornwell/ctremu/emu/kernel"
	"github.com/rcornwell/ctremu/emu/settings"
)

// Media types.
const (
	MediaNAND = iota
	MediaSDMC
	MediaGameCard
	numMedia
)

var mediaNames = []string{"nand", "sdmc", "card"}

// AM commands.
const (
	AMGetNumPrograms = 0x0001
	AMGetProgramList = 0x0002
)

const contentFile = "content.gxe"

// Titles fit in one reply, two words each.
const maxListedTitles = (kernel.CommandBufferWords - 3) / 2

// Path of executable for a title.
func GetTitleContentPath(media uint32, titleID uint64) string {
	name := "unknown"
	if media < numMedia {
		name = mediaNames[media]
	}
	return filepath.Join(settings.Values.ContentDir, name, fmt.Sprintf("%016x", titleID), contentFile)
}

// Titles installed on media, sorted.
func ListTitles(media uint32) []uint64 {
	if media >= numMedia {
		return nil
	}
	dir := filepath.Join(settings.Values.ContentDir, mediaNames[media])
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	titles := []uint64{}
	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) != 16 {
			continue
		}
		tid, err := strconv.ParseUint(entry.Name(), 16, 64)
		if err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, entry.Name(), contentFile)); err != nil {
			continue
		}
		titles = append(titles, tid)
	}
	sort.Slice(titles, func(i, j int) bool { return titles[i] < titles[j] })
	return titles
}

// AM reports installed titles.
type AM struct {
	log *slog.Logger
}

func NewAM(logger *slog.Logger) *AM {
	return &AM{log: logger}
}

func (am *AM) ServiceName() string {
	return "am:u"
}

func (am *AM) HandleSyncRequest(cmd []uint32) {
	switch CommandID(cmd[0]) {
	case AMGetNumPrograms: // media
		if cmd[1] >= numMedia {
			reply(cmd, kernel.ErrOutOfRange)
			return
		}
		reply(cmd, kernel.ResultSuccess, uint32(len(ListTitles(cmd[1]))))
	case AMGetProgramList: // count, media
		count := min(cmd[1], maxListedTitles)
		if cmd[2] >= numMedia {
			reply(cmd, kernel.ErrOutOfRange)
			return
		}
		titles := ListTitles(cmd[2])
		if uint32(len(titles)) > count {
			titles = titles[:count]
		}
		values := []uint32{uint32(len(titles))}
		for _, tid := range titles {
			values = append(values, uint32(tid), uint32(tid>>32))
		}
		reply(cmd, kernel.ResultSuccess, values...)
	default:
		unknown(am.log, am.ServiceName(), cmd)
	}
}
