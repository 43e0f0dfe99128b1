/*
 * CTREMU - Log debug data to a file
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

package debug

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	config "github.com/rcornwell/ctremu/config/configparser"
)

// Debug categories.
const (
	Timing = 1 << iota
	Kernel
	CPU
	Core
	Service
	SVC
)

var names = map[string]int{
	"TIMING":  Timing,
	"KERNEL":  Kernel,
	"CPU":     CPU,
	"CORE":    Core,
	"SERVICE": Service,
	"SVC":     SVC,
}

var (
	mu      sync.Mutex
	logFile io.Writer
	mask    int
)

// Currently enabled categories.
func Mask() int {
	return mask
}

// Enable a category by name.
func Enable(name string) error {
	level, ok := names[strings.ToUpper(name)]
	if !ok {
		return errors.New("unknown debug option: " + name)
	}
	mask |= level
	return nil
}

// Turn off all debugging.
func Reset() {
	mask = 0
}

// Send debug output somewhere other than a file.
func SetOutput(w io.Writer) {
	mu.Lock()
	logFile = w
	mu.Unlock()
}

// Generic debug message.
func Debugf(module string, mask int, level int, format string, a ...interface{}) {
	if (mask & level) == 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		fmt.Fprintf(logFile, module+": "+format+"\n", a...)
	}
}

// Thread debug message.
func DebugThreadf(id uint32, mask int, level int, format string, a ...interface{}) {
	if (mask & level) == 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		fmt.Fprintf(logFile, fmt.Sprintf("thread %d: ", id)+format+"\n", a...)
	}
}

// register debug file on initialize.
func init() {
	config.RegisterOption("DEBUGFILE", create)
}

// Create debug output file.
func create(fileName string, _ []config.Option) error {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := logFile.(*os.File); ok && f != nil {
		return fmt.Errorf("can't have more then one debug file, previous: %s", f.Name())
	}

	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("unable to create debug file: %s: %w", fileName, err)
	}

	logFile = file
	return nil
}
