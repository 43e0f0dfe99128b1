/*
 * CTREMU - Control packets
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

package master

// Message sent to the emulation driver.
type Msg int

const (
	Start    Msg = 1 + iota // Run the loaded title.
	Stop                    // Pause stepping.
	Load                    // Load Path.
	Jump                    // Jump to Media and TitleID.
	Shutdown                // Shut system down.
	Call                    // Run Fn between steps.
)

var msgNames = map[Msg]string{
	Start:    "start",
	Stop:     "stop",
	Load:     "load",
	Jump:     "jump",
	Shutdown: "shutdown",
	Call:     "call",
}

func (m Msg) String() string {
	if name, ok := msgNames[m]; ok {
		return name
	}
	return "unknown"
}

// Packet is one request to the driver, the result goes back on Done if set.
type Packet struct {
	Msg     Msg
	Path    string
	Media   uint32
	TitleID uint64
	Fn      func()
	Done    chan error
}

// Reply to sender if it is waiting.
func (p Packet) Reply(err error) {
	if p.Done != nil {
		p.Done <- err
	}
}
