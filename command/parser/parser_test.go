/*
 * CTREMU - Command parser test cases.
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
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	core "github.com/rcornwell/ctremu/emu/core"
	"github.com/rcornwell/ctremu/emu/settings"
	"github.com/rcornwell/ctremu/emu/video"
)

var (
	runner *core.Runner
	output *bytes.Buffer
)

// Start a stopped runner with output captured.
func setup(t *testing.T) {
	t.Helper()
	settings.Values = settings.Default()
	settings.Values.UseCPUJIT = false
	settings.Values.ContentDir = t.TempDir()
	settings.Values.InitClock = settings.FixedTime
	output = &bytes.Buffer{}
	out = output
	runner = core.NewRunner(core.New(nil), &video.HeadlessWindow{})
	runner.Start()
	t.Cleanup(func() {
		runner.Stop()
		out = os.Stdout
	})
}

// Run command expecting success.
func run(t *testing.T, line string) string {
	t.Helper()
	output.Reset()
	quit, err := ProcessCommand(line, runner)
	if err != nil {
		t.Fatalf("Command %q failed: %v", line, err)
	}
	if quit {
		t.Fatalf("Command %q asked to quit", line)
	}
	return output.String()
}

// Assemble a spin loop and load it.
func loadSpin(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "spin.s")
	if err := os.WriteFile(src, []byte("loop:\tb loop\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	img := filepath.Join(dir, "spin.gxe")
	if str := run(t, "assemble "+src+" \""+img+"\""); !strings.HasPrefix(str, img+": 4 bytes entry 00100000") {
		t.Errorf("Assemble output wrong: %s", str)
	}
	run(t, "load \""+img+"\"")
}

func TestEmptyAndComment(t *testing.T) {
	setup(t)
	for _, line := range []string{"", "   ", "# comment", "  # comment"} {
		quit, err := ProcessCommand(line, runner)
		if quit || err != nil {
			t.Errorf("Line %q got: %v %v", line, quit, err)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	setup(t)
	for _, line := range []string{"bogus", "s", "sta2", "123", "showing"} {
		_, err := ProcessCommand(line, runner)
		if err == nil {
			t.Errorf("Line %q did not fail", line)
		}
	}
}

func TestQuit(t *testing.T) {
	setup(t)
	quit, err := ProcessCommand("quit", runner)
	if !quit || err != nil {
		t.Errorf("Quit got: %v %v", quit, err)
	}
	quit, _ = ProcessCommand("qui", runner)
	if quit {
		t.Errorf("Quit matched below minimum length")
	}
}

func TestNotLoaded(t *testing.T) {
	setup(t)
	for _, line := range []string{"start", "show ticks", "examine pc", "deposit r1 5", "jump", "dump x.dot"} {
		if _, err := ProcessCommand(line, runner); err == nil {
			t.Errorf("Line %q did not fail without title", line)
		}
	}
	if _, err := ProcessCommand("load \""+filepath.Join(t.TempDir(), "missing.gxe")+"\"", runner); err == nil {
		t.Errorf("Load of missing file did not fail")
	}
	if str := run(t, "show settings"); !strings.Contains(str, "CPU: interpreter") {
		t.Errorf("Show settings wrong: %s", str)
	}
}

func TestLoadAndShow(t *testing.T) {
	setup(t)
	loadSpin(t)
	str := run(t, "show ticks")
	if !strings.HasPrefix(str, "Ticks: 0 ") {
		t.Errorf("Show ticks wrong: %s", str)
	}
	str = run(t, "show threads processes")
	if !strings.Contains(str, "memory: ") {
		t.Errorf("Show processes wrong: %s", str)
	}
	str = run(t, "sh events")
	if !strings.Contains(str, "CheatEngine::RunCheats") {
		t.Errorf("Show events missing cheat event: %s", str)
	}
	if _, err := ProcessCommand("show limit", runner); err == nil {
		t.Errorf("Show accepted set option")
	}
}

func TestExamineDeposit(t *testing.T) {
	setup(t)
	loadSpin(t)
	if str := run(t, "examine pc"); str != "pc=00100000\n" {
		t.Errorf("Examine pc got: %q", str)
	}
	run(t, "deposit r1 1234")
	if str := run(t, "ex r1"); str != "r1=00001234\n" {
		t.Errorf("Examine r1 got: %q", str)
	}
	run(t, "deposit sp abc")
	if str := run(t, "ex sp"); str != "sp=00000abc\n" {
		t.Errorf("Examine sp got: %q", str)
	}
	if str := run(t, "examine -s 100000"); !strings.HasSuffix(str, "  b 0x00100000\n") {
		t.Errorf("Examine symbolic got: %q", str)
	}
	run(t, "deposit 100004 deadbeef")
	str := run(t, "examine 100000-100007")
	lines := strings.Split(strings.TrimSpace(str), "\n")
	if len(lines) != 2 || lines[1] != "00100004: deadbeef" {
		t.Errorf("Examine range got: %q", str)
	}
	run(t, "deposit -b 100008 7f")
	if str := run(t, "examine -b 100008-100009"); str != "00100008: 7f 00\n" {
		t.Errorf("Examine bytes got: %q", str)
	}
	for _, line := range []string{"deposit -b 100008 100", "deposit 0 1", "examine 100004-100000", "examine r16", "deposit 100000-100004 1", "examine -q pc"} {
		if _, err := ProcessCommand(line, runner); err == nil {
			t.Errorf("Line %q did not fail", line)
		}
	}
}

func TestSetUnset(t *testing.T) {
	setup(t)
	run(t, "set limit=50 stretch")
	if !settings.Values.UseFrameLimit || settings.Values.FrameLimit != 50 {
		t.Errorf("Set limit got: %v %d", settings.Values.UseFrameLimit, settings.Values.FrameLimit)
	}
	if !settings.Values.EnableAudioStretching {
		t.Errorf("Set stretch not applied")
	}
	if str := run(t, "show settings"); !strings.Contains(str, "Frame limit: 50%") {
		t.Errorf("Show settings wrong: %s", str)
	}
	run(t, "unset limit stretch")
	if settings.Values.UseFrameLimit || settings.Values.EnableAudioStretching {
		t.Errorf("Unset not applied")
	}
	for _, line := range []string{"set", "set limit", "set limit=0", "set ticks", "set bogus", "set strict=1"} {
		if _, err := ProcessCommand(line, runner); err == nil {
			t.Errorf("Line %q did not fail", line)
		}
	}
}

func TestJumpParse(t *testing.T) {
	setup(t)
	loadSpin(t)
	for _, line := range []string{"jump tape 1234", "jump sdmc", "jump sdmc 0", "jump sdmc xyz", "jump nand 123456789"} {
		if _, err := ProcessCommand(line, runner); err == nil {
			t.Errorf("Line %q did not fail", line)
		}
	}
	run(t, "jump sdmc 00040000:00123400")
	run(t, "jump")
}

func TestDump(t *testing.T) {
	setup(t)
	loadSpin(t)
	path := filepath.Join(t.TempDir(), "state.dot")
	run(t, "dump \""+path+"\"")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("digraph")) {
		t.Errorf("Dump is not a graph: %s", data)
	}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		line   string
		expect []string
	}{
		{"sh", []string{"show ", "shutdown "}},
		{"qu", []string{"quit "}},
		{"show th", []string{"show threads "}},
		{"show ticks st", []string{"show ticks stats "}},
		{"set li", []string{"set limit="}},
		{"set ch", []string{"set cheat="}},
		{"show li", []string{}},
		{"jump s", []string{"jump sdmc "}},
	}
	for _, test := range tests {
		got := CompleteCmd(test.line)
		if len(got) == 0 && len(test.expect) == 0 {
			continue
		}
		if !slices.Equal(got, test.expect) {
			t.Errorf("Complete %q got: %v expected: %v", test.line, got, test.expect)
		}
	}
}
