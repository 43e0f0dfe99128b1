/*
 * CTREMU - Log handler test cases.
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

package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestFileOutput(t *testing.T) {
	var file, stderr bytes.Buffer
	debug := false
	h := NewHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}, &debug)
	h.stderr = &stderr
	log := slog.New(h)

	log.Debug("quiet", "thread", 3)
	log.Info("loud")
	lines := strings.Split(strings.TrimSpace(file.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("File lines got: %d expected: 2", len(lines))
	}
	if !strings.HasSuffix(lines[0], "DEBUG: quiet thread=3") {
		t.Errorf("Debug line wrong: %s", lines[0])
	}
	if strings.Contains(stderr.String(), "quiet") {
		t.Errorf("Debug record went to stderr")
	}
	if !strings.Contains(stderr.String(), "INFO: loud") {
		t.Errorf("Info record missing from stderr: %s", stderr.String())
	}

	debug = true
	h.SetDebug(&debug)
	log.Debug("now shown")
	if !strings.Contains(stderr.String(), "now shown") {
		t.Errorf("Debug record not sent to stderr when debugging")
	}
}

func TestLevel(t *testing.T) {
	var stderr bytes.Buffer
	h := NewHandler(nil, &slog.HandlerOptions{Level: slog.LevelWarn}, nil)
	h.stderr = &stderr
	log := slog.New(h)
	log.Info("dropped")
	log.Warn("kept")
	if strings.Contains(stderr.String(), "dropped") || !strings.Contains(stderr.String(), "WARN: kept") {
		t.Errorf("Level filter wrong: %s", stderr.String())
	}
}

func TestAttrsAndGroups(t *testing.T) {
	var file bytes.Buffer
	h := NewHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}, nil)
	h.stderr = &bytes.Buffer{}
	log := slog.New(h).With("core", "timing").WithGroup("event")
	log.Debug("fire", "name", "A")
	if !strings.HasSuffix(strings.TrimSpace(file.String()), "fire core=timing event.name=A") {
		t.Errorf("Attributes wrong: %s", file.String())
	}
}
