/*
 * CTREMU - Configuration file parser test cases.
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

package configparser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var (
	testOptions []Option
	testValue   string
	testType    string
	testCount   int
)

func resetTest() {
	testOptions = []Option{}
	testValue = "error"
	testType = ""
	testCount = 0
}

func cleanUpConfig() {
	keywords = map[string]keywordDef{}
	resetTest()
}

// Record an option.
func modOption(value string, options []Option) error {
	testValue = value
	testType = "option"
	testOptions = options
	testCount++
	return nil
}

// Record an options line.
func modOptions(value string, options []Option) error {
	testValue = value
	testType = "options"
	testOptions = options
	testCount++
	return nil
}

// Record a switch.
func modSwitch(value string, options []Option) error {
	testValue = value
	testType = "switch"
	testOptions = options
	testCount++
	return nil
}

// Test registering an option.
func TestRegisterOption(t *testing.T) {
	cleanUpConfig()

	RegisterOption("sink", modOption)
	err := LoadConfig(strings.NewReader("SINK wav\n"))
	if err != nil {
		t.Fatalf("Unable to load option: %v", err)
	}
	if testType != "option" || testValue != "wav" {
		t.Errorf("Option not set correctly: %s %s", testType, testValue)
	}

	err = LoadConfig(strings.NewReader("sink\n"))
	if err == nil {
		t.Errorf("Option without value succeeded")
	}
	err = LoadConfig(strings.NewReader("sink wav extra\n"))
	if err == nil {
		t.Errorf("Option with extra value succeeded")
	}
}

// Test register a switch.
func TestRegisterSwitch(t *testing.T) {
	cleanUpConfig()

	RegisterSwitch("cpujit", modSwitch)
	err := LoadConfig(strings.NewReader("  CPUJIT   # use the dispatcher\n"))
	if err != nil {
		t.Fatalf("Unable to load switch: %v", err)
	}
	if testType != "switch" || testValue != "" {
		t.Errorf("Switch not set correctly: %s %s", testType, testValue)
	}
	err = LoadConfig(strings.NewReader("cpujit yes\n"))
	if err == nil {
		t.Errorf("Switch with value succeeded")
	}
}

// Test options with equals and lists.
func TestRegisterOptions(t *testing.T) {
	cleanUpConfig()

	RegisterOptions("cheat", modOptions)
	err := LoadConfig(strings.NewReader("cheat infinite addr=10000 value=\"63\" flags,a,b\n"))
	if err != nil {
		t.Fatalf("Unable to load options: %v", err)
	}
	if testType != "options" || testValue != "infinite" {
		t.Errorf("Options not set correctly: %s %s", testType, testValue)
	}
	if len(testOptions) != 3 {
		t.Fatalf("Expected 3 options got: %d", len(testOptions))
	}
	if testOptions[0].Name != "addr" || testOptions[0].EqualOpt != "10000" {
		t.Errorf("First option wrong: %v", testOptions[0])
	}
	if testOptions[1].Name != "value" || testOptions[1].EqualOpt != "63" {
		t.Errorf("Second option wrong: %v", testOptions[1])
	}
	if testOptions[2].Name != "flags" || len(testOptions[2].Value) != 2 || *testOptions[2].Value[1] != "b" {
		t.Errorf("Third option wrong: %v", testOptions[2])
	}
}

// Test quoted strings.
func TestQuoted(t *testing.T) {
	cleanUpConfig()

	RegisterOption("contentdir", modOption)
	err := LoadConfig(strings.NewReader("contentdir \"/tmp/my \"\"games\"\"\"\n"))
	if err != nil {
		t.Fatalf("Unable to load quoted option: %v", err)
	}
	if testValue != "/tmp/my \"games\"" {
		t.Errorf("Quoted value wrong: %s", testValue)
	}
	err = LoadConfig(strings.NewReader("contentdir \"/tmp/open\n"))
	if err == nil {
		t.Errorf("Unterminated quote succeeded")
	}
}

// Test unknown keywords and wrong types.
func TestUnknown(t *testing.T) {
	cleanUpConfig()

	RegisterSwitch("strict", modSwitch)
	err := LoadConfig(strings.NewReader("unknown 1\n"))
	if err == nil {
		t.Errorf("Unknown keyword succeeded")
	}
	err = create("STRICT", TypeOption, "x", nil)
	if err == nil {
		t.Errorf("Switch created as option")
	}
}

// Test loading a whole file.
func TestLoadFile(t *testing.T) {
	cleanUpConfig()

	RegisterSwitch("strict", modSwitch)
	RegisterOption("sink", modOption)
	name := filepath.Join(t.TempDir(), "ctremu.cfg")
	data := "# Test configuration\n\nstrict\nsink null\n"
	if err := os.WriteFile(name, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	err := LoadConfigFile(name)
	if err != nil {
		t.Fatalf("Unable to load file: %v", err)
	}
	if testCount != 2 {
		t.Errorf("Expected 2 keywords processed got: %d", testCount)
	}
	if lineNumber != 5 {
		t.Errorf("Line count wrong: %d", lineNumber)
	}
	if len(Keywords()) != 2 || Keywords()[0] != "SINK" {
		t.Errorf("Keyword list wrong: %v", Keywords())
	}
	if LoadConfigFile(filepath.Join(t.TempDir(), "missing.cfg")) == nil {
		t.Errorf("Missing file loaded")
	}
}
