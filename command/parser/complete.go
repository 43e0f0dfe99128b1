/*
 * CTREMU - Command line completion
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
	"slices"
	"strings"
	"unicode"

	command "github.com/rcornwell/ctremu/command/command"
)

// Called to complete a command line, during line editing.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord(false)

	// We have a command, let it try and complete the rest.
	if !line.isEOL() && unicode.IsSpace(rune(line.line[line.pos])) {
		match := matchList(name)
		if len(match) != 1 {
			return nil
		}
		if match[0].Complete != nil {
			return match[0].Complete(&line)
		}
		return nil
	}

	// Try and match one command.
	var matches []string
	for _, m := range cmdList {
		if strings.HasPrefix(m.Name, name) {
			matches = append(matches, m.Name+" ")
		}
	}
	slices.Sort(matches)
	return matches
}

// Complete last option name on line.
func (line *cmdLine) scanOptions(cmdType int) []string {
	// Skip over options already given.
	var start int
	for {
		line.skipSpace()
		start = line.pos
		for !line.isEOL() && !unicode.IsSpace(rune(line.line[line.pos])) {
			line.pos++
		}
		if line.isEOL() {
			break
		}
	}

	leading := line.line[:start]
	word := strings.ToLower(line.line[start:line.pos])
	if strings.Contains(word, "=") {
		return nil
	}

	matches := []string{}
	for _, opt := range systemOptions {
		if (opt.OptionValid & cmdType) == 0 {
			continue
		}
		if !strings.HasPrefix(opt.Name, word) {
			continue
		}
		switch opt.OptionType {
		case command.OptionName, command.OptionNumber:
			if cmdType == command.ValidSet {
				matches = append(matches, leading+opt.Name+"=")
				continue
			}
		}
		matches = append(matches, leading+opt.Name+" ")
	}
	slices.Sort(matches)
	return matches
}
