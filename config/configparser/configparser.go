/*
 * CTREMU - Configuration file parser.
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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"unicode"
)

// List of options to pass to create routine.
type Option struct {
	Name     string    // Name of option.
	EqualOpt string    // Value of string after =.
	Value    []*string // Value of option.
}

// Current option line being parsed.
type optionLine struct {
	line string // Current option line.
	pos  int    // Current position in line.
}

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := <keyword> |
 *            <keyword> <whitespace> <quoteopt> |
 *            <keyword> <whitespace> <quoteopt> <whitespace> <options>
 * <options> ::= *(<option> *(<whitespace>))
 * <option> ::= <string> ['=' <quoteopt>] *(<commaopt>)
 * <commaopt> ::= ',' *(<whitespace>) <string>
 * <quoteopt> ::= <string> | '"' *(<letter> | <whitespace>) '"'
 * <string> ::= *(<letter> | <number> | '.' | '/' | '_' | '-' | ':')
 */

const (
	TypeOption  = 1 + iota // Keyword followed by a single value.
	TypeOptions            // Keyword followed by a value and list of options.
	TypeSwitch             // Keyword only used to set a flag.
)

// Keyword handler.
type keywordDef struct {
	create func(string, []Option) error
	ty     int
}

var keywords = map[string]keywordDef{}

var lineNumber int

// Return type of keyword or 0 if not registered.
func getKeyword(key string) int {
	kw, ok := keywords[key]
	if !ok {
		return 0
	}
	return kw.ty
}

// Register should be called from init functions.
func RegisterOption(key string, fn func(string, []Option) error) {
	keywords[strings.ToUpper(key)] = keywordDef{create: fn, ty: TypeOption}
}

// Register should be called from init functions.
func RegisterOptions(key string, fn func(string, []Option) error) {
	keywords[strings.ToUpper(key)] = keywordDef{create: fn, ty: TypeOptions}
}

// Register should be called from init functions.
func RegisterSwitch(key string, fn func(string, []Option) error) {
	keywords[strings.ToUpper(key)] = keywordDef{create: fn, ty: TypeSwitch}
}

// Sorted list of registered keywords.
func Keywords() []string {
	list := []string{}
	for k := range keywords {
		list = append(list, k)
	}
	slices.Sort(list)
	return list
}

// Call handler for keyword.
func create(key string, ty int, value string, options []Option) error {
	kw, ok := keywords[key]
	if !ok {
		return errors.New("unknown keyword: " + key)
	}
	if kw.ty != ty {
		return fmt.Errorf("keyword %s used with wrong arguments, line: %d", key, lineNumber)
	}
	return kw.create(value, options)
}

// Load in a configuration file.
func LoadConfigFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()
	return LoadConfig(file)
}

// Process configuration from a reader.
func LoadConfig(r io.Reader) error {
	lineNumber = 0
	reader := bufio.NewReader(r)
	for {
		var err error

		line := optionLine{}
		line.line, err = reader.ReadString('\n')
		lineNumber++
		if len(line.line) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		err = line.parseLine()
		if err != nil {
			return err
		}
	}
	return nil
}

// Parse one line from file.
func (line *optionLine) parseLine() error {
	key := line.parseKeyword()
	if key == "" {
		return nil
	}
	switch getKeyword(key) {
	case TypeOption:
		line.skipSpace()
		if line.isEOL() {
			return fmt.Errorf("option: %s not followed by value, line: %d", key, lineNumber)
		}
		value, ok := line.parseQuoteString()
		if !ok {
			return fmt.Errorf("invalid quoted string line: %d [%d]", lineNumber, line.pos)
		}
		line.skipSpace()
		if !line.isEOL() {
			return fmt.Errorf("option: %s has extra values, line: %d", key, lineNumber)
		}
		return create(key, TypeOption, value, nil)

	case TypeOptions:
		line.skipSpace()
		value := ""
		if !line.isEOL() {
			var ok bool
			value, ok = line.parseQuoteString()
			if !ok {
				return fmt.Errorf("invalid quoted string line: %d [%d]", lineNumber, line.pos)
			}
		}
		options, err := line.parseOptions()
		if err != nil {
			return err
		}
		return create(key, TypeOptions, value, options)

	case TypeSwitch:
		line.skipSpace()
		if !line.isEOL() {
			return fmt.Errorf("switch option: %s followed by options, line: %d", key, lineNumber)
		}
		return create(key, TypeSwitch, "", nil)
	}
	return fmt.Errorf("no keyword: %s registered, line: %d", key, lineNumber)
}

// Skip forward over line until none whitespace character found.
func (line *optionLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

// Check if at end of line.
func (line *optionLine) isEOL() bool {
	if line.pos >= len(line.line) {
		return true
	}
	return line.line[line.pos] == '#'
}

// Characters allowed in an unquoted value.
func isValueChar(by byte) bool {
	return unicode.IsLetter(rune(by)) || unicode.IsNumber(rune(by)) || strings.IndexByte("._/-:", by) >= 0
}

// Parse keyword at start of line.
func (line *optionLine) parseKeyword() string {
	line.skipSpace()
	if line.isEOL() {
		return ""
	}

	key := ""
	for !line.isEOL() {
		by := line.line[line.pos]
		if !unicode.IsLetter(rune(by)) && !unicode.IsNumber(rune(by)) && by != '_' {
			break
		}
		key += string([]byte{by})
		line.pos++
	}
	return strings.ToUpper(key)
}

// Parse string that is "string" or just string.
func (line *optionLine) parseQuoteString() (string, bool) {
	if line.pos < len(line.line) && line.line[line.pos] == '"' {
		line.pos++
		value := ""
		for line.pos < len(line.line) {
			by := line.line[line.pos]
			line.pos++
			if by == '"' {
				// "" gets replaced by single quote.
				if line.pos < len(line.line) && line.line[line.pos] == '"' {
					line.pos++
					value += "\""
					continue
				}
				return value, true
			}
			value += string([]byte{by})
		}
		return value, false
	}

	value := ""
	for !line.isEOL() && isValueChar(line.line[line.pos]) {
		value += string([]byte{line.line[line.pos]})
		line.pos++
	}
	return value, true
}

// Parse option name.
func (line *optionLine) getName() (string, error) {
	if line.isEOL() {
		return "", nil
	}

	// First character must be alphabetic or digit.
	by := line.line[line.pos]
	if !isValueChar(by) {
		return "", fmt.Errorf("invalid option encountered line: %d [%d]", lineNumber, line.pos)
	}
	value := ""
	for !line.isEOL() && isValueChar(line.line[line.pos]) {
		value += string([]byte{line.line[line.pos]})
		line.pos++
	}
	return value, nil
}

// Parse options for a line.
func (line *optionLine) parseOption() (*Option, error) {
	line.skipSpace()

	value, err := line.getName()
	if value == "" {
		return nil, err
	}

	option := Option{Name: value}

	if line.isEOL() {
		return &option, nil
	}

	// Check if equals option.
	if line.line[line.pos] == '=' {
		line.pos++
		v, ok := line.parseQuoteString()
		if !ok {
			return nil, fmt.Errorf("invalid quoted string line: %d [%d]", lineNumber, line.pos)
		}
		option.EqualOpt = v
	}

	line.skipSpace()

	// Grab all , options
	for !line.isEOL() && line.line[line.pos] == ',' {
		line.pos++
		line.skipSpace()
		v, err := line.getName()
		if err != nil {
			return nil, err
		}
		if v != "" {
			option.Value = append(option.Value, &v)
		}
		line.skipSpace()
	}

	return &option, nil
}

// Collect all options for line.
func (line *optionLine) parseOptions() ([]Option, error) {
	options := []Option{}
	for {
		option, err := line.parseOption()
		if err != nil {
			return nil, err
		}
		if option == nil {
			break
		}
		options = append(options, *option)
	}
	return options, nil
}
