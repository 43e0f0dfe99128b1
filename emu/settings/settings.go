/*
 * CTREMU - Emulator settings
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

package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	config "github.com/rcornwell/ctremu/config/configparser"
)

// How the console clock is initialized.
type InitClock int

const (
	SystemTime InitClock = iota
	FixedTime
)

// Memory write applied once per frame.
type Cheat struct {
	Name    string
	Addr    uint32
	Value   uint32
	Size    int // 1, 2 or 4 bytes.
	Enabled bool
}

// Settings for an emulation session.
type Settings struct {
	UseCPUJIT             bool      // Use block dispatcher when host supports it.
	SinkID                string    // Audio sink, "null" or "wav".
	AudioDeviceID         string    // Device for sink, file name for wav.
	EnableAudioStretching bool      // Time stretch audio.
	InitClock             InitClock // Start from host time or fixed time.
	InitTime              uint64    // Fixed start time, unix seconds.
	ContentDir            string    // Root of installed titles.
	RPCPort               int       // Debug server port, 0 disabled.
	StatsView             string    // Address of stats viewer, empty disabled.
	UseFrameLimit         bool      // Limit speed to FrameLimit percent.
	FrameLimit            int       // Percent of full speed.
	Strict                bool      // Panic on timing registration errors.
	BatteryLevel          int       // 0-5.
	AdapterConnected      bool
	BatteryCharging       bool
	WifiLinkLevel         int // 0-3.
	NetworkState          int
	Enable3D              bool
	Factor3D              int // Slider percentage.
	Cheats                []Cheat
}

// Default settings.
func Default() Settings {
	return Settings{
		UseCPUJIT:        true,
		SinkID:           "null",
		InitClock:        SystemTime,
		InitTime:         946681277,
		ContentDir:       "content",
		UseFrameLimit:    true,
		FrameLimit:       100,
		BatteryLevel:     5,
		AdapterConnected: true,
		BatteryCharging:  true,
	}
}

// Values is the settings loaded from the configuration file.
var Values = Default()

// register options on initialize.
func init() {
	config.RegisterSwitch("CPUJIT", func(_ string, _ []config.Option) error {
		Values.UseCPUJIT = true
		return nil
	})
	config.RegisterSwitch("INTERPRETER", func(_ string, _ []config.Option) error {
		Values.UseCPUJIT = false
		return nil
	})
	config.RegisterSwitch("STRETCH", func(_ string, _ []config.Option) error {
		Values.EnableAudioStretching = true
		return nil
	})
	config.RegisterSwitch("STRICT", func(_ string, _ []config.Option) error {
		Values.Strict = true
		return nil
	})
	config.RegisterSwitch("NOFRAMELIMIT", func(_ string, _ []config.Option) error {
		Values.UseFrameLimit = false
		return nil
	})
	config.RegisterOption("SINK", setSink)
	config.RegisterOption("AUDIODEVICE", func(value string, _ []config.Option) error {
		Values.AudioDeviceID = value
		return nil
	})
	config.RegisterOption("INITCLOCK", setInitClock)
	config.RegisterOption("INITTIME", func(value string, _ []config.Option) error {
		t, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.New("inittime must be a number: " + value)
		}
		Values.InitTime = t
		return nil
	})
	config.RegisterOption("CONTENTDIR", func(value string, _ []config.Option) error {
		Values.ContentDir = value
		return nil
	})
	config.RegisterOption("RPCPORT", func(value string, _ []config.Option) error {
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return errors.New("rpcport must be a number: " + value)
		}
		Values.RPCPort = int(port)
		return nil
	})
	config.RegisterOption("STATSVIEW", func(value string, _ []config.Option) error {
		Values.StatsView = value
		return nil
	})
	config.RegisterOption("FRAMELIMIT", func(value string, _ []config.Option) error {
		limit, err := strconv.ParseUint(value, 10, 16)
		if err != nil || limit == 0 {
			return errors.New("framelimit must be a percentage: " + value)
		}
		Values.FrameLimit = int(limit)
		Values.UseFrameLimit = true
		return nil
	})
	config.RegisterOptions("BATTERY", setBattery)
	config.RegisterOptions("NETWORK", setNetwork)
	config.RegisterOption("3D", func(value string, _ []config.Option) error {
		factor, err := strconv.ParseUint(value, 10, 8)
		if err != nil || factor > 100 {
			return errors.New("3d must be a percentage: " + value)
		}
		Values.Enable3D = factor != 0
		Values.Factor3D = int(factor)
		return nil
	})
	config.RegisterOptions("CHEAT", setCheat)
}

// Select audio sink.
func setSink(value string, _ []config.Option) error {
	switch strings.ToLower(value) {
	case "null", "auto":
		Values.SinkID = "null"
	case "wav":
		Values.SinkID = "wav"
	default:
		return errors.New("unknown audio sink: " + value)
	}
	return nil
}

// Select clock initialization.
func setInitClock(value string, _ []config.Option) error {
	switch strings.ToLower(value) {
	case "system":
		Values.InitClock = SystemTime
	case "fixed":
		Values.InitClock = FixedTime
	default:
		return errors.New("initclock must be system or fixed: " + value)
	}
	return nil
}

// Battery options: BATTERY <level> [adapter] [charging].
func setBattery(value string, options []config.Option) error {
	level, err := strconv.ParseUint(value, 10, 8)
	if err != nil || level > 5 {
		return errors.New("battery level must be 0 to 5: " + value)
	}
	Values.BatteryLevel = int(level)
	Values.AdapterConnected = false
	Values.BatteryCharging = false
	for _, opt := range options {
		switch strings.ToUpper(opt.Name) {
		case "ADAPTER":
			Values.AdapterConnected = true
		case "CHARGING":
			Values.BatteryCharging = true
		default:
			return errors.New("invalid battery option: " + opt.Name)
		}
	}
	return nil
}

// Network options: NETWORK <state> [link=n].
func setNetwork(value string, options []config.Option) error {
	state, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return errors.New("network state must be a number: " + value)
	}
	Values.NetworkState = int(state)
	for _, opt := range options {
		if strings.ToUpper(opt.Name) != "LINK" {
			return errors.New("invalid network option: " + opt.Name)
		}
		link, err := strconv.ParseUint(opt.EqualOpt, 10, 8)
		if err != nil || link > 3 {
			return errors.New("link level must be 0 to 3: " + opt.EqualOpt)
		}
		Values.WifiLinkLevel = int(link)
	}
	return nil
}

// Cheat: CHEAT <name> addr=<hex> value=<hex> [size=1|2|4] [disabled].
func setCheat(value string, options []config.Option) error {
	if value == "" {
		return errors.New("cheat requires a name")
	}
	cheat := Cheat{Name: value, Size: 4, Enabled: true}
	haveAddr := false
	for _, opt := range options {
		switch strings.ToUpper(opt.Name) {
		case "ADDR":
			addr, err := strconv.ParseUint(opt.EqualOpt, 16, 32)
			if err != nil {
				return fmt.Errorf("cheat %s address not hex: %s", value, opt.EqualOpt)
			}
			cheat.Addr = uint32(addr)
			haveAddr = true
		case "VALUE":
			v, err := strconv.ParseUint(opt.EqualOpt, 16, 32)
			if err != nil {
				return fmt.Errorf("cheat %s value not hex: %s", value, opt.EqualOpt)
			}
			cheat.Value = uint32(v)
		case "SIZE":
			switch opt.EqualOpt {
			case "1", "2", "4":
				cheat.Size = int(opt.EqualOpt[0] - '0')
			default:
				return fmt.Errorf("cheat %s size must be 1, 2 or 4", value)
			}
		case "DISABLED":
			cheat.Enabled = false
		default:
			return fmt.Errorf("cheat %s invalid option: %s", value, opt.Name)
		}
	}
	if !haveAddr {
		return fmt.Errorf("cheat %s requires addr", value)
	}
	Values.Cheats = append(Values.Cheats, cheat)
	return nil
}
