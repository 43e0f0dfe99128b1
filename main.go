/*
 * CTREMU - Main process.
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

package main

import (
	"io"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"
	reader "github.com/rcornwell/ctremu/command/reader"
	config "github.com/rcornwell/ctremu/config/configparser"
	core "github.com/rcornwell/ctremu/emu/core"
	"github.com/rcornwell/ctremu/emu/perfstats"
	"github.com/rcornwell/ctremu/emu/settings"
	"github.com/rcornwell/ctremu/emu/video"
	logger "github.com/rcornwell/ctremu/util/logger"

	_ "github.com/rcornwell/ctremu/config/debugconfig"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "ctremu.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Log debug to console")
	optImage := getopt.StringLong("image", 'i', "", "Title to load and start")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logFile io.Writer
	if *optLogFile != "" {
		file, err := os.Create(*optLogFile)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		defer file.Close()
		logFile = file
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger := slog.New(logger.NewHandler(logFile, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(Logger)

	Logger.Info("CTREMU Started")

	// Configuration file is optional, defaults are used without it.
	if _, err := os.Stat(*optConfig); err == nil {
		if err := config.LoadConfigFile(*optConfig); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	} else if getopt.IsSet("config") {
		Logger.Error("Configuration file " + *optConfig + " can't be found")
		os.Exit(1)
	}

	perfstats.LaunchViewer(settings.Values.StatsView)

	system := core.New(Logger)
	runner := core.NewRunner(system, &video.HeadlessWindow{})
	runner.Notify = func(status core.ResultStatus) {
		Logger.Info("Emulation stopped: " + status.String())
	}

	// Start main emulator.
	runner.Start()

	if *optImage != "" {
		if err := runner.SendLoad(*optImage); err != nil {
			Logger.Error(*optImage + ": " + err.Error())
		} else if err := runner.SendStart(); err != nil {
			Logger.Error(err.Error())
		}
	}

	msg := make(chan string, 1)
	go func() {
		reader.ConsoleReader(runner)
		msg <- ""
	}()

	// Wait on shutdown option
	<-msg

	runner.Stop()
	perfstats.StopViewer()
	Logger.Info("Emulation stopped.")
}
