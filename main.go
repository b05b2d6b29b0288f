/*
 * vtx86 - Main process.
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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/vtx86/vtx86/config/debugconfig"
	config "github.com/vtx86/vtx86/config/configparser"
	"github.com/vtx86/vtx86/console"
	core "github.com/vtx86/vtx86/emu/core"
	"github.com/vtx86/vtx86/emu/fs"
	master "github.com/vtx86/vtx86/emu/master"
	"github.com/vtx86/vtx86/telnet"
	logger "github.com/vtx86/vtx86/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "vtx86.cfg", "Configuration file")
	optImage := getopt.StringLong("image", 'i', "vtx86.img", "Filesystem image to boot from")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if optLogFile != nil && *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	debug := false
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, &debug))
	slog.SetDefault(Logger)

	Logger.Info("vtx86 kernel started")

	if _, err := os.Stat(*optConfig); err == nil {
		if err := config.LoadConfigFile(*optConfig); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	} else {
		Logger.Info("no configuration file found, using defaults", "path", *optConfig)
	}

	image, err := os.ReadFile(*optImage)
	if err != nil {
		Logger.Error("can't read filesystem image: " + err.Error())
		os.Exit(1)
	}
	fsys, err := fs.Load(image)
	if err != nil {
		Logger.Error("can't parse filesystem image: " + err.Error())
		os.Exit(1)
	}

	kernel, masterChannel := core.New(fsys)

	debugconfig.Register("PIC", kernel.PIC)
	debugconfig.Register("PIT", kernel.PIT)
	debugconfig.Register("RTC", kernel.RTC)
	debugconfig.Register("KEYBOARD", kernel.KB)
	debugconfig.Register("TERMINAL", kernel.Term)
	debugconfig.Register("SCHEDULER", kernel.Sched)
	debugconfig.Register("PROCESS", kernel.Procs)

	defaultPorts := []string{"2001", "2002", "2003"}
	for id := 1; id <= 3; id++ {
		if err := telnet.RegisterTerminal(kernel.VT(id), id, defaultPorts[id-1], ""); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	}

	if err := telnet.Start(masterChannel); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	go kernel.Start()
	masterChannel <- master.Packet{Msg: master.IPLdevice}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		Logger.Info("Got quit signal")
		masterChannel <- master.Packet{Msg: master.Stop}
		kernel.Stop()
		telnet.Stop()
		os.Exit(0)
	}()

	console.Run(kernel, masterChannel)

	Logger.Info("Shutting down kernel")
	kernel.Stop()
	Logger.Info("Shutting down telnet servers...")
	telnet.Stop()
	Logger.Info("Servers stopped.")
}
