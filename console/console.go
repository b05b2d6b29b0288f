/*
 * vtx86 - operator console.
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

// Package console implements the local operator console: a liner-backed
// prompt loop reading commands and dispatching them against a running
// emu/core.Core, grounded on the teacher's deleted command/reader.ConsoleReader
// (liner.NewLiner, SetCtrlCAborts, SetCompleter, Prompt/AppendHistory loop)
// paired with a much smaller command table than the teacher's S/370
// device-management commands (attach/detach/examine/deposit/...), since
// this kernel has no channel devices to attach - just the machine's own
// run/stop/boot lifecycle and a handful of inspection commands.
package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/vtx86/vtx86/config/debugconfig"
	"github.com/vtx86/vtx86/emu/core"
	"github.com/vtx86/vtx86/emu/master"
)

var commands = []string{"ipl", "start", "stop", "quit", "show", "debug", "key", "help"}

// Run reads commands from the local terminal until "quit" or the console is
// closed (Ctrl-D / Ctrl-C), dispatching each against c over masterChannel.
func Run(c *core.Core, masterChannel chan master.Packet) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		var out []string
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, partial) {
				out = append(out, cmd)
			}
		}
		return out
	})

	for {
		input, err := line.Prompt("vtx86> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return
			}
			fmt.Println("error reading console input: " + err.Error())
			return
		}
		line.AppendHistory(input)
		quit, err := dispatch(strings.TrimSpace(input), c, masterChannel)
		if err != nil {
			fmt.Println("Error: " + err.Error())
		}
		if quit {
			return
		}
	}
}

// dispatch runs one command line, reporting whether the console should exit.
func dispatch(cmdline string, c *core.Core, masterChannel chan master.Packet) (quit bool, err error) {
	if cmdline == "" {
		return false, nil
	}
	fields := strings.Fields(cmdline)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "quit", "exit":
		return true, nil

	case "help":
		fmt.Println(strings.Join(commands, " "))
		return false, nil

	case "ipl":
		masterChannel <- master.Packet{Msg: master.IPLdevice}
		return false, nil

	case "start":
		masterChannel <- master.Packet{Msg: master.Start}
		return false, nil

	case "stop":
		masterChannel <- master.Packet{Msg: master.Stop}
		return false, nil

	case "key":
		if len(args) != 1 {
			return false, errors.New("usage: key <scancode-hex>")
		}
		sc, err := strconv.ParseUint(args[0], 16, 8)
		if err != nil {
			return false, errors.New("scancode must be a hex byte")
		}
		masterChannel <- master.Packet{Msg: master.Keystroke, DevNum: uint16(sc)}
		return false, nil

	case "debug":
		if len(args) != 2 {
			return false, errors.New("usage: debug <module> <option>")
		}
		return false, debugOne(args[0], args[1])

	case "show":
		return false, show(c, args)
	}
	return false, errors.New("unknown command: " + name)
}

// debugOne is a single-option variant of debugconfig's own dispatch, for
// toggling a subsystem's debug trace from the running console rather than
// only from the config file.
func debugOne(module, option string) error {
	return debugconfig.Dispatch(module, option)
}
