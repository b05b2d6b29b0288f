/*
 * vtx86 - Debug options configuration.
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

// Package debugconfig dispatches "DEBUG <module> <options...>" config lines
// (§2's ambient config surface) to each kernel subsystem's own
// Debug(string) error method, the same dispatch shape the teacher's
// debugconfig.go uses to route to its CPU/channel/tape debug handlers -
// generalized here from a fixed case list per teacher subsystem to a
// runtime registry, since our subsystems are constructed instances
// (scheduler, terminal multiplexer, ...) rather than the teacher's
// package-level singletons reachable by name at init() time.
package debugconfig

import (
	"errors"
	"strings"

	config "github.com/vtx86/vtx86/config/configparser"
)

// Debugger is any subsystem that accepts "DEBUG <module> <option>" lines.
type Debugger interface {
	Debug(option string) error
}

var modules = map[string]Debugger{}

// Register associates name (case-insensitive) with d, so that later
// "DEBUG <name> <options>" config lines reach it. Called once each
// subsystem has been constructed, from main.go's wiring sequence - the
// registry has to be populated at runtime rather than from each package's
// own init(), since there is exactly one scheduler/multiplexer/etc and it
// doesn't exist until main assembles the kernel.
func Register(name string, d Debugger) {
	modules[strings.ToUpper(name)] = d
}

// register the DEBUG config keyword on initialize, same as the teacher.
func init() {
	config.RegisterModel("DEBUG", config.TypeOptions, setDebug)
}

// setDebug processes a DEBUG <module> <option>[,<option>]... line: look up
// module in the registry populated by Register, then feed every option
// name (and any values listed after it with commas) to its Debug method.
func setDebug(_ uint16, module string, options []config.Option) error {
	d, ok := modules[strings.ToUpper(module)]
	if !ok {
		return errors.New("debug option invalid: " + module)
	}
	for _, opt := range options {
		if err := d.Debug(strings.ToUpper(opt.Name)); err != nil {
			return err
		}
		for _, value := range opt.Value {
			if err := d.Debug(strings.ToUpper(*value)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dispatch runs the same module lookup as a config "DEBUG" line but for a
// single already-split module/option pair, so the operator console can
// toggle a subsystem's trace interactively without going through the
// config-file parser.
func Dispatch(module, option string) error {
	d, ok := modules[strings.ToUpper(module)]
	if !ok {
		return errors.New("debug option invalid: " + module)
	}
	return d.Debug(strings.ToUpper(option))
}
