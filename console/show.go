/*
 * vtx86 - operator console, "show" command.
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

package console

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vtx86/vtx86/emu/core"
	"github.com/vtx86/vtx86/emu/process"
	"github.com/vtx86/vtx86/terminal"
	"github.com/vtx86/vtx86/util/hex"
)

// show dispatches "show <what>", mirroring the teacher's command/parser
// show subcommand shape with device-table output replaced by this kernel's
// process table, scheduler, terminals, and interrupt controller state.
func show(c *core.Core, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show {ps|sched|term|pic|rtc}")
	}
	switch strings.ToLower(args[0]) {
	case "ps":
		showProcesses(c)
	case "sched":
		showScheduler(c)
	case "term":
		showTerminals(c)
	case "pic":
		showPIC(c)
	case "rtc":
		showRTC(c)
	default:
		return errors.New("unknown show target: " + args[0])
	}
	return nil
}

func showProcesses(c *core.Core) {
	fmt.Println("pid parent term  eip      esp      root")
	for pid := 1; pid <= process.MaxProcesses; pid++ {
		pcb := c.Procs.Get(pid)
		if pcb == nil {
			continue
		}
		var b strings.Builder
		hex.FormatWord(&b, []uint32{pcb.EIP})
		eip := strings.TrimSpace(b.String())
		b.Reset()
		hex.FormatWord(&b, []uint32{pcb.ESP})
		esp := strings.TrimSpace(b.String())
		fmt.Printf("%3d %6d %4d  %s %s %v\n", pid, pcb.ParentPID, pcb.TerminalID, eip, esp, pcb.IsRootShell)
	}
}

func showScheduler(c *core.Core) {
	fmt.Printf("current pid: %d  esp0: %#x  armed: %v\n", c.Sched.CurrentPID(), c.Sched.ESP0(), c.Sched.Armed())
}

func showTerminals(c *core.Core) {
	fg := c.Term.ForegroundID()
	for id := 1; id <= terminal.NumTerminals; id++ {
		pid := c.Term.ActivePID(id)
		marker := " "
		if id == fg {
			marker = "*"
		}
		fmt.Printf("%s VT%d active pid: %d\n", marker, id, pid)
	}
}

func showPIC(c *core.Core) {
	fmt.Printf("master mask: %#02x  slave mask: %#02x  master EOI: %d  slave EOI: %d\n",
		c.PIC.MasterMask(), c.PIC.SlaveMask(), c.PIC.MasterEOICount(), c.PIC.SlaveEOICount())
}

func showRTC(c *core.Core) {
	fmt.Printf("hardware rate: %d Hz\n", c.RTC.Running())
}
