/*
   Core vtx86 kernel run loop.

   Copyright (c) 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   ROBERT M SUPNIK BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package core assembles the kernel's subsystems (process table, scheduler,
// terminal multiplexer, keyboard/PIT/RTC/PIC drivers) behind the same
// single-select run loop the teacher's emu/core.core uses, replacing the
// CPU-cycle/channel-program dispatch with the interrupt sources named in
// §4: a PIT tick preempts, an RTC tick demultiplexes, a telnet byte drives
// the terminal it arrived on, and IPLdevice/Start/Stop bring the machine up
// and down.
package core

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vtx86/vtx86/emu/fs"
	"github.com/vtx86/vtx86/emu/keyboard"
	"github.com/vtx86/vtx86/emu/master"
	"github.com/vtx86/vtx86/emu/memory"
	"github.com/vtx86/vtx86/emu/pic"
	"github.com/vtx86/vtx86/emu/pit"
	"github.com/vtx86/vtx86/emu/process"
	"github.com/vtx86/vtx86/emu/rtc"
	"github.com/vtx86/vtx86/emu/scheduler"
	"github.com/vtx86/vtx86/terminal"
)

// PITPeriod is the scheduler's tick interval, a 100Hz quantum typical of
// the kind of PC hardware §4.4's PIT channel 0 describes; spec.md leaves
// the exact rate unstated, so this is the implementation's chosen constant
// rather than a transcribed one.
const PITPeriod = 10 * time.Millisecond

// Core owns every kernel subsystem and the single master channel they all
// post events to.
type Core struct {
	wg      sync.WaitGroup
	done    chan struct{}
	running bool
	master  chan master.Packet

	Dir   *memory.Directory
	FS    *fs.FS
	Procs *process.Table
	Sched *scheduler.Scheduler
	Term  *terminal.Multiplexer
	KB    *keyboard.Driver
	PIT   *pit.Timer
	RTC   *rtc.RTC
	PIC   *pic.Controller

	vts [terminal.NumTerminals]*vt
}

// New assembles a complete kernel instance around fsys, the parsed
// filesystem image a boot loader would have handed off (§4.1).
func New(fsys *fs.FS) (*Core, chan master.Packet) {
	masterChannel := make(chan master.Packet, 16)

	dir := memory.NewDirectory()
	procs := process.NewTable(fsys, dir, nil, nil)
	term := terminal.NewMultiplexer(dir, procs)
	rtcDev := rtc.New(masterChannel)
	procs.RTC = rtcDev
	procs.Terminal = term
	term.SpawnShell = func(terminalID int) (int, error) {
		return procs.Execute(nil, "shell", terminalID, true)
	}

	c := &Core{
		done:   make(chan struct{}),
		master: masterChannel,
		Dir:    dir,
		FS:     fsys,
		Procs:  procs,
		Sched:  scheduler.New(dir, procs, term),
		Term:   term,
		KB:     keyboard.New(term),
		PIT:    pit.New(masterChannel, PITPeriod),
		RTC:    rtcDev,
		PIC:    pic.New(),
	}
	for i := range c.vts {
		c.vts[i] = &vt{id: i + 1, term: term}
	}
	return c, masterChannel
}

// VT returns the telnet.Telnet adapter for terminalID (1..3), for wiring
// into telnet.RegisterTerminal during configuration.
func (c *Core) VT(terminalID int) *vt {
	if terminalID < 1 || terminalID > terminal.NumTerminals {
		return nil
	}
	return c.vts[terminalID-1]
}

// Boot auto-executes terminal 1's root shell (S1) and arms nothing yet:
// §4.4 defers the first PIT arming until a second process exists.
func (c *Core) Boot() error {
	_, err := c.Term.Boot()
	return err
}

// Start runs the kernel's event loop until Stop is called. There is no CPU
// to cycle (§9's design note (a)): the loop just blocks on the master
// channel and dispatches whatever interrupt source fires next, masking
// further delivery for the duration of each case the way §5's "each
// handler disables further interrupts at entry" describes - Go's
// unbuffered select already gives us that ordering for free.
func (c *Core) Start() {
	c.wg.Add(1)
	defer c.wg.Done()
	c.running = true
	for {
		select {
		case <-c.done:
			c.PIT.Shutdown()
			c.RTC.Shutdown()
			slog.Info("Shutdown kernel core")
			return
		case packet := <-c.master:
			if c.running {
				c.processPacket(packet)
			}
		}
	}
}

// Stop signals the run loop to exit and waits up to one second for it.
func (c *Core) Stop() {
	close(c.done)
	waitCh := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for kernel core to finish.")
	}
}

// armIfReady implements §4.4's "defer the first tick until terminal 1 has
// two live processes" rule: called after each batch of telnet input is
// delivered, it arms the PIT exactly once, the first time that condition
// holds.
func (c *Core) armIfReady() {
	if c.Sched.Armed() {
		return
	}
	count := 0
	for pid := 1; pid <= process.MaxProcesses; pid++ {
		if pcb := c.Procs.Get(pid); pcb != nil && pcb.TerminalID == 1 {
			count++
		}
	}
	if count >= 2 {
		c.PIT.Arm()
		c.Sched.MarkArmed()
	}
}

// processPacket dispatches one master.Packet (§4), mirroring the teacher's
// processPacket switch with syschannel's device targets replaced by this
// kernel's own subsystems.
func (c *Core) processPacket(packet master.Packet) {
	switch packet.Msg {
	case master.TelConnect:
		if v := c.VT(int(packet.DevNum)); v != nil {
			v.Connect(packet.Conn)
		}
	case master.TelDisconnect:
		if v := c.VT(int(packet.DevNum)); v != nil {
			v.Disconnect()
		}
	case master.TelReceive:
		if v := c.VT(int(packet.DevNum)); v != nil {
			v.ReceiveChar(packet.Data)
		}
		c.armIfReady()

	case master.Keystroke:
		c.KB.HandleScancode(byte(packet.DevNum))
		c.PIC.SendEOI(1)

	case master.PITTick:
		// No real register frame to capture here (no iret in this build);
		// see the scheduler package doc for why Frame{} stands in for it.
		frame := scheduler.Frame{}
		if _, ok := c.Sched.Tick(frame); !ok {
			slog.Warn("PIT tick found nothing runnable")
		}
		c.PIC.SendEOI(0)

	case master.RTCTick:
		c.RTC.HardwareTick()
		c.PIC.SendEOI(8)

	case master.IPLdevice:
		if err := c.Boot(); err != nil {
			slog.Error(err.Error())
		}

	case master.Start:
		c.running = true
	case master.Stop:
		c.running = false
	}
}

// vt adapts one virtual terminal to the telnet.Telnet interface: bytes
// received over its connection are decoded directly into terminal actions
// (Enter/Backspace/Ctrl-L/printable), since a network client already sends
// plain characters rather than PS/2 scancodes. Alt-F{1,2,3} foreground
// switching therefore only reaches emu/keyboard's scancode path from a
// real (or console-injected, via the operator console's "key" command)
// PS/2-style source, not from telnet input - each telnet session already
// names its own terminal by which port/group it connected to, so there is
// no single shared "foreground keyboard" to switch on the wire.
type vt struct {
	id   int
	term *terminal.Multiplexer
	conn net.Conn
}

func (v *vt) Connect(conn net.Conn) {
	v.conn = conn
	slog.Info("VT connected", "terminal", v.id)
}

func (v *vt) Disconnect() {
	slog.Info("VT disconnected", "terminal", v.id)
	v.conn = nil
}

func (v *vt) ReceiveChar(data []byte) {
	for _, c := range data {
		switch c {
		case '\r', '\n':
			v.term.Enter(v.id)
		case 0x7f, 0x08:
			v.term.Backspace(v.id)
		case 0x0c:
			v.term.ClearPressed(v.id)
		default:
			if c >= 0x20 && c < 0x7f {
				v.term.TypeChar(v.id, c)
			}
		}
	}
}
