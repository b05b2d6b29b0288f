/*
 * vtx86  - three-way virtual terminal multiplexer
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

// Package terminal implements the three-way virtual terminal multiplexer of
// §4.5: per-terminal video shadows, foreground switching, the line
// discipline backing terminal_read, and write-target routing (shadow vs
// live framebuffer, buffer vs screen while reading). Grounded on
// original_source/TerminalOS/terminal.c (update_pointers, terminal_read,
// terminal_write, print_buf) with update_pointers's global-pointer-swap
// idiom replaced by reading straight out of the active process's own PCB,
// since that state already lives there (§3) instead of in file-scope
// globals.
package terminal

import (
	"errors"
	"sync"

	"github.com/vtx86/vtx86/emu/kerr"
	"github.com/vtx86/vtx86/emu/memory"
	"github.com/vtx86/vtx86/emu/process"
)

// NumTerminals is the fixed number of virtual terminals (§1, §4.5).
const NumTerminals = 3

// ScreenCols and ScreenRows describe the VGA text mode geometry backing
// every terminal's shadow, matching the CRTC register table terminal.c
// programs (80 columns, 25 rows).
const (
	ScreenCols = 80
	ScreenRows = 25
)

// Terminal is one of the three virtual terminals: which process is
// currently scheduled on it, and whether it is the one actually displayed.
type Terminal struct {
	ID         int
	Foreground bool
	ActivePID  int
}

// PCBSource is the subset of emu/process.Table the multiplexer needs to
// resolve a terminal's active pid into its PCB; kept narrow so this package
// depends only on the PCB type, not on process.Table's full surface.
type PCBSource interface {
	Get(pid int) *process.PCB
}

// Multiplexer owns all three virtual terminals and implements
// process.TerminalDevice.
type Multiplexer struct {
	mu    sync.Mutex
	terms [NumTerminals]*Terminal
	dir   *memory.Directory
	pcbs  PCBSource

	// SpawnShell is called to auto-execute("shell") on a terminal that has
	// no scheduled process yet, either at boot or the first time it becomes
	// foreground (§4.5). Set by the caller that owns the process table
	// (emu/core), so the multiplexer needs no reference to process.Table
	// itself.
	SpawnShell func(terminalID int) (pid int, err error)

	debugMsk int
}

const debugTrace = 1

var debugOption = map[string]int{
	"TRACE": debugTrace,
}

// Debug enables a debug option for the multiplexer's switch/write trace.
func (m *Multiplexer) Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("terminal debug option invalid: " + opt)
	}
	m.mu.Lock()
	m.debugMsk |= flag
	m.mu.Unlock()
	return nil
}

// NewMultiplexer constructs a multiplexer with terminal 1 foreground, the
// boot-time default (§4.4/S1).
func NewMultiplexer(dir *memory.Directory, pcbs PCBSource) *Multiplexer {
	m := &Multiplexer{dir: dir, pcbs: pcbs}
	for i := range m.terms {
		m.terms[i] = &Terminal{ID: i + 1, Foreground: i == 0}
	}
	return m
}

// Boot auto-executes a shell on terminal 1, mirroring S1.
func (m *Multiplexer) Boot() (pid int, err error) {
	if m.SpawnShell == nil {
		return 0, kerr.New(kerr.Exhausted)
	}
	return m.SpawnShell(1)
}

func (m *Multiplexer) term(id int) *Terminal {
	if id < 1 || id > NumTerminals {
		return nil
	}
	return m.terms[id-1]
}

func (m *Multiplexer) screenPhys(t *Terminal) uint32 {
	if t.Foreground {
		return memory.VideoPhysBase
	}
	return memory.VideoShadowPhys(t.ID)
}

// SetActiveProcess implements process.TerminalDevice: it is how execute/halt
// tell a terminal which pid is now running on it. The new process's own
// cursor and line-buffer fields already carry its state (§3), so there is
// nothing else to "reload" the way update_pointers swaps global pointers.
func (m *Multiplexer) SetActiveProcess(terminalID, pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.term(terminalID); t != nil {
		t.ActivePID = pid
	}
}

// TerminalTornDown implements process.TerminalDevice: called when a
// terminal's root shell halts. The terminal goes idle; the next foreground
// switch onto it (or a fresh Boot) will auto-spawn a new shell, per §4.5's
// "if the new terminal has no scheduled process, auto-execute(shell)" rule.
func (m *Multiplexer) TerminalTornDown(terminalID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.term(terminalID); t != nil {
		t.ActivePID = 0
	}
}

// TryReadLine implements process.TerminalDevice's fd-0 read, the
// non-blocking form of terminal_read's line discipline (§4.5, §8 property
// 6). The first call after Reading goes false clears the 1024-byte buffer
// and position; subsequent calls just check whether Enter has landed.
func (m *Multiplexer) TryReadLine(pcb *process.PCB, buf []byte) (int, bool) {
	if !pcb.Reading {
		pcb.Reading = true
		pcb.EnterPressed = false
		pcb.LineBufPos = 0
		for i := range pcb.LineBuf {
			pcb.LineBuf[i] = 0
		}
	}
	if !pcb.EnterPressed {
		return 0, false
	}

	n := pcb.LineBufPos
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf[:n], pcb.LineBuf[:n])

	pcb.Reading = false
	pcb.EnterPressed = false
	pcb.LineBufPos = 0
	pcb.CursorY++
	return n, true
}

// Write implements process.TerminalDevice's fd-1 write. While the process is
// itself mid-read, bytes are appended to the line buffer instead of drawn,
// exactly matching terminal_write's isReading branch; otherwise they are
// drawn to this terminal's own target framebuffer (live if foreground,
// shadow if not) regardless of which terminal happens to be displayed.
func (m *Multiplexer) Write(pcb *process.PCB, buf []byte) (int, error) {
	if pcb.Reading {
		n := copy(pcb.LineBuf[pcb.LineBufPos:], buf)
		pcb.LineBufPos += n
		return n, nil
	}

	t := m.term(pcb.TerminalID)
	if t == nil {
		return 0, kerr.New(kerr.BadArg)
	}
	written := 0
	for _, c := range buf {
		if c == 0 {
			break
		}
		m.putc(t, pcb, c)
		written++
	}
	return written, nil
}

// putc draws one character at the process's own cursor into t's target
// framebuffer, advancing and wrapping the cursor the way print_buf's column
// accounting does. Scrolling is not modeled: a cursor that runs off the
// bottom wraps back to row 0 rather than shifting text up, a simplification
// recorded in the design ledger.
func (m *Multiplexer) putc(t *Terminal, pcb *process.PCB, c byte) {
	base := m.screenPhys(t)
	if c == '\n' {
		pcb.CursorX = 0
		pcb.CursorY++
	} else {
		off := base + uint32(pcb.CursorY*ScreenCols+pcb.CursorX)*2
		memory.PutByte(off, c)
		memory.PutByte(off+1, 0x07)
		pcb.CursorX++
		if pcb.CursorX >= ScreenCols {
			pcb.CursorX = 0
			pcb.CursorY++
		}
	}
	if pcb.CursorY >= ScreenRows {
		pcb.CursorY = 0
	}
}

// ClearPressed implements Ctrl-L (§4.5): the active process of terminalID
// has its clear flag raised, and the screen, read buffer and cursor are
// cleared immediately, whether or not anything is reading. TryReadLine
// does not consult the flag, and no prompt is reprinted.
func (m *Multiplexer) ClearPressed(terminalID int) {
	m.mu.Lock()
	t := m.term(terminalID)
	m.mu.Unlock()
	if t == nil {
		return
	}
	pcb := m.activePCB(t)
	if pcb == nil {
		return
	}
	pcb.ClearPressed = true
	m.ClearScreen(terminalID)
	pcb.LineBufPos = 0
	for i := range pcb.LineBuf {
		pcb.LineBuf[i] = 0
	}
	pcb.CursorX, pcb.CursorY = 0, 0
}

// ClearScreen blanks terminalID's target framebuffer (live or shadow).
func (m *Multiplexer) ClearScreen(terminalID int) {
	t := m.term(terminalID)
	if t == nil {
		return
	}
	base := m.screenPhys(t)
	blank := make([]byte, ScreenCols*ScreenRows*2)
	for i := 0; i < len(blank); i += 2 {
		blank[i], blank[i+1] = ' ', 0x07
	}
	memory.PutBytes(base, blank)
}

func (m *Multiplexer) activePCB(t *Terminal) *process.PCB {
	if t.ActivePID == 0 {
		return nil
	}
	return m.pcbs.Get(t.ActivePID)
}

// TypeChar delivers one printable character from the keyboard driver to
// terminalID's active process: echoed to its own framebuffer and, if the
// process is reading, appended to its line buffer.
func (m *Multiplexer) TypeChar(terminalID int, c byte) {
	t := m.term(terminalID)
	if t == nil {
		return
	}
	pcb := m.activePCB(t)
	if pcb == nil {
		return
	}
	if pcb.Reading && pcb.LineBufPos < process.LineBufferSize {
		pcb.LineBuf[pcb.LineBufPos] = c
		pcb.LineBufPos++
	}
	m.putc(t, pcb, c)
}

// Enter delivers the Enter key: appends the terminating newline to the
// in-progress line (so terminal_read's scan for '\n' finds one) and raises
// enter_pressed.
func (m *Multiplexer) Enter(terminalID int) {
	t := m.term(terminalID)
	if t == nil {
		return
	}
	pcb := m.activePCB(t)
	if pcb == nil || !pcb.Reading {
		return
	}
	if pcb.LineBufPos < process.LineBufferSize {
		pcb.LineBuf[pcb.LineBufPos] = '\n'
		pcb.LineBufPos++
	}
	pcb.EnterPressed = true
	m.putc(t, pcb, '\n')
}

// Backspace deletes the character immediately before the cursor, mirroring
// terminal_backspace: only effective while reading and only if at least one
// character has been typed.
func (m *Multiplexer) Backspace(terminalID int) {
	t := m.term(terminalID)
	if t == nil {
		return
	}
	pcb := m.activePCB(t)
	if pcb == nil || !pcb.Reading || pcb.LineBufPos == 0 {
		return
	}
	pcb.LineBufPos--
	pcb.LineBuf[pcb.LineBufPos] = ' '
	if pcb.CursorX == 0 {
		if pcb.CursorY > 0 {
			pcb.CursorY--
		}
		pcb.CursorX = ScreenCols - 1
	} else {
		pcb.CursorX--
	}
	base := m.screenPhys(t)
	off := base + uint32(pcb.CursorY*ScreenCols+pcb.CursorX)*2
	memory.PutByte(off, ' ')
	memory.PutByte(off+1, 0x07)
}

// SwitchForeground implements Alt-F{1,2,3} (§4.5): back up the currently
// displayed terminal's live framebuffer into its own shadow, restore
// newID's shadow into the live framebuffer, remap the video window, and
// auto-spawn a shell if newID has no scheduled process (it never ran one,
// or its root shell halted).
func (m *Multiplexer) SwitchForeground(newID int) (spawnedPID int, err error) {
	m.mu.Lock()
	newTerm := m.term(newID)
	if newTerm == nil {
		m.mu.Unlock()
		return 0, kerr.New(kerr.BadArg)
	}
	if newTerm.Foreground {
		m.mu.Unlock()
		return 0, nil
	}
	var old *Terminal
	for _, t := range m.terms {
		if t.Foreground {
			old = t
			break
		}
	}
	if old != nil {
		liveCopy, _ := memory.GetBytes(memory.VideoPhysBase, ScreenCols*ScreenRows*2)
		memory.PutBytes(memory.VideoShadowPhys(old.ID), liveCopy)
		old.Foreground = false
	}
	shadowCopy, _ := memory.GetBytes(memory.VideoShadowPhys(newID), ScreenCols*ScreenRows*2)
	memory.PutBytes(memory.VideoPhysBase, shadowCopy)
	newTerm.Foreground = true
	m.dir.MapForeground()
	needsShell := newTerm.ActivePID == 0
	m.mu.Unlock()

	if needsShell {
		if m.SpawnShell == nil {
			return 0, kerr.New(kerr.Exhausted)
		}
		return m.SpawnShell(newID)
	}
	return 0, nil
}

// ForegroundID returns which terminal is currently displayed.
func (m *Multiplexer) ForegroundID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.terms {
		if t.Foreground {
			return t.ID
		}
	}
	return 0
}

// ActivePID returns terminalID's currently scheduled pid, 0 if none.
func (m *Multiplexer) ActivePID(terminalID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.term(terminalID); t != nil {
		return t.ActivePID
	}
	return 0
}
