/*
 * vtx86  - PS/2 keyboard driver
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

// Package keyboard translates PS/2 scancodes into terminal events (§4.6):
// modifier counters, caps lock toggle, the four base/shifted character
// rows, Enter/Backspace, Ctrl-L clear, and Alt-F{1,2,3} terminal switch.
// Grounded on original_source/TerminalOS/keyboard.c's print_scancode and
// print_scancode_to_terminal, transcribed row-boundary-for-row-boundary.
//
// The original sends the PIC end-of-interrupt only from inside the
// Alt-Fn case, which reads like an oversight rather than a documented rule
// (every other scancode would then never acknowledge its interrupt); this
// reimplementation has the caller send one EOI per scancode delivered,
// regardless of which key it was, and HandleScancode itself never touches
// the PIC.
package keyboard

import "errors"

// Base and shifted character rows, indexed from each row's first scancode.
var (
	row1 = []byte{'1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '='}
	row2 = []byte{'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']'}
	row3 = []byte{'a', 's', 'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`', '\\'}
	row4 = []byte{'z', 'x', 'c', 'v', 'b', 'n', 'm', ',', '.', '/', ' '}

	shiftRow1 = []byte{'!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '_', '+'}
	shiftRow2 = []byte{'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I', 'O', 'P', '{', '}'}
	shiftRow3 = []byte{'A', 'S', 'D', 'F', 'G', 'H', 'J', 'K', 'L', ':', '"', '~', '|'}
	shiftRow4 = []byte{'Z', 'X', 'C', 'V', 'B', 'N', 'M', '<', '>', '?'}
)

// Make and break codes the driver special-cases; everything else in
// [0x02,0x35] plus 0x39 is a printable character.
const (
	scLShift   = 0x2A
	scRShift   = 0x36
	scLShiftUp = 0xAA
	scRShiftUp = 0xB6
	scAlt      = 0x38
	scAltUp    = 0xB8
	scCapsLock = 0x3A
	scCtrl     = 0x1D
	scCtrlUp   = 0x9D
	scEnter    = 0x1C
	scBackspc  = 0x0E
	scCtrlL    = 0x26
	scCtrlC    = 0x2E
	scAltF1    = 0x3B
	scAltF2    = 0x3C
	scAltF3    = 0x3D
	scSpace    = 0x39
	scMaxPrint = 0x35
)

// TerminalSink is the subset of terminal.Multiplexer the keyboard driver
// drives; kept narrow so this package does not depend on terminal, which
// imports emu/process for the PCB type this package never needs.
type TerminalSink interface {
	TypeChar(terminalID int, c byte)
	Enter(terminalID int)
	Backspace(terminalID int)
	ClearPressed(terminalID int)
	SwitchForeground(newID int) (pid int, err error)
	ForegroundID() int
}

// Driver holds the modifier counters and caps-lock toggle (§4.6): Shift,
// Ctrl, and Alt are counters rather than booleans so that a second key of
// the same kind being pressed before the first is released still leaves
// the modifier on until both are released.
type Driver struct {
	Terminal TerminalSink

	shiftOn  int
	ctrlOn   int
	altOn    int
	capsLock bool

	debugMsk int
}

const debugTrace = 1

var debugOption = map[string]int{
	"TRACE": debugTrace,
}

// Debug enables a debug option for the keyboard driver's scancode trace.
func (d *Driver) Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("keyboard debug option invalid: " + opt)
	}
	d.debugMsk |= flag
	return nil
}

// New constructs a keyboard driver that delivers events to term.
func New(term TerminalSink) *Driver {
	return &Driver{Terminal: term}
}

// translate converts a printable-range scancode into its character, given
// the current shift/caps state, exactly mirroring
// print_scancode_to_terminal's row-by-row boundary checks.
func translate(scancode byte, shiftOn, capsLock bool) (byte, bool) {
	switch {
	case scancode <= 0x0D:
		i := scancode - 0x02
		if int(i) >= len(row1) {
			return 0, false
		}
		if shiftOn {
			return shiftRow1[i], true
		}
		return row1[i], true

	case scancode <= 0x1B:
		i := scancode - 0x10
		if int(i) >= len(row2) {
			return 0, false
		}
		if shiftOn || (capsLock && scancode <= 0x19) {
			return shiftRow2[i], true
		}
		return row2[i], true

	case scancode <= 0x28:
		i := scancode - 0x1E
		if int(i) >= len(row3) {
			return 0, false
		}
		if shiftOn || (capsLock && scancode <= 0x26) {
			return shiftRow3[i], true
		}
		return row3[i], true

	case scancode == 0x29:
		if shiftOn {
			return shiftRow3[11], true
		}
		return row3[11], true

	case scancode == 0x2B:
		if shiftOn {
			return shiftRow3[12], true
		}
		return row3[12], true

	case scancode == scSpace:
		return row4[10], true

	case scancode <= scMaxPrint:
		i := scancode - 0x2C
		if int(i) >= len(row4) {
			return 0, false
		}
		if shiftOn || (capsLock && scancode <= 0x32) {
			if int(i) >= len(shiftRow4) {
				return 0, false
			}
			return shiftRow4[i], true
		}
		return row4[i], true
	}
	return 0, false
}

// HandleScancode processes one scancode from the PS/2 controller (§4.6).
func (d *Driver) HandleScancode(scancode byte) {
	switch scancode {
	case scLShift, scRShift:
		d.shiftOn++
	case scLShiftUp, scRShiftUp:
		d.shiftOn--

	case scAlt:
		d.altOn++
	case scAltUp:
		d.altOn--

	case scCapsLock:
		d.capsLock = !d.capsLock

	case scCtrl:
		d.ctrlOn++
	case scCtrlUp:
		d.ctrlOn--

	case scEnter:
		d.Terminal.Enter(d.Terminal.ForegroundID())

	case scBackspc:
		d.Terminal.Backspace(d.Terminal.ForegroundID())

	case scCtrlL:
		if d.ctrlOn > 0 {
			d.Terminal.ClearPressed(d.Terminal.ForegroundID())
		} else {
			d.emit(scancode)
		}

	case scCtrlC:
		// Ctrl-C (process termination from the keyboard) is not
		// implemented, matching the original driver.
		if d.ctrlOn == 0 {
			d.emit(scancode)
		}

	case scAltF1:
		if d.altOn > 0 {
			d.Terminal.SwitchForeground(1)
		}
	case scAltF2:
		if d.altOn > 0 {
			d.Terminal.SwitchForeground(2)
		}
	case scAltF3:
		if d.altOn > 0 {
			d.Terminal.SwitchForeground(3)
		}

	default:
		if scancode <= scMaxPrint || scancode == scSpace {
			d.emit(scancode)
		}
	}
}

// emit translates scancode to a character using the driver's current
// modifier state and delivers it to whichever terminal is foreground.
func (d *Driver) emit(scancode byte) {
	c, ok := translate(scancode, d.shiftOn > 0, d.capsLock)
	if !ok {
		return
	}
	d.Terminal.TypeChar(d.Terminal.ForegroundID(), c)
}

// ModifierState reports the current shift/ctrl/alt counters and caps-lock
// toggle, exposed for the debug console and tests.
func (d *Driver) ModifierState() (shiftOn, ctrlOn, altOn int, capsLock bool) {
	return d.shiftOn, d.ctrlOn, d.altOn, d.capsLock
}
