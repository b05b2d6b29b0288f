/*
 * vtx86 - telnet server
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

// Package telnet exposes the three virtual terminals (§4.5) as plain-text
// telnet endpoints. The option-negotiation state machine below (IAC/WILL/
// WONT/DO/DONT, SB/SE terminal-type query) is kept close to the teacher's
// 3270 telnet server; what changed is everything downstream of a completed
// negotiation - there is exactly one terminal "model" (an 80x25 text
// console), so the teacher's IBM-3277/3278/... model table and its
// model-matching step in findTerminal are gone. A connecting client still
// gets asked for its terminal type (logged, never parsed for a model byte)
// and is then bound to whichever configured VT1/VT2/VT3 slot is free on
// the port it dialed.
package telnet

import (
	"fmt"
	"net"

	"github.com/vtx86/vtx86/emu/master"
)

// Telnet protocol constants - negatives are for init'ing signed char data

const (
	tnIAC     byte = 255 // protocol delim
	tnDONT    byte = 254 // dont
	tnDO      byte = 253 // do
	tnWONT    byte = 252 // wont
	tnWILL    byte = 251 // will
	tnSB      byte = 250 // Sub negotiations begin
	tnGA      byte = 249 // Go ahead
	tnIP      byte = 244 // Interrupt process
	tnBRK     byte = 243 // break
	tnSE      byte = 240 // Sub negotiations end
	tnIS      byte = 0
	tnSend    byte = 1
	tnInfo    byte = 2
	tnVar     byte = 0
	tnValue   byte = 1
	tnEsc     byte = 2
	tnUserVar byte = 3

	// Telnet line states.

	tnStateData int = 1 + iota // normal
	tnStateIAC                 // IAC seen
	tnStateWILL                // WILL seen
	tnStateDO                  // DO seen
	tnStateDONT                // DONT seen
	tnStateWONT                // WONT seen
	tnStateSKIP                // skip next cmd
	tnStateSB                  // Start of SB expect type
	tnStateSE                  // Waiting for SE
	tnStateSBIS                // Waiting for IS
	tnStateSBData              // Data for SB until IS
	tnStateSTerm               // Grab terminal type

	// Telnet options.
	tnOptionBinary byte = 0  // Binary data transfer
	tnOptionEcho   byte = 1  // Echo
	tnOptionSGA    byte = 3  // Send Go Ahead
	tnOptionTerm   byte = 24 // Request Terminal Type
	tnOptionEOR    byte = 25 // Handle end of record
	tnOptionNAWS   byte = 31 // Negotiate about terminal size
	tnOptionLINE   byte = 34 // line mode
	tnOptionENV    byte = 39 // Environment

	// Telnet flags.
	tnFlagDo   uint8 = 0x01 // Do received
	tnFlagDont uint8 = 0x02 // Don't received
	tnFlagWill uint8 = 0x04 // Will received
	tnFlagWont uint8 = 0x08 // Wont received

)

// Telnet is what a connected session drives, implemented by emu/core's
// per-VT adapter: hand it the connection, feed it received bytes (turned
// into terminal key events), and tell it when the client left.
type Telnet interface {
	Connect(conn net.Conn)
	ReceiveChar(data []byte)
	Disconnect()
}

// noTerminal marks a session that has not yet been bound to a VT slot.
const noTerminal = 0

var initString = []byte{
	tnIAC, tnWONT, tnOptionLINE,
	tnIAC, tnWILL, tnOptionEcho,
	tnIAC, tnWILL, tnOptionSGA,
	tnIAC, tnWILL, tnOptionBinary,
	tnIAC, tnDO, tnOptionTerm,
}

// Convert option number to string.
func optName(opt byte) string {
	switch opt {
	case tnOptionBinary:
		return "bin"
	case tnOptionEcho:
		return "echo"
	case tnOptionSGA:
		return "sga"
	case tnOptionTerm:
		return "term"
	case tnOptionEOR:
		return "eor"
	case tnOptionNAWS:
		return "naws"
	case tnOptionLINE:
		return "line"
	case tnOptionENV:
		return "env"
	}
	return "unknown"
}

type tnState struct {
	optionState [256]uint8 // Current state of telnet session
	sbtype      byte       // Type of SB being received
	state       int        // Current line State
	group       string     // Group user wants

	dev        Telnet             // Pointer to where to send data.
	terminalID int                // Bound VT, 1..3, noTerminal until negotiated.
	port       string             // Port this session connected on.
	conn       net.Conn           // Client connection.
	master     chan master.Packet // Pointer to channel to send messages to.
}

// Send a response to server, and log what we sent.
func (state *tnState) sendOption(setState, option byte) {
	data := []byte{tnIAC, setState, option}
	_, _ = state.conn.Write(data)
	switch setState {
	case tnWILL:
		state.optionState[option] |= tnFlagWill
	case tnWONT:
		state.optionState[option] |= tnFlagWont
	case tnDO:
		state.optionState[option] |= tnFlagDo
	case tnDONT:
		state.optionState[option] |= tnFlagDont
	}
}

// Handle DO response.
func (state *tnState) handleDO(input byte) {
	switch input {
	case tnOptionTerm:
		fmt.Println("Do Term")

	case tnOptionSGA:
		fmt.Println("Do SGA")
		if (state.optionState[input] & tnFlagWill) != 0 {
			state.optionState[input] |= tnFlagDont
		}
	case tnOptionEcho:
		fmt.Println("Do Echo")
		if (state.optionState[input] & tnFlagWill) != 0 {
			state.optionState[input] |= tnFlagDont
		}
	case tnOptionEOR:
		fmt.Println("Do EOR")
		state.optionState[input] |= tnFlagDo
	case tnOptionBinary:
		fmt.Println("Do Binary")
		if (state.optionState[input] & tnFlagDo) == 0 {
			state.sendOption(tnDO, input)
		}
	default:
		if (state.optionState[input] & tnFlagWont) == 0 {
			state.sendOption(tnWONT, input)
		}
	}
}

// Handle WILL response.
func (state *tnState) handleWILL(input byte) {
	switch input {
	case tnOptionTerm: // Collect option
		fmt.Println("Will Term")
		if (state.optionState[input] & tnFlagWill) == 0 {
			state.optionState[input] |= tnFlagWill
			fmt.Println("Send term request")
			send := []byte{tnIAC, tnSB, tnOptionTerm, tnSend, tnIAC, tnSE}
			_, err := state.conn.Write(send)
			if err != nil {
				fmt.Println("Send error: ", err)
			}
		}
	case tnOptionENV:
		if (state.optionState[input] & tnFlagWill) == 0 {
			state.optionState[input] |= tnFlagWill
			fmt.Println("Send env request")
			send := []byte{tnIAC, tnSB, tnOptionENV, tnSend, tnVar, 'U', 'S', 'E', 'R', tnIAC, tnSE}
			_, err := state.conn.Write(send)
			if err != nil {
				fmt.Println("Send error: ", err)
			}
		}
	case tnOptionEOR:
		fmt.Println("Will EOR")
		state.optionState[input] |= tnFlagWill
	case tnOptionSGA:
		fmt.Print("Will SGA")
		if (state.optionState[input] & tnFlagWill) == 0 {
			state.sendOption(tnDO, input)
		}
	case tnOptionEcho:
		fmt.Println("Will Echo")
		if (state.optionState[input] & tnFlagWill) == 0 {
			state.optionState[input] |= tnFlagWill
			state.sendOption(tnDONT, input)
			state.sendOption(tnWONT, input)
		}
	case tnOptionBinary:
		fmt.Println("Will Bin")
		state.optionState[input] |= tnFlagWill
	default:
		if (state.optionState[input] & tnFlagDont) == 0 {
			state.sendOption(tnDONT, input)
		}
	}
}

func (state *tnState) handleSE(term []byte) {
	if state.sbtype == tnOptionTerm {
		i := indexByte(term, '@')
		if i >= 0 {
			state.group = string(term[i+1:])
		}
		fmt.Printf("Terminal type: %s group: %s\n", string(term), state.group)
		if !state.findTerminal() {
			fmt.Fprintf(state.conn, "No free virtual terminal found\n\r")
			state.conn.Close()
			return
		}
		state.SendConnect()
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Handle client connection.
func handleClient(conn net.Conn, m chan master.Packet, port string) {
	defer conn.Close()
	var out []byte

	state := tnState{conn: conn, state: tnStateData, terminalID: noTerminal, port: port}
	buffer := make([]byte, 1024)
	term := []byte{}
	state.master = m
	defer state.SendDisconnect()

	_, _ = state.conn.Write(initString)
	for {
		num, err := state.conn.Read(buffer)
		if err != nil {
			fmt.Print("Error: ", err)
			return
		}
		out = []byte{}
		for i := range num {
			input := buffer[i]
			switch state.state {
			case tnStateData: // normal
				if input == tnIAC {
					state.state = tnStateIAC
				} else {
					out = append(out, input)
				}

			case tnStateIAC: // IAC seen
				switch input {
				case tnIAC:
					state.state = tnStateData
				case tnBRK:
					state.state = tnStateData
				case tnWILL:
					state.state = tnStateWILL
				case tnWONT:
					state.state = tnStateWONT
				case tnDO:
					state.state = tnStateDO
				case tnDONT:
					state.state = tnStateDONT
				case tnSB:
					state.state = tnStateSB
				default:
					state.state = tnStateSKIP
				}

			case tnStateWILL: // WILL seen
				state.handleWILL(input)
				state.state = tnStateData

			case tnStateWONT: // WONT seen
				if (state.optionState[input] & tnFlagWont) == 0 {
					state.sendOption(tnWONT, input)
				}
				state.state = tnStateData

			case tnStateDO: // DO seen
				state.handleDO(input)
				state.state = tnStateData

			case tnStateDONT:
				state.state = tnStateData

			case tnStateSKIP: // skip next cmd
				state.state = tnStateData

			case tnStateSB: // Start of SB expect type
				state.sbtype = input
				state.state = tnStateSBIS

			case tnStateSBIS: // Waiting for IS
				switch state.sbtype {
				case tnOptionTerm:
					state.state = tnStateSTerm
				default:
					state.state = tnStateSE
				}

			case tnStateSTerm:
				if input == tnIAC {
					state.state = tnStateSE
				} else {
					term = append(term, input)
				}

			case tnStateSE:
				if input == tnSE {
					state.state = tnStateData
					state.handleSE(term)
					term = term[:0]
				}
			}
		}
		if len(out) != 0 {
			state.SendReceiveChar(out)
		}
	}
}
