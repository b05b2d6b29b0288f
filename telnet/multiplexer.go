/*
 * vtx86 - telnet server, handle connection and link to virtual terminal.
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

package telnet

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	config "github.com/vtx86/vtx86/config/configparser"
	"github.com/vtx86/vtx86/emu/master"
)

// termMap is one registered virtual terminal (§4.5): VT1/VT2/VT3, each
// bound to one listening port and an optional disambiguating group, the
// same port/group registration shape as the teacher's device map with the
// device-model column dropped - there is only one kind of terminal here.
type termMap struct {
	dev        Telnet // Per-VT adapter
	terminalID int    // 1, 2, or 3
	port       string // Port this VT is listening on.
	group      string // Group this VT belongs to.
	inUse      bool   // A session is already bound to it.
}

type portMap struct {
	port    string     // Port to connect to.
	group   string     // Group these ports belong to.
	devices []*termMap // Virtual terminals reachable on this port
}

var mapLock sync.Mutex

var terminals = map[int]*termMap{}

var ports = map[string][]*portMap{}

var groups = map[string]string{}

var defaultPort string

// SendConnect notifies the kernel core that state's bound terminal now has
// a live telnet session attached.
func (state *tnState) SendConnect() {
	packet := master.Packet{DevNum: uint16(state.terminalID), Msg: master.TelConnect, Conn: state.conn}
	state.master <- packet
}

// SendDisconnect notifies the kernel core that the session ended and frees
// the terminal slot for the next caller.
func (state *tnState) SendDisconnect() {
	if state.terminalID == noTerminal {
		return
	}
	packet := master.Packet{DevNum: uint16(state.terminalID), Msg: master.TelDisconnect}
	state.master <- packet
	fmt.Printf("Terminal %d disconnected\n", state.terminalID)
	mapLock.Lock()
	if term, ok := terminals[state.terminalID]; ok {
		term.inUse = false
	}
	mapLock.Unlock()
	state.terminalID = noTerminal
}

// SendReceiveChar forwards a run of raw data bytes to the kernel core.
func (state *tnState) SendReceiveChar(data []byte) {
	packet := master.Packet{DevNum: uint16(state.terminalID), Msg: master.TelReceive, Data: data}
	state.master <- packet
}

// RegisterTerminal makes terminalID reachable on port (or group's port, or
// the default port, in that preference order) - called once per VT from
// main after the config is loaded, mirroring the teacher's
// device-registration entry point.
func RegisterTerminal(dev Telnet, terminalID int, port string, group string) error {
	// No lock needed: only called at startup, before any listener
	// goroutine can race it.
	terminals[terminalID] = &termMap{dev: dev, terminalID: terminalID, port: port, group: group}

	if port == "" {
		if group != "" {
			if grpPort, ok := groups[group]; ok {
				port = grpPort
			}
		}
		if port == "" {
			port = defaultPort
		}
	}

	if port == "" {
		return errors.New("no port specified and no default port")
	}

	pm := registerPort(port, group)
	if pm == nil {
		return errors.New("duplicate group found")
	}
	pm.devices = append(pm.devices, terminals[terminalID])

	if pm.group != "" {
		fmt.Printf("Registering VT%d on port: %s group: %s\n", terminalID, pm.port, pm.group)
	} else {
		fmt.Printf("Registering VT%d on port: %s no group\n", terminalID, pm.port)
	}
	return nil
}

// findTerminal binds state to the first free VT reachable on state.port,
// preferring an explicit group/terminal-number match in state.group.
func (state *tnState) findTerminal() bool {
	mapLock.Lock()
	defer mapLock.Unlock()
	pm, ok := ports[state.port]
	if !ok {
		fmt.Println("Connection from unregistered port: " + state.port)
		return false
	}

	if state.group != "" {
		id, err := strconv.Atoi(state.group)
		if err == nil {
			term, ok := terminals[id]
			if !ok || term.inUse {
				fmt.Println("Terminal already in use")
				return false
			}
			state.dev = term.dev
			state.terminalID = term.terminalID
			term.inUse = true
			return true
		}
		for _, pmap := range pm {
			if pmap.group != state.group {
				continue
			}
			for _, term := range pmap.devices {
				if term.inUse {
					continue
				}
				state.terminalID = term.terminalID
				state.dev = term.dev
				term.inUse = true
				return true
			}
		}
	}

	for _, pmap := range pm {
		for _, term := range pmap.devices {
			if term.inUse {
				continue
			}
			state.terminalID = term.terminalID
			state.dev = term.dev
			term.inUse = true
			return true
		}
	}
	return false
}

// registerPort records port/group as a listening endpoint, matching the
// teacher's group-must-stay-on-one-port rule.
func registerPort(port string, group string) *portMap {
	groupPort, okgrp := groups[group]
	if okgrp {
		if port != "" && port != groupPort {
			fmt.Printf("Duplicate group found on another port: " + groupPort)
			return nil
		}
	}

	pm, ok := ports[port]
	if !ok {
		fmt.Printf("Registering port: %s group: %s\n", port, group)
		newmap := &portMap{port: port, group: group}
		ports[port] = append(ports[port], newmap)
		if group != "" {
			groups[group] = port
		}
		return newmap
	}

	if group != "" {
		for _, m := range pm {
			if m.group == group {
				return m
			}
		}
	}

	newmap := &portMap{port: port, group: group}
	ports[port] = append(ports[port], newmap)
	return newmap
}

// register the PORT config keyword on initialize.
func init() {
	config.RegisterModel("PORT", config.TypeOptions, setPort)
}

// setPort processes a "PORT <number> [group]" config line, matching the
// teacher's default-port convention: the first PORT line with no group is
// the default every VT with no explicit port falls back to.
func setPort(_ uint16, port string, options []config.Option) error {
	group := ""
	_, err := strconv.ParseUint(port, 10, 32)
	if err != nil {
		return fmt.Errorf("port requires number: %s", port)
	}
	if len(options) == 1 {
		group = options[0].Name
		if options[0].EqualOpt != "" || len(options[0].Value) != 0 {
			return errors.New("group name does not take options")
		}
	} else if len(options) != 0 {
		return errors.New("port only takes an optional group name")
	}
	_ = registerPort(port, group)
	if group == "" {
		if defaultPort != "" {
			return errors.New("can't have more then one default port")
		}
		defaultPort = port
	}
	return nil
}
