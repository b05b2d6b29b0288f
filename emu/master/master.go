// Package master defines the envelope carried on the kernel's single
// interrupt channel. Every asynchronous event that must reach the core run
// loop - a keystroke, a PIT tick, an RTC tick, telnet connect/receive/
// disconnect, an IPL/start/stop request - is wrapped as a Packet and sent
// on the one channel the
// core selects over, mirroring the teacher's master channel plumbing
// (emu/core/core.go, emu/timer/timer.go, telnet/multiplexer.go all send
// master.Packet values; the package itself was filtered out of the pack and
// is reconstructed here from those call sites).
package master

import "net"

// Msg identifies what kind of event a Packet carries.
type Msg int

const (
	// TelConnect reports a new telnet connection for a terminal.
	TelConnect Msg = iota + 1
	// TelDisconnect reports a telnet connection closing.
	TelDisconnect
	// TelReceive carries received bytes from a telnet connection.
	TelReceive
	// PITTick is a scheduler preemption tick from the programmable interval timer.
	PITTick
	// RTCTick is a hardware real-time-clock tick, consumed by emu/rtc.
	RTCTick
	// Keystroke carries one PS/2 scancode.
	Keystroke
	// IPLdevice requests initial program load of the boot shell.
	IPLdevice
	// Start requests the run loop start (or resume) processing.
	Start
	// Stop requests the run loop halt.
	Stop
)

// Packet is the single envelope type flowing on the master channel.
type Packet struct {
	DevNum uint16
	Msg    Msg
	Conn   net.Conn
	Data   []byte
}
