// Package process implements the PCB table and system-call core (§3, §4.3):
// execute/halt, per-process file descriptors with per-type dispatch,
// argument stashing, and the pid/PCB-slab addressing scheme. Grounded on
// original_source/TerminalOS/sys_calls.c for the execute/halt protocols and
// on the teacher's emu/device.Device small-fixed-method-set interface for
// the file-descriptor vtable shape.
//
// There is no literal interrupt return or stashed kernel frame here (§9's
// design note (a)/(b)): execute reassigns the terminal's active pid to the
// child and returns control to the scheduler immediately; halt reassigns
// it back to the parent and records the exit status on the parent's PCB.
// Because the scheduler only ever steps a terminal's current active pid,
// the parent is simply not stepped again until the child halts - there is
// no spin-wait to model, the "return from halt" is just which pid the
// scheduler picks on its next Tick.
package process

import (
	"errors"
	"strings"

	"github.com/vtx86/vtx86/emu/fs"
	"github.com/vtx86/vtx86/emu/kerr"
	"github.com/vtx86/vtx86/emu/loader"
	"github.com/vtx86/vtx86/emu/memory"
)

// MaxProcesses is the highest number of simultaneously live processes (§1).
const MaxProcesses = 6

// LineBufferSize is the fixed terminal line-edit buffer size (§3).
const LineBufferSize = 1024

// ArgBufferSize is the fixed argument-stash size (§3).
const ArgBufferSize = 32

// NumFDSlots is the size of the per-process file table (§3).
const NumFDSlots = 8

// FD kinds, dispatched by the per-slot vtable.
type FDKind int

const (
	FDNone FDKind = iota
	FDTerminalRead
	FDTerminalWrite
	FDRegular
	FDDirectory
	FDRTC
)

// FileDescriptor is one slot of a process's 8-slot file table.
type FileDescriptor struct {
	Kind     FDKind
	Position int64
	EOF      bool
	Dirent   fs.DirEntry
	RTCSlot  int
}

// PCB is the per-process control block: identity, kernel-stack-return
// bookkeeping, the scheduler's preemption snapshot, per-process terminal
// state, the file table, and the argument stash - every field named in §3.
type PCB struct {
	PID        int
	ParentPID  int
	Parent     *PCB
	TerminalID int

	// Preemption snapshot, filled by the scheduler and by syscall entry.
	EIP, CS, Flags, ESP, EBP uint32

	// Per-process terminal/line-edit state, reselected on context switch.
	LineBuf      [LineBufferSize]byte
	LineBufPos   int
	Reading      bool
	EnterPressed bool
	ClearPressed bool
	CursorX      int
	CursorY      int

	Files      [NumFDSlots]FileDescriptor
	FilesInUse uint8 // bit i set => Files[i] in use

	Args    [ArgBufferSize]byte
	ArgsLen int

	// IsRootShell marks the process that, on halt, tears down its terminal
	// rather than simply returning control to a parent.
	IsRootShell bool

	// ChildStatus is set by Halt on the parent just before control returns
	// to it. childHalted, set alongside it, is read and cleared by
	// ConsumeChildStatus to tell a genuine status of 0 apart from "nothing
	// has happened yet".
	ChildStatus int32
	childHalted bool
}

// PCBPhysAddr is the "PCB = top of pid's 8 KiB slab" convenience address
// (§4.2); kept for testable property #1, but the Table below is the real
// source of truth, per §9's design note (b).
func PCBPhysAddr(pid int) uint32 {
	return memory.PCBPhysAddr(pid)
}

// KernelESP0 returns tss.esp0's value for pid: the top of its kernel slab.
func KernelESP0(pid int) uint32 {
	return memory.PCBPhysAddr(pid)
}

// Table owns every live PCB and the pid allocation bitmap.
type Table struct {
	pcbs    [MaxProcesses + 1]*PCB // index 1..6
	openPID [MaxProcesses + 1]bool

	FS  *fs.FS
	Dir *memory.Directory

	RTC       RTCDevice
	Terminal  TerminalDevice

	debugMsk int
}

const debugTrace = 1

var debugOption = map[string]int{
	"TRACE": debugTrace,
}

// Debug enables a debug option for the process core's execute/halt trace.
func (t *Table) Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("process debug option invalid: " + opt)
	}
	t.debugMsk |= flag
	return nil
}

// RTCDevice is the subset of emu/rtc.RTC the process core calls through the
// RTC fd vtable; defined here (not in emu/rtc) so process never imports its
// concrete implementation's package, keeping the dependency one-directional.
type RTCDevice interface {
	Open() (int, error)
	Write(slot int, freq uint32) error
	TryRead(slot int) (bool, error)
	Close(slot int) error
}

// TerminalDevice is the subset of the terminal multiplexer the process core
// calls through the fd 0/1 vtable and on halt/execute terminal lifecycle
// events.
type TerminalDevice interface {
	TryReadLine(pcb *PCB, buf []byte) (n int, ready bool)
	Write(pcb *PCB, buf []byte) (int, error)
	TerminalTornDown(terminalID int)
	SetActiveProcess(terminalID, pid int)
}

// NewTable constructs an empty process table.
func NewTable(fsys *fs.FS, dir *memory.Directory, rtc RTCDevice, term TerminalDevice) *Table {
	return &Table{FS: fsys, Dir: dir, RTC: rtc, Terminal: term}
}

// allocPID scans open_pid for the lowest free slot.
func (t *Table) allocPID() (int, error) {
	for pid := 1; pid <= MaxProcesses; pid++ {
		if !t.openPID[pid] {
			return pid, nil
		}
	}
	return 0, kerr.New(kerr.Exhausted)
}

// Get returns pid's PCB, or nil if it isn't live.
func (t *Table) Get(pid int) *PCB {
	if pid < 1 || pid > MaxProcesses {
		return nil
	}
	return t.pcbs[pid]
}

// splitCmd splits at the first space into program name and argument string,
// matching execute's documented protocol.
func splitCmd(cmd string) (name, args string) {
	i := strings.IndexByte(cmd, ' ')
	if i < 0 {
		return cmd, ""
	}
	return cmd[:i], cmd[i+1:]
}

// Execute implements syscall 2: split cmd, validate the executable,
// allocate a pid, load the image, wire fd 0/1, and make the child the
// active process of its terminal. rootShell marks the very first process
// spawned for a freshly opened terminal.
func (t *Table) Execute(parent *PCB, cmd string, terminalID int, rootShell bool) (childPID int, err error) {
	liveCount := 0
	for pid := 1; pid <= MaxProcesses; pid++ {
		if t.openPID[pid] {
			liveCount++
		}
	}
	if liveCount >= MaxProcesses {
		return 0, kerr.New(kerr.Exhausted)
	}

	name, args := splitCmd(cmd)
	if name == "" {
		return 0, kerr.New(kerr.NotExec)
	}
	if len(args)+1 > ArgBufferSize {
		return 0, kerr.New(kerr.BadArg)
	}

	pid, err := t.allocPID()
	if err != nil {
		return 0, err
	}

	t.Dir.SwitchUserPage(pid)
	memory.FlushTLB()

	image, err := loader.Load(t.FS, name, memory.UserPhysBaseForPID(pid))
	if err != nil {
		t.Dir.SwitchUserPage(0)
		return 0, err
	}

	child := &PCB{
		PID:         pid,
		TerminalID:  terminalID,
		IsRootShell: rootShell,
	}
	if parent != nil {
		child.ParentPID = parent.PID
		child.Parent = parent
	}
	child.EIP = image.Entry
	child.ESP = image.ESP
	child.Files[0] = FileDescriptor{Kind: FDTerminalRead}
	child.Files[1] = FileDescriptor{Kind: FDTerminalWrite}
	child.FilesInUse = 0b0000_0011
	copy(child.Args[:], args)
	if len(args) < ArgBufferSize {
		child.Args[len(args)] = 0
	}
	child.ArgsLen = len(args)

	t.openPID[pid] = true
	t.pcbs[pid] = child

	t.Terminal.SetActiveProcess(child.TerminalID, pid)

	return pid, nil
}

// Halt implements syscall 1. If the caller is its terminal's root shell,
// the terminal is torn down; otherwise control (and the status) reverts to
// the parent, which becomes the terminal's active process again.
func (t *Table) Halt(pcb *PCB, status int32) {
	pid := pcb.PID
	terminalID := pcb.TerminalID

	t.openPID[pid] = false
	t.pcbs[pid] = nil
	for i := range pcb.Files {
		pcb.Files[i] = FileDescriptor{}
	}
	pcb.FilesInUse = 0

	if pcb.IsRootShell || pcb.Parent == nil {
		t.Terminal.TerminalTornDown(terminalID)
		return
	}

	parent := pcb.Parent
	parent.ChildStatus = status & 0xFF
	parent.childHalted = true
	t.Terminal.SetActiveProcess(terminalID, parent.PID)
}

// ConsumeChildStatus returns the status a just-halted child left for pcb,
// and whether one was actually pending; it is how the guest program's
// "return from execute" retrieves its value, since there is no real
// interrupt-return stack to unwind (see the package doc comment).
func (pcb *PCB) ConsumeChildStatus() (int32, bool) {
	if !pcb.childHalted {
		return 0, false
	}
	pcb.childHalted = false
	return pcb.ChildStatus, true
}

// GetArgs implements syscall 7: copies the stashed argument string
// (including its NUL terminator) into buf, failing if buf is shorter than
// the string plus terminator would require - the precise bound the
// original's argument-copy check enforces, of which spec.md's own "n<32"
// is a simplification (§ SUPPLEMENTED FEATURES).
func (pcb *PCB) GetArgs(buf []byte) error {
	need := pcb.ArgsLen + 1
	if len(buf) < need {
		return kerr.New(kerr.BadArg)
	}
	copy(buf, pcb.Args[:pcb.ArgsLen])
	buf[pcb.ArgsLen] = 0
	return nil
}

// VidMap implements syscall 8: pp must point inside the user page; on
// success the well-known video virtual address is written through it by
// the caller (the syscall dispatcher owns writing into guest memory).
func VidMap(pp uint32) (uint32, error) {
	if !loader.IsValidPointer(pp) {
		return 0, kerr.New(kerr.BadArg)
	}
	return memory.VideoVirtualBase, nil
}

// SetHandler implements syscall 9: always fails. §4.3's table lists it as a
// stub with no signal-delivery mechanism behind it in this kernel.
func (t *Table) SetHandler(pcb *PCB, signum int32, handlerAddr uint32) error {
	return kerr.New(kerr.BadArg)
}

// Sigreturn implements syscall 10: always fails, for the same reason as
// SetHandler - there is nothing to return from.
func (t *Table) Sigreturn(pcb *PCB) error {
	return kerr.New(kerr.BadArg)
}
