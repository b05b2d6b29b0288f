package scheduler

import (
	"encoding/binary"
	"testing"

	"github.com/vtx86/vtx86/emu/fs"
	"github.com/vtx86/vtx86/emu/memory"
	"github.com/vtx86/vtx86/emu/process"
)

// fakeTerms implements both scheduler.Terminals (ActivePID) and
// process.TerminalDevice (the rest), so a real process.Table's Execute can
// seed it exactly the way emu/core's real terminal.Multiplexer would - that
// lets Tick be driven against genuine PCBs in the table instead of a
// reimplementation of its cursor math.
type fakeTerms struct {
	active map[int]int
}

func newFakeTerms() *fakeTerms { return &fakeTerms{active: map[int]int{}} }

func (f *fakeTerms) ActivePID(terminalID int) int          { return f.active[terminalID] }
func (f *fakeTerms) SetActiveProcess(terminalID, pid int)  { f.active[terminalID] = pid }
func (f *fakeTerms) TerminalTornDown(terminalID int)       { delete(f.active, terminalID) }
func (f *fakeTerms) TryReadLine(pcb *process.PCB, buf []byte) (int, bool) { return 0, false }
func (f *fakeTerms) Write(pcb *process.PCB, buf []byte) (int, error)      { return len(buf), nil }

func newTable() *process.Table {
	return process.NewTable(nil, memory.NewDirectory(), nil, nil)
}

// buildOneProgramFS returns a minimal filesystem image holding a single
// executable named "prog", enough for loader.Load to validate and copy -
// same 28-byte magic+e_entry shape emu/process's own tests build.
func buildOneProgramFS(t *testing.T) []byte {
	t.Helper()
	body := make([]byte, 28)
	body[0], body[1], body[2], body[3] = 0x7F, 'E', 'L', 'F'
	binary.LittleEndian.PutUint32(body[24:28], 0x08049000)

	total := fs.BlockSize + fs.BlockSize + fs.BlockSize
	img := make([]byte, total)
	binary.LittleEndian.PutUint32(img[0:4], 1)
	binary.LittleEndian.PutUint32(img[4:8], 1)
	binary.LittleEndian.PutUint32(img[8:12], 1)

	entryOff := fs.DirEntrySize
	copy(img[entryOff:entryOff+len("prog")], "prog")
	binary.LittleEndian.PutUint32(img[entryOff+fs.NameSize:entryOff+fs.NameSize+4], fs.TypeRegular)
	binary.LittleEndian.PutUint32(img[entryOff+fs.NameSize+4:entryOff+fs.NameSize+8], 0)

	inodeOff := fs.BlockSize * 1
	binary.LittleEndian.PutUint32(img[inodeOff:inodeOff+4], uint32(len(body)))
	binary.LittleEndian.PutUint32(img[inodeOff+4:inodeOff+8], 0)

	dataOff := fs.BlockSize * 2
	copy(img[dataOff:], body)
	return img
}

func TestTickReportsNotOKWhenActivePIDHasNoLivePCB(t *testing.T) {
	procs := newTable()
	dir := memory.NewDirectory()
	terms := &fakeTerms{active: map[int]int{1: 1}}
	sched := New(dir, procs, terms)

	resume, ok := sched.Tick(Frame{})
	if ok {
		t.Fatalf("expected no resume: pid 1 is not in the process table")
	}
	_ = resume
}

// TestTickRoundRobinsAcrossLivePCBs drives the real Tick path (§4.4 steps
// 2-6) against three genuine PCBs seeded via process.Table.Execute, instead
// of re-deriving the cursor arithmetic inline: it checks that successive
// Tick calls resume pids 1, 2, 3, 1 in order, that each Resume reports the
// right KernelMode from its PCB's saved CS, and that a process's preempted
// frame is faithfully snapshotted into its PCB and handed back on its next
// turn.
func TestTickRoundRobinsAcrossLivePCBs(t *testing.T) {
	img := buildOneProgramFS(t)
	fsys, err := fs.Load(img)
	if err != nil {
		t.Fatalf("fs.Load: %v", err)
	}
	dir := memory.NewDirectory()
	terms := newFakeTerms()
	procs := process.NewTable(fsys, dir, nil, terms)
	sched := New(dir, procs, terms)

	var pids [4]int // index 1..3 by terminal
	for terminalID := 1; terminalID <= 3; terminalID++ {
		pid, err := procs.Execute(nil, "prog", terminalID, true)
		if err != nil {
			t.Fatalf("Execute(terminal %d): %v", terminalID, err)
		}
		pids[terminalID] = pid
	}
	// pid 2 (terminal 2) is mid-way through a user-mode instruction stream
	// when preempted; pid 1 and 3 are kernel-mode.
	procs.Get(pids[2]).CS = UserCS
	procs.Get(pids[1]).CS = KernelCS
	procs.Get(pids[3]).CS = KernelCS

	resume, ok := sched.Tick(Frame{})
	if !ok || resume.PID != pids[1] {
		t.Fatalf("first tick: resume=%+v ok=%v, want pid %d", resume, ok, pids[1])
	}
	if !resume.KernelMode {
		t.Errorf("pid %d should resume kernel-mode", pids[1])
	}

	// preempted is the frame pid 1 (the process that is "current" going into
	// this tick) was interrupted in; Tick must snapshot it into pid 1's own
	// PCB before switching away, per §4.4 step 2.
	preempted := Frame{EIP: 0x1234, CS: UserCS, Flags: 0x202, ESP: 0xABCD, EBP: 0xBEEF}
	resume, ok = sched.Tick(preempted)
	if !ok || resume.PID != pids[2] {
		t.Fatalf("second tick: resume=%+v ok=%v, want pid %d", resume, ok, pids[2])
	}
	if resume.KernelMode {
		t.Errorf("pid %d should resume user-mode", pids[2])
	}
	if sched.ESP0() != process.KernelESP0(pids[2]) {
		t.Errorf("ESP0() = %#x, want top of pid %d's kernel slab", sched.ESP0(), pids[2])
	}
	if pcb := procs.Get(pids[1]); pcb.EIP != preempted.EIP || pcb.ESP != preempted.ESP || pcb.EBP != preempted.EBP {
		t.Errorf("pid %d's snapshotted frame = %+v, want %+v", pids[1], Frame{EIP: pcb.EIP, CS: pcb.CS, Flags: pcb.Flags, ESP: pcb.ESP, EBP: pcb.EBP}, preempted)
	}

	resume, ok = sched.Tick(Frame{})
	if !ok || resume.PID != pids[3] {
		t.Fatalf("third tick: resume=%+v ok=%v, want pid %d", resume, ok, pids[3])
	}

	// Cursor wraps back to terminal 1; pid 1's frame, snapshotted on the
	// second tick above, comes back unchanged on its next turn since only
	// pid 2 and pid 3 were snapshotted (to the zero Frame{}) in between.
	resume, ok = sched.Tick(Frame{})
	if !ok || resume.PID != pids[1] {
		t.Fatalf("fourth tick: resume=%+v ok=%v, want pid %d (cursor should wrap)", resume, ok, pids[1])
	}
	if resume.Frame != preempted {
		t.Errorf("fourth tick resume frame = %+v, want unchanged %+v", resume.Frame, preempted)
	}
}

func TestSwitchToUpdatesCurrentPIDAndESP0(t *testing.T) {
	dir := memory.NewDirectory()
	procs := newTable()
	terms := &fakeTerms{active: map[int]int{}}
	sched := New(dir, procs, terms)

	sched.SwitchTo(3)
	if sched.CurrentPID() != 3 {
		t.Fatalf("CurrentPID() = %d, want 3", sched.CurrentPID())
	}
	if got, want := sched.ESP0(), process.KernelESP0(3); got != want {
		t.Errorf("ESP0() = %#x, want %#x", got, want)
	}
	if dir.CurrentUserPID() != 3 {
		t.Errorf("directory user page = %d, want 3", dir.CurrentUserPID())
	}
}

func TestValidateFrameRejectsUnknownCodeSegment(t *testing.T) {
	if err := ValidateFrame(Frame{CS: KernelCS}); err != nil {
		t.Errorf("kernel CS should validate: %v", err)
	}
	if err := ValidateFrame(Frame{CS: UserCS}); err != nil {
		t.Errorf("user CS should validate: %v", err)
	}
	if err := ValidateFrame(Frame{CS: 0x99}); err == nil {
		t.Errorf("expected error for bogus CS")
	}
}

func TestMarkArmedIsObservable(t *testing.T) {
	dir := memory.NewDirectory()
	procs := newTable()
	terms := &fakeTerms{}
	sched := New(dir, procs, terms)
	if sched.Armed() {
		t.Fatalf("expected not armed initially")
	}
	sched.MarkArmed()
	if !sched.Armed() {
		t.Errorf("expected armed after MarkArmed")
	}
}
