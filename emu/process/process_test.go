package process

import (
	"encoding/binary"
	"testing"

	"github.com/vtx86/vtx86/emu/fs"
	"github.com/vtx86/vtx86/emu/memory"
)

// fakeRTC and fakeTerminal are minimal stand-ins satisfying the interfaces
// process.Table depends on, in place of the real emu/rtc and terminal
// packages - keeps this package's tests independent of theirs.
type fakeRTC struct {
	nextSlot int
	closed   map[int]bool
}

func newFakeRTC() *fakeRTC { return &fakeRTC{closed: map[int]bool{}} }

func (f *fakeRTC) Open() (int, error) {
	s := f.nextSlot
	f.nextSlot++
	return s, nil
}
func (f *fakeRTC) Write(slot int, freq uint32) error   { return nil }
func (f *fakeRTC) TryRead(slot int) (bool, error)      { return true, nil }
func (f *fakeRTC) Close(slot int) error                { f.closed[slot] = true; return nil }

type fakeTerminal struct {
	active map[int]int
	torn   map[int]bool
}

func newFakeTerminal() *fakeTerminal {
	return &fakeTerminal{active: map[int]int{}, torn: map[int]bool{}}
}

func (f *fakeTerminal) TryReadLine(pcb *PCB, buf []byte) (int, bool) { return 0, false }
func (f *fakeTerminal) Write(pcb *PCB, buf []byte) (int, error)      { return len(buf), nil }
func (f *fakeTerminal) TerminalTornDown(terminalID int)              { f.torn[terminalID] = true }
func (f *fakeTerminal) SetActiveProcess(terminalID, pid int)         { f.active[terminalID] = pid }

func buildExecFS(t *testing.T, names ...string) []byte {
	t.Helper()
	type file struct {
		name  string
		bytes []byte
	}
	var files []file
	for _, n := range names {
		body := make([]byte, 28)
		body[0], body[1], body[2], body[3] = 0x7F, 'E', 'L', 'F'
		binary.LittleEndian.PutUint32(body[24:28], 0x08049000)
		files = append(files, file{name: n, bytes: body})
	}

	numInodes := uint32(len(files))
	numDataBlocks := numInodes // one block per tiny file is plenty
	total := fs.BlockSize + int(numInodes)*fs.BlockSize + int(numDataBlocks)*fs.BlockSize
	img := make([]byte, total)
	binary.LittleEndian.PutUint32(img[0:4], numInodes)
	binary.LittleEndian.PutUint32(img[4:8], numInodes)
	binary.LittleEndian.PutUint32(img[8:12], numDataBlocks)

	for i, f := range files {
		entryOff := fs.DirEntrySize + i*fs.DirEntrySize
		copy(img[entryOff:entryOff+len(f.name)], f.name)
		binary.LittleEndian.PutUint32(img[entryOff+fs.NameSize:entryOff+fs.NameSize+4], fs.TypeRegular)
		binary.LittleEndian.PutUint32(img[entryOff+fs.NameSize+4:entryOff+fs.NameSize+8], uint32(i))

		inodeOff := fs.BlockSize * (1 + i)
		binary.LittleEndian.PutUint32(img[inodeOff:inodeOff+4], uint32(len(f.bytes)))
		binary.LittleEndian.PutUint32(img[inodeOff+4:inodeOff+8], uint32(i))

		dataOff := fs.BlockSize * (1 + int(numInodes) + i)
		copy(img[dataOff:], f.bytes)
	}
	return img
}

func newTestTable(t *testing.T, names ...string) (*Table, *fakeTerminal) {
	t.Helper()
	img := buildExecFS(t, names...)
	fsys, err := fs.Load(img)
	if err != nil {
		t.Fatalf("fs.Load: %v", err)
	}
	dir := memory.NewDirectory()
	term := newFakeTerminal()
	return NewTable(fsys, dir, newFakeRTC(), term), term
}

func TestExecuteAssignsPIDAndBecomesActive(t *testing.T) {
	table, term := newTestTable(t, "shell", "ls")
	shell, err := table.Execute(nil, "shell", 1, true)
	if err != nil {
		t.Fatalf("Execute(shell): %v", err)
	}
	if shell != 1 {
		t.Errorf("first pid = %d, want 1", shell)
	}
	shellPCB := table.Get(shell)
	shellPCB.TerminalID = 1

	ls, err := table.Execute(shellPCB, "ls", 1, false)
	if err != nil {
		t.Fatalf("Execute(ls): %v", err)
	}
	if ls != 2 {
		t.Errorf("second pid = %d, want 2", ls)
	}
	if term.active[1] != ls {
		t.Errorf("active_process[1] = %d, want %d", term.active[1], ls)
	}
	lsPCB := table.Get(ls)
	if lsPCB.ArgsLen != 0 {
		t.Errorf("ls argument buffer should be empty, got %d bytes", lsPCB.ArgsLen)
	}
}

func TestExecuteStashesArguments(t *testing.T) {
	table, _ := newTestTable(t, "shell", "cat")
	shellPID, _ := table.Execute(nil, "shell", 1, true)
	shell := table.Get(shellPID)
	shell.TerminalID = 1

	childPID, err := table.Execute(shell, "cat frame0.txt", 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	child := table.Get(childPID)
	var buf [ArgBufferSize]byte
	if err := child.GetArgs(buf[:]); err != nil {
		t.Fatalf("GetArgs: %v", err)
	}
	want := "frame0.txt\x00"
	if string(buf[:len(want)]) != want {
		t.Errorf("argument buffer = %q, want %q", buf[:len(want)], want)
	}
}

func TestHaltReturnsStatusToParent(t *testing.T) {
	table, term := newTestTable(t, "shell", "ls")
	shellPID, _ := table.Execute(nil, "shell", 1, true)
	shell := table.Get(shellPID)
	shell.TerminalID = 1

	lsPID, _ := table.Execute(shell, "ls", 1, false)
	ls := table.Get(lsPID)

	table.Halt(ls, 42)

	status, ok := shell.ConsumeChildStatus()
	if !ok {
		t.Fatalf("expected a pending child status")
	}
	if status != 42 {
		t.Errorf("status = %d, want 42", status)
	}
	if term.active[1] != shellPID {
		t.Errorf("active_process[1] = %d, want shell pid %d", term.active[1], shellPID)
	}
	if table.Get(lsPID) != nil {
		t.Errorf("halted child's PCB should be freed")
	}
}

func TestHaltMasksStatusTo8Bits(t *testing.T) {
	table, _ := newTestTable(t, "shell", "ls")
	shellPID, _ := table.Execute(nil, "shell", 1, true)
	shell := table.Get(shellPID)
	shell.TerminalID = 1
	lsPID, _ := table.Execute(shell, "ls", 1, false)
	ls := table.Get(lsPID)

	table.Halt(ls, 0x1FF) // 511

	status, _ := shell.ConsumeChildStatus()
	if status != 0xFF {
		t.Errorf("status = %#x, want masked 0xff", status)
	}
}

func TestRootShellHaltTearsDownTerminal(t *testing.T) {
	table, term := newTestTable(t, "shell")
	shellPID, _ := table.Execute(nil, "shell", 1, true)
	shell := table.Get(shellPID)
	shell.TerminalID = 1

	table.Halt(shell, 0)

	if !term.torn[1] {
		t.Errorf("expected terminal 1 to be torn down")
	}
}

func TestPIDReuseYieldsSamePCBAddress(t *testing.T) {
	table, _ := newTestTable(t, "shell", "ls")
	shellPID, _ := table.Execute(nil, "shell", 1, true)
	shell := table.Get(shellPID)
	shell.TerminalID = 1

	first, _ := table.Execute(shell, "ls", 1, false)
	addrBefore := PCBPhysAddr(first)
	table.Halt(table.Get(first), 0)

	second, _ := table.Execute(shell, "ls", 1, false)
	if second != first {
		t.Fatalf("expected pid reuse, got %d then %d", first, second)
	}
	if PCBPhysAddr(second) != addrBefore {
		t.Errorf("PCB address changed across free/reuse: %#x vs %#x", PCBPhysAddr(second), addrBefore)
	}
}

func TestOpenCloseIdempotentOnUsedMask(t *testing.T) {
	table, _ := newTestTable(t, "shell")
	shellPID, _ := table.Execute(nil, "shell", 1, true)
	shell := table.Get(shellPID)

	fd, err := table.Open(shell, "shell")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if shell.FilesInUse&(1<<uint(fd)) == 0 {
		t.Fatalf("fd %d should be marked in use", fd)
	}
	if err := table.Close(shell, fd); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if shell.FilesInUse&(1<<uint(fd)) != 0 {
		t.Errorf("fd %d should be marked free after close", fd)
	}
	if err := table.Close(shell, 0); err == nil {
		t.Errorf("closing fd 0 should be an error")
	}
	if err := table.Close(shell, 1); err == nil {
		t.Errorf("closing fd 1 should be an error")
	}
}

func TestGetArgsTooShortBufferErrors(t *testing.T) {
	table, _ := newTestTable(t, "shell", "cat")
	shellPID, _ := table.Execute(nil, "shell", 1, true)
	shell := table.Get(shellPID)
	shell.TerminalID = 1
	childPID, _ := table.Execute(shell, "cat frame0.txt", 1, false)
	child := table.Get(childPID)

	var tiny [4]byte
	if err := child.GetArgs(tiny[:]); err == nil {
		t.Errorf("expected error for undersized getargs buffer")
	}
}
