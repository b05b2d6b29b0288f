package process

import (
	"github.com/vtx86/vtx86/emu/fs"
	"github.com/vtx86/vtx86/emu/kerr"
)

// Open implements syscall 5: allocate the lowest free slot in 2..7,
// initialize its per-type vtable, and run the per-type open side effect
// (enabling the hardware RTC rate for an RTC open).
func (t *Table) Open(pcb *PCB, name string) (int, error) {
	slot := -1
	for i := 2; i < NumFDSlots; i++ {
		if pcb.FilesInUse&(1<<uint(i)) == 0 {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, kerr.New(kerr.Exhausted)
	}

	entry, err := t.FS.LookupByName(name)
	if err != nil {
		return 0, err
	}

	fd := FileDescriptor{Dirent: entry}
	switch entry.Type {
	case fs.TypeRTC:
		rtcSlot, err := t.RTC.Open()
		if err != nil {
			return 0, err
		}
		fd.Kind = FDRTC
		fd.RTCSlot = rtcSlot
	case fs.TypeDir:
		fd.Kind = FDDirectory
	case fs.TypeRegular:
		fd.Kind = FDRegular
	default:
		return 0, kerr.New(kerr.BadArg)
	}

	pcb.Files[slot] = fd
	pcb.FilesInUse |= 1 << uint(slot)
	return slot, nil
}

// Close implements syscall 6: fd must be in [2,7] and in use; an RTC fd
// also lowers the virtual-RTC reference.
func (t *Table) Close(pcb *PCB, fd int) error {
	if fd < 2 || fd >= NumFDSlots {
		return kerr.New(kerr.BadArg)
	}
	if pcb.FilesInUse&(1<<uint(fd)) == 0 {
		return kerr.New(kerr.BadArg)
	}
	if pcb.Files[fd].Kind == FDRTC {
		if err := t.RTC.Close(pcb.Files[fd].RTCSlot); err != nil {
			return err
		}
	}
	pcb.Files[fd] = FileDescriptor{}
	pcb.FilesInUse &^= 1 << uint(fd)
	return nil
}

// TryRead implements syscall 3's dispatch. It is non-blocking: terminal and
// RTC reads return ready=false when the caller must be re-driven on a later
// scheduler pass (the "blocks until" language in §4.3 is this polling loop
// viewed from one scheduler Tick at a time, mirroring terminal_read's and rtc_read's
// spin loops exactly, just without a literal busy-wait CPU burn).
func (t *Table) TryRead(pcb *PCB, fd int, buf []byte) (n int, ready bool, err error) {
	if fd < 0 || fd >= NumFDSlots || pcb.FilesInUse&(1<<uint(fd)) == 0 {
		return 0, true, kerr.New(kerr.BadArg)
	}
	switch pcb.Files[fd].Kind {
	case FDTerminalRead:
		n, ready := t.Terminal.TryReadLine(pcb, buf)
		return n, ready, nil
	case FDRTC:
		ready, err := t.RTC.TryRead(pcb.Files[fd].RTCSlot)
		return 0, ready, err
	case FDRegular:
		f := &pcb.Files[fd]
		n, err := t.FS.Read(f.Dirent.Inode, int(f.Position), buf)
		if err != nil {
			return 0, true, err
		}
		f.Position += int64(n)
		if n == 0 {
			f.EOF = true
		}
		return n, true, nil
	default:
		return 0, true, kerr.New(kerr.BadArg)
	}
}

// Write implements syscall 4's dispatch. Regular files and directories
// cannot be written; terminal-write honors "reading" mode by appending to
// the line buffer instead of the screen (handled inside Terminal.Write);
// RTC-write sets the caller's requested frequency.
func (t *Table) Write(pcb *PCB, fd int, buf []byte) (int, error) {
	if fd < 0 || fd >= NumFDSlots || pcb.FilesInUse&(1<<uint(fd)) == 0 {
		return 0, kerr.New(kerr.BadArg)
	}
	switch pcb.Files[fd].Kind {
	case FDTerminalWrite:
		return t.Terminal.Write(pcb, buf)
	case FDRTC:
		if len(buf) < 4 {
			return 0, kerr.New(kerr.BadArg)
		}
		freq := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		if err := t.RTC.Write(pcb.Files[fd].RTCSlot, freq); err != nil {
			return 0, err
		}
		return len(buf), nil
	default:
		return 0, kerr.New(kerr.BadArg)
	}
}
