// Package loader implements load_program (§4.2): validate the executable
// magic, copy the program image into a process's fixed virtual address,
// and hand back its entry point and initial stack pointer. Grounded on
// original_source/TerminalOS/filesystem.c's load_program/is_valid_cmd and
// on the ELF32 header layout confirmed against
// other_examples/0ae83c3d_xyproto-flapc__elf_complete.go.go (e_entry at a
// fixed offset from the start of the image).
package loader

import (
	"github.com/vtx86/vtx86/emu/fs"
	"github.com/vtx86/vtx86/emu/kerr"
	"github.com/vtx86/vtx86/emu/memory"
)

// Magic is the four-byte signature every loadable image must start with.
var Magic = [4]byte{0x7F, 'E', 'L', 'F'}

// EntryOffset is where the little-endian entry point word lives, the
// standard ELF32 e_entry position.
const EntryOffset = 24

// InPageOffset is the fixed offset of the program image within the 4 MiB
// user page: virtual 0x08048000 = memory.UserVirtualBase + InPageOffset.
const InPageOffset = 0x48000

// Image is a loaded program's entry point and initial stack pointer, both
// virtual addresses ready to push into a user iret frame.
type Image struct {
	Entry uint32
	ESP   uint32
}

// Load looks up name in fsys, validates its magic, and copies it into the
// user page physically based at userPhysBase (already remapped to pid by
// the caller via memory.Directory.SwitchUserPage).
func Load(fsys *fs.FS, name string, userPhysBase uint32) (Image, error) {
	entry, err := fsys.LookupByName(name)
	if err != nil {
		return Image{}, err
	}
	if entry.Type != fs.TypeRegular {
		return Image{}, kerr.New(kerr.NotExec)
	}

	size, err := fsys.Size(entry.Inode)
	if err != nil {
		return Image{}, err
	}
	if size < EntryOffset+4 {
		return Image{}, kerr.New(kerr.NotExec)
	}

	buf := make([]byte, size)
	if n, err := fsys.Read(entry.Inode, 0, buf); err != nil || uint32(n) != size {
		if err == nil {
			err = kerr.New(kerr.Corrupt)
		}
		return Image{}, err
	}

	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return Image{}, kerr.New(kerr.NotExec)
	}

	if memory.ZeroRange(userPhysBase, memory.UserPageSize) {
		return Image{}, kerr.New(kerr.BadArg)
	}
	dst := userPhysBase + InPageOffset
	if memory.PutBytes(dst, buf) {
		return Image{}, kerr.New(kerr.Corrupt)
	}

	eip := uint32(buf[EntryOffset]) | uint32(buf[EntryOffset+1])<<8 |
		uint32(buf[EntryOffset+2])<<16 | uint32(buf[EntryOffset+3])<<24

	return Image{
		Entry: eip,
		ESP:   memory.UserVirtualBase + memory.UserPageSize - 1,
	}, nil
}

// IsValidPointer reports whether a virtual address falls inside the single
// user page, the bound vidmap (§4.3 syscall 8) must enforce.
func IsValidPointer(addr uint32) bool {
	return addr >= memory.UserVirtualBase && addr < memory.UserVirtualBase+memory.UserPageSize
}
