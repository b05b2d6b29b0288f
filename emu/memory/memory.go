package memory

/*
 * vtx86  - Low level memory
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

// Package memory models the fixed page-directory layout of §3/§6: one low
// identity region, one kernel large page holding the per-pid PCB slabs, one
// user page remapped on every process switch, and one video window mapped
// either to the live framebuffer or to a terminal's shadow. There is no
// literal MMU here - physical addresses are just offsets into a single
// backing byte arena, the same flat-array-plus-offset idea as the teacher's
// S/370 memory image, generalized from one address space to this fixed set
// of regions.
import "encoding/binary"

const (
	// PageSize is the x86 page granularity.
	PageSize = 4096

	// LowRegionSize is the identity-mapped low 4 MiB (directory entry 0).
	LowRegionSize = 4 * 1024 * 1024

	// KernelPhysBase is where the kernel's 4 MiB large page starts (entry 1).
	KernelPhysBase = 0x00400000
	// KernelRegionSize is the size of the kernel's large page.
	KernelRegionSize = 4 * 1024 * 1024

	// PCBSlabSize is the size of one process's PCB + kernel stack slab.
	PCBSlabSize = 0x2000
	// PCBRegionTop is the physical address one past the last PCB slab;
	// slab pid occupies [PCBRegionTop-pid*PCBSlabSize, PCBRegionTop-(pid-1)*PCBSlabSize).
	PCBRegionTop = 0x00800000

	// UserPhysBase is where pid 1's user page physically begins; later
	// pids are offset by UserPageSize each (directory entry 32).
	UserPhysBase = 0x00800000
	// UserPageSize is the size of each process's user page.
	UserPageSize = 4 * 1024 * 1024
	// MaxPID is the highest allocatable process id.
	MaxPID = 6

	// VideoPhysBase is the live VGA text framebuffer's physical address.
	VideoPhysBase = 0x000B8000
	// VideoShadowStride separates successive terminals' shadow copies.
	VideoShadowStride = 0x1000
	// VideoWindowSize is the size of the single video page (entry 64).
	VideoWindowSize = 0x1000

	// UserVirtualBase is the fixed virtual address the user page is
	// always mapped at, regardless of which process is running.
	UserVirtualBase = 0x08000000
	// VideoVirtualBase is the fixed virtual address vidmap hands back.
	VideoVirtualBase = 0x10000000
)

// arenaSize covers every physical address the kernel ever touches: the low
// region (which also contains the video framebuffer and its shadows) plus
// the kernel region plus all six processes' user pages.
const arenaSize = UserPhysBase + UserPageSize*MaxPID

var phys = make([]byte, arenaSize)

// PCBPhysAddr returns the physical address of pid's PCB, which is also the
// top of its kernel stack slab - the "PCB = top of pid's 8 KiB slab"
// encoding from §4.2, kept as a convenience function rather than load
// bearing storage (the process table is the source of truth; see
// emu/process).
func PCBPhysAddr(pid int) uint32 {
	return uint32(PCBRegionTop - pid*PCBSlabSize)
}

// UserPhysBaseForPID returns the physical base of pid's user page.
func UserPhysBaseForPID(pid int) uint32 {
	return uint32(UserPhysBase + (pid-1)*UserPageSize)
}

// VideoShadowPhys returns the physical address of terminal id's shadow
// framebuffer (id is 1..3; id 0 is the live framebuffer itself).
func VideoShadowPhys(terminalID int) uint32 {
	return VideoPhysBase + uint32(terminalID)*VideoShadowStride
}

// CheckAddr reports whether addr is within the backing arena.
func CheckAddr(addr uint32) bool {
	return addr < uint32(len(phys))
}

// GetByte and PutByte give raw byte access, used to copy program images and
// framebuffer contents.
func GetByte(addr uint32) (byte, bool) {
	if !CheckAddr(addr) {
		return 0, true
	}
	return phys[addr], false
}

func PutByte(addr uint32, v byte) bool {
	if !CheckAddr(addr) {
		return true
	}
	phys[addr] = v
	return false
}

// GetBytes and PutBytes copy a run of n bytes starting at addr.
func GetBytes(addr uint32, n int) ([]byte, bool) {
	if !CheckAddr(addr) || !CheckAddr(addr+uint32(n)-1) {
		return nil, true
	}
	out := make([]byte, n)
	copy(out, phys[addr:addr+uint32(n)])
	return out, false
}

func PutBytes(addr uint32, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if !CheckAddr(addr) || !CheckAddr(addr+uint32(len(data))-1) {
		return true
	}
	copy(phys[addr:addr+uint32(len(data))], data)
	return false
}

// ZeroRange clears n bytes starting at addr, used before a program image copy.
func ZeroRange(addr uint32, n int) bool {
	if !CheckAddr(addr) || !CheckAddr(addr+uint32(n)-1) {
		return true
	}
	clear(phys[addr : addr+uint32(n)])
	return false
}

// GetWord and PutWord read/write a little-endian 32-bit word, matching the
// executable header and filesystem layouts, both documented as
// little-endian in §6.
func GetWord(addr uint32) (uint32, bool) {
	if !CheckAddr(addr) || !CheckAddr(addr+3) {
		return 0, true
	}
	return binary.LittleEndian.Uint32(phys[addr : addr+4]), false
}

func PutWord(addr, data uint32) bool {
	if !CheckAddr(addr) || !CheckAddr(addr+3) {
		return true
	}
	binary.LittleEndian.PutUint32(phys[addr:addr+4], data)
	return false
}

// Directory models the four fixed page-directory slots the kernel actually
// manipulates: low identity (entry 0) and kernel page (entry 1) never
// change after boot, so only the user-page slot (entry 32) and the video
// slot (entry 64) are tracked here.
type Directory struct {
	userPID         int
	videoForeground bool
	videoTerminal   int
}

// NewDirectory returns a directory with no process and the live
// framebuffer mapped, the boot-time default.
func NewDirectory() *Directory {
	return &Directory{videoForeground: true}
}

// SwitchUserPage reprograms directory entry 32 to pid's physical window.
// The caller is responsible for the TLB flush this implies; FlushTLB below
// is the explicit analogue since there is no real TLB to invalidate.
func (d *Directory) SwitchUserPage(pid int) {
	d.userPID = pid
}

// CurrentUserPID returns the pid entry 32 currently maps, or 0 if none.
func (d *Directory) CurrentUserPID() int {
	return d.userPID
}

// CurrentUserPhysBase returns the physical base entry 32 currently maps to.
func (d *Directory) CurrentUserPhysBase() uint32 {
	return UserPhysBaseForPID(d.userPID)
}

// MapForeground points the video slot at the live framebuffer.
func (d *Directory) MapForeground() {
	d.videoForeground = true
	d.videoTerminal = 0
}

// MapShadow points the video slot at terminal id's shadow copy.
func (d *Directory) MapShadow(terminalID int) {
	d.videoForeground = false
	d.videoTerminal = terminalID
}

// VideoPhys returns the physical address the video slot currently maps,
// matching §9's decision to leave the `0xB8000 | 7` mapping unconditional
// (there is no supervisor/user distinction enforced here, so there is
// nothing for the DPL bits to gate).
func (d *Directory) VideoPhys() uint32 {
	if d.videoForeground {
		return VideoPhysBase
	}
	return VideoShadowPhys(d.videoTerminal)
}

// FlushTLB is a no-op placeholder kept for the same reason the teacher
// keeps symmetrical Get/Put pairs: it documents the point in the protocol
// where real hardware would need it, even though nothing here caches
// translations.
func FlushTLB() {}
