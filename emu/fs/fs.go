// Package fs implements the read-only, flat filesystem image described in
// §4.1: a 4 KiB boot block of directory entries, one 4 KiB inode block per
// file, then the data-block region, all little-endian. It is grounded on
// original_source/TerminalOS/filesystem.c's block arithmetic, re-expressed
// with encoding/binary.Read the way the teacher decodes fixed-layout
// records off tape/card images in its device models.
package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vtx86/vtx86/emu/kerr"
)

const (
	// BlockSize is the size of every block in the image: boot block,
	// inode blocks, and data blocks.
	BlockSize = 4096
	// MaxDirEntries is the number of directory entry slots the boot
	// block can hold.
	MaxDirEntries = 63
	// DirEntrySize is the on-disk size of one directory entry.
	DirEntrySize = 64
	// NameSize is the fixed (not necessarily NUL-terminated) name field width.
	NameSize = 32

	// TypeRTC, TypeDir and TypeRegular are the three directory entry types.
	TypeRTC     = 0
	TypeDir     = 1
	TypeRegular = 2
)

// DirEntry is one 64-byte directory record.
type DirEntry struct {
	Name  [NameSize]byte
	Type  uint32
	Inode uint32
}

// NameString trims trailing NUL padding for display and comparison against
// Go strings; lookups themselves compare the raw fixed-width bytes.
func (e DirEntry) NameString() string {
	return string(bytes.TrimRight(e.Name[:], "\x00"))
}

// bootBlock mirrors the on-disk layout: three counts, then 63 directory
// entries. The reserved padding between the counts and the entry array is
// skipped by Load and not kept.
type bootBlock struct {
	NumDirEntries  uint32
	NumInodes      uint32
	NumDataBlocks  uint32
	dirEntries     [MaxDirEntries]DirEntry
}

// FS is a parsed, read-only filesystem image.
type FS struct {
	image []byte
	boot  bootBlock
}

// dirEntriesOffset is where the 63-entry array starts inside the boot
// block: the three count words occupy the first slot, the rest of that
// first 64-byte slot is reserved padding, and entries follow one per slot
// after that (63 entries * 64 bytes + 64 bytes of header = 4096).
const dirEntriesOffset = DirEntrySize

// Load parses image (the full, in-memory filesystem blob - typically the
// multiboot module the bootloader handed off) into an FS.
func Load(image []byte) (*FS, error) {
	if len(image) < BlockSize {
		return nil, fmt.Errorf("fs: image shorter than one block")
	}
	f := &FS{image: image}
	r := bytes.NewReader(image[:12])
	if err := binary.Read(r, binary.LittleEndian, &f.boot.NumDirEntries); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &f.boot.NumInodes); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &f.boot.NumDataBlocks); err != nil {
		return nil, err
	}
	for i := 0; i < MaxDirEntries; i++ {
		off := dirEntriesOffset + i*DirEntrySize
		entry, err := decodeDirEntry(image[off:BlockSize])
		if err != nil {
			break
		}
		f.boot.dirEntries[i] = entry
	}
	return f, nil
}

func decodeDirEntry(b []byte) (DirEntry, error) {
	var e DirEntry
	if len(b) < DirEntrySize {
		return e, fmt.Errorf("fs: truncated directory entry")
	}
	copy(e.Name[:], b[0:NameSize])
	e.Type = binary.LittleEndian.Uint32(b[NameSize : NameSize+4])
	e.Inode = binary.LittleEndian.Uint32(b[NameSize+4 : NameSize+8])
	return e, nil
}

// NumDirectoryEntries returns the first word of the boot block.
func (f *FS) NumDirectoryEntries() uint32 {
	return f.boot.NumDirEntries
}

// LookupByDirectoryIndex directly addresses entry i.
func (f *FS) LookupByDirectoryIndex(i int) (DirEntry, error) {
	if i < 0 || i >= int(f.boot.NumDirEntries) || i >= MaxDirEntries {
		return DirEntry{}, kerr.New(kerr.BadArg)
	}
	return f.boot.dirEntries[i], nil
}

// LookupByName does a linear scan with a 32-byte prefix compare.
func (f *FS) LookupByName(name string) (DirEntry, error) {
	var want [NameSize]byte
	copy(want[:], name)
	for i := 0; i < int(f.boot.NumDirEntries) && i < MaxDirEntries; i++ {
		if f.boot.dirEntries[i].Name == want {
			return f.boot.dirEntries[i], nil
		}
	}
	return DirEntry{}, kerr.New(kerr.NotFound)
}

// LookupByInode scans for the entry naming inode index.
func (f *FS) LookupByInode(index uint32) (DirEntry, error) {
	for i := 0; i < int(f.boot.NumDirEntries) && i < MaxDirEntries; i++ {
		if f.boot.dirEntries[i].Inode == index {
			return f.boot.dirEntries[i], nil
		}
	}
	return DirEntry{}, kerr.New(kerr.NotFound)
}

// inodeBlockOffset returns the byte offset of inode block idx's start.
func (f *FS) inodeBlockOffset(idx uint32) int {
	return BlockSize * (1 + int(idx))
}

// dataBlockOffset returns the byte offset of data block idx's start.
func (f *FS) dataBlockOffset(idx uint32) int {
	return BlockSize * (1 + int(f.boot.NumInodes) + int(idx))
}

// inodeSize reads the size field (first word) of inode block idx.
func (f *FS) inodeSize(idx uint32) (uint32, error) {
	off := f.inodeBlockOffset(idx)
	if off+4 > len(f.image) {
		return 0, kerr.New(kerr.Corrupt)
	}
	return binary.LittleEndian.Uint32(f.image[off : off+4]), nil
}

// dataBlockIndexAt reads the n'th (0-based) data-block index entry from inode idx.
func (f *FS) dataBlockIndexAt(idx uint32, n int) (uint32, error) {
	off := f.inodeBlockOffset(idx) + 4 + n*4
	if off+4 > len(f.image) {
		return 0, kerr.New(kerr.Corrupt)
	}
	return binary.LittleEndian.Uint32(f.image[off : off+4]), nil
}

// Read fills buf from inode idx starting at offset, returning the number of
// bytes copied. It returns 0, nil at end-of-file and never returns more
// than len(buf) or the remaining file size, whichever is smaller.
func (f *FS) Read(idx uint32, offset int, buf []byte) (int, error) {
	if idx > 63 || idx >= f.boot.NumInodes {
		return 0, kerr.New(kerr.BadArg)
	}
	size, err := f.inodeSize(idx)
	if err != nil {
		return 0, err
	}
	if offset < 0 || uint32(offset) >= size {
		return 0, nil
	}
	remaining := int(size) - offset
	want := len(buf)
	if want > remaining {
		want = remaining
	}

	blockIdx := offset / BlockSize
	blockOff := offset % BlockSize
	copied := 0
	for copied < want {
		dataIdx, err := f.dataBlockIndexAt(idx, blockIdx)
		if err != nil {
			return copied, err
		}
		if dataIdx >= f.boot.NumDataBlocks {
			return copied, kerr.New(kerr.Corrupt)
		}
		srcOff := f.dataBlockOffset(dataIdx) + blockOff
		n := BlockSize - blockOff
		if n > want-copied {
			n = want - copied
		}
		if srcOff+n > len(f.image) {
			return copied, kerr.New(kerr.Corrupt)
		}
		copy(buf[copied:copied+n], f.image[srcOff:srcOff+n])
		copied += n
		blockIdx++
		blockOff = 0
	}
	return copied, nil
}

// Size returns inode idx's stored file size, used by the loader to size
// the image copy.
func (f *FS) Size(idx uint32) (uint32, error) {
	if idx > 63 || idx >= f.boot.NumInodes {
		return 0, kerr.New(kerr.BadArg)
	}
	return f.inodeSize(idx)
}
