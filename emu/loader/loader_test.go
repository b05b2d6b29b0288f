package loader

import (
	"encoding/binary"
	"testing"

	"github.com/vtx86/vtx86/emu/fs"
	"github.com/vtx86/vtx86/emu/memory"
)

func buildExecImage(t *testing.T, name string, entry uint32, body []byte) []byte {
	t.Helper()
	content := make([]byte, 28+len(body))
	content[0], content[1], content[2], content[3] = 0x7F, 'E', 'L', 'F'
	binary.LittleEndian.PutUint32(content[24:28], entry)
	copy(content[28:], body)

	numInodes := uint32(1)
	numDataBlocks := uint32((len(content) + fs.BlockSize - 1) / fs.BlockSize)
	if numDataBlocks == 0 {
		numDataBlocks = 1
	}
	total := fs.BlockSize + int(numInodes)*fs.BlockSize + int(numDataBlocks)*fs.BlockSize
	img := make([]byte, total)
	binary.LittleEndian.PutUint32(img[0:4], 1)
	binary.LittleEndian.PutUint32(img[4:8], numInodes)
	binary.LittleEndian.PutUint32(img[8:12], numDataBlocks)

	const entryOff = fs.DirEntrySize
	copy(img[entryOff:entryOff+len(name)], name)
	binary.LittleEndian.PutUint32(img[entryOff+fs.NameSize:entryOff+fs.NameSize+4], fs.TypeRegular)
	binary.LittleEndian.PutUint32(img[entryOff+fs.NameSize+4:entryOff+fs.NameSize+8], 0)

	inodeOff := fs.BlockSize
	binary.LittleEndian.PutUint32(img[inodeOff:inodeOff+4], uint32(len(content)))
	for b := uint32(0); b < numDataBlocks; b++ {
		binary.LittleEndian.PutUint32(img[inodeOff+4+int(b)*4:inodeOff+8+int(b)*4], b)
	}
	dataOff := fs.BlockSize + int(numInodes)*fs.BlockSize
	copy(img[dataOff:], content)
	return img
}

func TestLoadValidExecutable(t *testing.T) {
	img := buildExecImage(t, "shell", 0x08049000, []byte("payload"))
	fsys, err := fs.Load(img)
	if err != nil {
		t.Fatalf("fs.Load: %v", err)
	}
	loaded, err := Load(fsys, "shell", memory.UserPhysBaseForPID(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Entry != 0x08049000 {
		t.Errorf("Entry = %#x, want %#x", loaded.Entry, 0x08049000)
	}
	want := uint32(memory.UserVirtualBase + memory.UserPageSize - 1)
	if loaded.ESP != want {
		t.Errorf("ESP = %#x, want %#x", loaded.ESP, want)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	img := buildExecImage(t, "bogus", 0x08049000, nil)
	// corrupt the magic byte in the data block copy.
	dataOff := fs.BlockSize * 2
	img[dataOff] = 0x00
	fsys, _ := fs.Load(img)
	if _, err := Load(fsys, "bogus", memory.UserPhysBaseForPID(1)); err == nil {
		t.Errorf("expected not-executable error for bad magic")
	}
}

func TestLoadRejectsMissingName(t *testing.T) {
	img := buildExecImage(t, "shell", 0x08049000, nil)
	fsys, _ := fs.Load(img)
	if _, err := Load(fsys, "nonexistent", memory.UserPhysBaseForPID(1)); err == nil {
		t.Errorf("expected not-found error")
	}
}

func TestIsValidPointer(t *testing.T) {
	if !IsValidPointer(memory.UserVirtualBase) {
		t.Errorf("base of user page should be valid")
	}
	if IsValidPointer(memory.UserVirtualBase + memory.UserPageSize) {
		t.Errorf("one past the user page should be invalid")
	}
	if IsValidPointer(0) {
		t.Errorf("null pointer should be invalid")
	}
}
