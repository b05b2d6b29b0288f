package fs

import (
	"encoding/binary"
	"testing"
)

// buildImage assembles a minimal, valid filesystem image with one directory
// entry "frame0.txt" backed by as many data blocks as its content needs.
func buildImage(t *testing.T, content []byte) []byte {
	t.Helper()
	numInodes := uint32(1)
	numDataBlocks := uint32((len(content) + BlockSize - 1) / BlockSize)
	if numDataBlocks == 0 {
		numDataBlocks = 1
	}

	total := BlockSize + int(numInodes)*BlockSize + int(numDataBlocks)*BlockSize
	img := make([]byte, total)

	binary.LittleEndian.PutUint32(img[0:4], 1) // num dir entries
	binary.LittleEndian.PutUint32(img[4:8], numInodes)
	binary.LittleEndian.PutUint32(img[8:12], numDataBlocks)

	entryOff := dirEntriesOffset
	copy(img[entryOff:entryOff+len("frame0.txt")], "frame0.txt")
	binary.LittleEndian.PutUint32(img[entryOff+NameSize:entryOff+NameSize+4], TypeRegular)
	binary.LittleEndian.PutUint32(img[entryOff+NameSize+4:entryOff+NameSize+8], 0)

	inodeOff := BlockSize
	binary.LittleEndian.PutUint32(img[inodeOff:inodeOff+4], uint32(len(content)))
	for b := uint32(0); b < numDataBlocks; b++ {
		binary.LittleEndian.PutUint32(img[inodeOff+4+int(b)*4:inodeOff+8+int(b)*4], b)
	}

	dataOff := BlockSize + int(numInodes)*BlockSize
	copy(img[dataOff:], content)

	return img
}

func TestLookupByName(t *testing.T) {
	img := buildImage(t, []byte("hello"))
	f, err := Load(img)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, err := f.LookupByName("frame0.txt")
	if err != nil {
		t.Fatalf("LookupByName: %v", err)
	}
	if e.NameString() != "frame0.txt" {
		t.Errorf("NameString = %q", e.NameString())
	}
	if e.Type != TypeRegular {
		t.Errorf("Type = %d, want %d", e.Type, TypeRegular)
	}

	if _, err := f.LookupByName("nonexistent"); err == nil {
		t.Errorf("expected not-found error")
	}
}

func TestLookupByInodeAndDirIndex(t *testing.T) {
	img := buildImage(t, []byte("x"))
	f, _ := Load(img)
	if _, err := f.LookupByInode(0); err != nil {
		t.Errorf("LookupByInode(0): %v", err)
	}
	if _, err := f.LookupByInode(99); err == nil {
		t.Errorf("expected not-found for bad inode")
	}
	e, err := f.LookupByDirectoryIndex(0)
	if err != nil || e.NameString() != "frame0.txt" {
		t.Errorf("LookupByDirectoryIndex(0) = %+v, err %v", e, err)
	}
	if _, err := f.LookupByDirectoryIndex(5); err == nil {
		t.Errorf("expected error for out-of-range directory index")
	}
}

func TestReadExactRoundTrip(t *testing.T) {
	content := make([]byte, BlockSize+100)
	for i := range content {
		content[i] = byte(i % 251)
	}
	img := buildImage(t, content)
	f, err := Load(img)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	size, err := f.Size(0)
	if err != nil || int(size) != len(content) {
		t.Fatalf("Size = %d, %v, want %d", size, err, len(content))
	}

	for _, offset := range []int{0, 1, 100, BlockSize - 1, BlockSize, BlockSize + 50, len(content)} {
		var got []byte
		buf := make([]byte, 64)
		pos := offset
		for {
			n, err := f.Read(0, pos, buf)
			if err != nil {
				t.Fatalf("Read at %d: %v", pos, err)
			}
			if n == 0 {
				break
			}
			got = append(got, buf[:n]...)
			pos += n
		}
		want := content[offset:]
		if string(got) != string(want) {
			t.Errorf("reconstruction from offset %d mismatched (got %d bytes, want %d)", offset, len(got), len(want))
		}
	}
}

func TestReadPastEOFReturnsZero(t *testing.T) {
	content := []byte("short file")
	img := buildImage(t, content)
	f, _ := Load(img)
	buf := make([]byte, 64)
	n, err := f.Read(0, len(content), buf)
	if err != nil || n != 0 {
		t.Errorf("Read past EOF = %d, %v, want 0, nil", n, err)
	}
	n, err = f.Read(0, len(content)+1000, buf)
	if err != nil || n != 0 {
		t.Errorf("Read far past EOF = %d, %v, want 0, nil", n, err)
	}
}

func TestReadBadInodeIsError(t *testing.T) {
	img := buildImage(t, []byte("x"))
	f, _ := Load(img)
	buf := make([]byte, 8)
	if _, err := f.Read(64, 0, buf); err == nil {
		t.Errorf("expected error for inode > 63")
	}
	if _, err := f.Read(5, 0, buf); err == nil {
		t.Errorf("expected error for inode beyond NumInodes")
	}
}

func TestNumDirectoryEntries(t *testing.T) {
	img := buildImage(t, []byte("x"))
	f, _ := Load(img)
	if f.NumDirectoryEntries() != 1 {
		t.Errorf("NumDirectoryEntries = %d, want 1", f.NumDirectoryEntries())
	}
}
