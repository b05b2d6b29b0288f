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

import "testing"

func TestPCBPhysAddrStableAcrossPID(t *testing.T) {
	for pid := 1; pid <= MaxPID; pid++ {
		want := uint32(PCBRegionTop - pid*PCBSlabSize)
		if got := PCBPhysAddr(pid); got != want {
			t.Errorf("PCBPhysAddr(%d) = %#x, want %#x", pid, got, want)
		}
		// Freeing and reallocating the same pid must reproduce the same address.
		if got := PCBPhysAddr(pid); got != want {
			t.Errorf("PCBPhysAddr(%d) not stable on second call: %#x", pid, got)
		}
	}
}

func TestUserPhysBaseForPIDDistinct(t *testing.T) {
	seen := map[uint32]int{}
	for pid := 1; pid <= MaxPID; pid++ {
		base := UserPhysBaseForPID(pid)
		if other, ok := seen[base]; ok {
			t.Fatalf("pid %d and pid %d alias at %#x", pid, other, base)
		}
		seen[base] = pid
	}
}

func TestWordRoundTrip(t *testing.T) {
	addr := UserPhysBaseForPID(1)
	if err := PutWord(addr, 0xdeadbeef); err {
		t.Fatalf("PutWord reported out of range")
	}
	got, err := GetWord(addr)
	if err {
		t.Fatalf("GetWord reported out of range")
	}
	if got != 0xdeadbeef {
		t.Errorf("GetWord = %#x, want 0xdeadbeef", got)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	addr := UserPhysBaseForPID(2)
	data := []byte("hello world")
	if err := PutBytes(addr, data); err {
		t.Fatalf("PutBytes reported out of range")
	}
	got, err := GetBytes(addr, len(data))
	if err {
		t.Fatalf("GetBytes reported out of range")
	}
	if string(got) != string(data) {
		t.Errorf("GetBytes = %q, want %q", got, data)
	}
}

func TestZeroRange(t *testing.T) {
	addr := UserPhysBaseForPID(3)
	_ = PutBytes(addr, []byte{1, 2, 3, 4})
	if err := ZeroRange(addr, 4); err {
		t.Fatalf("ZeroRange reported out of range")
	}
	got, _ := GetBytes(addr, 4)
	for i, b := range got {
		if b != 0 {
			t.Errorf("byte %d not cleared: %#x", i, b)
		}
	}
}

func TestDirectoryDefaultsToForeground(t *testing.T) {
	d := NewDirectory()
	if d.VideoPhys() != VideoPhysBase {
		t.Errorf("default video mapping = %#x, want live framebuffer %#x", d.VideoPhys(), uint32(VideoPhysBase))
	}
}

func TestDirectorySwitchUserPage(t *testing.T) {
	d := NewDirectory()
	d.SwitchUserPage(3)
	if d.CurrentUserPID() != 3 {
		t.Errorf("CurrentUserPID = %d, want 3", d.CurrentUserPID())
	}
	if d.CurrentUserPhysBase() != UserPhysBaseForPID(3) {
		t.Errorf("CurrentUserPhysBase = %#x, want %#x", d.CurrentUserPhysBase(), UserPhysBaseForPID(3))
	}
}

func TestDirectoryMapShadow(t *testing.T) {
	d := NewDirectory()
	d.MapShadow(2)
	if d.VideoPhys() != VideoShadowPhys(2) {
		t.Errorf("VideoPhys = %#x, want shadow %#x", d.VideoPhys(), VideoShadowPhys(2))
	}
	d.MapForeground()
	if d.VideoPhys() != VideoPhysBase {
		t.Errorf("VideoPhys after MapForeground = %#x, want %#x", d.VideoPhys(), uint32(VideoPhysBase))
	}
}

func TestCheckAddrBounds(t *testing.T) {
	if !CheckAddr(0) {
		t.Errorf("address 0 should be in range")
	}
	if CheckAddr(^uint32(0)) {
		t.Errorf("max uint32 address should be out of range")
	}
}
