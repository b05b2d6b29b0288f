package rtc

import (
	"testing"

	"github.com/vtx86/vtx86/emu/master"
)

func newForTest() *RTC {
	r := New(make(chan master.Packet, 16))
	return r
}

func TestWriteRejectsNonPowerOfTwo(t *testing.T) {
	r := newForTest()
	slot, err := r.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Write(slot, 10); err == nil {
		t.Errorf("expected error writing frequency 10 (not a power of two)")
	}
	if err := r.Write(slot, 8); err != nil {
		t.Errorf("Write(8): %v", err)
	}
	if err := r.Write(slot, 1024); err != nil {
		t.Errorf("Write(1024): %v", err)
	}
	if err := r.Write(slot, 2048); err == nil {
		t.Errorf("expected error writing frequency 2048 (out of range)")
	}
	if err := r.Write(slot, 0); err == nil {
		t.Errorf("expected error writing frequency 0")
	}
}

func TestOpenRaisesRunningFrequency(t *testing.T) {
	r := newForTest()
	slot, _ := r.Open()
	if r.Running() != DefaultFrequency {
		t.Errorf("Running() = %d, want %d", r.Running(), DefaultFrequency)
	}
	if err := r.Write(slot, 8); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if r.Running() != 8 {
		t.Errorf("Running() after raising = %d, want 8", r.Running())
	}
}

func TestWriteNeverLowersRunning(t *testing.T) {
	r := newForTest()
	a, _ := r.Open()
	b, _ := r.Open()
	_ = r.Write(a, 8)
	_ = r.Write(b, 2)
	if r.Running() != 8 {
		t.Fatalf("Running() = %d, want 8", r.Running())
	}
	// Lowering a's frequency below the current running rate must not
	// reprogram the hardware down.
	_ = r.Write(a, 1)
	if r.Running() != 8 {
		t.Errorf("Running() after lowering = %d, want still 8", r.Running())
	}
}

func TestCloseOnlyTurnsOffHardwareWhenLastCloses(t *testing.T) {
	r := newForTest()
	a, _ := r.Open()
	b, _ := r.Open()
	_ = r.Write(a, 8)
	_ = r.Write(b, 4)
	if err := r.Close(a); err != nil {
		t.Fatalf("Close(a): %v", err)
	}
	if r.Running() == 0 {
		t.Errorf("Running() dropped to 0 while b is still open")
	}
	if err := r.Close(b); err != nil {
		t.Fatalf("Close(b): %v", err)
	}
	if r.Running() != 0 {
		t.Errorf("Running() = %d, want 0 once all virtual RTCs are closed", r.Running())
	}
}

func TestHardwareTickDemultiplexesByFrequency(t *testing.T) {
	r := newForTest()
	slow, _ := r.Open() // f=2
	fast, _ := r.Open()
	_ = r.Write(slow, 2)
	_ = r.Write(fast, 8) // running becomes 8

	// At running=8, f=2 needs 4 ticks to reach counter>=1; f=8 needs 1.
	ready, err := r.TryRead(fast)
	if err != nil || ready {
		t.Fatalf("fast TryRead before any tick: ready=%v err=%v", ready, err)
	}
	r.HardwareTick()
	ready, _ = r.TryRead(fast)
	if !ready {
		t.Errorf("fast RTC should be ready after one hardware tick at matching rate")
	}
	ready, _ = r.TryRead(slow)
	if ready {
		t.Errorf("slow RTC should not be ready after only one hardware tick")
	}
	for i := 0; i < 3; i++ {
		r.HardwareTick()
	}
	ready, _ = r.TryRead(slow)
	if !ready {
		t.Errorf("slow RTC should be ready after four hardware ticks at running=8,f=2")
	}
}

func TestTryReadUnconfiguredReturnsImmediately(t *testing.T) {
	r := newForTest()
	slot, _ := r.Open()
	r.slots[slot].requested = 0 // force a virtual RTC at f = 0
	ready, err := r.TryRead(slot)
	if err != nil || !ready {
		t.Errorf("unconfigured RTC should read ready immediately, got ready=%v err=%v", ready, err)
	}
}
