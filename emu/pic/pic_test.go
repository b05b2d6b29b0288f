package pic

import "testing"

func TestMaskUnmask(t *testing.T) {
	c := New()
	if !c.Masked(1) {
		t.Fatalf("line 1 should start masked")
	}
	c.Unmask(1)
	if c.Masked(1) {
		t.Errorf("line 1 should be unmasked")
	}
	c.Mask(1)
	if !c.Masked(1) {
		t.Errorf("line 1 should be masked again")
	}
}

func TestMaskSlaveLine(t *testing.T) {
	c := New()
	c.Unmask(10) // slave line 2
	if c.Masked(10) {
		t.Errorf("slave line 10 should be unmasked")
	}
	if c.SlaveMask()&(1<<2) != 0 {
		t.Errorf("slave mask bit 2 should be clear")
	}
	if c.MasterMask() != 0xFF {
		t.Errorf("master mask should be untouched by a slave-line unmask")
	}
}

func TestSendEOILowLineHitsMasterOnly(t *testing.T) {
	c := New()
	c.SendEOI(1)
	if c.MasterEOICount() != 1 {
		t.Errorf("master EOI count = %d, want 1", c.MasterEOICount())
	}
	if c.SlaveEOICount() != 0 {
		t.Errorf("slave EOI count = %d, want 0", c.SlaveEOICount())
	}
}

func TestSendEOIHighLineHitsBoth(t *testing.T) {
	c := New()
	c.SendEOI(10)
	if c.MasterEOICount() != 1 {
		t.Errorf("master EOI count = %d, want 1", c.MasterEOICount())
	}
	if c.SlaveEOICount() != 1 {
		t.Errorf("slave EOI count = %d, want 1", c.SlaveEOICount())
	}
}
