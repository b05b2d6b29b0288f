// Package rtc implements the hardware real-time clock and its demultiplexed
// virtual RTCs (§3, §4.7). The hardware always runs at the maximum
// requested frequency among open virtual RTCs; each hardware tick fans out
// to every open virtual RTC, incrementing its counter by
// requested/running. Grounded on
// original_source/TerminalOS/rtc.c's change_RTC_freq/tick/rtc_open/
// rtc_read/rtc_write/rtc_close, with one deliberate deviation: rtc_write's
// power-of-two-only acceptance rule is spec.md's own §4.7/§7 requirement,
// tighter than the original's "1 or even number" check, and wins here
// because spec.md is the more specific, non-open-question source.
package rtc

import (
	"errors"
	"sync"
	"time"

	"github.com/vtx86/vtx86/emu/kerr"
	"github.com/vtx86/vtx86/emu/master"
)

// MaxVirtual is the number of virtual RTC slots the hardware can demultiplex.
const MaxVirtual = 6

// DefaultFrequency is what open() requests before any write, matching the
// original's rtc_open default rate.
const DefaultFrequency = 2

type slot struct {
	active    bool
	requested uint32
	counter   float64
}

// RTC demultiplexes one hardware clock into up to MaxVirtual independent
// per-process rates.
type RTC struct {
	mu      sync.Mutex
	slots   [MaxVirtual]slot
	running uint32 // current hardware rate, 0 = off

	out    chan master.Packet
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup

	debugMsk int
}

const debugTrace = 1

var debugOption = map[string]int{
	"TRACE": debugTrace,
}

// Debug enables a debug option for the RTC's tick/demux trace.
func (r *RTC) Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("rtc debug option invalid: " + opt)
	}
	r.mu.Lock()
	r.debugMsk |= flag
	r.mu.Unlock()
	return nil
}

// New wires an RTC whose hardware ticks post master.RTCTick packets onto out.
func New(out chan master.Packet) *RTC {
	r := &RTC{out: out, done: make(chan struct{})}
	r.ticker = time.NewTicker(time.Hour) // parked until a frequency is set
	r.wg.Add(1)
	go r.pump()
	return r
}

// pump is the real-time driver, the same ticker-goroutine shape as
// emu/pit.Timer and, before it, the teacher's emu/timer.Timer - except the
// period changes at runtime as the running frequency is reprogrammed, so
// the ticker created by New has its period reset under the mutex rather
// than fixed at construction.
func (r *RTC) pump() {
	defer r.wg.Done()
	defer r.ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C:
			select {
			case r.out <- master.Packet{Msg: master.RTCTick}:
			case <-r.done:
				return
			}
		}
	}
}

func (r *RTC) reprogram(hz uint32) {
	r.running = hz
	if hz == 0 {
		r.ticker.Reset(time.Hour)
		return
	}
	r.ticker.Reset(time.Second / time.Duration(hz))
}

// Shutdown stops the driving goroutine, with the same one-second timeout
// shape as every other subsystem's shutdown.
func (r *RTC) Shutdown() {
	close(r.done)
	waitCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(time.Second):
	}
}

// Open allocates the lowest free virtual RTC slot, enabling the hardware at
// DefaultFrequency if it wasn't already running at least that fast.
func (r *RTC) Open() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		if !r.slots[i].active {
			r.slots[i] = slot{active: true, requested: DefaultFrequency}
			if DefaultFrequency > r.running {
				r.reprogram(DefaultFrequency)
			}
			return i, nil
		}
	}
	return 0, kerr.New(kerr.Exhausted)
}

// isPowerOfTwoInRange validates §4.7/§7's frequency rule.
func isPowerOfTwoInRange(freq uint32) bool {
	if freq < 1 || freq > 1024 {
		return false
	}
	return freq&(freq-1) == 0
}

// Write sets slot's requested frequency. A non-power-of-two, or one outside
// [1,1024], is a bad-argument error. Raising the requested frequency above
// the current running rate reprograms the hardware up; lowering it never
// reprograms the hardware down (only Close, when the last virtual RTC
// closes, turns it off).
func (r *RTC) Write(slot int, freq uint32) error {
	if !isPowerOfTwoInRange(freq) {
		return kerr.New(kerr.BadArg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot < 0 || slot >= MaxVirtual || !r.slots[slot].active {
		return kerr.New(kerr.BadArg)
	}
	r.slots[slot].requested = freq
	r.slots[slot].counter = 0
	if freq > r.running {
		r.reprogram(freq)
	}
	return nil
}

// TryRead reports whether slot's counter has reached 1 and, if so, resets
// it to 0. A slot whose requested frequency is 0 is always "ready" so a
// blocking caller doesn't spin forever on an unconfigured clock (Open
// itself starts every slot at DefaultFrequency).
func (r *RTC) TryRead(slot int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot < 0 || slot >= MaxVirtual || !r.slots[slot].active {
		return false, kerr.New(kerr.BadArg)
	}
	if r.slots[slot].requested == 0 {
		return true, nil
	}
	if r.slots[slot].counter >= 1 {
		r.slots[slot].counter = 0
		return true, nil
	}
	return false, nil
}

// Close marks slot inactive. Only once every virtual RTC is closed does the
// hardware get reprogrammed off.
func (r *RTC) Close(slot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot < 0 || slot >= MaxVirtual || !r.slots[slot].active {
		return kerr.New(kerr.BadArg)
	}
	r.slots[slot].active = false
	r.slots[slot].requested = 0
	for i := range r.slots {
		if r.slots[i].active {
			return nil
		}
	}
	r.reprogram(0)
	return nil
}

// HardwareTick fans one hardware tick out to every active virtual RTC,
// incrementing each counter by requested/running. Called from the core run
// loop on a master.RTCTick packet, never directly from the ticker
// goroutine; it still holds the RTC mutex while updating the counters,
// since Open/Write/TryRead/Close touch the same slots.
func (r *RTC) HardwareTick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running == 0 {
		return
	}
	for i := range r.slots {
		if r.slots[i].active && r.slots[i].requested > 0 {
			r.slots[i].counter += float64(r.slots[i].requested) / float64(r.running)
		}
	}
}

// Running returns the current hardware rate, 0 if off.
func (r *RTC) Running() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
