// Package pit models the programmable interval timer channel 0: armed for
// periodic interrupts, it is the scheduler's tick source (§2, §4.4).
// Grounded on the teacher's emu/timer/timer.go: a time.Ticker goroutine
// gated by an enable channel, shut down with the same
// sync.WaitGroup+done-channel+one-second-timeout shape used throughout the
// teacher's run-loop goroutines.
package pit

import (
	"errors"
	"sync"
	"time"

	"github.com/vtx86/vtx86/emu/master"
)

// Timer periodically posts master.PITTick packets while armed.
type Timer struct {
	wg      sync.WaitGroup
	running bool
	out     chan master.Packet
	enable  chan bool
	done    chan struct{}
	ticker  *time.Ticker
	period  time.Duration

	debugMsk int
}

const debugTrace = 1

var debugOption = map[string]int{
	"TRACE": debugTrace,
}

// Debug enables a debug option for the PIT's tick trace.
func (t *Timer) Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("pit debug option invalid: " + opt)
	}
	t.debugMsk |= flag
	return nil
}

// New creates a PIT that, once armed, posts a tick every period onto out.
func New(out chan master.Packet, period time.Duration) *Timer {
	t := &Timer{
		out:    out,
		enable: make(chan bool),
		done:   make(chan struct{}),
		period: period,
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Arm enables periodic ticks. §4.4: initial arming is deferred until at
// least two processes exist in terminal 1, to avoid preempting the lone
// boot shell - callers decide when to call Arm, the timer itself just
// starts or stops the ticker on request.
func (t *Timer) Arm() {
	t.enable <- true
}

// Disarm stops periodic ticks without tearing down the goroutine.
func (t *Timer) Disarm() {
	t.enable <- false
}

// Shutdown stops the timer goroutine, waiting up to one second.
func (t *Timer) Shutdown() {
	close(t.done)
	waitCh := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(time.Second):
	}
}

func (t *Timer) run() {
	defer t.wg.Done()
	t.ticker = time.NewTicker(t.period)
	defer t.ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case en := <-t.enable:
			t.running = en
		case <-t.ticker.C:
			if t.running {
				select {
				case t.out <- master.Packet{Msg: master.PITTick}:
				case <-t.done:
					return
				}
			}
		}
	}
}
