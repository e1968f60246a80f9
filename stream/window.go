package stream

import "sync"

// Window is the per-channel flow-control byte budget of spec.md §4.2:
// a bounded byte budget that Acquire blocks against until Release
// (from the peer having consumed and acknowledged data) frees enough
// room, and that fails a send outright with resource-exhausted when
// the message alone exceeds the window's cap — no amount of waiting
// would ever admit it. There is deliberately no per-stream window in
// this core — fairness across streams sharing one channel is the
// transport's responsibility (spec.md §4.2), so one Window is shared
// by every stream on a Transport.
type Window struct {
	mu        sync.Mutex
	cond      *sync.Cond
	available int64
	cap       int64
	closed    bool
}

// NewWindow returns a Window with the given initial size and growth
// cap.
func NewWindow(initial, max int64) *Window {
	w := &Window{available: initial, cap: max}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// ErrWindowExceedsCap is returned by Acquire when n exceeds the
// window's cap outright — spec.md's resource-exhausted case for
// oversized messages, where no amount of waiting on Release would ever
// admit the message.
type ErrWindowExceedsCap struct {
	Requested int64
	Cap       int64
}

func (e *ErrWindowExceedsCap) Error() string {
	return "stream: message size exceeds flow-control window cap"
}

// Acquire blocks until n bytes of window are available and then debits
// them, or returns ErrWindowExceedsCap immediately if n alone exceeds
// cap, or returns errWindowClosed if the window was closed while
// waiting.
func (w *Window) Acquire(n int64) error {
	if n > w.cap {
		return &ErrWindowExceedsCap{Requested: n, Cap: w.cap}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		if w.closed {
			return errWindowClosed
		}
		if w.available >= n {
			w.available -= n
			return nil
		}
		// n fits under cap (checked above) but the window doesn't have
		// enough available right now — wait for a Release to top it
		// back up rather than admitting the message early.
		w.cond.Wait()
	}
}

// Release returns n bytes to the window, waking any blocked Acquire.
func (w *Window) Release(n int64) {
	w.mu.Lock()
	w.available += n
	if w.available > w.cap {
		w.available = w.cap
	}
	w.mu.Unlock()
	w.cond.Broadcast()
}

// Close unblocks every waiter with errWindowClosed.
func (w *Window) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

var errWindowClosed = windowClosedError{}

type windowClosedError struct{}

func (windowClosedError) Error() string { return "stream: window closed" }
