package query

import (
	"fmt"
	"net"
	"sync"
	"time"

	libatm "github.com/nabbar/ottd-masterserver/atomic"
	"github.com/nabbar/ottd-masterserver/metrics"
)

const (
	// DefaultTimeout is the per-attempt wait before a retry or giving up.
	DefaultTimeout = 5 * time.Second
	// DefaultRetry is the number of probe attempts before giving up.
	DefaultRetry = 3
)

// Sender transmits CLIENT_FIND_SERVER to (ip,port). It is supplied by the
// UDP endpoint (component C), optionally via a SOCKS relay.
type Sender func(ip net.IP, port uint16) error

// RetryReachedFunc is invoked once a PendingQuery's retries are exhausted;
// the registration handler uses it to mark a server offline.
type RetryReachedFunc func(ip net.IP, port uint16)

type pending struct {
	userData any
	cancel   chan struct{}
	once     sync.Once
}

func (p *pending) stop() {
	p.once.Do(func() { close(p.cancel) })
}

// Tracker enforces at most one outstanding probe per (ip, port).
type Tracker struct {
	table libatm.MapTyped[string, *pending]
	send  Sender
	retry RetryReachedFunc
	met   *metrics.Recorder
}

// New returns a Tracker that transmits probes via send and, on exhaustion,
// invokes retryReached (which may be nil).
func New(send Sender, retryReached RetryReachedFunc) *Tracker {
	return &Tracker{
		table: libatm.NewMapTyped[string, *pending](),
		send:  send,
		retry: retryReached,
	}
}

// WithMetrics attaches a Recorder for retry/exhaustion counters. met may be
// nil, which is equivalent to never calling WithMetrics.
func (t *Tracker) WithMetrics(met *metrics.Recorder) *Tracker {
	t.met = met
	return t
}

func addrKey(ip net.IP, port uint16) string {
	return fmt.Sprintf("%s:%d", ip.String(), port)
}

// StartQuery starts a probe to (ip,port) carrying userData, unless one is
// already outstanding for that address (deduped under flood). Returns true
// if a new probe was started.
func (t *Tracker) StartQuery(ip net.IP, port uint16, userData any) bool {
	return t.StartQueryWith(ip, port, userData, DefaultTimeout, DefaultRetry)
}

// StartQueryWith is StartQuery with explicit timeout/retry, used by tests
// and by callers wanting non-default probing cadence.
func (t *Tracker) StartQueryWith(ip net.IP, port uint16, userData any, timeout time.Duration, retry int) bool {
	key := addrKey(ip, port)

	p := &pending{userData: userData, cancel: make(chan struct{})}
	if _, loaded := t.table.LoadOrStore(key, p); loaded {
		return false
	}

	go t.run(key, ip, port, p, timeout, retry)
	return true
}

func (t *Tracker) run(key string, ip net.IP, port uint16, p *pending, timeout time.Duration, retry int) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for retry > 0 {
		if err := t.send(ip, port); err != nil {
			// a send failure does not cancel the probe window; the next
			// retry (or the eventual timeout) still governs cleanup.
			_ = err
		}

		select {
		case <-p.cancel:
			return
		case <-timer.C:
			retry--
			timer.Reset(timeout)
			if retry > 0 {
				t.met.QueryRetry()
			}
		}
	}

	// retries exhausted: remove self and fire the callback, unless a
	// concurrent on_response already removed and cancelled us.
	if cur, ok := t.table.Load(key); ok && cur == p {
		t.table.Delete(key)
		t.met.QueryExhausted()
		if t.retry != nil {
			t.retry(ip, port)
		}
	}
}

// OnResponse looks up and cancels the PendingQuery for (ip,port). If found,
// it returns the stored userData and true, cancelling any pending
// retransmit/timeout promptly. If none is found (unsolicited response), it
// returns (nil, false).
func (t *Tracker) OnResponse(ip net.IP, port uint16) (any, bool) {
	key := addrKey(ip, port)

	p, ok := t.table.LoadAndDelete(key)
	if !ok {
		return nil, false
	}

	p.stop()
	return p.userData, true
}

// Len reports the number of currently outstanding queries; exposed for
// tests asserting the "at most one per (ip,port)" invariant.
func (t *Tracker) Len() int {
	n := 0
	t.table.Range(func(_ string, _ *pending) bool {
		n++
		return true
	})
	return n
}
