package scene

import (
	"sync"

	"eyewear-tryon/internal/errs"
)

// ErrSuperseded settles a load that a newer Load replaced before it
// finished.
var ErrSuperseded = errs.New(errs.InvalidState, "scene.load", "superseded by a newer load")

// Ticket tracks one Load call.
type Ticket struct {
	URL        string
	Generation uint64

	once   sync.Once
	done   chan struct{}
	err    error
	handle Handle
}

func newTicket(gen uint64, url string) *Ticket {
	return &Ticket{URL: url, Generation: gen, done: make(chan struct{})}
}

// Done is closed once the load has settled.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err returns nil while the load is in flight or succeeded, ErrSuperseded if
// a newer load replaced it, or the load failure.
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Handle returns the node this load installed, once it has succeeded.
func (t *Ticket) Handle() (Handle, bool) {
	select {
	case <-t.done:
		return t.handle, t.err == nil
	default:
		return 0, false
	}
}

// settle is idempotent; the first outcome wins.
func (t *Ticket) settle(h Handle, err error) {
	t.once.Do(func() {
		t.handle, t.err = h, err
		close(t.done)
	})
}
