package device

import (
	"sync"
	"time"
)

// Correlator turns the push-only notification stream into a request/response
// mechanism for the few commands that expect a single reply. The protocol
// does not tag replies, so correlation relies on strict ordering: the very
// next inbound line after arming is the answer, whatever its content.
//
// Only one query may be outstanding at a time. Lines arriving while nothing
// is armed bypass the correlator entirely.
type Correlator struct {
	mu      sync.Mutex
	waiting chan string
}

// arm claims the next inbound line. Fails fast if a query is already
// outstanding.
func (c *Correlator) arm() (chan string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.waiting != nil {
		return nil, ErrQueryOutstanding
	}

	ch := make(chan string, 1)
	c.waiting = ch
	return ch, nil
}

// disarm releases the claim if it is still ours; a reply that raced us in
// stays in the buffered channel and is dropped with it.
func (c *Correlator) disarm(ch chan string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.waiting == ch {
		c.waiting = nil
	}
}

// Offer hands an inbound line to the correlator. It returns true when the
// line was captured as a pending query's answer; false means the line should
// flow to the generic observer.
func (c *Correlator) Offer(line string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.waiting == nil {
		return false
	}

	c.waiting <- line
	c.waiting = nil
	return true
}

// Query arms the correlator, sends cmd through send, and blocks for the
// answer up to timeout. On timeout the claim is released and a late reply is
// discarded.
func (c *Correlator) Query(send func(string) error, cmd string, timeout time.Duration) (string, error) {
	ch, err := c.arm()
	if err != nil {
		return "", err
	}

	if err := send(cmd); err != nil {
		c.disarm(ch)
		return "", err
	}

	select {
	case line := <-ch:
		return line, nil
	case <-time.After(timeout):
		c.disarm(ch)
		return "", ErrProtocolTimeout
	}
}
