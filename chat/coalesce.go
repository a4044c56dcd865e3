package chat

import (
	"strings"
	"sync"
	"time"
)

// Coalescer defaults. A flush fires once either threshold is crossed,
// whichever happens first.
const (
	CoalesceMaxChars = 180
	CoalesceMaxDelay = 24 * time.Millisecond
)

// Coalescer batches generation fragments into fewer observer updates. Every
// flush delivers the full accumulated text, not a delta, so observers never
// need to reassemble. Close performs one final unconditional flush so no
// trailing fragment is dropped.
//
// The flush callback runs under the coalescer's lock: callbacks are strictly
// ordered and never overlap for one stream. Callbacks must not call back
// into the same Coalescer.
type Coalescer struct {
	mu        sync.Mutex
	buf       strings.Builder
	unflushed int
	lastFlush time.Time
	maxChars  int
	maxDelay  time.Duration
	onFlush   func(full string)
	now       func() time.Time
}

// NewCoalescer creates a coalescer with the default thresholds.
func NewCoalescer(onFlush func(full string)) *Coalescer {
	return &Coalescer{
		lastFlush: time.Now(),
		maxChars:  CoalesceMaxChars,
		maxDelay:  CoalesceMaxDelay,
		onFlush:   onFlush,
		now:       time.Now,
	}
}

// Write appends a fragment and flushes if either threshold fired. Thresholds
// are evaluated at fragment boundaries only; with no further fragments the
// pending text is delivered by Close.
func (c *Coalescer) Write(fragment string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.WriteString(fragment)
	c.unflushed += len(fragment)

	if c.unflushed >= c.maxChars || c.now().Sub(c.lastFlush) >= c.maxDelay {
		c.flushLocked()
	}
}

// Text returns the accumulated text so far.
func (c *Coalescer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Close delivers the final unconditional flush. The stream owner calls it
// exactly once when the stream ends, successfully or not.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Coalescer) flushLocked() {
	c.unflushed = 0
	c.lastFlush = c.now()
	if c.onFlush != nil {
		c.onFlush(c.buf.String())
	}
}
