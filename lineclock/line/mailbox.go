package line

import "context"

// DefaultDepth is the number of buffers in flight: one being filled by the
// collector while the other is drawn by the renderer.
const DefaultDepth = 2

// Mailbox hands completed buffers from one producer to one consumer.
//
// It is a counting gate whose tokens are the buffers themselves. The
// producer Acquires an empty buffer, fills it and Posts it; from that point
// the consumer owns it until Release puts it back on the free list. A buffer
// is therefore never reachable from both sides at the same time.
//
// Every buffer is preallocated, so Post never blocks and never drops a line.
// When all buffers are in flight Acquire blocks until the consumer releases
// one.
type Mailbox struct {
	free  chan *Buffer
	ready chan *Buffer
}

// NewMailbox preallocates depth buffers of the given capacity.
func NewMailbox(depth, capacity int) *Mailbox {
	if depth < 1 {
		depth = 1
	}
	m := &Mailbox{
		free:  make(chan *Buffer, depth),
		ready: make(chan *Buffer, depth),
	}
	for i := 0; i < depth; i++ {
		m.free <- NewBuffer(capacity)
	}
	return m
}

// Acquire returns an empty buffer for the producer.
func (m *Mailbox) Acquire(ctx context.Context) (*Buffer, error) {
	select {
	case b := <-m.free:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Post signals the consumer that b holds a completed line. The caller must
// not touch b afterwards.
func (m *Mailbox) Post(b *Buffer) {
	// ready has room for every buffer that exists, so this cannot block.
	m.ready <- b
}

// Wait blocks until a completed line is available and returns it.
func (m *Mailbox) Wait(ctx context.Context) (*Buffer, error) {
	select {
	case b := <-m.ready:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release resets b and returns it to the producer side.
func (m *Mailbox) Release(b *Buffer) {
	b.Reset()
	m.free <- b
}

// Pending returns the number of posted lines not yet taken by Wait.
func (m *Mailbox) Pending() int { return len(m.ready) }

// Depth returns the number of buffers owned by the mailbox.
func (m *Mailbox) Depth() int { return cap(m.free) }
