// Package line holds the fixed-capacity line buffers and the mailbox that
// moves completed buffers from the serial collector to the display renderer.
package line

import "errors"

// DefaultCapacity is the buffer size used when none is configured.
const DefaultCapacity = 100

// ErrOverflow is returned by Append when the buffer has no room left.
var ErrOverflow = errors.New("line: buffer full")

// Buffer is a fixed-capacity byte buffer with a length counter.
// data[:n] holds the accumulated line and data[n] is always 0, so at most
// Cap()-1 bytes can be stored.
type Buffer struct {
	data []byte
	n    int

	// Truncated is set when the line was cut short by an overflow policy.
	Truncated bool
}

// NewBuffer allocates a buffer with the given capacity. Capacities below 2
// leave no room for a single byte plus the sentinel and are raised to 2.
func NewBuffer(capacity int) *Buffer {
	if capacity < 2 {
		capacity = 2
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Append adds b to the end of the line.
func (b *Buffer) Append(c byte) error {
	if b.Full() {
		return ErrOverflow
	}
	b.data[b.n] = c
	b.n++
	b.data[b.n] = 0
	return nil
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.n = 0
	b.data[0] = 0
	b.Truncated = false
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int { return b.n }

// Cap returns the buffer capacity including the sentinel slot.
func (b *Buffer) Cap() int { return len(b.data) }

// Full reports whether another Append would overflow.
func (b *Buffer) Full() bool { return b.n >= len(b.data)-1 }

// Bytes returns the valid bytes without copying. Only the current owner of
// the buffer may use the result, and only until the buffer is handed off.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Snapshot returns a copy of the valid bytes.
func (b *Buffer) Snapshot() []byte {
	out := make([]byte, b.n)
	copy(out, b.data[:b.n])
	return out
}

func (b *Buffer) String() string { return string(b.data[:b.n]) }
