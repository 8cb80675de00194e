package line

// Record is a detached copy of a rendered line, safe to keep after the
// buffer it came from has been released.
type Record struct {
	Seq       uint32
	Text      []byte
	Truncated bool
}

// Record copies the buffer contents into a Record.
func (b *Buffer) Record(seq uint32) Record {
	return Record{
		Seq:       seq,
		Text:      b.Snapshot(),
		Truncated: b.Truncated,
	}
}
