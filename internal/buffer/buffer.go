package buffer

// Buffer is an append-only arena hosting unrelated byte sequences (segments) in a single
// slice. A segment is written streamingly and completed by Finish. The total size is bounded,
// which makes it suitable for storing request heads whose size must be limited anyway.
//
// Slices returned by Finish stay valid until Clear is called. The memory is never reallocated
// past the initial capacity unless maxSize permits growing, in which case previously returned
// segments keep referring to the old memory, which is fine as they are read-only.
type Buffer struct {
	memory  []byte
	begin   int
	maxSize int
}

func New(initialSize, maxSize int) *Buffer {
	return &Buffer{
		memory:  make([]byte, 0, initialSize),
		maxSize: maxSize,
	}
}

// Append writes data, checking whether the new amount of elements (bytes) doesn't exceed the
// limit, otherwise discarding the data and returning false.
func (b *Buffer) Append(elements ...byte) (ok bool) {
	if len(b.memory)+len(elements) > b.maxSize {
		return false
	}

	b.memory = append(b.memory, elements...)
	return true
}

// SegmentLength returns a number of bytes, taken by current segment.
func (b *Buffer) SegmentLength() int {
	return len(b.memory) - b.begin
}

// Finish completes current segment, returning its value.
func (b *Buffer) Finish() []byte {
	segment := b.memory[b.begin:len(b.memory):len(b.memory)]
	b.begin = len(b.memory)

	return segment
}

// Clear resets the pointers, so old values may be overridden by new ones.
func (b *Buffer) Clear() {
	b.begin = 0
	b.memory = b.memory[:0]
}
