// Package allow governs memory handed to the kernel with the allow
// syscall.
//
// A Buffer is a move-only handle: once given to a call it is lent to the
// kernel, and the application gets it back only after the call's
// completion has been observed. Owned copies (Copy) are freed by the call
// adapter exactly once, right after their upcall ran; borrowed regions
// (Borrow) are never copied or freed.
package allow

import "libtock-go/errcode"

// Allocator backs owned copies.
type Allocator interface {
	Alloc(n int) []byte
	Free(b []byte)
}

type heap struct{}

// Alloc never returns nil, so an empty copy still shares a (zero-length)
// region instead of revoking.
func (heap) Alloc(n int) []byte { return make([]byte, n) }
func (heap) Free([]byte)        {}

// Heap leaves reclamation to the garbage collector.
var Heap Allocator = heap{}

// State of a Buffer.
type State uint8

const (
	Idle     State = iota // never shared
	Shared                // kernel may read or write it
	Returned              // completion observed, back with the application
	Freed                 // released; unusable
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Shared:
		return "shared"
	case Returned:
		return "returned"
	case Freed:
		return "freed"
	default:
		return "unknown"
	}
}

// Buffer is a region that can be lent to the kernel through an allow
// slot, together with who owns it and whether the kernel holds it.
type Buffer struct {
	b     []byte
	alloc Allocator // nil for borrowed regions
	state State
}

// Borrow wraps caller-owned memory. The caller keeps it valid and
// untouched until the call using it completes.
func Borrow(b []byte) *Buffer {
	if b == nil {
		b = []byte{}
	}
	return &Buffer{b: b}
}

// Copy allocates a private copy of src from a (Heap when nil).
func Copy(src []byte, a Allocator) *Buffer {
	if a == nil {
		a = Heap
	}
	b := a.Alloc(len(src))
	copy(b, src)
	return &Buffer{b: b, alloc: a}
}

// Len is the size of the region.
func (b *Buffer) Len() int { return len(b.b) }

// Owned reports whether the buffer is a private copy released on completion.
func (b *Buffer) Owned() bool { return b.alloc != nil }

// State is where the buffer is in its share lifecycle.
func (b *Buffer) State() State { return b.state }

// Bytes exposes the region to the application. It is nil while the
// kernel holds the buffer and after release.
func (b *Buffer) Bytes() []byte {
	if b.state == Shared || b.state == Freed {
		return nil
	}
	return b.b
}

// Lend marks the buffer as shared and returns the region for the allow
// syscall.
func (b *Buffer) Lend() ([]byte, error) {
	switch b.state {
	case Shared:
		return nil, errcode.StillShared
	case Freed:
		return nil, errcode.Released
	}
	b.state = Shared
	return b.b, nil
}

// Reclaim hands a shared buffer back to the application. It is called
// once the completion for the call is observed, or after the kernel
// refused or had the region revoked.
func (b *Buffer) Reclaim() {
	if b.state == Shared {
		b.state = Returned
	}
}

// Release gives the memory up. Owned copies go back to their allocator.
func (b *Buffer) Release() error {
	switch b.state {
	case Shared:
		return errcode.StillShared
	case Freed:
		return errcode.Released
	}
	if b.alloc != nil {
		b.alloc.Free(b.b)
	}
	b.b = nil
	b.state = Freed
	return nil
}
