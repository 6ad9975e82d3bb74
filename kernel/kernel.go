// Package kernel describes the syscall boundary consumed by userland
// drivers: command, subscribe, allow, and a blocking yield that delivers
// one upcall at a time on the calling goroutine.
//
// The kernel is the single source of truth for device numbering and
// command semantics; nothing in this package implements it.
package kernel

import "context"

// Driver names a kernel-resident driver instance.
type Driver uint32

// Upcall is invoked by the kernel, from inside Yield, with up to three
// result registers. User data travels in the closure.
type Upcall func(r0, r1, r2 int)

// Return values shared by all syscalls. Negative values are failures.
const (
	Success     = 0
	Fail        = -1
	Busy        = -2
	Already     = -3
	Off         = -4
	Reserve     = -5
	Invalid     = -6
	Size        = -7
	Cancel      = -8
	NoMem       = -9
	NoSupport   = -10
	NoDevice    = -11
	Uninstalled = -12
	NoAck       = -13
)

// Kernel is the raw syscall surface.
//
// Subscribe with a nil upcall drops any registration for the slot; Allow
// with a nil buffer revokes a previously shared region. A new Subscribe
// or Allow on the same slot replaces the previous one.
type Kernel interface {
	Command(d Driver, cmd uint32, arg int) int
	Subscribe(d Driver, sub uint32, fn Upcall) int
	Allow(d Driver, num uint32, buf []byte) int

	// Yield blocks until one pending upcall has been delivered and has
	// returned. It returns ctx.Err() if ctx ends first.
	Yield(ctx context.Context) error
}
