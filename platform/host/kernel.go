// Package host is an in-process kernel for tests and host binaries. It
// implements kernel.Kernel over simulated devices and delivers upcalls
// from a FIFO, one per Yield, on the yielding goroutine.
package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"libtock-go/kernel"
	"libtock-go/x/logx"
)

// Kind of a recorded syscall.
type Kind string

const (
	KindCommand     Kind = "command"
	KindSubscribe   Kind = "subscribe"
	KindUnsubscribe Kind = "unsubscribe"
	KindAllow       Kind = "allow"
	KindUnallow     Kind = "unallow"
)

// Call is one syscall as the kernel saw it. Arg is the command argument,
// or the buffer length for allow.
type Call struct {
	Kind   Kind
	Driver kernel.Driver
	Num    uint32
	Arg    int
}

func (c Call) String() string {
	return fmt.Sprintf("%s %d/%d %d", c.Kind, c.Driver, c.Num, c.Arg)
}

// Device is one simulated kernel driver. Methods are called without the
// kernel lock held, so a device may call back into its IO.
type Device interface {
	Attach(io *IO)
	Command(cmd uint32, arg int) int
	// Subscribe is told when a slot gains (on) or loses a registration.
	// A negative return refuses the registration.
	Subscribe(sub uint32, on bool) int
	// Allow validates a region before the kernel records it. buf is nil
	// on revocation.
	Allow(num uint32, buf []byte) int
}

type slotKey struct {
	d kernel.Driver
	n uint32
}

type delivery struct {
	key        slotKey
	r0, r1, r2 int
}

// Kernel is the simulated kernel. Syscalls and Notify are safe from any
// goroutine; Yield is meant for the single application goroutine.
type Kernel struct {
	log *zap.Logger

	mu     sync.Mutex
	devs   map[kernel.Driver]Device
	faults map[kernel.Driver]int
	subs   map[slotKey]kernel.Upcall
	allows map[slotKey][]byte
	q      *queue.Queue // of delivery
	calls  []Call

	wake chan struct{}
}

// New returns a kernel with no devices installed. log may be nil.
func New(log *zap.Logger) *Kernel {
	return &Kernel{
		log:    logx.OrNop(log).Named("host"),
		devs:   map[kernel.Driver]Device{},
		faults: map[kernel.Driver]int{},
		subs:   map[slotKey]kernel.Upcall{},
		allows: map[slotKey][]byte{},
		q:      queue.New(),
		wake:   make(chan struct{}, 1),
	}
}

// Install binds dev to driver number d. Installing twice panics.
func (k *Kernel) Install(d kernel.Driver, dev Device) {
	k.mu.Lock()
	if _, exists := k.devs[d]; exists {
		k.mu.Unlock()
		panic(fmt.Sprintf("host: driver %d already installed", d))
	}
	k.devs[d] = dev
	k.mu.Unlock()
	dev.Attach(&IO{k: k, d: d})
}

// Fault makes every syscall on d return status (negative) without
// reaching the device. Fault(d, 0) clears it.
func (k *Kernel) Fault(d kernel.Driver, status int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if status >= 0 {
		delete(k.faults, d)
		return
	}
	k.faults[d] = status
}

// Calls returns a copy of the syscall log.
func (k *Kernel) Calls() []Call {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]Call(nil), k.calls...)
}

// CallsTo returns the logged syscalls of one kind on d.
func (k *Kernel) CallsTo(d kernel.Driver, kind Kind) []Call {
	var out []Call
	for _, c := range k.Calls() {
		if c.Driver == d && c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Pending is the number of queued, undelivered upcalls.
func (k *Kernel) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.q.Length()
}

// enter logs c and returns the device, or the status to fail with.
func (k *Kernel) enter(c Call) (Device, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, c)
	if st, ok := k.faults[c.Driver]; ok {
		return nil, st
	}
	dev, ok := k.devs[c.Driver]
	if !ok {
		return nil, kernel.NoDevice
	}
	return dev, kernel.Success
}

// ----------------------------- kernel.Kernel ---------------------------------

func (k *Kernel) Command(d kernel.Driver, cmd uint32, arg int) int {
	dev, st := k.enter(Call{Kind: KindCommand, Driver: d, Num: cmd, Arg: arg})
	if dev == nil {
		return st
	}
	return dev.Command(cmd, arg)
}

func (k *Kernel) Subscribe(d kernel.Driver, sub uint32, fn kernel.Upcall) int {
	kind := KindSubscribe
	if fn == nil {
		kind = KindUnsubscribe
	}
	dev, st := k.enter(Call{Kind: kind, Driver: d, Num: sub})
	if dev == nil {
		return st
	}
	key := slotKey{d, sub}
	if fn == nil {
		k.mu.Lock()
		delete(k.subs, key)
		k.mu.Unlock()
		dev.Subscribe(sub, false)
		return kernel.Success
	}
	// Register first: a device may notify from inside Subscribe, and
	// deliveries resolve their upcall when they are dequeued.
	k.mu.Lock()
	prev := k.subs[key]
	k.subs[key] = fn
	k.mu.Unlock()
	if st := dev.Subscribe(sub, true); st < 0 {
		k.mu.Lock()
		if prev != nil {
			k.subs[key] = prev
		} else {
			delete(k.subs, key)
		}
		k.mu.Unlock()
		return st
	}
	return kernel.Success
}

func (k *Kernel) Allow(d kernel.Driver, num uint32, buf []byte) int {
	kind := KindAllow
	if buf == nil {
		kind = KindUnallow
	}
	dev, st := k.enter(Call{Kind: kind, Driver: d, Num: num, Arg: len(buf)})
	if dev == nil {
		return st
	}
	if st := dev.Allow(num, buf); st < 0 {
		return st
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if buf == nil {
		delete(k.allows, slotKey{d, num})
	} else {
		k.allows[slotKey{d, num}] = buf
	}
	return kernel.Success
}

func (k *Kernel) Yield(ctx context.Context) error {
	for {
		k.mu.Lock()
		for k.q.Length() > 0 {
			dl := k.q.Remove().(delivery)
			fn := k.subs[dl.key]
			if fn == nil {
				k.log.Debug("upcall dropped, slot not subscribed",
					zap.Uint32("driver", uint32(dl.key.d)), zap.Uint32("sub", dl.key.n))
				continue
			}
			k.mu.Unlock()
			fn(dl.r0, dl.r1, dl.r2)
			return nil
		}
		k.mu.Unlock()

		select {
		case <-k.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (k *Kernel) notify(key slotKey, r0, r1, r2 int) {
	k.mu.Lock()
	k.q.Add(delivery{key: key, r0: r0, r1: r1, r2: r2})
	k.mu.Unlock()
	select {
	case k.wake <- struct{}{}:
	default:
	}
}

// ----------------------------- device handle ---------------------------------

// IO is a device's handle on the kernel.
type IO struct {
	k *Kernel
	d kernel.Driver
}

// Notify queues an upcall on sub. Safe from any goroutine.
func (io *IO) Notify(sub uint32, r0, r1, r2 int) {
	io.k.notify(slotKey{io.d, sub}, r0, r1, r2)
}

// Buffer returns the region currently allowed on num, or nil.
func (io *IO) Buffer(num uint32) []byte {
	io.k.mu.Lock()
	defer io.k.mu.Unlock()
	return io.k.allows[slotKey{io.d, num}]
}

// Subscribed reports whether sub has a registration.
func (io *IO) Subscribed(sub uint32) bool {
	io.k.mu.Lock()
	defer io.k.mu.Unlock()
	return io.k.subs[slotKey{io.d, sub}] != nil
}
