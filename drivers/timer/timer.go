// Package timer registers for kernel timer upcalls. Firings surface
// through the adapter's completion log under token.Tick, so an
// application can block on them with WaitFor.
package timer

import (
	"context"

	"libtock-go/call"
	"libtock-go/kernel"
	"libtock-go/token"
)

const (
	subOneshot   = 0
	subRepeating = 1
)

// Device arms the kernel's one-shot and repeating timers.
type Device struct {
	a *call.Adapter
	d kernel.Driver
}

// New returns a timer on driver d.
func New(a *call.Adapter, d kernel.Driver) *Device { return &Device{a: a, d: d} }

// OneshotSubscribe arms the one-shot timer. cb runs inside the upcall
// and may be nil.
func (t *Device) OneshotSubscribe(cb kernel.Upcall) (int, error) {
	return t.a.Listen(t.d, subOneshot, token.Tick, orNop(cb))
}

// RepeatingSubscribe arms the periodic timer. cb runs on every firing
// and may be nil.
func (t *Device) RepeatingSubscribe(cb kernel.Upcall) (int, error) {
	return t.a.Listen(t.d, subRepeating, token.Tick, orNop(cb))
}

// Stop drops both registrations.
func (t *Device) Stop() {
	_, _ = t.a.Unlisten(t.d, subOneshot)
	_, _ = t.a.Unlisten(t.d, subRepeating)
}

// Sleep arms the one-shot timer and waits for that firing. Ticks already
// logged, and a callback set by OneshotSubscribe, are left alone.
func (t *Device) Sleep(ctx context.Context) error {
	_, err := t.a.Do(ctx, call.Op{
		Name:      "timer.sleep",
		Driver:    t.d,
		Subscribe: subOneshot,
		Token:     token.Tick,
	})
	return err
}

func orNop(cb kernel.Upcall) kernel.Upcall {
	if cb == nil {
		return func(int, int, int) {}
	}
	return cb
}
