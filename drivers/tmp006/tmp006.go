// Package tmp006 reads the TMP006 die temperature through the kernel
// temperature driver: command 0 enables the sensor and subscribing slot 0
// starts a read.
package tmp006

import (
	"context"

	"tinygo.org/x/drivers"

	"libtock-go/call"
	"libtock-go/kernel"
	"libtock-go/token"
)

const (
	cmdEnable = 0
	subRead   = 0
)

// Reading is one decoded sample, in the kernel's whole degrees Celsius.
type Reading struct{ Value int16 }

// Device wraps the kernel TMP006 temperature driver.
type Device struct {
	a *call.Adapter
	d kernel.Driver

	last Reading
}

// New returns the sensor on driver d.
func New(a *call.Adapter, d kernel.Driver) *Device { return &Device{a: a, d: d} }

// Enable powers the sensor. Enabling twice returns the same status.
func (s *Device) Enable() (int, error) {
	return s.a.Command("tmp006.enable", s.d, cmdEnable, 0)
}

// Read blocks until one sample arrives. On error the result is zero.
func (s *Device) Read(ctx context.Context) (Reading, error) {
	var r Reading
	if _, err := s.a.Do(ctx, s.op("tmp006.read", func(got Reading) { r = got })); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// ReadAsync starts a read and returns at once; cb runs inside the upcall
// and may be nil.
func (s *Device) ReadAsync(cb func(Reading)) (*call.Pending, error) {
	return s.a.Start(s.op("tmp006.read_async", func(r Reading) {
		if cb != nil {
			cb(r)
		}
	}))
}

func (s *Device) op(name string, done func(Reading)) call.Op {
	return call.Op{
		Name:      name,
		Driver:    s.d,
		Subscribe: subRead,
		Token:     token.ReadTemp,
		Decode:    func(r0, _, _ int) { done(Reading{Value: int16(r0)}) },
	}
}

// Update implements drivers.Sensor.
func (s *Device) Update(which drivers.Measurement) error {
	if which&drivers.Temperature == 0 {
		return nil
	}
	r, err := s.Read(context.Background())
	if err != nil {
		return err
	}
	s.last = r
	return nil
}

// Temperature returns the last updated sample in milli-degrees Celsius.
func (s *Device) Temperature() int32 { return int32(s.last.Value) * 1000 }
