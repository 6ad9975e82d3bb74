// Package fxos8700cq reads the FXOS8700CQ accelerometer and magnetometer
// through the kernel driver. The two halves are enabled and read
// separately:
//
//	command 1 / subscribe 1   accelerometer
//	command 2 / subscribe 2   magnetometer
//
// Subscribing starts the read; the upcall carries x, y, z in r0, r1, r2.
package fxos8700cq

import (
	"context"

	"tinygo.org/x/drivers"

	"libtock-go/call"
	"libtock-go/kernel"
	"libtock-go/token"
)

const (
	cmdAccelEnable  = 1
	cmdMagnetEnable = 2
	subAccel        = 1
	subMagnet       = 2
)

// Vector is one three-axis sample in raw sensor counts.
type Vector struct{ X, Y, Z int16 }

func decode(r0, r1, r2 int) Vector {
	return Vector{X: int16(r0), Y: int16(r1), Z: int16(r2)}
}

// Device wraps the kernel FXOS8700CQ driver: an accelerometer and a
// magnetometer read one sample per call.
type Device struct {
	a *call.Adapter
	d kernel.Driver

	accel, magnet Vector
}

// New returns the sensor on driver d. Both halves start disabled.
func New(a *call.Adapter, d kernel.Driver) *Device { return &Device{a: a, d: d} }

// -----------------------------------------------------------------------------
// Accelerometer
// -----------------------------------------------------------------------------

func (m *Device) AccelEnable() (int, error) {
	return m.a.Command("fxos8700cq.accel_enable", m.d, cmdAccelEnable, 0)
}

// AccelRead blocks until one accelerometer sample arrives.
func (m *Device) AccelRead(ctx context.Context) (Vector, error) {
	return m.read(ctx, "fxos8700cq.accel_read", subAccel, token.ReadAccel)
}

// AccelReadAsync starts an accelerometer read; cb may be nil.
func (m *Device) AccelReadAsync(cb func(Vector)) (*call.Pending, error) {
	return m.a.Start(m.op("fxos8700cq.accel_read_async", subAccel, token.ReadAccel, cb))
}

// -----------------------------------------------------------------------------
// Magnetometer
// -----------------------------------------------------------------------------

func (m *Device) MagnetEnable() (int, error) {
	return m.a.Command("fxos8700cq.magnet_enable", m.d, cmdMagnetEnable, 0)
}

// MagnetRead blocks until one magnetometer sample arrives.
func (m *Device) MagnetRead(ctx context.Context) (Vector, error) {
	return m.read(ctx, "fxos8700cq.magnet_read", subMagnet, token.ReadMagnet)
}

// MagnetReadAsync starts a magnetometer read; cb may be nil.
func (m *Device) MagnetReadAsync(cb func(Vector)) (*call.Pending, error) {
	return m.a.Start(m.op("fxos8700cq.magnet_read_async", subMagnet, token.ReadMagnet, cb))
}

// -----------------------------------------------------------------------------

func (m *Device) read(ctx context.Context, name string, sub uint32, tok token.Token) (Vector, error) {
	var v Vector
	if _, err := m.a.Do(ctx, m.op(name, sub, tok, func(got Vector) { v = got })); err != nil {
		return Vector{}, err
	}
	return v, nil
}

func (m *Device) op(name string, sub uint32, tok token.Token, cb func(Vector)) call.Op {
	return call.Op{
		Name:      name,
		Driver:    m.d,
		Subscribe: sub,
		Token:     tok,
		Decode: func(r0, r1, r2 int) {
			if cb != nil {
				cb(decode(r0, r1, r2))
			}
		},
	}
}

// Update implements drivers.Sensor for drivers.Acceleration and
// drivers.MagneticField.
func (m *Device) Update(which drivers.Measurement) error {
	ctx := context.Background()
	if which&drivers.Acceleration != 0 {
		v, err := m.AccelRead(ctx)
		if err != nil {
			return err
		}
		m.accel = v
	}
	if which&drivers.MagneticField != 0 {
		v, err := m.MagnetRead(ctx)
		if err != nil {
			return err
		}
		m.magnet = v
	}
	return nil
}

// Acceleration returns the last updated accelerometer sample, in counts.
func (m *Device) Acceleration() (x, y, z int32) {
	return int32(m.accel.X), int32(m.accel.Y), int32(m.accel.Z)
}

// MagneticField returns the last updated magnetometer sample, in counts.
func (m *Device) MagneticField() (x, y, z int32) {
	return int32(m.magnet.X), int32(m.magnet.Y), int32(m.magnet.Z)
}
