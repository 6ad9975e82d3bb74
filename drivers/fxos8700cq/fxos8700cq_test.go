package fxos8700cq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers"

	"libtock-go/call"
	"libtock-go/errcode"
	"libtock-go/kernel"
	"libtock-go/platform/host"
	"libtock-go/token"
)

const drv kernel.Driver = 4

func setup(t *testing.T) (*Device, *host.Motion, *host.Kernel) {
	t.Helper()
	k := host.New(nil)
	m := host.NewMotion()
	k.Install(drv, m)
	a := call.New(k, call.Options{WaitTimeout: time.Second})
	return New(a, drv), m, k
}

func TestDecodeOrder(t *testing.T) {
	assert.Equal(t, Vector{100, -200, 300}, decode(100, -200, 300))
}

func TestAccelRead(t *testing.T) {
	d, m, _ := setup(t)
	_, err := d.AccelEnable()
	require.NoError(t, err)

	m.SetAccel(host.Vec3{X: 100, Y: -200, Z: 300})
	v, err := d.AccelRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Vector{100, -200, 300}, v)
}

func TestMagnetRead(t *testing.T) {
	d, m, _ := setup(t)
	_, err := d.MagnetEnable()
	require.NoError(t, err)

	m.SetMagnet(host.Vec3{X: 100, Y: -200, Z: 300})
	v, err := d.MagnetRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Vector{100, -200, 300}, v)
}

func TestEnableTwiceSameStatus(t *testing.T) {
	d, _, _ := setup(t)
	a1, err := d.AccelEnable()
	require.NoError(t, err)
	a2, err := d.AccelEnable()
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	m1, err := d.MagnetEnable()
	require.NoError(t, err)
	m2, err := d.MagnetEnable()
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}

func TestAbsentDevice(t *testing.T) {
	d, _, k := setup(t)
	k.Fault(drv, -1)

	st, err := d.AccelEnable()
	assert.Equal(t, -1, st)
	assert.Equal(t, -1, errcode.StatusOf(err))
	assert.Empty(t, k.CallsTo(drv, host.KindSubscribe))
}

func TestReadWithoutEnable(t *testing.T) {
	d, _, _ := setup(t)
	v, err := d.MagnetRead(context.Background())
	assert.Equal(t, errcode.Off, errcode.Of(err))
	assert.Equal(t, Vector{}, v)
}

func TestAsyncReadsCorrelate(t *testing.T) {
	d, m, _ := setup(t)
	_, err := d.AccelEnable()
	require.NoError(t, err)
	_, err = d.MagnetEnable()
	require.NoError(t, err)

	m.SetAccel(host.Vec3{X: 1, Y: 2, Z: 3})
	m.SetMagnet(host.Vec3{X: 4, Y: 5, Z: 6})

	var acc, mag Vector
	_, err = d.AccelReadAsync(func(v Vector) { acc = v })
	require.NoError(t, err)
	_, err = d.MagnetReadAsync(func(v Vector) { mag = v })
	require.NoError(t, err)

	require.NoError(t, d.a.WaitFor(context.Background(), token.ReadMagnet))
	require.NoError(t, d.a.WaitFor(context.Background(), token.ReadAccel))
	assert.Equal(t, Vector{1, 2, 3}, acc)
	assert.Equal(t, Vector{4, 5, 6}, mag)
}

func TestSensorUpdate(t *testing.T) {
	d, m, _ := setup(t)
	_, err := d.AccelEnable()
	require.NoError(t, err)
	_, err = d.MagnetEnable()
	require.NoError(t, err)
	m.SetAccel(host.Vec3{X: 10, Y: 20, Z: 30})
	m.SetMagnet(host.Vec3{X: -1, Y: -2, Z: -3})

	var s drivers.Sensor = d
	require.NoError(t, s.Update(drivers.Acceleration|drivers.MagneticField))

	x, y, z := d.Acceleration()
	assert.Equal(t, []int32{10, 20, 30}, []int32{x, y, z})
	x, y, z = d.MagneticField()
	assert.Equal(t, []int32{-1, -2, -3}, []int32{x, y, z})
}
