package tmp006

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

const drv kernel.Driver = 3

func setup(t *testing.T, vals ...int16) (*Device, *host.Temperature, *host.Kernel) {
	t.Helper()
	k := host.New(nil)
	s := host.NewTemperature(vals...)
	k.Install(drv, s)
	a := call.New(k, call.Options{WaitTimeout: time.Second})
	return New(a, drv), s, k
}

func TestEnableTwiceSameStatus(t *testing.T) {
	d, _, _ := setup(t)
	st1, err := d.Enable()
	require.NoError(t, err)
	st2, err := d.Enable()
	require.NoError(t, err)
	assert.Equal(t, st1, st2)
	assert.GreaterOrEqual(t, st1, 0)
}

func TestSequentialReadsAreFresh(t *testing.T) {
	d, s, _ := setup(t, 21)
	_, err := d.Enable()
	require.NoError(t, err)

	r, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int16(21), r.Value)

	s.Push(-4)
	r, err = d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int16(-4), r.Value)
}

func TestAbsentDevice(t *testing.T) {
	d, _, k := setup(t, 30)
	k.Fault(drv, -1)

	st, err := d.Enable()
	assert.Equal(t, -1, st)
	assert.Equal(t, -1, errcode.StatusOf(err))
	assert.Empty(t, k.CallsTo(drv, host.KindSubscribe))
}

func TestReadRejectedLeavesResultUntouched(t *testing.T) {
	d, _, k := setup(t, 30)
	// Not enabled: the device refuses the read subscription.
	r, err := d.Read(context.Background())
	require.Error(t, err)
	assert.Equal(t, errcode.Off, errcode.Of(err))
	assert.Equal(t, Reading{}, r)
	assert.Len(t, k.CallsTo(drv, host.KindSubscribe), 1)
}

func TestReadAsync(t *testing.T) {
	d, _, _ := setup(t, 18)
	_, err := d.Enable()
	require.NoError(t, err)

	var got Reading
	p, err := d.ReadAsync(func(r Reading) { got = r })
	require.NoError(t, err)
	require.NoError(t, d.a.WaitFor(context.Background(), token.ReadTemp))
	assert.True(t, p.Done())
	assert.Equal(t, int16(18), got.Value)
}

func TestSensorUpdate(t *testing.T) {
	d, _, _ := setup(t, 25)
	_, err := d.Enable()
	require.NoError(t, err)

	var s drivers.Sensor = d
	require.NoError(t, s.Update(drivers.Acceleration))
	assert.Equal(t, int32(0), d.Temperature(), "unrelated measurement does not read")

	require.NoError(t, s.Update(drivers.Temperature))
	assert.Equal(t, int32(25000), d.Temperature())
}
