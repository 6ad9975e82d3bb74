package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libtock-go/call"
	"libtock-go/errcode"
	"libtock-go/kernel"
	"libtock-go/platform/host"
	"libtock-go/token"
)

const drv kernel.Driver = 2

func setup(t *testing.T, every time.Duration) (*Device, *call.Adapter) {
	t.Helper()
	k := host.New(nil)
	tm := host.NewTimer(every)
	k.Install(drv, tm)
	t.Cleanup(tm.Close)
	a := call.New(k, call.Options{WaitTimeout: time.Second})
	return New(a, drv), a
}

func TestRepeatingSubscribeTicks(t *testing.T) {
	d, a := setup(t, 2*time.Millisecond)

	var seen []int
	_, err := d.RepeatingSubscribe(func(n, _, _ int) { seen = append(seen, n) })
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, a.WaitFor(context.Background(), token.Tick))
	}
	d.Stop()
	assert.Equal(t, []int{1, 2, 3}, seen[:3])
}

func TestOneshotSubscribe(t *testing.T) {
	d, a := setup(t, time.Millisecond)

	fired := 0
	_, err := d.OneshotSubscribe(func(int, int, int) { fired++ })
	require.NoError(t, err)
	tok, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token.Tick, tok)
	assert.Equal(t, 1, fired)
}

func TestSleep(t *testing.T) {
	d, _ := setup(t, 5*time.Millisecond)
	start := time.Now()
	require.NoError(t, d.Sleep(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestSleepIgnoresLoggedTick(t *testing.T) {
	const every = 20 * time.Millisecond
	d, a := setup(t, every)

	_, err := d.RepeatingSubscribe(nil)
	require.NoError(t, err)
	require.NoError(t, a.Kernel().Yield(context.Background()))
	d.Stop()
	require.Equal(t, 1, a.Logged())

	start := time.Now()
	require.NoError(t, d.Sleep(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), every)
	assert.Equal(t, 1, a.Logged(), "earlier tick is still there for WaitFor")
	require.NoError(t, a.WaitFor(context.Background(), token.Tick))
}

func TestSleepKeepsOneshotCallback(t *testing.T) {
	d, a := setup(t, 2*time.Millisecond)
	k := a.Kernel().(*host.Kernel)

	_, err := d.OneshotSubscribe(func(int, int, int) {})
	require.NoError(t, err)
	require.NoError(t, d.Sleep(context.Background()))
	assert.Empty(t, k.CallsTo(drv, host.KindUnsubscribe), "listener registration survives the sleep")
	assert.Equal(t, 0, a.InFlight())
}

func TestSleepTimesOut(t *testing.T) {
	d, _ := setup(t, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := d.Sleep(ctx)
	assert.Equal(t, errcode.Timeout, errcode.Of(err))
}

func TestSubscribeOnMissingTimer(t *testing.T) {
	a := call.New(host.New(nil), call.Options{})
	st, err := New(a, drv).RepeatingSubscribe(nil)
	assert.Equal(t, kernel.NoDevice, st)
	assert.Error(t, err)
}
