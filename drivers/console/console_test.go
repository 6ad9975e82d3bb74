package console

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libtock-go/allow"
	"libtock-go/call"
	"libtock-go/errcode"
	"libtock-go/kernel"
	"libtock-go/platform/host"
	"libtock-go/token"
)

const drv kernel.Driver = 0

type countingAlloc struct{ allocs, frees int }

func (c *countingAlloc) Alloc(n int) []byte { c.allocs++; return make([]byte, n) }
func (c *countingAlloc) Free([]byte)        { c.frees++ }

func setup(t *testing.T) (*Device, *host.Kernel, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	k := host.New(nil)
	k.Install(drv, host.NewConsole(&out))
	a := call.New(k, call.Options{WaitTimeout: time.Second})
	return New(a, drv), k, &out
}

func TestPutstr(t *testing.T) {
	c, k, out := setup(t)
	w, err := c.Putstr(context.Background(), "Hello\n")
	require.NoError(t, err)
	assert.Equal(t, 6, w.Len)
	assert.Equal(t, "Hello\n", out.String())

	// Region and registration are both dropped once the write completed.
	var kinds []host.Kind
	for _, sc := range k.Calls() {
		kinds = append(kinds, sc.Kind)
	}
	assert.Equal(t, []host.Kind{host.KindAllow, host.KindSubscribe, host.KindUnallow, host.KindUnsubscribe}, kinds)
}

func TestPutnstrCopiesAndFreesOnce(t *testing.T) {
	for _, tc := range []struct {
		name string
		s    string
		n    int
	}{
		{"prefix", "abcdef", 3},
		{"empty", "", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, _, out := setup(t)
			alloc := &countingAlloc{}
			c.Alloc = alloc

			w, err := c.Putnstr(context.Background(), tc.s, tc.n)
			require.NoError(t, err)
			assert.Equal(t, tc.n, w.Len)
			assert.Equal(t, tc.s[:tc.n], out.String())
			assert.Equal(t, 1, alloc.allocs)
			assert.Equal(t, 1, alloc.frees)
		})
	}
}

func TestPutnstrLengthOutOfRange(t *testing.T) {
	c, k, _ := setup(t)
	_, err := c.Putnstr(context.Background(), "ab", 3)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	assert.Empty(t, k.Calls())
}

func TestPutstrOnMissingConsole(t *testing.T) {
	k := host.New(nil)
	a := call.New(k, call.Options{})
	alloc := &countingAlloc{}
	c := New(a, drv)
	c.Alloc = alloc

	_, err := c.Putstr(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, kernel.NoDevice, errcode.StatusOf(err))
	assert.Equal(t, 1, alloc.frees, "copy freed even though the kernel refused it")
}

func TestPutnstrAsyncCompletesThroughWaitFor(t *testing.T) {
	c, _, out := setup(t)
	buf := []byte("async!")

	var got Written
	p, err := c.PutnstrAsync(buf, 5, func(w Written) { got = w })
	require.NoError(t, err)
	assert.Equal(t, call.Waiting, p.State())

	require.NoError(t, c.a.WaitFor(context.Background(), token.PutStr))
	assert.Equal(t, 5, got.Len)
	assert.Equal(t, "async", out.String())
	assert.Equal(t, allow.Returned, p.Buffers()[0].State())
}

func TestWriteImplementsWriter(t *testing.T) {
	c, _, out := setup(t)
	n, err := c.Write([]byte("via io.Writer"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, "via io.Writer", out.String())
}
