// Package console writes text through the kernel console driver.
//
// A write shares the bytes on allow slot 1 and subscribes slot 1; the
// subscription itself starts the transfer and the upcall reports the
// number of bytes written.
package console

import (
	"context"

	"libtock-go/allow"
	"libtock-go/call"
	"libtock-go/errcode"
	"libtock-go/kernel"
	"libtock-go/token"
)

const (
	allowWrite = 1
	subWritten = 1
)

// Written is the decoded completion of one write.
type Written struct{ Len int }

// Device writes to the kernel console. It implements io.Writer.
type Device struct {
	a *call.Adapter
	d kernel.Driver

	// Alloc backs the private copies made by Putnstr. Nil means heap.
	Alloc allow.Allocator
}

// New returns the console on driver d.
func New(a *call.Adapter, d kernel.Driver) *Device {
	return &Device{a: a, d: d}
}

// Putnstr copies the first n bytes of s and writes them, blocking until
// the console reports completion. The copy is freed once the write is
// done, so s may be reused as soon as Putnstr returns.
func (c *Device) Putnstr(ctx context.Context, s string, n int) (Written, error) {
	if n < 0 || n > len(s) {
		return Written{}, &errcode.E{C: errcode.InvalidParams, Op: "console.putnstr", Msg: "length out of range"}
	}
	return c.write(ctx, "console.putnstr", allow.Copy([]byte(s[:n]), c.Alloc))
}

// Putstr is Putnstr over the whole string.
func (c *Device) Putstr(ctx context.Context, s string) (Written, error) {
	return c.Putnstr(ctx, s, len(s))
}

// PutnstrAsync shares buf[:n] as is and returns at once. buf belongs to
// the kernel until the returned call is terminal. cb may be nil.
func (c *Device) PutnstrAsync(buf []byte, n int, cb func(Written)) (*call.Pending, error) {
	if n < 0 || n > len(buf) {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "console.putnstr_async", Msg: "length out of range"}
	}
	return c.a.Start(c.op("console.putnstr_async", allow.Borrow(buf[:n]), func(w Written) {
		if cb != nil {
			cb(w)
		}
	}))
}

// Write implements io.Writer.
func (c *Device) Write(p []byte) (int, error) {
	w, err := c.write(context.Background(), "console.write", allow.Copy(p, c.Alloc))
	if err != nil {
		return 0, err
	}
	return w.Len, nil
}

func (c *Device) write(ctx context.Context, name string, buf *allow.Buffer) (Written, error) {
	var w Written
	_, err := c.a.Do(ctx, c.op(name, buf, func(got Written) { w = got }))
	return w, err
}

func (c *Device) op(name string, buf *allow.Buffer, done func(Written)) call.Op {
	return call.Op{
		Name:      name,
		Driver:    c.d,
		Subscribe: subWritten,
		Token:     token.PutStr,
		Shares:    []call.Share{{Num: allowWrite, Buf: buf}},
		Decode:    func(r0, _, _ int) { done(Written{Len: r0}) },
	}
}
