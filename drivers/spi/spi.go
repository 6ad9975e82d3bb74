// Package spi is a userland SPI master over the kernel SPI driver.
//
//	command 0        write one byte
//	command 1, n     clock n bytes of the write region
//	allow 0 / 1      read (rx) / write (tx) region
//	subscribe 0      transfer done, r0 = length
//
// Bus implements tinygo's drivers.SPI, so existing tinygo device drivers
// run unchanged on top of the kernel.
package spi

import (
	"context"

	"tinygo.org/x/drivers"

	"libtock-go/allow"
	"libtock-go/call"
	"libtock-go/errcode"
	"libtock-go/kernel"
	"libtock-go/token"
	"libtock-go/x/mathx"
)

const (
	cmdWriteByte = 0
	cmdTransfer  = 1

	allowRead  = 0
	allowWrite = 1

	subDone = 0
)

// Completion is the decoded end of one transfer.
type Completion struct{ Len int }

// Bus is the SPI master on one kernel driver.
type Bus struct {
	a *call.Adapter
	d kernel.Driver
}

var _ drivers.SPI = (*Bus)(nil)

// New returns the bus on driver d.
func New(a *call.Adapter, d kernel.Driver) *Bus { return &Bus{a: a, d: d} }

// WriteByte clocks out one byte. A rejection carries the kernel status
// (errcode.StatusOf).
func (s *Bus) WriteByte(b byte) error {
	_, err := s.a.Command("spi.write_byte", s.d, cmdWriteByte, int(b))
	return err
}

// ReadBuf shares buf as the receive region for later writes. It stays
// shared until a ReadWrite replaces it or Unshare is called.
func (s *Bus) ReadBuf(buf []byte) (int, error) {
	return s.a.Share(s.d, allowRead, allow.Borrow(buf))
}

// Unshare hands back the region given to ReadBuf.
func (s *Bus) Unshare() (int, error) { return s.a.Unshare(s.d, allowRead) }

// WriteAsync clocks out tx[:n] and returns at once. tx belongs to the
// kernel until the call is terminal. cb may be nil.
func (s *Bus) WriteAsync(tx []byte, n int, cb func(Completion)) (*call.Pending, error) {
	op, err := s.op("spi.write_async", tx, nil, n, cb)
	if err != nil {
		return nil, err
	}
	return s.a.Start(op)
}

// ReadWriteAsync clocks out tx[:n] while filling rx[:n], returning at
// once. Both regions stay shared for the whole exchange.
func (s *Bus) ReadWriteAsync(tx, rx []byte, n int, cb func(Completion)) (*call.Pending, error) {
	if rx == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "spi.read_write_async", Msg: "nil read buffer"}
	}
	op, err := s.op("spi.read_write_async", tx, rx, n, cb)
	if err != nil {
		return nil, err
	}
	return s.a.Start(op)
}

// BlockWrite clocks out tx[:n] and waits for the transfer to finish.
func (s *Bus) BlockWrite(ctx context.Context, tx []byte, n int) (Completion, error) {
	return s.do(ctx, "spi.block_write", tx, nil, n)
}

// ReadWrite is the blocking form of ReadWriteAsync.
func (s *Bus) ReadWrite(ctx context.Context, tx, rx []byte, n int) (Completion, error) {
	if rx == nil {
		return Completion{}, &errcode.E{C: errcode.InvalidParams, Op: "spi.read_write", Msg: "nil read buffer"}
	}
	return s.do(ctx, "spi.read_write", tx, rx, n)
}

func (s *Bus) do(ctx context.Context, name string, tx, rx []byte, n int) (Completion, error) {
	var c Completion
	op, err := s.op(name, tx, rx, n, func(got Completion) { c = got })
	if err != nil {
		return Completion{}, err
	}
	if _, err := s.a.Do(ctx, op); err != nil {
		return Completion{}, err
	}
	return c, nil
}

func (s *Bus) op(name string, tx, rx []byte, n int, cb func(Completion)) (call.Op, error) {
	if n < 0 || n > len(tx) || (rx != nil && n > len(rx)) {
		return call.Op{}, &errcode.E{C: errcode.InvalidParams, Op: name, Msg: "length out of range"}
	}
	var shares []call.Share
	if rx != nil {
		shares = append(shares, call.Share{Num: allowRead, Buf: allow.Borrow(rx[:n])})
	}
	shares = append(shares, call.Share{Num: allowWrite, Buf: allow.Borrow(tx[:n])})
	return call.Op{
		Name:      name,
		Driver:    s.d,
		Subscribe: subDone,
		Token:     token.Async,
		Shares:    shares,
		Command:   call.Cmd(cmdTransfer, n),
		Decode: func(r0, _, _ int) {
			if cb != nil {
				cb(Completion{Len: r0})
			}
		},
	}, nil
}

// -----------------------------------------------------------------------------
// tinygo drivers.SPI
// -----------------------------------------------------------------------------

// Tx writes w and reads into r in one exchange. The shorter side is
// padded with zeros (tx) or discarded (rx).
func (s *Bus) Tx(w, r []byte) error {
	n := mathx.Max(len(w), len(r))
	if n == 0 {
		return nil
	}
	tx := w
	if len(tx) < n {
		tx = make([]byte, n)
		copy(tx, w)
	}
	ctx := context.Background()
	if r == nil {
		_, err := s.BlockWrite(ctx, tx, n)
		return err
	}
	rx := r
	if len(rx) < n {
		rx = make([]byte, n)
	}
	if _, err := s.ReadWrite(ctx, tx, rx, n); err != nil {
		return err
	}
	if len(r) < n {
		copy(r, rx)
	}
	return nil
}

// Transfer exchanges a single byte.
func (s *Bus) Transfer(b byte) (byte, error) {
	var in [1]byte
	if err := s.Tx([]byte{b}, in[:]); err != nil {
		return 0, err
	}
	return in[0], nil
}
