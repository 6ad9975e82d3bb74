// Package call turns the kernel's subscribe/allow/command + yield surface
// into blocking per-device operations.
//
// Every operation gets its own Pending state object with a unique id. The
// adapter owns the kernel registration for each (driver, subscribe) slot
// and hands upcalls to that slot's pending calls in the order they were
// started, so a wait is satisfied by its own completion and never by a
// sibling call that shares the same token.
//
// Upcalls run on the goroutine that is inside Await, Wait or WaitFor. The
// adapter is not safe for concurrent use; one application thread drives it.
package call

import (
	"context"
	"errors"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"libtock-go/allow"
	"libtock-go/config"
	"libtock-go/errcode"
	"libtock-go/kernel"
	"libtock-go/token"
	"libtock-go/x/logx"
	"libtock-go/x/timex"
)

const defaultCompletionLog = 8

// Options tune an Adapter. The zero value blocks forever and keeps eight
// unawaited completions.
type Options struct {
	WaitTimeout   time.Duration
	CompletionLog int
	Logger        *zap.Logger
}

// OptionsFrom maps loaded configuration onto adapter options.
func OptionsFrom(c config.Options, l *zap.Logger) Options {
	return Options{WaitTimeout: c.WaitTimeout, CompletionLog: c.CompletionLog, Logger: l}
}

type slotKey struct {
	d kernel.Driver
	n uint32
}

// slot is the adapter's view of one subscribe slot.
type slot struct {
	fifo   []*Pending    // started, not yet completed, in start order
	listen kernel.Upcall // persistent registration (timers)
	tok    token.Token   // token recorded for listener upcalls
	armed  bool          // dispatcher registered with the kernel
}

func (s *slot) remove(p *Pending) {
	for i, q := range s.fifo {
		if q == p {
			copy(s.fifo[i:], s.fifo[i+1:])
			s.fifo[len(s.fifo)-1] = nil
			s.fifo = s.fifo[:len(s.fifo)-1]
			return
		}
	}
}

// lease records who holds an allow slot. id 0 is a standing share.
type lease struct {
	id  uint32
	buf *allow.Buffer
}

// Adapter drives one kernel on behalf of every userland driver.
type Adapter struct {
	k       kernel.Kernel
	log     *zap.Logger
	timeout time.Duration
	logCap  int

	nextID uint32
	slots  map[slotKey]*slot
	lent   map[slotKey]lease
	done   *queue.Queue // token.Completion of calls nobody awaited

	inUpcall bool
}

// New returns an adapter over k. Nothing is registered with the kernel
// until the first call starts.
func New(k kernel.Kernel, o Options) *Adapter {
	if o.CompletionLog <= 0 {
		o.CompletionLog = defaultCompletionLog
	}
	if o.WaitTimeout < 0 {
		o.WaitTimeout = 0
	}
	return &Adapter{
		k:       k,
		log:     logx.OrNop(o.Logger).Named("call"),
		timeout: o.WaitTimeout,
		logCap:  o.CompletionLog,
		slots:   map[slotKey]*slot{},
		lent:    map[slotKey]lease{},
		done:    queue.New(),
	}
}

// Kernel returns the syscall surface the adapter drives.
func (a *Adapter) Kernel() kernel.Kernel { return a.k }

// InFlight is the number of started calls that have not completed.
func (a *Adapter) InFlight() int {
	n := 0
	for _, s := range a.slots {
		n += len(s.fifo)
	}
	return n
}

// Logged is the number of completions waiting to be reported by Wait.
func (a *Adapter) Logged() int { return a.done.Length() }

// -----------------------------------------------------------------------------
// One-shot commands
// -----------------------------------------------------------------------------

// Command issues a command that completes immediately. It returns the
// kernel's value, and for negative values an error carrying it.
func (a *Adapter) Command(name string, d kernel.Driver, cmd uint32, arg int) (int, error) {
	st := a.k.Command(d, cmd, arg)
	if st < 0 {
		a.log.Warn("command rejected", zap.String("op", name), zap.Uint32("driver", uint32(d)), zap.Int("status", st))
	}
	return st, errcode.FromStatus(name, st)
}

// -----------------------------------------------------------------------------
// Asynchronous start
// -----------------------------------------------------------------------------

// Start shares op's buffers, subscribes its upcall and issues its command,
// then returns without blocking. Every allow happens before the subscribe
// and the command. If the kernel rejects any step the call never enters
// the waiting state: shared buffers are revoked and handed back, owned
// copies are freed, Decode never runs, and the error carries the status.
func (a *Adapter) Start(op Op) (*Pending, error) {
	if a.inUpcall {
		return nil, &errcode.E{C: errcode.Reentrant, Op: op.Name}
	}
	if err := a.checkShares(op); err != nil {
		return nil, err
	}
	p := &Pending{id: a.newID(), op: op}

	for i, sh := range op.Shares {
		key := slotKey{op.Driver, sh.Num}
		region, err := sh.Buf.Lend()
		if err != nil {
			return nil, a.fail(p, &errcode.E{C: errcode.Of(err), Op: op.Name + ".allow", Err: err})
		}
		if st := a.k.Allow(op.Driver, sh.Num, region); st < 0 {
			sh.Buf.Reclaim()
			return nil, a.fail(p, errcode.FromStatus(op.Name+".allow", st))
		}
		a.replace(key, lease{id: p.id, buf: sh.Buf})
		p.lent = i + 1
	}

	key := slotKey{op.Driver, op.Subscribe}
	s := a.slot(key)
	s.fifo = append(s.fifo, p)
	st := a.k.Subscribe(op.Driver, op.Subscribe, a.upcall(key))
	if st < 0 {
		s.remove(p)
		a.idle(key, s)
		return nil, a.fail(p, errcode.FromStatus(op.Name+".subscribe", st))
	}
	s.armed = true
	p.state = Subscribed
	p.status = st

	if c := op.Command; c != nil {
		p.state = AwaitingAck
		st = a.k.Command(op.Driver, c.Num, c.Arg)
		if st < 0 {
			s.remove(p)
			a.idle(key, s)
			return nil, a.fail(p, errcode.FromStatus(op.Name+".command", st))
		}
		p.status = st
	}
	p.state = Waiting
	a.log.Debug("call started",
		zap.Uint32("id", p.id),
		zap.String("op", op.Name),
		zap.Stringer("token", op.Token),
		zap.Uint32("driver", uint32(op.Driver)),
		zap.Int("status", p.status))
	return p, nil
}

func (a *Adapter) checkShares(op Op) error {
	for i, sh := range op.Shares {
		e := &errcode.E{Op: op.Name + ".allow"}
		if sh.Buf == nil {
			e.C, e.Msg = errcode.InvalidParams, "nil buffer"
			return e
		}
		switch sh.Buf.State() {
		case allow.Shared:
			e.C = errcode.StillShared
			return e
		case allow.Freed:
			e.C = errcode.Released
			return e
		}
		for _, o := range op.Shares[:i] {
			if o.Num == sh.Num {
				e.C, e.Msg = errcode.InvalidParams, "duplicate allow slot"
				return e
			}
		}
		if l, ok := a.lent[slotKey{op.Driver, sh.Num}]; ok && l.id != 0 {
			e.C, e.Status = errcode.Busy, kernel.Busy
			return e
		}
	}
	return nil
}

// fail moves p to Failed, revoking and handing back everything it shared.
// Owned copies the kernel never saw are freed too.
func (a *Adapter) fail(p *Pending, err error) error {
	n := p.lent
	a.settle(p, true)
	for _, sh := range p.op.Shares[n:] {
		if sh.Buf.Owned() && sh.Buf.State() != allow.Shared {
			_ = sh.Buf.Release()
		}
	}
	p.state = Failed
	p.err = err
	a.log.Warn("call rejected",
		zap.Uint32("id", p.id),
		zap.String("op", p.op.Name),
		zap.Int("status", errcode.StatusOf(err)),
		zap.Error(err))
	return err
}

// settle hands back the buffers p shared. With revoke set the kernel is
// told to drop regions still registered to p, so it never writes into a
// buffer the application owns again.
func (a *Adapter) settle(p *Pending, revoke bool) {
	for _, sh := range p.op.Shares[:p.lent] {
		key := slotKey{p.op.Driver, sh.Num}
		if l, ok := a.lent[key]; ok && l.id == p.id {
			delete(a.lent, key)
			if revoke {
				_ = a.k.Allow(p.op.Driver, sh.Num, nil)
			}
		}
		sh.Buf.Reclaim()
		if sh.Buf.Owned() {
			_ = sh.Buf.Release()
		}
	}
	p.lent = 0
}

// replace records l once the kernel accepted its region on key. A
// standing share the new region displaced is handed back only then; a
// refused allow leaves the kernel holding the old one.
func (a *Adapter) replace(key slotKey, l lease) {
	if old, ok := a.lent[key]; ok && old.id == 0 && old.buf != l.buf {
		old.buf.Reclaim()
	}
	a.lent[key] = l
}

func (a *Adapter) newID() uint32 {
	a.nextID++
	if a.nextID == 0 {
		a.nextID = 1
	}
	return a.nextID
}

func (a *Adapter) slot(key slotKey) *slot {
	s := a.slots[key]
	if s == nil {
		s = &slot{}
		a.slots[key] = s
	}
	return s
}

// idle drops the kernel registration of a slot nobody needs any more.
func (a *Adapter) idle(key slotKey, s *slot) {
	if len(s.fifo) > 0 || s.listen != nil {
		return
	}
	if s.armed {
		_ = a.k.Subscribe(key.d, key.n, nil)
	}
	delete(a.slots, key)
}

// -----------------------------------------------------------------------------
// Upcall dispatch
// -----------------------------------------------------------------------------

func (a *Adapter) upcall(key slotKey) kernel.Upcall {
	return func(r0, r1, r2 int) {
		s := a.slots[key]
		if s == nil {
			return
		}
		if len(s.fifo) == 0 {
			if s.listen != nil {
				a.inside(func() { s.listen(r0, r1, r2) })
				a.record(token.Completion{Token: s.tok, R0: r0, R1: r1, R2: r2, TSms: timex.NowMs()})
			}
			return
		}
		p := s.fifo[0]
		s.fifo[0] = nil
		s.fifo = s.fifo[1:]
		a.complete(p, r0, r1, r2)
		a.idle(key, s)
	}
}

func (a *Adapter) complete(p *Pending, r0, r1, r2 int) {
	if dec := p.op.Decode; dec != nil {
		a.inside(func() { dec(r0, r1, r2) })
	}
	p.done = token.Completion{ID: p.id, Token: p.op.Token, R0: r0, R1: r1, R2: r2, TSms: timex.NowMs()}
	p.state = Complete
	a.settle(p, true)
	if !p.awaited {
		a.record(p.done)
	}
	a.log.Debug("call complete", zap.Uint32("id", p.id), zap.String("op", p.op.Name), zap.Stringer("token", p.op.Token))
}

func (a *Adapter) inside(fn func()) {
	a.inUpcall = true
	defer func() { a.inUpcall = false }()
	fn()
}

func (a *Adapter) record(c token.Completion) {
	if a.done.Length() >= a.logCap {
		old := a.done.Remove().(token.Completion)
		a.log.Debug("completion log full, dropping oldest", zap.Uint32("id", old.ID), zap.Stringer("token", old.Token))
	}
	a.done.Add(c)
}

// -----------------------------------------------------------------------------
// Blocking
// -----------------------------------------------------------------------------

// Await yields to the kernel until p completes. On deadline or
// cancellation the call is abandoned: its slot registration is dropped if
// no sibling call needs it, shared buffers are revoked and handed back,
// and p becomes Failed.
func (a *Adapter) Await(ctx context.Context, p *Pending) error {
	if p == nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "await", Msg: "nil pending"}
	}
	if a.inUpcall {
		return &errcode.E{C: errcode.Reentrant, Op: p.op.Name}
	}
	switch p.state {
	case Complete:
		a.forget(p.id)
		return nil
	case Failed:
		return p.err
	}
	p.awaited = true
	ctx, cancel := timex.Bound(ctx, a.timeout)
	defer cancel()
	for !p.state.Terminal() {
		if err := a.k.Yield(ctx); err != nil {
			return a.abandon(p, err)
		}
	}
	return p.err
}

// Do starts op and waits for its completion.
func (a *Adapter) Do(ctx context.Context, op Op) (*Pending, error) {
	p, err := a.Start(op)
	if err != nil {
		return nil, err
	}
	if err := a.Await(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

// Wait is the no-argument wait: it returns the token of the oldest
// completion of a call nobody awaited (or of a listener), yielding until
// one exists.
func (a *Adapter) Wait(ctx context.Context) (token.Token, error) {
	if a.inUpcall {
		return token.None, &errcode.E{C: errcode.Reentrant, Op: "wait"}
	}
	ctx, cancel := timex.Bound(ctx, a.timeout)
	defer cancel()
	for a.done.Length() == 0 {
		if err := a.k.Yield(ctx); err != nil {
			return token.None, waitErr("wait", err)
		}
	}
	return a.done.Remove().(token.Completion).Token, nil
}

// WaitFor yields until a completion carrying tok is logged and consumes
// it. Other logged completions keep their order.
func (a *Adapter) WaitFor(ctx context.Context, tok token.Token) error {
	if !tok.Valid() {
		return &errcode.E{C: errcode.InvalidParams, Op: "wait_for", Msg: tok.String()}
	}
	if a.inUpcall {
		return &errcode.E{C: errcode.Reentrant, Op: "wait_for"}
	}
	ctx, cancel := timex.Bound(ctx, a.timeout)
	defer cancel()
	for !a.take(func(c token.Completion) bool { return c.Token == tok }) {
		if err := a.k.Yield(ctx); err != nil {
			return waitErr("wait_for", err)
		}
	}
	return nil
}

func (a *Adapter) abandon(p *Pending, cause error) error {
	key := slotKey{p.op.Driver, p.op.Subscribe}
	if s := a.slots[key]; s != nil {
		s.remove(p)
		a.idle(key, s)
	}
	a.settle(p, true)
	p.state = Failed
	p.err = waitErr(p.op.Name, cause)
	a.log.Warn("call abandoned", zap.Uint32("id", p.id), zap.String("op", p.op.Name), zap.Error(cause))
	return p.err
}

func waitErr(op string, cause error) error {
	c := errcode.Timeout
	if errors.Is(cause, context.Canceled) {
		c = errcode.Cancel
	}
	return &errcode.E{C: c, Op: op, Err: cause}
}

// take removes the first logged completion matching fn.
func (a *Adapter) take(fn func(token.Completion) bool) bool {
	found := false
	for n := a.done.Length(); n > 0; n-- {
		c := a.done.Remove().(token.Completion)
		if !found && fn(c) {
			found = true
			continue
		}
		a.done.Add(c)
	}
	return found
}

func (a *Adapter) forget(id uint32) {
	a.take(func(c token.Completion) bool { return c.ID == id })
}

// -----------------------------------------------------------------------------
// Persistent registrations and standing shares
// -----------------------------------------------------------------------------

// Listen registers fn for every upcall on (d, sub) that no pending call
// claims. Each firing is logged under tok for Wait/WaitFor.
func (a *Adapter) Listen(d kernel.Driver, sub uint32, tok token.Token, fn kernel.Upcall) (int, error) {
	if a.inUpcall {
		return kernel.Fail, &errcode.E{C: errcode.Reentrant, Op: "subscribe"}
	}
	if fn == nil {
		return a.Unlisten(d, sub)
	}
	key := slotKey{d, sub}
	s := a.slot(key)
	prev, prevTok := s.listen, s.tok
	s.listen, s.tok = fn, tok
	st := a.k.Subscribe(d, sub, a.upcall(key))
	if st < 0 {
		s.listen, s.tok = prev, prevTok
		a.idle(key, s)
		return st, errcode.FromStatus("subscribe", st)
	}
	s.armed = true
	return st, nil
}

// Unlisten drops a persistent registration.
func (a *Adapter) Unlisten(d kernel.Driver, sub uint32) (int, error) {
	key := slotKey{d, sub}
	if s := a.slots[key]; s != nil {
		s.listen = nil
		a.idle(key, s)
	}
	return kernel.Success, nil
}

// Share allows b on (d, num) outside any call, for regions the kernel
// uses across several operations (an SPI receive buffer). A later call
// allowing the same slot replaces it and hands b back.
func (a *Adapter) Share(d kernel.Driver, num uint32, b *allow.Buffer) (int, error) {
	key := slotKey{d, num}
	if l, ok := a.lent[key]; ok && l.id != 0 {
		return kernel.Busy, &errcode.E{C: errcode.Busy, Op: "allow", Status: kernel.Busy}
	}
	if b == nil {
		return kernel.Invalid, &errcode.E{C: errcode.InvalidParams, Op: "allow", Msg: "nil buffer"}
	}
	region, err := b.Lend()
	if err != nil {
		return kernel.Fail, &errcode.E{C: errcode.Of(err), Op: "allow", Err: err}
	}
	st := a.k.Allow(d, num, region)
	if st < 0 {
		b.Reclaim()
		return st, errcode.FromStatus("allow", st)
	}
	a.replace(key, lease{buf: b})
	return st, nil
}

// Unshare revokes a standing share and hands its buffer back.
func (a *Adapter) Unshare(d kernel.Driver, num uint32) (int, error) {
	key := slotKey{d, num}
	l, ok := a.lent[key]
	if !ok {
		return kernel.Success, nil
	}
	if l.id != 0 {
		return kernel.Busy, &errcode.E{C: errcode.Busy, Op: "unallow", Status: kernel.Busy}
	}
	st := a.k.Allow(d, num, nil)
	delete(a.lent, key)
	l.buf.Reclaim()
	return st, errcode.FromStatus("unallow", st)
}
