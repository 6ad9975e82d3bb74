package call

import (
	"context"
	"fmt"

	"libtock-go/kernel"
)

type regs [3]int

type delivery struct {
	key slotKey
	r   regs
}

// fakeKernel is a scripted, single-threaded kernel. Subscribing to a slot
// with a script queues the next scripted upcall; fire queues one by hand.
type fakeKernel struct {
	subs   map[slotKey]kernel.Upcall
	allows map[slotKey][]byte
	q      []delivery

	script      map[slotKey][]regs
	cmdStatus   map[slotKey]int
	subStatus   map[slotKey]int
	allowStatus map[slotKey]int

	calls  []string
	yields int
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		subs:        map[slotKey]kernel.Upcall{},
		allows:      map[slotKey][]byte{},
		script:      map[slotKey][]regs{},
		cmdStatus:   map[slotKey]int{},
		subStatus:   map[slotKey]int{},
		allowStatus: map[slotKey]int{},
	}
}

func (f *fakeKernel) Command(d kernel.Driver, cmd uint32, arg int) int {
	key := slotKey{d, cmd}
	f.calls = append(f.calls, fmt.Sprintf("command %d/%d %d", d, cmd, arg))
	return f.cmdStatus[key]
}

func (f *fakeKernel) Subscribe(d kernel.Driver, sub uint32, fn kernel.Upcall) int {
	key := slotKey{d, sub}
	if fn == nil {
		f.calls = append(f.calls, fmt.Sprintf("unsubscribe %d/%d", d, sub))
		delete(f.subs, key)
		return kernel.Success
	}
	f.calls = append(f.calls, fmt.Sprintf("subscribe %d/%d", d, sub))
	if st := f.subStatus[key]; st < 0 {
		return st
	}
	f.subs[key] = fn
	f.next(key)
	return kernel.Success
}

func (f *fakeKernel) Allow(d kernel.Driver, num uint32, buf []byte) int {
	key := slotKey{d, num}
	if buf == nil {
		f.calls = append(f.calls, fmt.Sprintf("unallow %d/%d", d, num))
		delete(f.allows, key)
		return kernel.Success
	}
	f.calls = append(f.calls, fmt.Sprintf("allow %d/%d", d, num))
	if st := f.allowStatus[key]; st < 0 {
		return st
	}
	f.allows[key] = buf
	return kernel.Success
}

func (f *fakeKernel) Yield(ctx context.Context) error {
	f.yields++
	for len(f.q) > 0 {
		d := f.q[0]
		f.q = f.q[1:]
		if fn := f.subs[d.key]; fn != nil {
			fn(d.r[0], d.r[1], d.r[2])
			return nil
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeKernel) next(key slotKey) {
	s := f.script[key]
	if len(s) == 0 {
		return
	}
	f.script[key] = s[1:]
	f.q = append(f.q, delivery{key: key, r: s[0]})
}

func (f *fakeKernel) fire(d kernel.Driver, sub uint32, r0, r1, r2 int) {
	f.q = append(f.q, delivery{key: slotKey{d, sub}, r: regs{r0, r1, r2}})
}
