package call

import (
	"libtock-go/allow"
	"libtock-go/kernel"
	"libtock-go/token"
)

// State of one pending operation.
//
//	Idle -> Subscribed -> AwaitingAck -> Waiting -> Complete
//	                 \            \           \
//	                  +------------+-----------+--> Failed
//
// Complete implies the decode hook ran exactly once; Failed implies it
// never did.
type State uint8

const (
	Idle State = iota
	Subscribed
	AwaitingAck
	Waiting
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Subscribed:
		return "subscribed"
	case AwaitingAck:
		return "awaiting_ack"
	case Waiting:
		return "waiting"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Complete || s == Failed }

// Command is the triggering command of an Op.
type Command struct {
	Num uint32
	Arg int
}

// Cmd is shorthand for &Command{num, arg}.
func Cmd(num uint32, arg int) *Command { return &Command{Num: num, Arg: arg} }

// Share is one buffer to allow before the operation starts.
type Share struct {
	Num uint32
	Buf *allow.Buffer
}

// Op describes one asynchronous kernel operation: share the buffers,
// subscribe the upcall, then issue the command. Command may be nil when
// the subscription itself starts the operation.
type Op struct {
	Name      string
	Driver    kernel.Driver
	Subscribe uint32
	Token     token.Token
	Shares    []Share
	Command   *Command

	// Decode runs once, inside the upcall, before the call is marked
	// complete. It must not start or await other calls.
	Decode func(r0, r1, r2 int)
}

// Pending is the per-call state object returned by Start.
type Pending struct {
	id      uint32
	op      Op
	state   State
	status  int
	err     error
	awaited bool
	lent    int // how many of op.Shares the kernel accepted
	done    token.Completion
}

func (p *Pending) ID() uint32            { return p.id }
func (p *Pending) Name() string          { return p.op.Name }
func (p *Pending) Token() token.Token    { return p.op.Token }
func (p *Pending) State() State          { return p.state }
func (p *Pending) Done() bool            { return p.state == Complete }
func (p *Pending) Err() error            { return p.err }
func (p *Pending) Driver() kernel.Driver { return p.op.Driver }

// Status is the non-negative value returned by the triggering command,
// or by subscribe when the operation has no command.
func (p *Pending) Status() int { return p.status }

// Completion returns the raw upcall registers once the call is complete.
func (p *Pending) Completion() (token.Completion, bool) {
	return p.done, p.state == Complete
}

// Buffers returns the buffers the call consumed. Borrowed buffers are
// usable again once the call is terminal; owned copies are already freed.
func (p *Pending) Buffers() []*allow.Buffer {
	out := make([]*allow.Buffer, len(p.op.Shares))
	for i, s := range p.op.Shares {
		out[i] = s.Buf
	}
	return out
}
