package errcode

import "strconv"

// Code is a stable error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"
	Timeout       Code = "timeout"

	// Kernel return codes.
	Fail        Code = "fail"
	Already     Code = "already"
	Off         Code = "off"
	Reserve     Code = "reserve"
	Invalid     Code = "invalid"
	Size        Code = "size"
	Cancel      Code = "cancel"
	NoMem       Code = "no_mem"
	NoDevice    Code = "no_device"
	Uninstalled Code = "uninstalled"
	NoAck       Code = "no_ack"

	// Userland call adapter.
	Reentrant   Code = "reentrant"
	StillShared Code = "still_shared"
	Released    Code = "released"

	Error Code = "error" // generic fallback
)

// Wrapper that keeps the operation, the raw kernel status and a cause.
type E struct {
	C      Code
	Op     string
	Msg    string
	Status int // negative kernel status, 0 when not kernel-originated
	Err    error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Status < 0 {
		s += " (" + strconv.Itoa(e.Status) + ")"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Busy) match a wrapped code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// FromStatus maps a kernel return value to an error. Non-negative values
// are successes and yield nil.
func FromStatus(op string, status int) error {
	if status >= 0 {
		return nil
	}
	return &E{C: codeForStatus(status), Op: op, Status: status}
}

// StatusOf recovers the kernel status carried by err: 0 for nil, the
// original negative value for kernel rejections, -1 for anything else.
func StatusOf(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := err.(*E); ok && e.Status < 0 {
		return e.Status
	}
	return -1
}

func codeForStatus(st int) Code {
	switch st {
	case -1:
		return Fail
	case -2:
		return Busy
	case -3:
		return Already
	case -4:
		return Off
	case -5:
		return Reserve
	case -6:
		return Invalid
	case -7:
		return Size
	case -8:
		return Cancel
	case -9:
		return NoMem
	case -10:
		return Unsupported
	case -11:
		return NoDevice
	case -12:
		return Uninstalled
	case -13:
		return NoAck
	default:
		return Error
	}
}
