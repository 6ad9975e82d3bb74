// Package token defines the closed set of completion tokens. A token names
// the operation family an upcall belongs to; it is what the no-argument and
// token-argument wait primitives report and select on.
package token

// Token identifies why a wait was satisfied.
type Token uint8

const (
	None Token = iota
	PutStr
	ReadTemp
	ReadAccel
	ReadMagnet
	Async // generic buffer operation (SPI transfers)
	Tick  // timer upcalls

	count
)

var names = [count]string{
	None:       "none",
	PutStr:     "putstr",
	ReadTemp:   "read_temp",
	ReadAccel:  "read_accel",
	ReadMagnet: "read_magnet",
	Async:      "async",
	Tick:       "tick",
}

func (t Token) String() string {
	if t >= count {
		return "invalid"
	}
	return names[t]
}

// Valid reports whether t is a member of the set (None excluded).
func (t Token) Valid() bool { return t > None && t < count }

// All returns every valid token in declaration order.
func All() []Token {
	out := make([]Token, 0, int(count)-1)
	for t := None + 1; t < count; t++ {
		out = append(out, t)
	}
	return out
}

// Completion records one fired upcall.
type Completion struct {
	ID         uint32 // pending call id, 0 for persistent subscriptions
	Token      Token
	R0, R1, R2 int
	TSms       int64
}
