package host

import (
	"io"
	"sync"
	"time"

	"libtock-go/kernel"
)

// ----------------------------- console ---------------------------------------

// Console writes the region allowed on slot 1 to W when slot 1 is
// subscribed, then reports the byte count.
type Console struct {
	mu sync.Mutex
	W  io.Writer
	io *IO
	n  int
}

func NewConsole(w io.Writer) *Console { return &Console{W: w} }

func (c *Console) Attach(io *IO) { c.io = io }

func (c *Console) Command(uint32, int) int { return kernel.NoSupport }

func (c *Console) Allow(num uint32, _ []byte) int {
	if num != 1 {
		return kernel.Invalid
	}
	return kernel.Success
}

func (c *Console) Subscribe(sub uint32, on bool) int {
	if sub != 1 {
		return kernel.NoSupport
	}
	if !on {
		return kernel.Success
	}
	buf := c.io.Buffer(1)
	if buf == nil {
		return kernel.Reserve
	}
	c.mu.Lock()
	if c.W != nil {
		_, _ = c.W.Write(buf)
	}
	c.n += len(buf)
	c.mu.Unlock()
	c.io.Notify(1, len(buf), 0, 0)
	return kernel.Success
}

// Written is the total number of bytes written so far.
func (c *Console) Written() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// ----------------------------- gpio ------------------------------------------

// GPIO simulates Pins output pins. Set, clear and toggle on a pin that
// was never enabled return Off.
type GPIO struct {
	mu      sync.Mutex
	enabled []bool
	level   []bool
}

func NewGPIO(pins int) *GPIO {
	return &GPIO{enabled: make([]bool, pins), level: make([]bool, pins)}
}

func (g *GPIO) Attach(*IO) {}

func (g *GPIO) Command(cmd uint32, pin int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pin < 0 || pin >= len(g.enabled) {
		return kernel.Invalid
	}
	if cmd == 0 {
		g.enabled[pin] = true
		return kernel.Success
	}
	if !g.enabled[pin] {
		return kernel.Off
	}
	switch cmd {
	case 2:
		g.level[pin] = true
	case 3:
		g.level[pin] = false
	case 4:
		g.level[pin] = !g.level[pin]
	default:
		return kernel.NoSupport
	}
	return kernel.Success
}

func (g *GPIO) Subscribe(uint32, bool) int { return kernel.NoSupport }
func (g *GPIO) Allow(uint32, []byte) int   { return kernel.NoSupport }

// Level reports the output level of pin.
func (g *GPIO) Level(pin int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return pin >= 0 && pin < len(g.level) && g.level[pin]
}

// ----------------------------- timer -----------------------------------------

// Timer fires slot 0 once, Interval after it is subscribed, and slot 1
// every Interval while it stays subscribed. r0 is the firing count.
type Timer struct {
	Interval time.Duration

	mu   sync.Mutex
	io   *IO
	once *time.Timer
	stop chan struct{}
}

func NewTimer(interval time.Duration) *Timer { return &Timer{Interval: interval} }

func (t *Timer) Attach(io *IO)            { t.io = io }
func (t *Timer) Command(uint32, int) int  { return kernel.NoSupport }
func (t *Timer) Allow(uint32, []byte) int { return kernel.NoSupport }

func (t *Timer) Subscribe(sub uint32, on bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch sub {
	case 0:
		if t.once != nil {
			t.once.Stop()
			t.once = nil
		}
		if on {
			t.once = time.AfterFunc(t.Interval, func() { t.io.Notify(0, 1, 0, 0) })
		}
	case 1:
		if t.stop != nil {
			close(t.stop)
			t.stop = nil
		}
		if on {
			t.stop = make(chan struct{})
			go t.repeat(t.stop)
		}
	default:
		return kernel.NoSupport
	}
	return kernel.Success
}

func (t *Timer) repeat(stop <-chan struct{}) {
	tk := time.NewTicker(t.Interval)
	defer tk.Stop()
	for n := 1; ; n++ {
		select {
		case <-stop:
			return
		case <-tk.C:
			if !t.io.Subscribed(1) {
				return
			}
			t.io.Notify(1, n, 0, 0)
		}
	}
}

// Close stops any running timers.
func (t *Timer) Close() {
	t.Subscribe(0, false)
	t.Subscribe(1, false)
}

// ----------------------------- temperature -----------------------------------

// Temperature answers a read (subscribe 0) with the next pushed value,
// repeating the last one once the script runs out. Reads before enable
// (command 0) return Off.
type Temperature struct {
	mu      sync.Mutex
	io      *IO
	enabled bool
	script  []int16
	last    int16
}

func NewTemperature(vals ...int16) *Temperature {
	return &Temperature{script: vals}
}

func (s *Temperature) Attach(io *IO)            { s.io = io }
func (s *Temperature) Allow(uint32, []byte) int { return kernel.NoSupport }

// Push appends values to the read script.
func (s *Temperature) Push(vals ...int16) {
	s.mu.Lock()
	s.script = append(s.script, vals...)
	s.mu.Unlock()
}

func (s *Temperature) Command(cmd uint32, _ int) int {
	if cmd != 0 {
		return kernel.NoSupport
	}
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
	return kernel.Success
}

func (s *Temperature) Subscribe(sub uint32, on bool) int {
	if sub != 0 {
		return kernel.NoSupport
	}
	if !on {
		return kernel.Success
	}
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return kernel.Off
	}
	if len(s.script) > 0 {
		s.last, s.script = s.script[0], s.script[1:]
	}
	v := s.last
	s.mu.Unlock()
	s.io.Notify(0, int(v), 0, 0)
	return kernel.Success
}

// ----------------------------- accelerometer/magnetometer --------------------

// Vec3 is a raw three-axis sample.
type Vec3 struct{ X, Y, Z int16 }

// Motion simulates an FXOS8700CQ: command 1/2 enable the accelerometer
// and magnetometer, subscribe 1/2 read them.
type Motion struct {
	mu     sync.Mutex
	io     *IO
	on     [3]bool
	sample [3]Vec3
}

func NewMotion() *Motion { return &Motion{} }

func (m *Motion) Attach(io *IO)            { m.io = io }
func (m *Motion) Allow(uint32, []byte) int { return kernel.NoSupport }

// SetAccel sets the value the next accelerometer read reports.
func (m *Motion) SetAccel(v Vec3) { m.set(1, v) }

// SetMagnet sets the value the next magnetometer read reports.
func (m *Motion) SetMagnet(v Vec3) { m.set(2, v) }

func (m *Motion) set(i int, v Vec3) {
	m.mu.Lock()
	m.sample[i] = v
	m.mu.Unlock()
}

func (m *Motion) Command(cmd uint32, _ int) int {
	if cmd != 1 && cmd != 2 {
		return kernel.NoSupport
	}
	m.mu.Lock()
	m.on[cmd] = true
	m.mu.Unlock()
	return kernel.Success
}

func (m *Motion) Subscribe(sub uint32, on bool) int {
	if sub != 1 && sub != 2 {
		return kernel.NoSupport
	}
	if !on {
		return kernel.Success
	}
	m.mu.Lock()
	enabled, v := m.on[sub], m.sample[sub]
	m.mu.Unlock()
	if !enabled {
		return kernel.Off
	}
	m.io.Notify(sub, int(v.X), int(v.Y), int(v.Z))
	return kernel.Success
}

// ----------------------------- spi -------------------------------------------

// SPI simulates a bus: command 0 writes one byte, command 1 clocks out
// arg bytes of the write region (allow 1) and fills the read region
// (allow 0), if any, with Reply's answer. Transfers complete on
// subscribe 0 with r0 = length.
type SPI struct {
	// Reply maps outgoing bytes to incoming ones. Nil echoes.
	Reply func(tx []byte) []byte

	mu  sync.Mutex
	io  *IO
	out []byte
}

func NewSPI() *SPI { return &SPI{} }

func (s *SPI) Attach(io *IO) { s.io = io }

func (s *SPI) Allow(num uint32, _ []byte) int {
	if num > 1 {
		return kernel.Invalid
	}
	return kernel.Success
}

func (s *SPI) Subscribe(sub uint32, _ bool) int {
	if sub != 0 {
		return kernel.NoSupport
	}
	return kernel.Success
}

func (s *SPI) Command(cmd uint32, arg int) int {
	switch cmd {
	case 0:
		s.mu.Lock()
		s.out = append(s.out, byte(arg))
		s.mu.Unlock()
		return kernel.Success
	case 1:
		return s.transfer(arg)
	default:
		return kernel.NoSupport
	}
}

func (s *SPI) transfer(n int) int {
	tx := s.io.Buffer(1)
	if tx == nil {
		return kernel.Reserve
	}
	if n < 0 || n > len(tx) {
		return kernel.Size
	}
	rx := s.io.Buffer(0)
	if rx != nil && len(rx) < n {
		return kernel.Size
	}
	w := append([]byte(nil), tx[:n]...)
	s.mu.Lock()
	s.out = append(s.out, w...)
	reply := s.Reply
	s.mu.Unlock()
	if rx != nil {
		in := w
		if reply != nil {
			in = reply(w)
		}
		copy(rx[:n], in)
	}
	s.io.Notify(0, n, 0, 0)
	return kernel.Success
}

// Out returns every byte clocked out so far.
func (s *SPI) Out() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.out...)
}
