// Package gpio drives output pins through the kernel GPIO driver. Every
// operation is a single command and never suspends.
package gpio

import (
	"libtock-go/call"
	"libtock-go/kernel"
)

const (
	cmdEnable = 0
	cmdSet    = 2
	cmdClear  = 3
	cmdToggle = 4
)

// Device drives the kernel's GPIO output pins.
type Device struct {
	a *call.Adapter
	d kernel.Driver
}

// New returns the GPIO driver on d.
func New(a *call.Adapter, d kernel.Driver) *Device { return &Device{a: a, d: d} }

// Enable configures pin as an output. Enabling twice is harmless.
func (g *Device) Enable(pin int) (int, error) { return g.a.Command("gpio.enable", g.d, cmdEnable, pin) }

func (g *Device) Set(pin int) (int, error)    { return g.a.Command("gpio.set", g.d, cmdSet, pin) }
func (g *Device) Clear(pin int) (int, error)  { return g.a.Command("gpio.clear", g.d, cmdClear, pin) }
func (g *Device) Toggle(pin int) (int, error) { return g.a.Command("gpio.toggle", g.d, cmdToggle, pin) }

// Pin binds a Device to one pin number.
type Pin struct {
	dev *Device
	num int
}

func (g *Device) Pin(num int) Pin { return Pin{dev: g, num: num} }

// Configure enables the pin as an output.
func (p Pin) Configure() error {
	_, err := p.dev.Enable(p.num)
	return err
}

// High and Low follow the tinygo machine.Pin naming; errors are dropped
// the way a register write would drop them.
func (p Pin) High() { _, _ = p.dev.Set(p.num) }
func (p Pin) Low()  { _, _ = p.dev.Clear(p.num) }

// Set drives the pin to level.
func (p Pin) Set(level bool) error {
	var err error
	if level {
		_, err = p.dev.Set(p.num)
	} else {
		_, err = p.dev.Clear(p.num)
	}
	return err
}
