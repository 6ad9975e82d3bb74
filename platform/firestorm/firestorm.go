// Package firestorm describes the Firestorm board: the kernel's driver
// numbering and a Board that wires every userland driver to it.
package firestorm

import (
	"libtock-go/call"
	"libtock-go/drivers/console"
	"libtock-go/drivers/fxos8700cq"
	"libtock-go/drivers/gpio"
	"libtock-go/drivers/spi"
	"libtock-go/drivers/timer"
	"libtock-go/drivers/tmp006"
	"libtock-go/kernel"
)

// Driver numbers assigned by the Firestorm kernel.
const (
	Console     kernel.Driver = 0
	GPIO        kernel.Driver = 1
	Timer       kernel.Driver = 2
	Temperature kernel.Driver = 3
	Accel       kernel.Driver = 4 // FXOS8700CQ accelerometer + magnetometer
	SPI         kernel.Driver = 5
)

// Board holds one driver per kernel device, all sharing one adapter.
type Board struct {
	Calls *call.Adapter

	Console     *console.Device
	GPIO        *gpio.Device
	Timer       *timer.Device
	Temperature *tmp006.Device
	Accel       *fxos8700cq.Device
	SPI         *spi.Bus
}

// New wires the drivers to k. Nothing talks to the kernel until a driver
// operation is called.
func New(k kernel.Kernel, o call.Options) *Board {
	a := call.New(k, o)
	return &Board{
		Calls:       a,
		Console:     console.New(a, Console),
		GPIO:        gpio.New(a, GPIO),
		Timer:       timer.New(a, Timer),
		Temperature: tmp006.New(a, Temperature),
		Accel:       fxos8700cq.New(a, Accel),
		SPI:         spi.New(a, SPI),
	}
}
