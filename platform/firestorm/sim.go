package firestorm

import (
	"io"
	"time"

	"go.uber.org/zap"

	"libtock-go/platform/host"
)

// simPins is the number of GPIO pins the simulated kernel exposes.
const simPins = 23

// Sim is a simulated Firestorm kernel with handles on its devices.
type Sim struct {
	Kernel *host.Kernel

	Console     *host.Console
	GPIO        *host.GPIO
	Timer       *host.Timer
	Temperature *host.Temperature
	Accel       *host.Motion
	SPI         *host.SPI
}

// Simulate builds a host kernel with every Firestorm device installed at
// its driver number. Console output goes to out.
func Simulate(out io.Writer, tick time.Duration, log *zap.Logger) *Sim {
	s := &Sim{
		Kernel:      host.New(log),
		Console:     host.NewConsole(out),
		GPIO:        host.NewGPIO(simPins),
		Timer:       host.NewTimer(tick),
		Temperature: host.NewTemperature(),
		Accel:       host.NewMotion(),
		SPI:         host.NewSPI(),
	}
	s.Kernel.Install(Console, s.Console)
	s.Kernel.Install(GPIO, s.GPIO)
	s.Kernel.Install(Timer, s.Timer)
	s.Kernel.Install(Temperature, s.Temperature)
	s.Kernel.Install(Accel, s.Accel)
	s.Kernel.Install(SPI, s.SPI)
	return s
}

// Close stops the simulated timers.
func (s *Sim) Close() { s.Timer.Close() }
