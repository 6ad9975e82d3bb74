// cmd/acceltest/main.go
//
// Accelerometer bring-up against the simulated Firestorm kernel: greet on
// the console, enable the FXOS8700CQ, then print a few samples on a
// repeating timer while a feeder goroutine moves the simulated sensor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"libtock-go/call"
	"libtock-go/config"
	"libtock-go/errcode"
	"libtock-go/platform/firestorm"
	"libtock-go/platform/host"
	"libtock-go/token"
	"libtock-go/x/logx"
)

// ---------- Configuration ----------

const (
	tick       = 100 * time.Millisecond
	samples    = 5
	feedPeriod = 30 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log, err := logx.New(logx.Config{Level: cfg.LogLevel, Development: cfg.LogDev})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sim := firestorm.Simulate(os.Stdout, tick, log)
	defer sim.Close()
	board := firestorm.New(sim.Kernel, call.OptionsFrom(cfg, log))

	g, ctx := errgroup.WithContext(ctx)
	appDone := make(chan struct{})
	g.Go(func() error { return feed(ctx, sim.Accel, appDone) })
	g.Go(func() error {
		defer close(appDone)
		return run(ctx, board)
	})
	if err := g.Wait(); err != nil {
		log.Error("acceltest failed", zap.Error(err))
		os.Exit(1)
	}
}

// feed moves the simulated accelerometer until the application is done.
func feed(ctx context.Context, m *host.Motion, done <-chan struct{}) error {
	t := time.NewTicker(feedPeriod)
	defer t.Stop()
	for i := int16(0); ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case <-t.C:
			m.SetAccel(host.Vec3{X: i % 64, Y: -i % 64, Z: 1024})
		}
	}
}

func run(ctx context.Context, b *firestorm.Board) error {
	con := b.Console
	if _, err := con.Putstr(ctx, "Welcome to Tock in Go\r\nInitializing Accelerometer... "); err != nil {
		return err
	}

	st, err := b.Accel.AccelEnable()
	if err != nil {
		fmt.Fprintf(con, "Error(%d): Failed to enable accelerometer.\r\n", st)
		return err
	}
	fmt.Fprintf(con, "Initialized accelerometer! val %d\r\n", st)
	fmt.Fprintf(con, "Reading from accelerometer...\r\n")

	if _, err := b.Timer.RepeatingSubscribe(nil); err != nil {
		return err
	}
	defer b.Timer.Stop()

	for i := 0; i < samples; i++ {
		v, err := b.Accel.AccelRead(ctx)
		if err != nil {
			fmt.Fprintf(con, "Error(%d) reading from accelerometer.\r\n", errcode.StatusOf(err))
			return err
		}
		fmt.Fprintf(con, "x %d y %d z %d\r\n", v.X, v.Y, v.Z)
		if err := b.Calls.WaitFor(ctx, token.Tick); err != nil {
			return err
		}
	}
	return nil
}
