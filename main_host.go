//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"g8rtos/app"
	"g8rtos/config"
	"g8rtos/hal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		path     = flag.String("config", "", "YAML configuration file.")
		headless = flag.Bool("headless", false, "Run without a window.")
		hz       = flag.Int("hz", 0, "Frame rate in headless mode.")
		frames   = flag.Uint64("frames", 0, "Stop after N frames in headless mode (0 = run forever).")
		level    = flag.String("log-level", "", "Log level (debug, info, warn, error).")
		port     = flag.String("serial", "", "Serial device for the monitor console instead of stdin/stdout.")
	)
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Host.Headless = *headless
		case "hz":
			cfg.Host.Hz = *hz
		case "frames":
			cfg.Host.Frames = *frames
		case "log-level":
			cfg.Log.Level = *level
		case "serial":
			cfg.Host.SerialPort = *port
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	opts := hal.HostOptions{Log: os.Stderr}
	if cfg.Host.SerialPort != "" {
		p, err := serial.Open(cfg.Host.SerialPort, &serial.Mode{BaudRate: cfg.Host.SerialBaud})
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.Host.SerialPort, err)
		}
		defer p.Close()
		log.Info().Str("port", cfg.Host.SerialPort).Int("baud", cfg.Host.SerialBaud).Msg("console on serial port")
		opts.Serial = p
	}

	acfg := app.Config{
		Kernel: cfg.KernelConfig(),
		Demo:   cfg.Demo,
		Logger: log,
	}
	newApp := func(ctx context.Context, h hal.HAL) func() error {
		return app.Start(ctx, h, acfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Host.Headless {
		err = hal.RunHeadless(ctx, newApp, hal.HeadlessConfig{
			Hz:     cfg.Host.Hz,
			Frames: cfg.Host.Frames,
			Host:   opts,
		})
	} else {
		err = hal.RunWindow(ctx, newApp, opts)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newLogger writes human-readable logs to stderr, colored when stderr is a
// terminal and color is enabled.
func newLogger(cfg config.Log) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("%w: log level %q", config.ErrInvalid, cfg.Level)
	}
	var out io.Writer = os.Stderr
	color := cfg.Color && isatty.IsTerminal(os.Stderr.Fd())
	if color {
		out = colorable.NewColorableStderr()
	}
	w := zerolog.ConsoleWriter{Out: out, NoColor: !color, TimeFormat: "15:04:05.000"}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
