// Package config loads the board and kernel configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"

	"g8rtos/kernel"
)

var ErrInvalid = errors.New("config: invalid")

// Size is a byte count written as "2KB", "512B" or a plain integer.
type Size bytesize.ByteSize

func (s Size) Bytes() int { return int(s) }

func (s Size) String() string { return bytesize.ByteSize(s).String() }

func (s *Size) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		if n < 0 {
			return fmt.Errorf("%w: negative size %d", ErrInvalid, n)
		}
		*s = Size(n)
		return nil
	}
	var text string
	if err := unmarshal(&text); err != nil {
		return err
	}
	b, err := bytesize.Parse(text)
	if err != nil {
		return fmt.Errorf("%w: size %q: %v", ErrInvalid, text, err)
	}
	*s = Size(b)
	return nil
}

func (s Size) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// Kernel sizes the kernel tables.
type Kernel struct {
	MaxThreads    int  `yaml:"max_threads"`
	MaxPeriodic   int  `yaml:"max_periodic"`
	MaxSemaphores int  `yaml:"max_semaphores"`
	MaxFIFOs      int  `yaml:"max_fifos"`
	FIFODepth     int  `yaml:"fifo_depth"`
	StackSize     Size `yaml:"stack_size"`
}

// Demo tunes the demo application.
type Demo struct {
	// HeartbeatPeriod is the LED toggle period in ticks.
	HeartbeatPeriod uint32 `yaml:"heartbeat_period"`
	// FramePeriod is the renderer pacing period in ticks.
	FramePeriod uint32 `yaml:"frame_period"`
	// ButtonPriority is the NVIC priority of the button interrupt.
	ButtonPriority uint8 `yaml:"button_priority"`
	// Monitor enables the serial console.
	Monitor bool `yaml:"monitor"`
}

// Host configures the desktop runner.
type Host struct {
	Headless bool   `yaml:"headless"`
	Hz       int    `yaml:"hz"`
	Frames   uint64 `yaml:"frames"`
	// SerialPort opens a real serial device for the console instead of
	// stdin/stdout.
	SerialPort string `yaml:"serial_port"`
	SerialBaud int    `yaml:"serial_baud"`
}

// Log configures structured logging.
type Log struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Config is the whole configuration file.
type Config struct {
	Kernel Kernel `yaml:"kernel"`
	Demo   Demo   `yaml:"demo"`
	Host   Host   `yaml:"host"`
	Log    Log    `yaml:"log"`
}

// Default returns the firmware defaults.
func Default() Config {
	return Config{
		Kernel: Kernel{
			MaxThreads:    kernel.DefaultMaxThreads,
			MaxPeriodic:   kernel.DefaultMaxPeriodic,
			MaxSemaphores: kernel.DefaultMaxSemaphores,
			MaxFIFOs:      kernel.DefaultMaxFIFOs,
			FIFODepth:     kernel.DefaultFIFODepth,
			StackSize:     Size(kernel.DefaultStackSize),
		},
		Demo: Demo{
			HeartbeatPeriod: 500,
			FramePeriod:     33,
			ButtonPriority:  4,
			Monitor:         true,
		},
		Host: Host{
			Hz:         60,
			SerialBaud: 115200,
		},
		Log: Log{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges the kernel cannot fix up itself.
func (c Config) Validate() error {
	k := c.Kernel
	switch {
	case k.MaxThreads < 1 || k.MaxThreads > 0xFFFF:
		return fmt.Errorf("%w: max_threads %d", ErrInvalid, k.MaxThreads)
	case k.MaxPeriodic < 0:
		return fmt.Errorf("%w: max_periodic %d", ErrInvalid, k.MaxPeriodic)
	case k.MaxSemaphores < 0:
		return fmt.Errorf("%w: max_semaphores %d", ErrInvalid, k.MaxSemaphores)
	case k.MaxFIFOs < 0:
		return fmt.Errorf("%w: max_fifos %d", ErrInvalid, k.MaxFIFOs)
	case k.FIFODepth < 2:
		return fmt.Errorf("%w: fifo_depth %d holds no data", ErrInvalid, k.FIFODepth)
	case k.StackSize.Bytes() < 64:
		return fmt.Errorf("%w: stack_size %s below one exception frame", ErrInvalid, k.StackSize)
	case c.Demo.ButtonPriority > kernel.MaxIRQPriority:
		return fmt.Errorf("%w: button_priority %d", ErrInvalid, c.Demo.ButtonPriority)
	case c.Host.Hz < 0:
		return fmt.Errorf("%w: hz %d", ErrInvalid, c.Host.Hz)
	}
	return nil
}

// KernelConfig converts the kernel section to kernel.Config.
func (c Config) KernelConfig() kernel.Config {
	return kernel.Config{
		MaxThreads:    c.Kernel.MaxThreads,
		MaxPeriodic:   c.Kernel.MaxPeriodic,
		MaxSemaphores: c.Kernel.MaxSemaphores,
		MaxFIFOs:      c.Kernel.MaxFIFOs,
		FIFODepth:     c.Kernel.FIFODepth,
		StackSize:     c.Kernel.StackSize.Bytes(),
	}
}
