//go:build tinygo

package main

import (
	"github.com/rs/zerolog"

	"g8rtos/app"
	"g8rtos/config"
	"g8rtos/hal"
)

func main() {
	h := hal.New()
	cfg := config.Default()
	log := zerolog.New(hal.LogWriter(h.Logger())).Level(zerolog.InfoLevel)

	app.Run(h, app.Config{
		Kernel: cfg.KernelConfig(),
		Demo:   cfg.Demo,
		Logger: log,
	})
}
