//go:build !tinygo

package main

import (
	"log/slog"

	"github.com/calvinmclean/sortcell/hal"
	"github.com/calvinmclean/sortcell/hal/sim"
)

// newBoard returns the simulated board on hosts. The colour sensor reads a dim neutral object
func newBoard(logger *slog.Logger) hal.Board {
	logger.Warn("using simulated board")
	return sim.NewBoard(
		sim.WithLogger(logger),
		sim.WithI2C(func() *sim.RegisterBus { return sim.NewColourBus(1000, 300, 300, 300) }),
	)
}
