//go:build tinygo

package main

import (
	"log/slog"

	"github.com/calvinmclean/sortcell/hal"
	"github.com/calvinmclean/sortcell/hal/rp2040"
)

func newBoard(*slog.Logger) hal.Board {
	return rp2040.New()
}
