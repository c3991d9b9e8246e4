// Package serialrelay drives LCUS-style USB relay boards. Each relay is exposed as a hal.OutputPin so
// the sensor node can use either GPIO relays or a serial board without caring which
package serialrelay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/calvinmclean/sortcell/hal"
)

const (
	frameStart       = 0xA0
	defaultBaudRate  = 9600
	defaultMaxRelays = 8
)

var ErrInvalidChannel = errors.New("invalid relay channel")

// Config describes the serial connection
type Config struct {
	Port      string `yaml:"port"`
	BaudRate  int    `yaml:"baud_rate"`
	NumRelays int    `yaml:"num_relays"`
}

// Board writes relay frames to a serial port
type Board struct {
	mtx       sync.Mutex
	port      io.Writer
	numRelays int
	logger    *slog.Logger
}

// Open connects to the relay board on the configured serial port
func Open(cfg Config, logger *slog.Logger) (*Board, io.Closer, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, nil, fmt.Errorf("error opening serial port %q: %w", cfg.Port, err)
	}

	err = port.SetReadTimeout(1 * time.Second)
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("error setting read timeout: %w", err)
	}

	return New(port, cfg.NumRelays, logger), port, nil
}

// New uses an already-open port
func New(port io.Writer, numRelays int, logger *slog.Logger) *Board {
	if numRelays <= 0 {
		numRelays = defaultMaxRelays
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Board{port: port, numRelays: numRelays, logger: logger}
}

// Frame builds the 4-byte command for a 1-based channel
func Frame(channel int, on bool) []byte {
	var state byte
	if on {
		state = 1
	}
	ch := byte(channel)
	return []byte{frameStart, ch, state, frameStart + ch + state}
}

func (b *Board) set(channel int, on bool) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	_, err := b.port.Write(Frame(channel, on))
	if err != nil {
		return fmt.Errorf("error writing relay frame: %w", err)
	}
	return nil
}

type relay struct {
	b       *Board
	channel int
}

func (r relay) Set(on bool) {
	err := r.b.set(r.channel, on)
	if err != nil {
		r.b.logger.Error("failed to set relay", "channel", r.channel, "on", on, "error", err)
	}
}

// Output returns a relay by 0-based index. The board itself numbers channels from 1
func (b *Board) Output(index int) (hal.OutputPin, error) {
	if index < 0 || index >= b.numRelays {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, index)
	}
	return relay{b, index + 1}, nil
}
