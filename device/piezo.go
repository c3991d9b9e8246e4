package device

import (
	"context"
	"iter"
	"sync/atomic"
	"time"

	"github.com/calvinmclean/sortcell/hal"
)

const (
	defaultPiezoPollInterval = 10 * time.Millisecond
	// DefaultPiezoMaxWait caps every WaitTouch
	DefaultPiezoMaxWait = 30 * time.Second
)

// Piezo detects a touch as a departure from the calibrated resting value
type Piezo struct {
	adc          hal.ADC
	threshold    uint16
	pollInterval time.Duration
	maxWait      time.Duration
	baseline     atomic.Uint32
}

// NewPiezo calibrates once on creation
func NewPiezo(adc hal.ADC, cfg PiezoConfig) *Piezo {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPiezoPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultPiezoMaxWait
	}

	p := &Piezo{
		adc:          adc,
		threshold:    cfg.Threshold,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
	}
	p.Calibrate()
	return p
}

// Calibrate stores the current reading as the resting value
func (p *Piezo) Calibrate() {
	p.baseline.Store(uint32(p.adc.Get()))
}

func (p *Piezo) Baseline() uint16 {
	return uint16(p.baseline.Load())
}

func (p *Piezo) Read() uint16 {
	return p.adc.Get()
}

// Touched compares one reading against the baseline
func (p *Piezo) Touched() bool {
	return p.touched(p.adc.Get())
}

func (p *Piezo) touched(v uint16) bool {
	base := int(p.Baseline())
	diff := int(v) - base
	if diff < 0 {
		diff = -diff
	}
	return diff > int(p.threshold)
}

// Samples yields a reading every poll interval until ctx is done or the consumer stops. Each range
// over the returned sequence starts a fresh poll
func (p *Piezo) Samples(ctx context.Context) iter.Seq[uint16] {
	return func(yield func(uint16) bool) {
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		for {
			if !yield(p.adc.Get()) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// WaitTouch polls until a touch, timeout or ctx cancellation. timeout is capped at the configured
// maximum, and a non-positive timeout means the maximum. It never blocks past that ceiling
func (p *Piezo) WaitTouch(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 || timeout > p.maxWait {
		timeout = p.maxWait
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for v := range p.Samples(ctx) {
		if p.touched(v) {
			return true
		}
	}
	return false
}
