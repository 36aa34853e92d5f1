// Package loading provides the process-wide loading indicator shared by every
// open screen.
package loading

import (
	"log/slog"
	"sync"
)

// Gauge mirrors the active count, typically a prometheus.Gauge.
type Gauge interface {
	Set(float64)
}

// Indicator is a reference-counted loading state: it stays visible while at
// least one Show has not been matched by a Hide.
type Indicator struct {
	mu     sync.Mutex
	active int
	logger *slog.Logger
	gauge  Gauge
}

// NewIndicator creates a hidden indicator. gauge may be nil.
func NewIndicator(logger *slog.Logger, gauge Gauge) *Indicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indicator{logger: logger, gauge: gauge}
}

// Show marks one more request in flight.
func (i *Indicator) Show() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active++
	i.report()
}

// Hide releases one Show. Unbalanced calls are ignored so the count never
// goes negative.
func (i *Indicator) Hide() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active == 0 {
		i.logger.Warn("loading hide without matching show")
		return
	}
	i.active--
	i.report()
}

// Visible reports whether any request is in flight.
func (i *Indicator) Visible() bool {
	return i.Active() > 0
}

// Active returns the number of unmatched Show calls.
func (i *Indicator) Active() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

func (i *Indicator) report() {
	if i.gauge != nil {
		i.gauge.Set(float64(i.active))
	}
}
