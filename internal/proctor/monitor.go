package proctor

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// ReportSender delivers one violation to the backend and returns the
// server's updated tally.
type ReportSender interface {
	Send(ctx context.Context, v Violation) (*Outcome, error)
}

// State is the monitor's explicit lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateTerminated
)

// MonitorConfig wires a Monitor.
type MonitorConfig struct {
	Detectors []Detector
	Sender    ReportSender
	// Buffer sizes the report queue. Defaults to 32.
	Buffer int
	// OnWarning receives the remaining tolerance after every counted
	// report. Optional.
	OnWarning func(remaining int)
	// OnTerminated fires once when the server reports the attempt
	// terminated. Optional.
	OnTerminated func()
	Log          zerolog.Logger
}

// Monitor composes detectors and dispatches their violations through a
// buffered queue. Dispatch is best-effort: a full queue drops the report
// rather than block the detector, and a failed send is not retried. The
// server's violation count stays authoritative either way.
type Monitor struct {
	cfg   MonitorConfig
	queue chan Violation
	log   zerolog.Logger

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	done   chan struct{}

	dropped int
}

// NewMonitor creates a Monitor in StateIdle.
func NewMonitor(cfg MonitorConfig) *Monitor {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 32
	}
	return &Monitor{
		cfg:   cfg,
		queue: make(chan Violation, buffer),
		log:   cfg.Log.With().Str("component", "proctor_monitor").Logger(),
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dropped returns how many reports were discarded on a full queue.
func (m *Monitor) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Start launches every detector and the dispatch goroutine. Only valid
// from StateIdle.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = StateRunning
	m.mu.Unlock()

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.dispatch(ctx)

	for _, d := range m.cfg.Detectors {
		if err := d.Start(m.enqueue); err != nil {
			m.Stop()
			return err
		}
	}

	m.log.Info().Int("detectors", len(m.cfg.Detectors)).Msg("Monitor started")
	return nil
}

// enqueue is the emit callback handed to detectors. Never blocks.
func (m *Monitor) enqueue(v Violation) {
	select {
	case m.queue <- v:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
		m.log.Warn().Str("kind", string(v.Kind)).Msg("Report queue full, dropping")
	}
}

func (m *Monitor) dispatch(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		case v := <-m.queue:
			outcome, err := m.cfg.Sender.Send(ctx, v)
			if err != nil {
				// Best-effort: the offline queue layer, not the monitor,
				// owns durable delivery.
				m.log.Warn().Err(err).Str("kind", string(v.Kind)).Msg("Report send failed")
				continue
			}

			if outcome.Terminated {
				m.terminate()
				return
			}
			if m.cfg.OnWarning != nil {
				m.cfg.OnWarning(outcome.Remaining)
			}
		}
	}
}

func (m *Monitor) terminate() {
	m.mu.Lock()
	already := m.state == StateTerminated
	m.state = StateTerminated
	m.mu.Unlock()
	if already {
		return
	}

	for _, d := range m.cfg.Detectors {
		d.Stop()
	}
	m.log.Info().Msg("Attempt terminated by server, monitor halted")
	if m.cfg.OnTerminated != nil {
		m.cfg.OnTerminated()
	}
}

// Stop halts detectors and the dispatcher. Queued reports not yet sent are
// discarded. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	m.state = StateStopped
	m.mu.Unlock()

	for _, d := range m.cfg.Detectors {
		d.Stop()
	}
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.log.Info().Msg("Monitor stopped")
}
