package proctor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/proktora/proktora-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSender replays canned outcomes and records what it was sent.
type scriptedSender struct {
	mu       sync.Mutex
	sent     []Violation
	outcomes []Outcome
	block    chan struct{}
}

func (s *scriptedSender) Send(_ context.Context, v Violation) (*Outcome, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, v)
	out := Outcome{Count: len(s.sent), Ceiling: 3, Remaining: 3 - len(s.sent)}
	if len(s.outcomes) > 0 {
		out = s.outcomes[0]
		if len(s.outcomes) > 1 {
			s.outcomes = s.outcomes[1:]
		}
	}
	return &out, nil
}

func (s *scriptedSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestMonitorDispatchesAndWarns(t *testing.T) {
	src := NewFanoutSource()
	sender := &scriptedSender{}

	var mu sync.Mutex
	var warnings []int
	m := NewMonitor(MonitorConfig{
		Detectors: []Detector{NewTabDetector(src), NewClipboardDetector(src)},
		Sender:    sender,
		OnWarning: func(remaining int) {
			mu.Lock()
			warnings = append(warnings, remaining)
			mu.Unlock()
		},
		Log: zerolog.Nop(),
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	assert.Equal(t, StateRunning, m.State())

	src.Publish(Event{Type: EventVisibilityHidden})
	src.Publish(Event{Type: EventClipboardCopy})

	waitFor(t, func() bool { return sender.sentCount() == 2 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 1}, warnings)
}

func TestMonitorTerminatesOnServerSignal(t *testing.T) {
	src := NewFanoutSource()
	sender := &scriptedSender{
		outcomes: []Outcome{{Count: 3, Ceiling: 3, Remaining: 0, Terminated: true}},
	}

	terminated := make(chan struct{})
	m := NewMonitor(MonitorConfig{
		Detectors:    []Detector{NewTabDetector(src)},
		Sender:       sender,
		OnTerminated: func() { close(terminated) },
		Log:          zerolog.Nop(),
	})

	require.NoError(t, m.Start(context.Background()))
	src.Publish(Event{Type: EventVisibilityHidden})

	select {
	case <-terminated:
	case <-time.After(2 * time.Second):
		t.Fatal("termination callback never fired")
	}
	assert.Equal(t, StateTerminated, m.State())

	// Detectors are halted: fresh events produce no further sends.
	src.Publish(Event{Type: EventVisibilityVisible})
	src.Publish(Event{Type: EventVisibilityHidden})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sender.sentCount())
}

func TestMonitorFullBufferDropsInsteadOfBlocking(t *testing.T) {
	sender := &scriptedSender{block: make(chan struct{})}
	m := NewMonitor(MonitorConfig{
		Sender: sender,
		Buffer: 1,
		Log:    zerolog.Nop(),
	})
	require.NoError(t, m.Start(context.Background()))

	// First report is picked up by the (blocked) dispatcher, second fills
	// the buffer, the rest must drop without blocking this goroutine.
	for i := 0; i < 5; i++ {
		m.enqueue(Violation{Kind: model.ViolationTabHidden, OccurredAt: time.Now()})
	}
	waitFor(t, func() bool { return m.Dropped() >= 3 })

	close(sender.block)
	m.Stop()
}

func TestMonitorStartTwice(t *testing.T) {
	m := NewMonitor(MonitorConfig{Sender: &scriptedSender{}, Log: zerolog.Nop()})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
}
