package transport

import (
	"context"
	"sync"
)

// Monitored wraps a Transport and tracks consecutive outbound failures.
// Any successful send resets the count; callers reset it explicitly when
// an inbound event proves the chat is alive. The OnThreshold callback
// fires once each time the count reaches the configured threshold.
type Monitored struct {
	Transport

	mu          sync.Mutex
	consecutive int
	threshold   int
	onThreshold func()
	fired       bool
}

// DefaultFailureThreshold is the number of consecutive delivery failures
// after which a session is considered dead.
const DefaultFailureThreshold = 4

func NewMonitored(t Transport, threshold int, onThreshold func()) *Monitored {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &Monitored{Transport: t, threshold: threshold, onThreshold: onThreshold}
}

func (m *Monitored) SendText(ctx context.Context, text string) error {
	return m.track(m.Transport.SendText(ctx, text))
}

func (m *Monitored) SendPhoto(ctx context.Context, caption string, image []byte) error {
	return m.track(m.Transport.SendPhoto(ctx, caption, image))
}

func (m *Monitored) SendMenu(ctx context.Context, text string, rows [][]Button) error {
	return m.track(m.Transport.SendMenu(ctx, text, rows))
}

// ResetFailures clears the consecutive failure count. Sessions call this
// on every inbound event.
func (m *Monitored) ResetFailures() {
	m.mu.Lock()
	m.consecutive = 0
	m.fired = false
	m.mu.Unlock()
}

// Failures returns the current consecutive failure count.
func (m *Monitored) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutive
}

func (m *Monitored) track(err error) error {
	m.mu.Lock()
	if err == nil {
		m.consecutive = 0
		m.fired = false
		m.mu.Unlock()
		return nil
	}
	m.consecutive++
	fire := m.consecutive >= m.threshold && !m.fired && m.onThreshold != nil
	if fire {
		m.fired = true
	}
	cb := m.onThreshold
	m.mu.Unlock()

	if fire {
		cb()
	}
	return err
}
