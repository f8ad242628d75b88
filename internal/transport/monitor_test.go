package transport

import (
	"context"
	"errors"
	"testing"
)

type scriptedTransport struct {
	errs []error
	call int
}

func (s *scriptedTransport) Open(context.Context) error  { return nil }
func (s *scriptedTransport) Close(context.Context) error { return nil }
func (s *scriptedTransport) Events() <-chan Event        { return nil }

func (s *scriptedTransport) next() error {
	if s.call >= len(s.errs) {
		return nil
	}
	err := s.errs[s.call]
	s.call++
	return err
}

func (s *scriptedTransport) SendText(context.Context, string) error          { return s.next() }
func (s *scriptedTransport) SendPhoto(context.Context, string, []byte) error { return s.next() }
func (s *scriptedTransport) SendMenu(context.Context, string, [][]Button) error {
	return s.next()
}

func TestMonitoredFiresAtThreshold(t *testing.T) {
	boom := errors.New("send failed")
	fired := 0
	m := NewMonitored(&scriptedTransport{errs: []error{boom, boom, boom, boom, boom}}, 4, func() {
		fired++
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := m.SendText(ctx, "x"); err == nil {
			t.Fatal("expected error")
		}
	}
	if fired != 0 {
		t.Fatalf("threshold fired after 3 failures")
	}
	if err := m.SendText(ctx, "x"); err == nil {
		t.Fatal("expected error")
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	// Additional failures past the threshold do not re-fire.
	if err := m.SendText(ctx, "x"); err == nil {
		t.Fatal("expected error")
	}
	if fired != 1 {
		t.Fatalf("fired = %d after extra failure, want 1", fired)
	}
}

func TestMonitoredSuccessResetsCount(t *testing.T) {
	boom := errors.New("send failed")
	fired := 0
	m := NewMonitored(&scriptedTransport{errs: []error{boom, boom, boom, nil, boom}}, 4, func() {
		fired++
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = m.SendText(ctx, "x")
	}
	if fired != 0 {
		t.Fatalf("threshold fired despite intervening success")
	}
	if got := m.Failures(); got != 1 {
		t.Errorf("Failures() = %d, want 1", got)
	}
}

func TestMonitoredResetFailures(t *testing.T) {
	boom := errors.New("send failed")
	m := NewMonitored(&scriptedTransport{errs: []error{boom, boom}}, 4, nil)

	ctx := context.Background()
	_ = m.SendText(ctx, "x")
	_ = m.SendText(ctx, "x")
	if got := m.Failures(); got != 2 {
		t.Fatalf("Failures() = %d, want 2", got)
	}
	m.ResetFailures()
	if got := m.Failures(); got != 0 {
		t.Errorf("Failures() after reset = %d", got)
	}
}
