package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedTransport returns the queued errors in order, then succeeds.
type scriptedTransport struct {
	errs  []error
	calls int
}

func (t *scriptedTransport) Send(context.Context, *OutgoingMessage) error {
	t.calls++
	if len(t.errs) == 0 {
		return nil
	}
	err := t.errs[0]
	t.errs = t.errs[1:]
	return err
}

func TestSenderPassesThroughSuccess(t *testing.T) {
	tr := &scriptedTransport{}
	s := NewSender(tr, DefaultBreakerSettings(), discardLogger())

	err := s.Send(context.Background(), &OutgoingMessage{To: "a@example.com"})

	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls)
	assert.False(t, s.BreakerOpen())
}

func TestSenderOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("connection refused")
	tr := &scriptedTransport{errs: []error{boom, boom, boom}}
	s := NewSender(tr, BreakerSettings{FailureThreshold: 3, ResetTimeout: time.Minute}, discardLogger())

	msg := &OutgoingMessage{To: "a@example.com"}
	for i := 0; i < 3; i++ {
		err := s.Send(context.Background(), msg)
		require.ErrorIs(t, err, boom)
	}

	require.True(t, s.BreakerOpen())

	// While open the transport is not invoked at all.
	err := s.Send(context.Background(), msg)
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, 3, tr.calls)
}

func TestSenderFailureCountResetsOnSuccess(t *testing.T) {
	boom := errors.New("connection refused")
	tr := &scriptedTransport{errs: []error{boom, boom, nil, boom, boom}}
	s := NewSender(tr, BreakerSettings{FailureThreshold: 3, ResetTimeout: time.Minute}, discardLogger())

	msg := &OutgoingMessage{To: "a@example.com"}
	for i := 0; i < 5; i++ {
		s.Send(context.Background(), msg)
	}

	// Two failures, a success, two more failures: never three in a row.
	assert.False(t, s.BreakerOpen())
	assert.Equal(t, 5, tr.calls)
}

func TestSenderProbeClosesBreaker(t *testing.T) {
	boom := errors.New("connection refused")
	tr := &scriptedTransport{errs: []error{boom, boom}}
	s := NewSender(tr, BreakerSettings{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond}, discardLogger())

	msg := &OutgoingMessage{To: "a@example.com"}
	s.Send(context.Background(), msg)
	s.Send(context.Background(), msg)
	require.True(t, s.BreakerOpen())

	time.Sleep(80 * time.Millisecond)

	// The reset timeout elapsed; the next call is the probe and it
	// succeeds, closing the breaker.
	err := s.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, s.BreakerOpen())
	assert.Equal(t, 3, tr.calls)
}

func TestSenderProbeFailureReopens(t *testing.T) {
	boom := errors.New("connection refused")
	tr := &scriptedTransport{errs: []error{boom, boom, boom}}
	s := NewSender(tr, BreakerSettings{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond}, discardLogger())

	msg := &OutgoingMessage{To: "a@example.com"}
	s.Send(context.Background(), msg)
	s.Send(context.Background(), msg)
	require.True(t, s.BreakerOpen())

	time.Sleep(80 * time.Millisecond)

	err := s.Send(context.Background(), msg)
	require.ErrorIs(t, err, boom)
	assert.True(t, s.BreakerOpen())

	// Open again for a full reset window.
	err = s.Send(context.Background(), msg)
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, 3, tr.calls)
}

func TestSenderAuthErrorDoesNotTrip(t *testing.T) {
	auth := &AuthError{Server: "smtp.example.com", Message: "535 bad credentials"}
	tr := &scriptedTransport{errs: []error{auth, auth, auth, auth}}
	s := NewSender(tr, BreakerSettings{FailureThreshold: 3, ResetTimeout: time.Minute}, discardLogger())

	msg := &OutgoingMessage{To: "a@example.com"}
	for i := 0; i < 4; i++ {
		err := s.Send(context.Background(), msg)
		require.True(t, IsAuthError(err))
	}

	assert.False(t, s.BreakerOpen())
	assert.Equal(t, 4, tr.calls)
}
