package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker guarding the transport.
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive failures that open
	// the breaker.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open before allowing a
	// single probe call through.
	ResetTimeout time.Duration
}

// DefaultBreakerSettings opens after 3 consecutive failures and probes
// again after 60 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
	}
}

// Sender wraps a Transport with a circuit breaker. After the failure
// threshold is reached the breaker opens and Send fails fast with
// ErrServiceUnavailable until the reset timeout elapses; the first call
// after that is the single probe that decides whether to close again.
type Sender struct {
	transport Transport
	cb        *gobreaker.CircuitBreaker
	log       *slog.Logger
}

// NewSender creates a breaker-guarded sender around the given transport.
func NewSender(
	transport Transport,
	settings BreakerSettings,
	log *slog.Logger,
) *Sender {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 3
	}
	if settings.ResetTimeout <= 0 {
		settings.ResetTimeout = 60 * time.Second
	}

	cbSettings := gobreaker.Settings{
		Name:        "mail-transport",
		MaxRequests: 1, // single probe while half-open
		Timeout:     settings.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= settings.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Auth failures are client-side; retrying cannot help, so
			// they must not open the circuit.
			return err == nil || IsAuthError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Sender{
		transport: transport,
		cb:        gobreaker.NewCircuitBreaker(cbSettings),
		log:       log,
	}
}

// Send delivers a message through the circuit breaker. When the breaker
// is open the transport is not invoked and ErrServiceUnavailable is
// returned immediately.
func (s *Sender) Send(ctx context.Context, msg *OutgoingMessage) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.transport.Send(ctx, msg)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open for %s", ErrServiceUnavailable, msg.To)
	}

	return err
}

// BreakerOpen reports whether the breaker is currently rejecting calls.
func (s *Sender) BreakerOpen() bool {
	return s.cb.State() == gobreaker.StateOpen
}
