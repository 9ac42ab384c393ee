package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerGateway stops calling a failing gateway for a while. Only
// transport errors count as failures; a declined charge is a normal answer.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[ChargeResult]
}

func NewBreakerGateway(next Gateway, cfg BreakerConfig, log *logrus.Logger) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}
	return &BreakerGateway{next: next, cb: gobreaker.NewCircuitBreaker[ChargeResult](settings)}
}

func (b *BreakerGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	res, err := b.cb.Execute(func() (ChargeResult, error) {
		return b.next.Charge(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ChargeResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, err
}
