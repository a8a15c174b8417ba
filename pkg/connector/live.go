package connector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/fenwick-quant/soakctl/pkg/errs"
	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// Request is a wire-agnostic description of one outbound call. Live never
// assumes a concrete REST schema; the caller's Transport decides how to
// encode it.
type Request struct {
	Verb     string // "place_batch", "cancel_batch", "stream_orderbook", "stream_fills"
	Symbol   string
	Payload  any
}

// Response is the wire-agnostic result of one Transport call.
type Response struct {
	StatusCode int
	RetryAfter time.Duration
	Body       any
}

// Transport performs one Request against the real exchange and returns a
// Response or a transport-level error. Implementations decide HTTP/WS/FIX
// framing; Live only consumes the Response envelope.
type Transport func(ctx context.Context, req Request) (Response, error)

// RetryPolicy bounds Live's exponential backoff for TransientIO failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy makes up to 4 attempts in total with a 50ms base delay,
// doubling each attempt.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, BaseDelay: 50 * time.Millisecond}

// Live is a Connector backed by an injected Transport, with a
// sony/gobreaker circuit breaker wrapping every batched call and bounded
// retry/backoff for transient failures. RateLimit responses (429-class,
// reported via Response.RetryAfter) are surfaced through OnRateLimit so the
// Command Bus's token bucket can throttle without the caller hand-rolling
// polling.
type Live struct {
	transport   Transport
	breaker     *gobreaker.CircuitBreaker
	retry       RetryPolicy
	onRateLimit func(symbol string, retryAfter time.Duration)
	logger      zerolog.Logger
}

// LiveOption configures a Live connector.
type LiveOption func(*Live)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) LiveOption {
	return func(l *Live) { l.retry = p }
}

// WithRateLimitCallback registers a hook invoked whenever the transport
// reports a 429-class response, so the Command Bus can feed it back into
// its rate limiter.
func WithRateLimitCallback(fn func(symbol string, retryAfter time.Duration)) LiveOption {
	return func(l *Live) { l.onRateLimit = fn }
}

// NewLive wraps transport in a circuit breaker (named "exchange", trips
// after 5 consecutive failures, half-opens after 10s) and bounded retry.
func NewLive(transport Transport, opts ...LiveOption) *Live {
	l := &Live{
		transport: transport,
		retry:     DefaultRetryPolicy,
		logger:    log.WithComponent("connector.live"),
	}
	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Live) call(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < l.retry.MaxAttempts; attempt++ {
		result, err := l.breaker.Execute(func() (interface{}, error) {
			return l.transport(ctx, req)
		})
		if err == nil {
			resp := result.(Response)
			if resp.StatusCode == 429 {
				if l.onRateLimit != nil {
					l.onRateLimit(req.Symbol, resp.RetryAfter)
				}
				return resp, errs.RateLimit("rate limited by exchange", nil)
			}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return resp, errs.PermanentIO(fmt.Sprintf("exchange rejected %s", req.Verb), nil)
			}
			return resp, nil
		}
		lastErr = errs.TransientIO(fmt.Sprintf("%s attempt %d", req.Verb, attempt+1), err)
		delay := time.Duration(float64(l.retry.BaseDelay) * math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return Response{}, lastErr
}

// PlaceBatch submits orders through the circuit-breaker-protected
// transport; per-element rejection is carried in the Response body by
// convention (callers of NewLive supply a Transport that fills it in).
func (l *Live) PlaceBatch(ctx context.Context, symbol string, orders []types.PlaceIntent) ([]types.PlaceResult, error) {
	resp, err := l.call(ctx, Request{Verb: "place_batch", Symbol: symbol, Payload: orders})
	if err != nil {
		return nil, err
	}
	results, ok := resp.Body.([]types.PlaceResult)
	if !ok {
		return nil, errs.PermanentIO("place_batch: transport returned unexpected body shape", nil)
	}
	return results, nil
}

// CancelBatch cancels client ids through the circuit-breaker-protected
// transport.
func (l *Live) CancelBatch(ctx context.Context, symbol string, clientIDs []string) ([]types.CancelResult, error) {
	resp, err := l.call(ctx, Request{Verb: "cancel_batch", Symbol: symbol, Payload: clientIDs})
	if err != nil {
		return nil, err
	}
	results, ok := resp.Body.([]types.CancelResult)
	if !ok {
		return nil, errs.PermanentIO("cancel_batch: transport returned unexpected body shape", nil)
	}
	return results, nil
}

// StreamOrderBook polls the transport for one snapshot per symbol every
// 200ms; a production Transport backed by a real WS feed would push
// instead, but the wire-agnostic contract here only requires a lazy
// sequence.
func (l *Live) StreamOrderBook(ctx context.Context, symbols []string) (<-chan types.OrderBookSnapshot, error) {
	out := make(chan types.OrderBookSnapshot)
	go func() {
		defer close(out)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sym := range symbols {
					resp, err := l.call(ctx, Request{Verb: "stream_orderbook", Symbol: sym})
					if err != nil {
						l.logger.Warn().Err(err).Str("symbol", sym).Msg("order book fetch failed")
						continue
					}
					snap, ok := resp.Body.(types.OrderBookSnapshot)
					if !ok {
						continue
					}
					select {
					case out <- snap:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// StreamFills polls the transport for new fills every 200ms.
func (l *Live) StreamFills(ctx context.Context) (<-chan types.FillEvent, error) {
	out := make(chan types.FillEvent)
	go func() {
		defer close(out)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				resp, err := l.call(ctx, Request{Verb: "stream_fills"})
				if err != nil {
					l.logger.Warn().Err(err).Msg("fill stream poll failed")
					continue
				}
				fills, ok := resp.Body.([]types.FillEvent)
				if !ok {
					continue
				}
				for _, f := range fills {
					select {
					case out <- f:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}
