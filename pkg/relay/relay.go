package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/WuVi5054/mentor-ai/pkg/observability"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// ErrDelivery marks a failed webhook delivery (non-2xx response or
// network failure). Reported to the caller, never fatal.
var ErrDelivery = errors.New("webhook delivery failed")

// RetryPolicy is the injectable retry strategy for a delivery.
type RetryPolicy struct {
	// MaxTries caps the number of attempts (minimum 1).
	MaxTries uint
	// InitialInterval seeds the exponential backoff between attempts.
	InitialInterval time.Duration
	// MaxInterval caps the backoff between attempts.
	MaxInterval time.Duration
	// MaxElapsedTime bounds the whole delivery (0 = no bound).
	MaxElapsedTime time.Duration
}

// SingleAttempt delivers once and reports failure without retrying,
// matching the sink's original contract.
func SingleAttempt() RetryPolicy {
	return RetryPolicy{MaxTries: 1}
}

// DefaultBackoff retries with bounded exponential backoff.
func DefaultBackoff() RetryPolicy {
	return RetryPolicy{
		MaxTries:        4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// Config holds relay configuration.
type Config struct {
	// SinkURL is the webhook endpoint.
	SinkURL string
	// Policy is the retry strategy (default: SingleAttempt).
	Policy RetryPolicy
	// RequestsPerSecond rate-limits posts to the sink (0 = unlimited).
	RequestsPerSecond float64
	// HTTPClient overrides the transport (optional).
	HTTPClient *http.Client
}

// Relay posts delivery records to the external sink. It never blocks
// the realtime path: callers trigger it from their own goroutines.
type Relay struct {
	sink    string
	policy  RetryPolicy
	limiter *rate.Limiter
	httpc   *http.Client
}

// New creates a delivery relay.
func New(cfg Config) (*Relay, error) {
	if cfg.SinkURL == "" {
		return nil, errors.New("sink url is required")
	}

	policy := cfg.Policy
	if policy.MaxTries == 0 {
		policy = SingleAttempt()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}

	return &Relay{sink: cfg.SinkURL, policy: policy, limiter: limiter, httpc: httpc}, nil
}

// Deliver posts the record to the sink, applying the retry policy.
// The returned error wraps ErrDelivery when all attempts failed.
func (r *Relay) Deliver(ctx context.Context, rec *Record) error {
	ctx, span := observability.StartSpan(ctx, "relay.Deliver", trace.WithAttributes(
		attribute.String("record.id", rec.ID),
		attribute.String("record.trigger", rec.Trigger),
		attribute.Int("record.messages", len(rec.Entries)),
	))
	defer span.End()

	body, err := rec.Payload()
	if err != nil {
		return fmt.Errorf("deliver %s: %w", rec.ID, err)
	}

	start := time.Now()
	operation := func() (struct{}, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, r.post(ctx, body)
	}

	expo := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		expo.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		expo.MaxInterval = r.policy.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(r.policy.MaxTries),
	}
	if r.policy.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.policy.MaxElapsedTime))
	}

	_, err = backoff.Retry(ctx, operation, opts...)
	status := "delivered"
	if err != nil {
		status = "failed"
		span.RecordError(err)
	}
	observability.RecordDelivery(rec.Trigger, status, time.Since(start))

	if err != nil {
		return fmt.Errorf("deliver %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Relay) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.sink, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrDelivery, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: status %d", ErrDelivery, resp.StatusCode)
		// Client errors will not heal on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}
