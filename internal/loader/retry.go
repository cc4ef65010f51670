package loader

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// RetryPolicy defines retry behavior for loads that fail with a
// connection or timeout error
type RetryPolicy struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialDelay    time.Duration `mapstructure:"initial_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	Multiplier      float64       `mapstructure:"multiplier"`
	RandomizeFactor float64       `mapstructure:"randomize_factor"`
}

// NewRetryPolicy creates a retry policy with exponential backoff
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

func (rp *RetryPolicy) validate() error {
	if rp.MaxAttempts < 1 {
		return errors.New(errors.ErrorTypeValidation, "retry: max_attempts must be at least 1")
	}
	if rp.InitialDelay < 0 || rp.MaxDelay < 0 || rp.Multiplier < 1 {
		return errors.New(errors.ErrorTypeValidation, "retry: delays must be non-negative and multiplier at least 1")
	}
	if rp.RandomizeFactor < 0 || rp.RandomizeFactor > 1 {
		return errors.New(errors.ErrorTypeValidation, "retry: randomize_factor must be within [0, 1]")
	}
	return nil
}

// Execute runs fn until it succeeds, fails with a non-retryable error or
// runs out of attempts
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.IsRetryable(err) || attempt == rp.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(rp.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled")
		case <-timer.C:
		}
	}
	if rp.MaxAttempts > 1 && errors.IsRetryable(lastErr) {
		return errors.Wrap(lastErr, errors.TypeOf(lastErr), fmt.Sprintf("all %d attempts failed", rp.MaxAttempts))
	}
	return lastErr
}

// delay returns the backoff before the given retry, with jitter
func (rp *RetryPolicy) delay(attempt int) time.Duration {
	d := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))
	if rp.MaxDelay > 0 && d > float64(rp.MaxDelay) {
		d = float64(rp.MaxDelay)
	}
	if rp.RandomizeFactor > 0 {
		delta := d * rp.RandomizeFactor
		d = d - delta + rand.Float64()*2*delta
	}
	return time.Duration(d)
}

// Retrying wraps a loader with a retry policy
type Retrying struct {
	Loader
	policy *RetryPolicy
}

// WithRetry returns l retried according to policy
func WithRetry(l Loader, policy *RetryPolicy) *Retrying {
	return &Retrying{Loader: l, policy: policy}
}

func (r *Retrying) Load(ctx context.Context) (*models.Table, error) {
	var table *models.Table
	err := r.policy.Execute(ctx, func() error {
		var err error
		table, err = r.Loader.Load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// retryFromOptions removes the "retry" key from loader options and decodes
// it. It returns nil when no retry is configured.
func retryFromOptions(options map[string]interface{}) (map[string]interface{}, *RetryPolicy, error) {
	raw, ok := options["retry"]
	if !ok {
		return options, nil, nil
	}
	rest := make(map[string]interface{}, len(options)-1)
	for k, v := range options {
		if k != "retry" {
			rest[k] = v
		}
	}
	settings, ok := raw.(map[string]interface{})
	if !ok {
		return nil, nil, errors.Newf(errors.ErrorTypeValidation, "retry options must be a mapping, got %T", raw)
	}
	policy := NewRetryPolicy(3, 500*time.Millisecond)
	if err := decodeOptions(settings, policy); err != nil {
		return nil, nil, err
	}
	if err := policy.validate(); err != nil {
		return nil, nil, err
	}
	return rest, policy, nil
}
