package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"threadbot/internal/domain"
)

// Failover tries models in order, moving to the next one only when the
// current failure is retryable (rate limit, overload, outage).
type Failover struct {
	models []domain.Model
	logger *slog.Logger
}

// NewFailover creates a failover chain. At least one model is required.
func NewFailover(models []domain.Model, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{models: models, logger: logger}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.models))
	for i, m := range f.models {
		names[i] = m.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

func (f *Failover) Healthy(ctx context.Context) error {
	var errs []error
	for _, m := range f.models {
		err := m.Healthy(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
	}
	return fmt.Errorf("no healthy model in failover chain: %w", errors.Join(errs...))
}

// Invoke returns the first successful response. An explicit model override
// in the request applies to the first attempt only.
func (f *Failover) Invoke(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error) {
	if len(f.models) == 0 {
		return nil, errors.New("failover: no models configured")
	}
	var lastErr error
	for i, m := range f.models {
		attempt := req
		if i > 0 {
			attempt.Model = ""
		}
		resp, err := m.Invoke(ctx, attempt)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback model", "model", m.Name(), "attempt", i+1)
			}
			return resp, nil
		}
		lastErr = err
		if !Retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn("failover: model failed, trying next", "model", m.Name(), "attempt", i+1, "err", err)
	}
	return nil, fmt.Errorf("all models in failover chain failed: %w", lastErr)
}
