package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
)

var (
	ErrRateLimit   = errors.New("model rate limited")
	ErrUnavailable = errors.New("model unavailable")
	ErrAuth        = errors.New("model authentication failed")
	ErrBadRequest  = errors.New("model rejected request")
)

// Retryable reports whether another model may succeed where this one failed.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}

// mapError converts an SDK error into one of the sentinel errors above.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimit, apiErr.Error())
	case 529, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrUnavailable, apiErr.Error())
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w (HTTP %d): %s", ErrAuth, apiErr.StatusCode, apiErr.Error())
	case http.StatusBadRequest, http.StatusNotFound, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w (HTTP %d): %s", ErrBadRequest, apiErr.StatusCode, apiErr.Error())
	default:
		return fmt.Errorf("claude error (HTTP %d): %w", apiErr.StatusCode, err)
	}
}
