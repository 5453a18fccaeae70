package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAPIUnavailable is returned when the search API cannot be reached or reports itself unhealthy
	ErrAPIUnavailable = errors.New("search API unavailable")

	// ErrProductNotFound is returned when a product cannot be found in the catalog
	ErrProductNotFound = errors.New("product not found")

	// ErrSearchCanceled is returned when a search was aborted by its caller
	ErrSearchCanceled = errors.New("search canceled")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrNotImplemented is returned by affordances that have no backend endpoint yet
	ErrNotImplemented = errors.New("not implemented")

	// ErrPreferenceNotSet is returned when a preference has never been stored
	ErrPreferenceNotSet = errors.New("preference not set")
)

// APIError describes a non-2xx response from the search API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("search API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("search API error: %s", e.Status)
}

// IsCanceled reports whether err represents a caller-initiated search cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrSearchCanceled)
}

// UserMessage returns the best human-readable text for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Status != "" {
			return apiErr.Status
		}
	}
	return err.Error()
}
