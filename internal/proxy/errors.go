package proxy

import (
	"fmt"

	"github.com/ppiankov/neurorouter"
)

// RateLimitError rejects a request before it is forwarded. The request is
// not counted against the window. Matches neurorouter.ErrRateLimited via
// errors.Is.
type RateLimitError struct {
	Limit int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests/minute", e.Limit)
}

func (e *RateLimitError) Unwrap() error { return neurorouter.ErrRateLimited }

// TokenLimitError rejects a request whose estimated token count exceeds the
// per-request maximum.
type TokenLimitError struct {
	Estimated float64
	Limit     int
}

func (e *TokenLimitError) Error() string {
	return fmt.Sprintf("token limit exceeded: estimated %.0f > %d", e.Estimated, e.Limit)
}

// UpstreamError carries a non-success HTTP response from the proxy as a
// structured value callers can branch on. A 429 additionally matches
// neurorouter.ErrRateLimited.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("proxy HTTP %d: %s", e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	if e.Status == 429 {
		return neurorouter.ErrRateLimited
	}
	return nil
}
