package extractor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"concierge/internal/domain"
)

// Policy decides how one logical extraction request is attempted. It knows
// nothing about transports; Client asks it what to do after each attempt.
type Policy struct {
	Timeout          time.Duration // per attempt
	RateLimitBackoff time.Duration // fixed wait before the single 429 retry
	RateLimitRetries int
}

func DefaultPolicy() Policy {
	return Policy{Timeout: 30 * time.Second, RateLimitBackoff: time.Second, RateLimitRetries: 1}
}

// Classify maps one attempt's outcome to a failure kind. It returns "" for a
// 2xx response, which the caller must still parse.
// attemptErr is the context error of the attempt, if any.
func (p Policy) Classify(status int, err, attemptErr error) domain.ErrorKind {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptErr, context.DeadlineExceeded) {
			return domain.KindTimeout
		}
		return domain.KindNetworkError
	}
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.KindAuthError
	case status == http.StatusRequestTimeout:
		return domain.KindTimeout
	default:
		// >=500 and unexpected 4xx both surface as a server-side failure.
		return domain.KindServerError
	}
}

// Retry reports whether a failure of kind after retriesSoFar retries warrants another attempt.
func (p Policy) Retry(kind domain.ErrorKind, retriesSoFar int) bool {
	return kind == domain.KindRateLimited && retriesSoFar < p.RateLimitRetries
}

// Backoff is the wait before the given retry (1-based).
func (p Policy) Backoff(_ int) time.Duration {
	return p.RateLimitBackoff
}
