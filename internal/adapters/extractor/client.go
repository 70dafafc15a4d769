// Package extractor calls the external natural-language extractor once per
// conversation turn and classifies every way that call can fail.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"concierge/internal/adapters/observability"
	"concierge/internal/domain"
)

type Client struct {
	transport Transport
	policy    Policy
	rl        *rate.Limiter
}

func New(t Transport, p Policy, rps int) *Client {
	if rps <= 0 {
		rps = 5
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy().Timeout
	}
	return &Client{transport: t, policy: p, rl: rate.NewLimiter(rate.Limit(rps), rps)}
}

// requestAttempt is the transient state of one logical request.
type requestAttempt struct {
	n        int
	started  time.Time
	lastKind domain.ErrorKind
}

// Extract performs one logical request. Failures are *domain.ExtractionError;
// only a rate-limited attempt is retried, and only as often as the policy allows.
func (c *Client) Extract(ctx context.Context, req domain.ExtractRequest) (domain.Extraction, error) {
	wire := Request{
		UserText:       req.UserText,
		Context:        req.Context,
		CatalogContext: req.Catalog,
		Rules:          ContractPrompt(req.Today),
		Today:          req.Today,
	}
	att := requestAttempt{started: time.Now()}

	for {
		att.n++
		res := c.attempt(ctx, wire)
		kind := c.policy.Classify(res.status, res.err, res.ctxErr)
		if kind == "" {
			ext, perr := parseExtraction(res.body)
			if perr != nil {
				return domain.Extraction{}, c.fail(att, domain.KindParseError, res.status, perr)
			}
			log.Debug().Str("transport", c.transport.Name()).Int("attempts", att.n).
				Dur("elapsed", time.Since(att.started)).Msg("extraction ok")
			return ext, nil
		}
		att.lastKind = kind

		if c.policy.Retry(kind, att.n-1) {
			wait := c.policy.Backoff(att.n)
			log.Warn().Str("transport", c.transport.Name()).Str("kind", string(kind)).
				Int("attempt", att.n).Dur("backoff", wait).Msg("extraction retry")
			if !sleepCtx(ctx, wait) {
				return domain.Extraction{}, c.fail(att, domain.KindNetworkError, 0, ctx.Err())
			}
			continue
		}

		err := res.err
		if err == nil {
			err = fmt.Errorf("remote %d", res.status)
		}
		return domain.Extraction{}, c.fail(att, kind, res.status, err)
	}
}

type attemptResult struct {
	status int
	body   []byte
	err    error // no response received
	ctxErr error // the attempt context's error after Send returned
}

func (c *Client) attempt(ctx context.Context, req Request) attemptResult {
	actx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	if err := c.rl.Wait(actx); err != nil {
		if ctx.Err() != nil {
			return attemptResult{err: ctx.Err(), ctxErr: actx.Err()}
		}
		return attemptResult{err: fmt.Errorf("%w: %v", context.DeadlineExceeded, err), ctxErr: actx.Err()}
	}

	start := time.Now()
	status, body, err := c.transport.Send(actx, req)
	observability.ObserveExternal(c.transport.Name(), "extract", status, time.Since(start))
	return attemptResult{status: status, body: body, err: err, ctxErr: actx.Err()}
}

func (c *Client) fail(att requestAttempt, kind domain.ErrorKind, status int, err error) error {
	observability.ObserveExtractionFailure(string(kind))
	log.Warn().Err(err).Str("transport", c.transport.Name()).Str("kind", string(kind)).
		Int("status", status).Int("attempts", att.n).Dur("elapsed", time.Since(att.started)).
		Msg("extraction failed")
	if err == nil {
		err = errors.New(string(kind))
	}
	return &domain.ExtractionError{Kind: kind, Status: status, Err: err}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
