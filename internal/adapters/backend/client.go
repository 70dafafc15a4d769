// Package backend talks to the catalog/booking REST service.
package backend

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"concierge/internal/adapters/observability"
	"concierge/internal/domain"
)

const service = "backend"

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Catalog reads (modern endpoints first, legacy variants after) ----

func (c *Client) GetProperties(ctx context.Context) ([]map[string]any, error) {
	return c.list(ctx, "properties",
		c.base+"/properties",
		c.base+"/organization/properties",
	)
}

func (c *Client) GetRoomTypes(ctx context.Context, propertyID int64) ([]map[string]any, error) {
	return c.list(ctx, "room_types",
		fmt.Sprintf("%s/properties/%d/room-types", c.base, propertyID),
		fmt.Sprintf("%s/properties/%d/roomtypes", c.base, propertyID),
		fmt.Sprintf("%s/room-types?propertyId=%d", c.base, propertyID),
	)
}

func (c *Client) GetRateCodes(ctx context.Context, propertyID int64) ([]map[string]any, error) {
	return c.list(ctx, "rate_codes",
		fmt.Sprintf("%s/properties/%d/rate-codes", c.base, propertyID),
		fmt.Sprintf("%s/properties/%d/ratecodes", c.base, propertyID),
		fmt.Sprintf("%s/rate-codes?propertyId=%d", c.base, propertyID),
	)
}

// ---- Booking ----

type reservationRequest struct {
	PropertyID    int64   `json:"propertyId"`
	RoomTypeID    int64   `json:"roomTypeId"`
	RateCodeID    *int64  `json:"rateCodeId,omitempty"`
	CheckIn       string  `json:"checkIn"`
	CheckOut      string  `json:"checkOut"`
	Adults        int     `json:"adults"`
	Children      int     `json:"children"`
	GuestName     string  `json:"guestName,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Email         string  `json:"email,omitempty"`
	PaymentMethod *string `json:"paymentMethod,omitempty"`
}

// CreateReservation posts a validated payload. It is not retried on 5xx:
// the reservation may already exist.
func (c *Client) CreateReservation(ctx context.Context, p domain.ExtractedPayload) (domain.Reservation, error) {
	if p.MatchedProperty == nil || p.MatchedRoomType == nil || p.CheckIn == nil || p.CheckOut == nil || p.Adults == nil {
		return domain.Reservation{}, fmt.Errorf("reservation payload incomplete")
	}
	body := reservationRequest{
		PropertyID:    p.MatchedProperty.ID,
		RoomTypeID:    p.MatchedRoomType.ID,
		CheckIn:       *p.CheckIn,
		CheckOut:      *p.CheckOut,
		Adults:        *p.Adults,
		PaymentMethod: p.PaymentMethod,
	}
	if p.MatchedRateCode != nil {
		body.RateCodeID = &p.MatchedRateCode.ID
	}
	if p.Children != nil {
		body.Children = *p.Children
	}
	if p.GuestName != nil {
		body.GuestName = *p.GuestName
	}
	if p.Phone != nil {
		body.Phone = *p.Phone
	}
	if p.Email != nil {
		body.Email = *p.Email
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return domain.Reservation{}, err
	}

	var raw map[string]any
	if err := c.do(ctx, http.MethodPost, "reservations", c.base+"/reservations", buf, &raw); err != nil {
		return domain.Reservation{}, err
	}
	res := domain.Reservation{
		ConfirmationNumber: firstString(raw, "confirmationNumber", "confirmation_number", "id", "reservationId"),
		Status:             firstString(raw, "status", "state"),
	}
	if res.ConfirmationNumber == "" {
		return domain.Reservation{}, fmt.Errorf("reservation response without confirmation number")
	}
	return res, nil
}

// ---- Internals ----

// list tries each URL until one is not a 404, then unwraps {"data": [...]}-style envelopes.
func (c *Client) list(ctx context.Context, endpoint string, urls ...string) ([]map[string]any, error) {
	var last error
	for _, u := range urls {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, endpoint, u, nil, &raw); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				last = err
				continue // try next pattern
			}
			return nil, err // non-404: stop early
		}
		return unwrapList(raw)
	}
	if last != nil {
		return nil, last
	}
	return nil, errors.New("no candidate URL succeeded")
}

func unwrapList(raw json.RawMessage) ([]map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []map[string]any
		return out, json.Unmarshal(raw, &out)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	for _, k := range []string{"data", "items", "results", "properties", "roomTypes", "rateCodes"} {
		if v, ok := env[k]; ok {
			return unwrapList(v)
		}
	}
	return nil, fmt.Errorf("unexpected list envelope")
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

// do performs one logical call with client-side rate limiting, retries, and JSON decode into out.
// GETs retry on 429 and transient 5xx; POSTs only on 429. Retry-After is honored when provided.
func (c *Client) do(ctx context.Context, method, endpoint, url string, body []byte, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	idempotent := method == http.MethodGet

	var lastErr error
	for i := 0; i < 4; i++ {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return err
		}
		req.Header.Set("X-API-Key", c.key)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "concierge/1.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if idempotent && i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal(service, endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return fmt.Errorf("%s %s: %w", method, endpoint, domain.ErrNotFound)

		case http.StatusUnauthorized:
			resp.Body.Close()
			return fmt.Errorf("%s %s: %w", method, endpoint, domain.ErrUnauthorized)

		case http.StatusForbidden:
			resp.Body.Close()
			return fmt.Errorf("%s %s: %w", method, endpoint, domain.ErrForbidden)

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			retry := idempotent || resp.StatusCode == http.StatusTooManyRequests
			if retry && i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
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

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
