package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/catalog"
	"concierge/internal/domain"
)

type fakeExtractor struct {
	mu    sync.Mutex
	calls []domain.ExtractRequest
	fn    func(ctx context.Context, req domain.ExtractRequest) (domain.Extraction, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, req domain.ExtractRequest) (domain.Extraction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeExtractor) requests() []domain.ExtractRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ExtractRequest(nil), f.calls...)
}

func returns(ext domain.Extraction) *fakeExtractor {
	return &fakeExtractor{fn: func(context.Context, domain.ExtractRequest) (domain.Extraction, error) { return ext, nil }}
}

type memTurnLog struct {
	mu   sync.Mutex
	recs []domain.TurnRecord
}

func (m *memTurnLog) RecordTurn(_ context.Context, r domain.TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memTurnLog) all() []domain.TurnRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TurnRecord(nil), m.recs...)
}

func newTestPipeline(t *testing.T, x domain.Extractor, data domain.CatalogData) (*Pipeline, *memTurnLog) {
	t.Helper()
	store := catalog.NewStore()
	_, err := store.Replace(data)
	require.NoError(t, err)
	turns := &memTurnLog{}
	return NewPipeline(x, store, resolverAt(t, "2025-07-18"), 0, turns), turns
}

// Catalog of the "book for 3 days" walkthrough: one property, two room types.
func singlePropertyCatalog() domain.CatalogData {
	return domain.CatalogData{
		Properties: []domain.Property{{ID: 1, Name: "Seaside Hotel", City: "Porto", Active: true}},
		RoomTypes: []domain.RoomType{
			{ID: 11, PropertyID: 1, Name: "Double", Occupancy: 2, Inventory: 5},
			{ID: 12, PropertyID: 1, Name: "Family", Occupancy: 4, Inventory: 2},
		},
	}
}

func TestSession_BookForThreeDays(t *testing.T) {
	x := returns(domain.Extraction{
		Text:       "Booking 3 nights for 2 adults.",
		Intent:     domain.IntentReservation,
		Confidence: 0.9,
		Data:       map[string]any{"durationDays": float64(3), "adults": float64(2), "children": float64(0)},
	})
	p, turns := newTestPipeline(t, x, singlePropertyCatalog())
	s := NewSession("s1", p)

	out := s.SubmitTurn(context.Background(), "book for 3 days")

	require.Equal(t, string(StateSuccess), out.State)
	assert.Equal(t, uint64(1), out.Attempt)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.IsValid, out.Result.Errors)
	assert.True(t, out.ShouldFillForm)
	assert.Equal(t, "Booking 3 nights for 2 adults.", out.Text)

	data := out.Result.Data
	assert.Equal(t, "2025-07-18", *data.CheckIn)
	assert.Equal(t, "2025-07-21", *data.CheckOut)
	require.NotNil(t, data.MatchedProperty)
	assert.Equal(t, int64(1), data.MatchedProperty.ID)
	// both rooms hold two adults; the scarcer one is picked
	require.NotNil(t, data.MatchedRoomType)
	assert.Equal(t, int64(12), data.MatchedRoomType.ID)
	assert.Nil(t, data.MatchedRateCode)
	assert.Equal(t, MatchDefaulted, out.Entities.RoomType.Status)

	assert.Equal(t, StateSuccess, s.View().State)
	recs := turns.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "s1", recs[0].SessionID)
	assert.True(t, recs[0].Valid)
	assert.Equal(t, 0.9, recs[0].Confidence)

	req := x.requests()[0]
	assert.Equal(t, "2025-07-18", req.Today)
	assert.Len(t, req.Catalog.RoomTypes, 2)
}

func TestSession_OnlyFittingRoomIsPicked(t *testing.T) {
	x := returns(domain.Extraction{
		Intent:     domain.IntentReservation,
		Confidence: 0.8,
		Data:       map[string]any{"durationDays": 3, "adults": 3},
	})
	p, _ := newTestPipeline(t, x, singlePropertyCatalog())
	out := NewSession("s", p).SubmitTurn(context.Background(), "3 nights, three adults")
	require.NotNil(t, out.Result.Data.MatchedRoomType)
	assert.Equal(t, int64(12), out.Result.Data.MatchedRoomType.ID)
}

func TestSession_ShouldFillFormGates(t *testing.T) {
	cases := []struct {
		name string
		conf float64
		data map[string]any
		want bool
	}{
		{"valid and confident", 0.5, map[string]any{"adults": 2}, true},
		{"valid but unsure", 0.49, map[string]any{"adults": 2}, false},
		{"confident but invalid", 1.0, map[string]any{"checkIn": "2025-07-25", "checkOut": "2025-07-24", "adults": 2}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x := returns(domain.Extraction{Intent: domain.IntentReservation, Confidence: tc.conf, Data: tc.data})
			p, _ := newTestPipeline(t, x, fixtureCatalog())
			out := NewSession("s", p).SubmitTurn(context.Background(), "x")
			require.Equal(t, string(StateSuccess), out.State)
			assert.Equal(t, tc.want, out.ShouldFillForm)
		})
	}
}

func TestSession_CheckOutBeforeCheckInIsReported(t *testing.T) {
	x := returns(domain.Extraction{
		Intent:     domain.IntentReservation,
		Confidence: 0.95,
		Data:       map[string]any{"checkIn": "2025-07-25", "checkOut": "2025-07-24", "adults": 2},
	})
	p, _ := newTestPipeline(t, x, fixtureCatalog())
	out := NewSession("s", p).SubmitTurn(context.Background(), "25th to 24th")

	require.Equal(t, string(StateSuccess), out.State)
	assert.False(t, out.Result.IsValid)
	assert.Equal(t, []string{"Check-out must be after check-in"}, out.Result.Errors)
}

func TestSession_CheckInIgnoresUnrelatedBadFields(t *testing.T) {
	for _, data := range []map[string]any{
		{"confirmationNumber": "ABC123", "adults": true},
		{"confirmationNumber": "ABC123", "email": "john at example"},
	} {
		x := returns(domain.Extraction{Intent: domain.IntentCheckIn, Confidence: 0.9, Data: data})
		p, _ := newTestPipeline(t, x, fixtureCatalog())
		out := NewSession("s", p).SubmitTurn(context.Background(), "checking in, ABC123")

		require.Equal(t, string(StateSuccess), out.State)
		assert.True(t, out.Result.IsValid, out.Result.Errors)
		assert.True(t, out.ShouldFillForm)
	}
}

func TestSession_UnresolvableDayRange(t *testing.T) {
	x := returns(domain.Extraction{
		Intent:     domain.IntentAvailability,
		Confidence: 0.9,
		Data:       map[string]any{"dayRangeStart": 21, "dayRangeEnd": 21, "adults": 1},
	})
	p, _ := newTestPipeline(t, x, fixtureCatalog())
	out := NewSession("s", p).SubmitTurn(context.Background(), "21 to 21")

	assert.False(t, out.Result.IsValid)
	require.NotEmpty(t, out.Result.Issues)
	assert.Equal(t, domain.IssueInvalidRange, out.Result.Issues[0].Kind)
	assert.False(t, out.ShouldFillForm)
}

func TestSession_EntityClaimsAreReresolved(t *testing.T) {
	x := returns(domain.Extraction{
		Intent:     domain.IntentReservation,
		Confidence: 0.9,
		Data: map[string]any{
			"adults":          1,
			"matchedProperty": map[string]any{"id": 20, "name": "Mountain Lodge"},
			"matchedRoomType": map[string]any{"id": 9999, "name": "Alpine Single"},
			"rateCodeHint":    "ski",
		},
	})
	p, _ := newTestPipeline(t, x, fixtureCatalog())
	out := NewSession("s", p).SubmitTurn(context.Background(), "the lodge, single room, ski deal")

	data := out.Result.Data
	assert.Equal(t, int64(20), data.MatchedProperty.ID)
	assert.Equal(t, int64(201), data.MatchedRoomType.ID)
	require.NotNil(t, data.MatchedRateCode)
	assert.Equal(t, int64(2001), data.MatchedRateCode.ID)
}

func TestSession_UnmatchedHintsAddSuggestions(t *testing.T) {
	x := returns(domain.Extraction{
		Intent:      domain.IntentReservation,
		Confidence:  0.9,
		Suggestions: []string{"Would you like breakfast?"},
		Data:        map[string]any{"adults": 2, "propertyHint": "Paris", "rateCodeHint": "corporate"},
	})
	p, _ := newTestPipeline(t, x, fixtureCatalog())
	out := NewSession("s", p).SubmitTurn(context.Background(), "paris, corporate rate")

	assert.Equal(t, []string{
		"Would you like breakfast?",
		`No property matches "Paris"; using Harbour View Hotel.`,
		`No rate code matches "corporate".`,
	}, out.Suggestions)
}

func TestSession_ExtractionFailureIsTerminalForTheTurn(t *testing.T) {
	kinds := []domain.ErrorKind{
		domain.KindTimeout, domain.KindRateLimited, domain.KindAuthError,
		domain.KindServerError, domain.KindNetworkError, domain.KindParseError,
	}
	for _, k := range kinds {
		t.Run(string(k), func(t *testing.T) {
			x := &fakeExtractor{fn: func(context.Context, domain.ExtractRequest) (domain.Extraction, error) {
				return domain.Extraction{}, &domain.ExtractionError{Kind: k, Err: errors.New("boom")}
			}}
			p, turns := newTestPipeline(t, x, fixtureCatalog())
			s := NewSession("s", p)

			out := s.SubmitTurn(context.Background(), "hello")
			assert.Equal(t, string(StateError), out.State)
			assert.Equal(t, k, out.ErrorKind)
			assert.NotEmpty(t, out.Message)
			assert.Nil(t, out.Result)
			assert.False(t, out.ShouldFillForm)
			assert.Equal(t, StateError, s.View().State)
			assert.Equal(t, k, turns.all()[0].ErrorKind)

			s.Acknowledge()
			assert.Equal(t, StateIdle, s.View().State)
		})
	}
}

func TestSession_BusyWhileProcessing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	x := &fakeExtractor{fn: func(ctx context.Context, _ domain.ExtractRequest) (domain.Extraction, error) {
		close(started)
		<-release
		return domain.Extraction{Intent: domain.IntentUnknown, Confidence: 0.2, Text: "hi"}, nil
	}}
	p, _ := newTestPipeline(t, x, fixtureCatalog())
	s := NewSession("s", p)

	done := make(chan TurnOutcome)
	go func() { done <- s.SubmitTurn(context.Background(), "first") }()
	<-started

	busy := s.SubmitTurn(context.Background(), "second")
	assert.Equal(t, OutcomeBusy, busy.State)
	assert.Equal(t, uint64(1), busy.Attempt)
	assert.Equal(t, StateProcessing, s.View().State)

	close(release)
	first := <-done
	assert.Equal(t, string(StateSuccess), first.State)
	assert.Len(t, x.requests(), 1)

	// a finished session accepts the next turn without an explicit acknowledge
	x.fn = func(context.Context, domain.ExtractRequest) (domain.Extraction, error) {
		return domain.Extraction{Intent: domain.IntentUnknown, Confidence: 0.2}, nil
	}
	next := s.SubmitTurn(context.Background(), "third")
	assert.Equal(t, string(StateSuccess), next.State)
	assert.Equal(t, uint64(2), next.Attempt)

	reqs := x.requests()
	assert.Equal(t, []domain.IntentType{domain.IntentUnknown}, reqs[1].Context.IntentHistory)
	assert.Equal(t, "first", reqs[1].Context.RawText)
}

func TestSession_AbandonedResultIsDiscarded(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	x := &fakeExtractor{fn: func(ctx context.Context, _ domain.ExtractRequest) (domain.Extraction, error) {
		started <- struct{}{}
		<-release
		// ignores ctx so the stale result still arrives
		return domain.Extraction{Intent: domain.IntentReservation, Confidence: 1, Data: map[string]any{"adults": 1}}, nil
	}}
	p, turns := newTestPipeline(t, x, fixtureCatalog())
	s := NewSession("s", p)

	done := make(chan TurnOutcome)
	go func() { done <- s.SubmitTurn(context.Background(), "first") }()
	<-started

	assert.False(t, s.AbandonTurn(7), "unknown attempt")
	assert.True(t, s.AbandonTurn(1))
	assert.False(t, s.AbandonTurn(1), "already abandoned")
	assert.Equal(t, StateIdle, s.View().State)

	close(release)
	stale := <-done
	assert.Equal(t, OutcomeDiscarded, stale.State)
	assert.Nil(t, stale.Result)

	v := s.View()
	assert.Equal(t, StateIdle, v.State)
	assert.Nil(t, v.Last)
	require.Len(t, turns.all(), 1)
	assert.Equal(t, OutcomeDiscarded, turns.all()[0].State)
}

func TestSession_AbandonCancelsContextAndNewerTurnWins(t *testing.T) {
	firstCtx := make(chan context.Context, 1)
	release := make(chan struct{})
	var n int
	var mu sync.Mutex
	x := &fakeExtractor{fn: func(ctx context.Context, _ domain.ExtractRequest) (domain.Extraction, error) {
		mu.Lock()
		n++
		call := n
		mu.Unlock()
		if call == 1 {
			firstCtx <- ctx
			<-release
			return domain.Extraction{Intent: domain.IntentSearch, Confidence: 1, Data: map[string]any{"searchQuery": "old"}}, nil
		}
		return domain.Extraction{Intent: domain.IntentSearch, Confidence: 1, Data: map[string]any{"searchQuery": "new"}}, nil
	}}
	p, _ := newTestPipeline(t, x, fixtureCatalog())
	s := NewSession("s", p)

	done := make(chan TurnOutcome)
	go func() { done <- s.SubmitTurn(context.Background(), "old") }()
	ctx := <-firstCtx

	require.True(t, s.AbandonTurn(1))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("abandon did not cancel the in-flight call")
	}

	second := s.SubmitTurn(context.Background(), "new")
	require.Equal(t, string(StateSuccess), second.State)
	assert.Equal(t, uint64(2), second.Attempt)

	close(release)
	assert.Equal(t, OutcomeDiscarded, (<-done).State)

	last, ok := s.LastOutcome()
	require.True(t, ok)
	assert.Equal(t, "new", *last.Result.Data.SearchQuery)
}

func TestSession_SnapshotAtStart(t *testing.T) {
	swapped := make(chan struct{})
	var store *catalog.Store
	x := &fakeExtractor{fn: func(context.Context, domain.ExtractRequest) (domain.Extraction, error) {
		// a rebuild lands while the turn is in flight
		_, err := store.Replace(domain.CatalogData{
			Properties: []domain.Property{{ID: 77, Name: "Replacement", Active: true}},
		})
		close(swapped)
		return domain.Extraction{Intent: domain.IntentReservation, Confidence: 1, Data: map[string]any{"adults": 1}}, err
	}}
	p, _ := newTestPipeline(t, x, fixtureCatalog())
	store = p.Catalog

	out := NewSession("s", p).SubmitTurn(context.Background(), "book")
	<-swapped
	require.Equal(t, string(StateSuccess), out.State)
	assert.Equal(t, int64(10), out.Result.Data.MatchedProperty.ID)
	assert.Equal(t, uint64(1), out.Generation)
	assert.Equal(t, uint64(2), store.Current().Generation())
}

func TestSession_NoCatalog(t *testing.T) {
	x := returns(domain.Extraction{})
	p := NewPipeline(x, catalog.NewStore(), resolverAt(t, "2025-07-18"), 0, nil)
	s := NewSession("s", p)

	out := s.SubmitTurn(context.Background(), "hi")
	assert.Equal(t, string(StateError), out.State)
	assert.Empty(t, x.requests())
	s.Acknowledge()
	assert.Equal(t, StateIdle, s.View().State)
}

func TestSessionRegistry(t *testing.T) {
	p, _ := newTestPipeline(t, returns(domain.Extraction{Intent: domain.IntentUnknown}), fixtureCatalog())
	r := NewSessionRegistry(p)

	s := r.Create()
	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, 0, r.Prune(time.Hour))
	assert.Equal(t, 1, r.Prune(-time.Second))
	_, err = r.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
