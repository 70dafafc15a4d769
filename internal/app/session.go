package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"concierge/internal/adapters/observability"
	"concierge/internal/catalog"
	"concierge/internal/domain"
)

type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateProcessing SessionState = "processing"
	StateSuccess    SessionState = "success"
	StateError      SessionState = "error"
)

// Outcome states beyond the session states.
const (
	OutcomeBusy      = "busy"
	OutcomeDiscarded = "discarded"
)

const (
	DefaultFillThreshold = 0.5
	maxIntentHistory     = 10
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrCatalogNotReady = errors.New("catalog not loaded")
)

// ShouldFillForm gates auto-population: both validity and confidence must pass.
func ShouldFillForm(isValid bool, confidence, threshold float64) bool {
	return isValid && confidence >= threshold
}

// TurnOutcome is what the caller renders for one submitted turn.
type TurnOutcome struct {
	State          string                   `json:"state"` // success|error|busy|discarded
	Attempt        uint64                   `json:"attempt"`
	Text           string                   `json:"text,omitempty"`
	Intent         domain.IntentType        `json:"intent,omitempty"`
	Result         *domain.ValidationResult `json:"result,omitempty"`
	Confidence     *float64                 `json:"confidence,omitempty"`
	ShouldFillForm bool                     `json:"shouldFillForm"`
	ErrorKind      domain.ErrorKind         `json:"errorKind,omitempty"`
	Message        string                   `json:"message,omitempty"`
	Entities       *EntityResolution        `json:"entities,omitempty"`
	Suggestions    []string                 `json:"suggestions,omitempty"`
	Generation     uint64                   `json:"catalogGeneration,omitempty"`
	Reservation    *domain.Reservation      `json:"reservation,omitempty"`
}

// Pipeline holds what every session shares.
type Pipeline struct {
	Extractor domain.Extractor
	Catalog   *catalog.Store
	Dates     *DateRangeResolver
	Validator *IntentValidator
	Matcher   EntityMatcher
	Threshold float64
	Turns     domain.TurnLog // optional
}

func NewPipeline(x domain.Extractor, store *catalog.Store, dates *DateRangeResolver, threshold float64, turns domain.TurnLog) *Pipeline {
	if threshold <= 0 {
		threshold = DefaultFillThreshold
	}
	return &Pipeline{
		Extractor: x,
		Catalog:   store,
		Dates:     dates,
		Validator: NewIntentValidator(dates),
		Threshold: threshold,
		Turns:     turns,
	}
}

// Resolve runs the deterministic stages over one extraction against snapshot ix.
func (p *Pipeline) Resolve(ix *catalog.Index, ext domain.Extraction) TurnOutcome {
	dec := DecodePayload(ext.Data)
	issues := append([]domain.Issue(nil), dec.Issues...)
	payload := dec.Payload.Clone()
	stay := ext.Intent == domain.IntentReservation || ext.Intent == domain.IntentAvailability

	prop := p.Matcher.MatchProperty(ix, dec.Entities.Property, dec.Entities.ClaimedProperty)
	tz := prop.Value.Timezone

	var res EntityResolution
	res.Property = prop
	if stay {
		if in, out, err := p.Dates.Resolve(dec.Dates, tz); err == nil {
			payload.CheckIn, payload.CheckOut = &in, &out
		} else if !explicitDatesOnly(dec.Dates) {
			// explicit dates are re-checked by the validator with its own messages
			issues = append(issues, domain.Issue{
				Kind:    domain.IssueInvalidRange,
				Field:   FieldCheckIn,
				Message: "Requested dates could not be resolved: " + err.Error(),
			})
		}
		var checkIn time.Time
		if payload.CheckIn != nil {
			checkIn, _ = time.Parse(isoDate, *payload.CheckIn)
		}
		res.RoomType = p.Matcher.MatchRoomType(ix, *prop.Value, dec.Entities.RoomType, dec.Entities.ClaimedRoomType,
			derefInt(payload.Adults), derefInt(payload.Children))
		res.RateCode = p.Matcher.MatchRateCode(ix, *prop.Value, dec.Entities.RateCode, dec.Entities.ClaimedRateCode, checkIn)

		payload.MatchedProperty = prop.Value
		payload.MatchedRoomType = res.RoomType.Value
		payload.MatchedRateCode = res.RateCode.Value
	} else if prop.Status == MatchMatched || prop.Status == MatchAmbiguous {
		payload.MatchedProperty = prop.Value
	}

	result := p.Validator.Validate(ext.Intent, payload, issues, tz)
	conf := ext.Confidence
	return TurnOutcome{
		State:          string(StateSuccess),
		Text:           ext.Text,
		Intent:         ext.Intent,
		Result:         &result,
		Confidence:     &conf,
		ShouldFillForm: ShouldFillForm(result.IsValid, conf, p.Threshold),
		Entities:       &res,
		Suggestions:    append(append([]string(nil), ext.Suggestions...), suggestionsFor(res, stay)...),
		Generation:     ix.Generation(),
	}
}

func explicitDatesOnly(h domain.DateHints) bool {
	return h.DurationDays == 0 && h.DayRangeStart == 0 && h.DayRangeEnd == 0 && h.RelativeRange == ""
}

func suggestionsFor(r EntityResolution, stay bool) []string {
	var out []string
	if v := r.Property.Value; v != nil {
		switch r.Property.Status {
		case MatchAmbiguous:
			out = append(out, fmt.Sprintf("Several properties match %q; using %s.", r.Property.Hint, v.Name))
		case MatchUnmatched:
			out = append(out, fmt.Sprintf("No property matches %q; using %s.", r.Property.Hint, v.Name))
		}
	}
	if !stay {
		return out
	}
	switch r.RoomType.Status {
	case MatchAmbiguous:
		out = append(out, fmt.Sprintf("Several room types match %q; using %s.", r.RoomType.Hint, r.RoomType.Value.Name))
	case MatchUnmatched:
		out = append(out, fmt.Sprintf("No room type matches %q.", r.RoomType.Hint))
	case MatchNone:
		out = append(out, "No room type can hold the whole party.")
	}
	if r.RateCode.Status == MatchUnmatched {
		out = append(out, fmt.Sprintf("No rate code matches %q.", r.RateCode.Hint))
	}
	return out
}

// ErrorMessage is the user-facing text for an extraction failure.
func ErrorMessage(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindTimeout:
		return "The assistant took too long to respond. Please try again."
	case domain.KindRateLimited:
		return "The assistant is busy right now. Please try again in a moment."
	case domain.KindAuthError:
		return "The assistant is not available right now."
	case domain.KindNetworkError:
		return "Could not reach the assistant. Check your connection and try again."
	case domain.KindParseError:
		return "The assistant's answer could not be understood. Please rephrase your request."
	default:
		return "The assistant is temporarily unavailable. Please try again."
	}
}

// Session is one conversation. At most one turn is in flight; a turn
// submitted meanwhile is refused as busy, never queued.
type Session struct {
	id string
	p  *Pipeline

	mu         sync.Mutex
	state      SessionState
	attempt    uint64 // highest attempt issued
	cancel     context.CancelFunc
	last       *TurnOutcome
	booking    uint64 // attempt whose outcome is booked or being booked
	history    []domain.IntentType
	lastText   string
	lastActive time.Time
}

func NewSession(id string, p *Pipeline) *Session {
	return &Session{id: id, p: p, state: StateIdle, lastActive: time.Now()}
}

func (s *Session) ID() string { return s.id }

// SessionView is a point-in-time copy of a session.
type SessionView struct {
	ID      string       `json:"id"`
	State   SessionState `json:"state"`
	Attempt uint64       `json:"attempt"`
	Last    *TurnOutcome `json:"last,omitempty"`
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{ID: s.id, State: s.state, Attempt: s.attempt, Last: s.last}
}

// LastOutcome returns the outcome of the most recent applied turn.
func (s *Session) LastOutcome() (TurnOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return TurnOutcome{}, false
	}
	return *s.last, true
}

// SubmitTurn runs one turn end to end. A result that arrives after the turn
// was abandoned, or after a newer turn started, is discarded.
func (s *Session) SubmitTurn(ctx context.Context, text string) TurnOutcome {
	s.mu.Lock()
	if s.state == StateProcessing {
		busy := TurnOutcome{State: OutcomeBusy, Attempt: s.attempt}
		s.mu.Unlock()
		observability.ObserveTurn(OutcomeBusy, "")
		return busy
	}
	s.attempt++
	id := s.attempt
	s.state = StateProcessing
	tctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.lastActive = time.Now()
	convo := domain.ConversationContext{
		IntentHistory: append([]domain.IntentType(nil), s.history...),
		RawText:       s.lastText,
	}
	s.mu.Unlock()
	defer cancel()

	out := s.run(tctx, id, text, convo)

	s.mu.Lock()
	if id != s.attempt || s.state != StateProcessing {
		s.mu.Unlock()
		log.Info().Str("session", s.id).Uint64("attempt", id).Msg("stale turn result discarded")
		discarded := TurnOutcome{State: OutcomeDiscarded, Attempt: id}
		s.record(discarded, out)
		return discarded
	}
	s.state = SessionState(out.State)
	s.last = &out
	s.cancel = nil
	s.lastText = text
	if out.Intent != "" {
		s.history = append(s.history, out.Intent)
		if len(s.history) > maxIntentHistory {
			s.history = s.history[len(s.history)-maxIntentHistory:]
		}
	}
	s.mu.Unlock()

	s.record(out, out)
	return out
}

func (s *Session) run(ctx context.Context, id uint64, text string, convo domain.ConversationContext) TurnOutcome {
	// snapshot-at-start: this turn resolves against ix even if a rebuild lands meanwhile
	ix := s.p.Catalog.Current()
	if ix == nil {
		return TurnOutcome{State: string(StateError), Attempt: id, Message: "The property catalog is not available yet."}
	}
	today := s.p.Dates.Today(ix.DefaultProperty().Timezone)

	ext, err := s.p.Extractor.Extract(ctx, domain.ExtractRequest{
		UserText: text,
		Context:  convo,
		Catalog:  ix.Data(),
		Today:    today.Format(isoDate),
	})
	if err != nil {
		kind := domain.KindOf(err)
		if kind == "" {
			kind = domain.KindNetworkError
		}
		return TurnOutcome{State: string(StateError), Attempt: id, ErrorKind: kind, Message: ErrorMessage(kind)}
	}

	out := s.p.Resolve(ix, ext)
	out.Attempt = id
	return out
}

func (s *Session) record(out, underlying TurnOutcome) {
	observability.ObserveTurn(out.State, string(underlying.Intent))
	log.Info().Str("session", s.id).Uint64("attempt", out.Attempt).Str("state", out.State).
		Str("intent", string(underlying.Intent)).Str("kind", string(underlying.ErrorKind)).
		Bool("fill", out.ShouldFillForm).Msg("turn finished")
	if s.p.Turns == nil {
		return
	}
	rec := domain.TurnRecord{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Attempt:   out.Attempt,
		State:     out.State,
		Intent:    underlying.Intent,
		ErrorKind: underlying.ErrorKind,
		At:        time.Now().UTC(),
	}
	if underlying.Confidence != nil {
		rec.Confidence = *underlying.Confidence
	}
	if underlying.Result != nil {
		rec.Valid = underlying.Result.IsValid
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.p.Turns.RecordTurn(ctx, rec); err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("turn log write failed")
	}
}

// AbandonTurn drops the in-flight turn if attemptID is still current. The
// session returns to idle and the late result will be discarded.
func (s *Session) AbandonTurn(attemptID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateProcessing || attemptID != s.attempt {
		return false
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = StateIdle
	return true
}

// Acknowledge moves a finished session back to idle.
func (s *Session) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSuccess || s.state == StateError {
		s.state = StateIdle
	}
}

// claimBooking reserves the last outcome for one booking call. It fails when
// that outcome is already booked or in flight, or a newer turn replaced it.
func (s *Session) claimBooking(attempt uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.Attempt != attempt || s.booking == attempt {
		return false
	}
	s.booking = attempt
	return true
}

// finishBooking records the booking on the outcome, or releases the claim
// when res is nil so the guest can retry.
func (s *Session) finishBooking(attempt uint64, res *domain.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.booking != attempt {
		return
	}
	if res == nil {
		s.booking = 0
		return
	}
	if s.last != nil && s.last.Attempt == attempt {
		booked := *s.last
		booked.Reservation = res
		s.last = &booked
	}
}

// SessionRegistry owns the live sessions of one process.
type SessionRegistry struct {
	p  *Pipeline
	mu sync.RWMutex
	m  map[string]*Session
}

func NewSessionRegistry(p *Pipeline) *SessionRegistry {
	return &SessionRegistry{p: p, m: map[string]*Session{}}
}

func (r *SessionRegistry) Create() *Session {
	s := NewSession(uuid.NewString(), r.p)
	r.mu.Lock()
	r.m[s.id] = s
	r.mu.Unlock()
	return s
}

func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Prune drops sessions that are not processing and have been inactive longer than maxIdle.
func (r *SessionRegistry) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.m {
		s.mu.Lock()
		stale := s.state != StateProcessing && s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(r.m, id)
			n++
		}
	}
	return n
}
