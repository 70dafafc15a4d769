package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"concierge/internal/domain"
)

var (
	ErrNothingToSubmit  = errors.New("no reservation to submit")
	ErrAlreadySubmitted = errors.New("reservation already submitted")
)

const msgRoomTypeRequired = "A room type must be selected before booking"

// NotFillableError refuses a submission whose last result did not pass both gates.
type NotFillableError struct {
	Errors     []string
	Confidence float64
}

func (e *NotFillableError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("reservation not confirmed (confidence %.2f)", e.Confidence)
	}
	return "reservation invalid: " + strings.Join(e.Errors, "; ")
}

type ReservationService struct {
	sessions *SessionRegistry
	booking  domain.BookingService
}

func NewReservationService(sessions *SessionRegistry, booking domain.BookingService) *ReservationService {
	return &ReservationService{sessions: sessions, booking: booking}
}

// Submit books the session's last reservation result if it is fillable.
// Each outcome is booked at most once; a failed booking can be retried.
func (s *ReservationService) Submit(ctx context.Context, sessionID string) (domain.Reservation, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return domain.Reservation{}, err
	}
	last, ok := sess.LastOutcome()
	if !ok || last.State != string(StateSuccess) || last.Result == nil || last.Intent != domain.IntentReservation {
		return domain.Reservation{}, ErrNothingToSubmit
	}
	conf := 0.0
	if last.Confidence != nil {
		conf = *last.Confidence
	}
	if !last.ShouldFillForm {
		return domain.Reservation{}, &NotFillableError{Errors: last.Result.Errors, Confidence: conf}
	}
	if last.Result.Data.MatchedRoomType == nil {
		return domain.Reservation{}, &NotFillableError{Errors: []string{msgRoomTypeRequired}, Confidence: conf}
	}
	if last.Reservation != nil || !sess.claimBooking(last.Attempt) {
		return domain.Reservation{}, ErrAlreadySubmitted
	}

	res, err := s.booking.CreateReservation(ctx, last.Result.Data)
	if err != nil {
		sess.finishBooking(last.Attempt, nil)
		log.Error().Err(err).Str("session", sessionID).Msg("reservation failed")
		return domain.Reservation{}, err
	}
	sess.finishBooking(last.Attempt, &res)
	log.Info().Str("session", sessionID).Str("confirmation", res.ConfirmationNumber).Msg("reservation created")
	return res, nil
}
