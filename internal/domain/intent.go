package domain

import "strings"

type IntentType string

const (
	IntentReservation  IntentType = "reservation"
	IntentAvailability IntentType = "availability"
	IntentCheckIn      IntentType = "checkin"
	IntentCheckOut     IntentType = "checkout"
	IntentSearch       IntentType = "search"
	IntentUnknown      IntentType = "unknown"
)

// ParseIntent maps extractor spellings ("check-in", "Reservation") onto IntentType.
func ParseIntent(s string) IntentType {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)) {
	case "reservation", "booking", "book":
		return IntentReservation
	case "availability":
		return IntentAvailability
	case "checkin":
		return IntentCheckIn
	case "checkout":
		return IntentCheckOut
	case "search":
		return IntentSearch
	default:
		return IntentUnknown
	}
}

// ExtractedPayload is the typed view of one turn's structured data.
// Every field is optional until validated.
type ExtractedPayload struct {
	CheckIn            *string   `json:"checkIn,omitempty"`
	CheckOut           *string   `json:"checkOut,omitempty"`
	Adults             *int      `json:"adults,omitempty"`
	Children           *int      `json:"children,omitempty"`
	GuestName          *string   `json:"guestName,omitempty"`
	Phone              *string   `json:"phone,omitempty"`
	Email              *string   `json:"email,omitempty"`
	PaymentMethod      *string   `json:"paymentMethod,omitempty"`
	MatchedProperty    *Property `json:"matchedProperty,omitempty"`
	MatchedRoomType    *RoomType `json:"matchedRoomType,omitempty"`
	MatchedRateCode    *RateCode `json:"matchedRateCode,omitempty"`
	ConfirmationNumber *string   `json:"confirmationNumber,omitempty"`
	SearchQuery        *string   `json:"searchQuery,omitempty"`
}

// Clone returns a copy that shares no pointers with p.
func (p ExtractedPayload) Clone() ExtractedPayload {
	out := ExtractedPayload{
		CheckIn:            cloneP(p.CheckIn),
		CheckOut:           cloneP(p.CheckOut),
		Adults:             cloneP(p.Adults),
		Children:           cloneP(p.Children),
		GuestName:          cloneP(p.GuestName),
		Phone:              cloneP(p.Phone),
		Email:              cloneP(p.Email),
		PaymentMethod:      cloneP(p.PaymentMethod),
		ConfirmationNumber: cloneP(p.ConfirmationNumber),
		SearchQuery:        cloneP(p.SearchQuery),
		MatchedRoomType:    cloneP(p.MatchedRoomType),
		MatchedRateCode:    cloneP(p.MatchedRateCode),
	}
	if p.MatchedProperty != nil {
		prop := *p.MatchedProperty
		prop.MandatoryServices = append([]string(nil), p.MatchedProperty.MandatoryServices...)
		out.MatchedProperty = &prop
	}
	return out
}

func cloneP[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// DateHints are the coarse temporal classifications an extractor attaches to a turn.
type DateHints struct {
	CheckIn       string // YYYY-MM-DD, optional
	CheckOut      string // YYYY-MM-DD, optional
	DurationDays  int    // 0 = not given
	RelativeRange string // "next_full_week"
	DayRangeStart int    // bare day-of-month range, 0 = not given
	DayRangeEnd   int
}

// EntityHints carry the user's words for catalog entities plus any records the extractor claims.
type EntityHints struct {
	Property        string
	RoomType        string
	RateCode        string
	ClaimedProperty *Property
	ClaimedRoomType *RoomType
	ClaimedRateCode *RateCode
}

type IssueKind string

const (
	IssueInvalidRange         IssueKind = "InvalidRange"
	IssueMissingRequiredField IssueKind = "MissingRequiredField"
	IssueInvalidFieldType     IssueKind = "InvalidFieldType"
)

type Issue struct {
	Kind    IssueKind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

type ValidationResult struct {
	Data    ExtractedPayload `json:"data"`
	IsValid bool             `json:"isValid"`
	Errors  []string         `json:"errors"`
	Issues  []Issue          `json:"issues,omitempty"`
}
