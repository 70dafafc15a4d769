package app

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"concierge/internal/domain"
)

// Wire names of the extractedData contract.
const (
	FieldCheckIn            = "checkIn"
	FieldCheckOut           = "checkOut"
	FieldAdults             = "adults"
	FieldChildren           = "children"
	FieldGuestName          = "guestName"
	FieldPhone              = "phone"
	FieldEmail              = "email"
	FieldPaymentMethod      = "paymentMethod"
	FieldMatchedProperty    = "matchedProperty"
	FieldMatchedRoomType    = "matchedRoomType"
	FieldMatchedRateCode    = "matchedRateCode"
	FieldConfirmationNumber = "confirmationNumber"
	FieldSearchQuery        = "searchQuery"
	FieldDurationDays       = "durationDays"
	FieldRelativeRange      = "relativeRange"
	FieldDayRangeStart      = "dayRangeStart"
	FieldDayRangeEnd        = "dayRangeEnd"
	FieldPropertyHint       = "propertyHint"
	FieldRoomTypeHint       = "roomTypeHint"
	FieldRateCodeHint       = "rateCodeHint"
)

var hintAliases = map[string][]string{
	FieldDurationDays:  {FieldDurationDays, "duration", "nights", "days"},
	FieldDayRangeStart: {FieldDayRangeStart, "dayRange.start", "dayRange.from"},
	FieldDayRangeEnd:   {FieldDayRangeEnd, "dayRange.end", "dayRange.to"},
	FieldPropertyHint:  {FieldPropertyHint, "property", "hotel", "location"},
	FieldRoomTypeHint:  {FieldRoomTypeHint, "roomType", "room"},
	FieldRateCodeHint:  {FieldRateCodeHint, "rateCode", "rate"},
}

// DecodedPayload is extractedData split into the typed payload and the hints
// the resolution stages consume.
type DecodedPayload struct {
	Payload  domain.ExtractedPayload
	Dates    domain.DateHints
	Entities domain.EntityHints
	Issues   []domain.Issue
}

// DecodePayload coerces untyped extractor data. Values of the wrong type are
// dropped and reported as InvalidFieldType; decoding never fails.
func DecodePayload(data map[string]any) DecodedPayload {
	d := &decoder{data: data}
	var out DecodedPayload

	out.Payload.CheckIn = d.str(FieldCheckIn)
	out.Payload.CheckOut = d.str(FieldCheckOut)
	out.Payload.Adults = d.integer(FieldAdults)
	out.Payload.Children = d.integer(FieldChildren)
	out.Payload.GuestName = d.str(FieldGuestName)
	out.Payload.Phone = d.str(FieldPhone)
	out.Payload.Email = d.str(FieldEmail)
	out.Payload.PaymentMethod = d.str(FieldPaymentMethod)
	out.Payload.ConfirmationNumber = d.str(FieldConfirmationNumber)
	out.Payload.SearchQuery = d.str(FieldSearchQuery)

	out.Dates = domain.DateHints{
		CheckIn:       deref(out.Payload.CheckIn),
		CheckOut:      deref(out.Payload.CheckOut),
		DurationDays:  derefInt(d.aliasedInt(FieldDurationDays)),
		RelativeRange: normalizeRelative(deref(d.str(FieldRelativeRange))),
		DayRangeStart: derefInt(d.aliasedInt(FieldDayRangeStart)),
		DayRangeEnd:   derefInt(d.aliasedInt(FieldDayRangeEnd)),
	}

	out.Entities = domain.EntityHints{
		Property: deref(d.aliasedStr(FieldPropertyHint)),
		RoomType: deref(d.aliasedStr(FieldRoomTypeHint)),
		RateCode: deref(d.aliasedStr(FieldRateCodeHint)),
	}
	if m := d.record(FieldMatchedProperty); m != nil {
		if p, ok := mapProperty(m); ok {
			out.Entities.ClaimedProperty = &p
		}
	}
	if m := d.record(FieldMatchedRoomType); m != nil {
		if r, ok := mapRoomType(0, m); ok {
			out.Entities.ClaimedRoomType = &r
		}
	}
	if m := d.record(FieldMatchedRateCode); m != nil {
		if r, ok := mapRateCode(0, m); ok {
			out.Entities.ClaimedRateCode = &r
		}
	}

	out.Issues = d.issues
	return out
}

type decoder struct {
	data   map[string]any
	issues []domain.Issue
}

func (d *decoder) bad(field string, v any, want string) {
	d.issues = append(d.issues, domain.Issue{
		Kind:    domain.IssueInvalidFieldType,
		Field:   field,
		Message: fmt.Sprintf("%s must be %s, got %T", field, want, v),
	})
}

func (d *decoder) str(field string) *string {
	return d.strAt(field, lookupAny(d.data, field))
}

func (d *decoder) strAt(field string, v any) *string {
	if v == nil {
		return nil
	}
	switch v.(type) {
	case map[string]any, []any, bool:
		d.bad(field, v, "text")
		return nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		d.bad(field, v, "text")
		return nil
	}
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func (d *decoder) integer(field string) *int {
	return d.intAt(field, lookupAny(d.data, field))
}

func (d *decoder) intAt(field string, v any) *int {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case bool, map[string]any, []any:
		d.bad(field, v, "an integer")
		return nil
	case float64:
		if t != math.Trunc(t) {
			d.bad(field, v, "an integer")
			return nil
		}
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		d.bad(field, v, "an integer")
		return nil
	}
	return &n
}

func (d *decoder) aliased(field string) any {
	for _, p := range hintAliases[field] {
		if v := lookupAny(d.data, p); v != nil {
			return v
		}
	}
	return nil
}

func (d *decoder) aliasedInt(field string) *int { return d.intAt(field, d.aliased(field)) }

func (d *decoder) aliasedStr(field string) *string { return d.strAt(field, d.aliased(field)) }

func (d *decoder) record(field string) map[string]any {
	v := lookupAny(d.data, field)
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		d.bad(field, v, "an object")
		return nil
	}
	return m
}

func normalizeRelative(s string) string {
	switch strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(s))) {
	case "next_full_week", "next_week", "nextfullweek":
		return RangeNextFullWeek
	default:
		return ""
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func ptr[T any](v T) *T { return &v }
