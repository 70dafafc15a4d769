package app

import (
	"fmt"
	"net/mail"
	"time"

	"concierge/internal/domain"
)

const (
	msgCheckOutAfterCheckIn = "Check-out must be after check-in"
	msgAdultsRequired       = "Number of adults is required"
	msgAdultsPositive       = "Number of adults must be greater than 0"
	msgChildrenNonNegative  = "Number of children cannot be negative"
	msgConfirmationRequired = "Confirmation number is required"
	msgSearchRequired       = "A search query or confirmation number is required"
)

// IntentValidator normalizes and validates a date-resolved payload per intent.
type IntentValidator struct {
	dates *DateRangeResolver
}

func NewIntentValidator(dates *DateRangeResolver) *IntentValidator {
	return &IntentValidator{dates: dates}
}

// Validate never fails: all problems accumulate into the result. Prior issues
// from decoding count only for fields the intent's rules look at. The input
// payload is not modified. tz is the property's timezone, used only to
// default missing dates.
func (v *IntentValidator) Validate(intent domain.IntentType, in domain.ExtractedPayload, prior []domain.Issue, tz string) domain.ValidationResult {
	c := &collector{}
	data := in.Clone()

	switch intent {
	case domain.IntentUnknown, "":
		return domain.ValidationResult{Data: data, IsValid: true, Errors: []string{}}
	case domain.IntentReservation, domain.IntentAvailability:
		c.addAll(prior)
		v.stay(c, &data, tz)
	case domain.IntentCheckIn, domain.IntentCheckOut:
		c.addFor(prior, FieldConfirmationNumber)
		if blank(data.ConfirmationNumber) {
			c.add(domain.IssueMissingRequiredField, FieldConfirmationNumber, msgConfirmationRequired)
		}
	case domain.IntentSearch:
		c.addFor(prior, FieldSearchQuery, FieldConfirmationNumber)
		if blank(data.SearchQuery) && blank(data.ConfirmationNumber) {
			c.add(domain.IssueMissingRequiredField, FieldSearchQuery, msgSearchRequired)
		}
	default:
		c.add(domain.IssueInvalidFieldType, "intent", fmt.Sprintf("Unsupported intent %q", intent))
	}
	return c.result(data)
}

func (v *IntentValidator) stay(c *collector, data *domain.ExtractedPayload, tz string) {
	switch {
	case blank(data.CheckIn) && blank(data.CheckOut):
		today := v.dates.Today(tz)
		data.CheckIn = ptr(today.Format(isoDate))
		data.CheckOut = ptr(today.AddDate(0, 0, 1).Format(isoDate))
	case blank(data.CheckIn):
		data.CheckIn = ptr(v.dates.Today(tz).Format(isoDate))
	case blank(data.CheckOut):
		if in, err := time.Parse(isoDate, *data.CheckIn); err == nil {
			data.CheckOut = ptr(in.AddDate(0, 0, 1).Format(isoDate))
		}
	}

	in, inErr := time.Parse(isoDate, deref(data.CheckIn))
	if inErr != nil {
		c.add(domain.IssueInvalidFieldType, FieldCheckIn, "Check-in date must be in YYYY-MM-DD format")
	}
	out, outErr := time.Parse(isoDate, deref(data.CheckOut))
	switch {
	case blank(data.CheckOut):
		c.add(domain.IssueMissingRequiredField, FieldCheckOut, "Check-out date is required")
	case outErr != nil:
		c.add(domain.IssueInvalidFieldType, FieldCheckOut, "Check-out date must be in YYYY-MM-DD format")
	}
	if inErr == nil && outErr == nil && !out.After(in) {
		c.add(domain.IssueInvalidRange, FieldCheckOut, msgCheckOutAfterCheckIn)
	}

	switch {
	case data.Adults == nil:
		c.add(domain.IssueMissingRequiredField, FieldAdults, msgAdultsRequired)
	case *data.Adults <= 0:
		c.add(domain.IssueInvalidFieldType, FieldAdults, msgAdultsPositive)
	}
	if data.Children != nil && *data.Children < 0 {
		c.add(domain.IssueInvalidFieldType, FieldChildren, msgChildrenNonNegative)
	}
	if data.Email != nil {
		if _, err := mail.ParseAddress(*data.Email); err != nil {
			c.add(domain.IssueInvalidFieldType, FieldEmail, "Email address is not valid")
		}
	}
}

type collector struct {
	issues []domain.Issue
}

// add skips exact duplicates so the same problem seen by two stages is reported once.
func (c *collector) add(kind domain.IssueKind, field, msg string) {
	for _, is := range c.issues {
		if is.Message == msg && is.Field == field {
			return
		}
	}
	c.issues = append(c.issues, domain.Issue{Kind: kind, Field: field, Message: msg})
}

func (c *collector) addAll(issues []domain.Issue) {
	for _, is := range issues {
		c.add(is.Kind, is.Field, is.Message)
	}
}

func (c *collector) addFor(issues []domain.Issue, fields ...string) {
	for _, is := range issues {
		for _, f := range fields {
			if is.Field == f {
				c.add(is.Kind, is.Field, is.Message)
				break
			}
		}
	}
}

func (c *collector) result(data domain.ExtractedPayload) domain.ValidationResult {
	errs := make([]string, 0, len(c.issues))
	for _, is := range c.issues {
		errs = append(errs, is.Message)
	}
	return domain.ValidationResult{Data: data, IsValid: len(c.issues) == 0, Errors: errs, Issues: c.issues}
}

func blank(p *string) bool { return p == nil || *p == "" }
