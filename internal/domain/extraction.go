package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed extraction call.
type ErrorKind string

const (
	KindTimeout      ErrorKind = "Timeout"
	KindRateLimited  ErrorKind = "RateLimited"
	KindAuthError    ErrorKind = "AuthError"
	KindServerError  ErrorKind = "ServerError"
	KindNetworkError ErrorKind = "NetworkError"
	KindParseError   ErrorKind = "ParseError"
)

type ExtractionError struct {
	Kind   ErrorKind
	Status int // HTTP status when one was received
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("extraction %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// KindOf returns the extraction kind carried by err, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var xe *ExtractionError
	if errors.As(err, &xe) {
		return xe.Kind
	}
	return ""
}

// ConversationContext is what the extractor sees besides the raw text.
type ConversationContext struct {
	IntentHistory []IntentType `json:"intentHistory"`
	RawText       string       `json:"rawText"`
}

type ExtractRequest struct {
	UserText string
	Context  ConversationContext
	Catalog  CatalogData
	Today    string // YYYY-MM-DD reference date the rules are phrased against
}

// Extraction is a parsed extractor response. Data is still untyped.
type Extraction struct {
	Text             string         `json:"text"`
	Intent           IntentType     `json:"intent"`
	Confidence       float64        `json:"confidence"`
	Data             map[string]any `json:"extractedData"`
	ShouldFillForm   bool           `json:"shouldFillForm"`
	ValidationErrors []string       `json:"validationErrors"`
	Suggestions      []string       `json:"suggestions"`
}
