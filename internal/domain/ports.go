package domain

import (
	"context"
	"time"
)

// Extractor turns raw text plus context into a candidate payload.
// Failures are *ExtractionError.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (Extraction, error)
}

// CatalogSource is the read side of the catalog/booking backend.
type CatalogSource interface {
	GetProperties(ctx context.Context) ([]map[string]any, error)
	GetRoomTypes(ctx context.Context, propertyID int64) ([]map[string]any, error)
	GetRateCodes(ctx context.Context, propertyID int64) ([]map[string]any, error)
}

type BookingService interface {
	CreateReservation(ctx context.Context, p ExtractedPayload) (Reservation, error)
}

type CatalogRepository interface {
	SaveCatalog(ctx context.Context, c CatalogData) error
	LoadCatalog(ctx context.Context) (CatalogData, error)
	LogMiss(ctx context.Context, propertyID int64, resource string, status int, reason string) error
}

type TurnLog interface {
	RecordTurn(ctx context.Context, t TurnRecord) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type Reservation struct {
	ConfirmationNumber string `json:"confirmationNumber"`
	Status             string `json:"status,omitempty"`
}

type TurnRecord struct {
	ID         string
	SessionID  string
	Attempt    uint64
	State      string
	Intent     IntentType
	Confidence float64
	Valid      bool
	ErrorKind  ErrorKind
	At         time.Time
}
