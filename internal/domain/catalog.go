package domain

import "time"

type Property struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	City              string   `json:"city,omitempty"`
	Country           string   `json:"country,omitempty"`
	Address           string   `json:"address,omitempty"`
	Timezone          string   `json:"timezone,omitempty"` // IANA name, empty = process default
	CancellationRules string   `json:"cancellationPolicy,omitempty"`
	MandatoryServices []string `json:"mandatoryServices,omitempty"`
	Active            bool     `json:"active"`
}

type RoomType struct {
	ID              int64  `json:"id"`
	PropertyID      int64  `json:"propertyId"`
	Name            string `json:"name"`
	Type            string `json:"type,omitempty"`
	TypeDescription string `json:"typeDescription,omitempty"`
	MaxAdults       int    `json:"maxAdults"`
	MaxChildren     int    `json:"maxChildren"`
	Occupancy       int    `json:"occupancy"` // total guests
	Inventory       int    `json:"inventory"`
}

type RateCode struct {
	ID         int64      `json:"id"`
	PropertyID int64      `json:"propertyId"`
	Name       string     `json:"name"`
	ValidFrom  *time.Time `json:"validFrom,omitempty"`
	ValidTo    *time.Time `json:"validTo,omitempty"`
}

// Applies reports whether the rate code's window contains day. Open ends are unbounded.
func (r RateCode) Applies(day time.Time) bool {
	if r.ValidFrom != nil && day.Before(truncateDay(*r.ValidFrom)) {
		return false
	}
	if r.ValidTo != nil && day.After(truncateDay(*r.ValidTo)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CatalogData is the raw material of a snapshot, in source order.
type CatalogData struct {
	Properties []Property `json:"properties"`
	RoomTypes  []RoomType `json:"roomTypes"`
	RateCodes  []RateCode `json:"rateCodes"`
}
