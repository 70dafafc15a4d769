package app

import (
	"testing"
	"time"

	"concierge/internal/catalog"
	"concierge/internal/domain"
)

func day(s string) *time.Time {
	t, err := time.Parse(isoDate, s)
	if err != nil {
		panic(err)
	}
	return &t
}

// fixtureCatalog: two properties, the first one is the default.
func fixtureCatalog() domain.CatalogData {
	return domain.CatalogData{
		Properties: []domain.Property{
			{ID: 10, Name: "Harbour View Hotel", City: "Lisbon", Country: "PT", Address: "12 Rua do Mar", Active: true},
			{ID: 20, Name: "Mountain Lodge", City: "Zermatt", Country: "CH", Address: "Bahnhofstrasse 5", Timezone: "Europe/Zurich", Active: true},
			{ID: 30, Name: "Closed Inn", City: "Lisbon", Active: false},
		},
		RoomTypes: []domain.RoomType{
			{ID: 103, PropertyID: 10, Name: "Family Suite", Type: "suite", TypeDescription: "two bedrooms", Occupancy: 4, Inventory: 2},
			{ID: 101, PropertyID: 10, Name: "Standard Double", Type: "double", TypeDescription: "city view", Occupancy: 2, Inventory: 5},
			{ID: 102, PropertyID: 10, Name: "Deluxe Double", Type: "double", TypeDescription: "sea view", Occupancy: 2, Inventory: 5},
			{ID: 201, PropertyID: 20, Name: "Alpine Single", Type: "single", Occupancy: 1, Inventory: 3},
			{ID: 202, PropertyID: 20, Name: "Alpine Double", Type: "double", Occupancy: 2, Inventory: 1},
		},
		RateCodes: []domain.RateCode{
			{ID: 1001, PropertyID: 10, Name: "Best Available Rate"},
			{ID: 1002, PropertyID: 10, Name: "Summer Saver", ValidFrom: day("2025-06-01"), ValidTo: day("2025-08-31")},
			{ID: 1003, PropertyID: 10, Name: "Winter Saver", ValidFrom: day("2025-12-01"), ValidTo: day("2026-02-28")},
			{ID: 2001, PropertyID: 20, Name: "Ski Package"},
		},
	}
}

func fixtureIndex(t *testing.T) *catalog.Index {
	t.Helper()
	ix, err := catalog.Build(fixtureCatalog(), 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return ix
}
