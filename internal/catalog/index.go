// Package catalog holds the immutable catalog snapshot used by one resolution pass.
package catalog

import (
	"errors"
	"sort"
	"strconv"

	"concierge/internal/domain"
)

var ErrEmptyCatalog = errors.New("catalog: no properties")

// Index is a read-only snapshot. Nothing in it is mutated after Build returns;
// accessors hand out copies of slices.
type Index struct {
	generation uint64
	properties []domain.Property
	roomTypes  []domain.RoomType
	rateCodes  []domain.RateCode

	propertyByID map[int64]int
	roomByID     map[int64]int
	rateByID     map[int64]int
	roomsOf      map[int64][]int // property id -> positions in roomTypes, sorted by room id
	ratesOf      map[int64][]int // property id -> positions in rateCodes, source order

	propertyTokens []map[string]struct{}
	roomTokens     []map[string]struct{}
	rateTokens     []map[string]struct{}

	// token -> positions, for callers that want a quick candidate lookup
	propertyByToken map[string][]int
	roomByToken     map[string][]int
	rateByToken     map[string][]int
}

// Build derives every lookup structure from d. Inactive properties are kept
// out of the snapshot along with their room types and rate codes.
func Build(d domain.CatalogData, generation uint64) (*Index, error) {
	ix := &Index{
		generation:      generation,
		propertyByID:    map[int64]int{},
		roomByID:        map[int64]int{},
		rateByID:        map[int64]int{},
		roomsOf:         map[int64][]int{},
		ratesOf:         map[int64][]int{},
		propertyByToken: map[string][]int{},
		roomByToken:     map[string][]int{},
		rateByToken:     map[string][]int{},
	}
	for _, p := range d.Properties {
		if !p.Active {
			continue
		}
		if _, dup := ix.propertyByID[p.ID]; dup {
			continue
		}
		p.MandatoryServices = append([]string(nil), p.MandatoryServices...)
		pos := len(ix.properties)
		ix.properties = append(ix.properties, p)
		ix.propertyByID[p.ID] = pos
		set := tokenSet(strconv.FormatInt(p.ID, 10), p.Name, p.City, p.Address, p.Country)
		ix.propertyTokens = append(ix.propertyTokens, set)
		index(ix.propertyByToken, set, pos)
	}
	if len(ix.properties) == 0 {
		return nil, ErrEmptyCatalog
	}

	for _, r := range d.RoomTypes {
		if _, ok := ix.propertyByID[r.PropertyID]; !ok {
			continue
		}
		if _, dup := ix.roomByID[r.ID]; dup {
			continue
		}
		pos := len(ix.roomTypes)
		ix.roomTypes = append(ix.roomTypes, r)
		ix.roomByID[r.ID] = pos
		ix.roomsOf[r.PropertyID] = append(ix.roomsOf[r.PropertyID], pos)
		set := tokenSet(r.Name, r.Type, r.TypeDescription)
		ix.roomTokens = append(ix.roomTokens, set)
		index(ix.roomByToken, set, pos)
	}
	for pid, rooms := range ix.roomsOf {
		sort.Slice(rooms, func(i, j int) bool { return ix.roomTypes[rooms[i]].ID < ix.roomTypes[rooms[j]].ID })
		ix.roomsOf[pid] = rooms
	}

	for _, rc := range d.RateCodes {
		if _, ok := ix.propertyByID[rc.PropertyID]; !ok {
			continue
		}
		if _, dup := ix.rateByID[rc.ID]; dup {
			continue
		}
		pos := len(ix.rateCodes)
		ix.rateCodes = append(ix.rateCodes, rc)
		ix.rateByID[rc.ID] = pos
		ix.ratesOf[rc.PropertyID] = append(ix.ratesOf[rc.PropertyID], pos)
		set := tokenSet(rc.Name)
		ix.rateTokens = append(ix.rateTokens, set)
		index(ix.rateByToken, set, pos)
	}
	return ix, nil
}

func index(m map[string][]int, set map[string]struct{}, pos int) {
	for t := range set {
		m[t] = append(m[t], pos)
	}
}

func (ix *Index) Generation() uint64 { return ix.generation }

func (ix *Index) AllProperties() []domain.Property {
	return append([]domain.Property(nil), ix.properties...)
}

// DefaultProperty is the first property in source order.
func (ix *Index) DefaultProperty() domain.Property { return ix.properties[0] }

func (ix *Index) Property(id int64) (domain.Property, bool) {
	pos, ok := ix.propertyByID[id]
	if !ok {
		return domain.Property{}, false
	}
	return ix.properties[pos], true
}

func (ix *Index) RoomType(id int64) (domain.RoomType, bool) {
	pos, ok := ix.roomByID[id]
	if !ok {
		return domain.RoomType{}, false
	}
	return ix.roomTypes[pos], true
}

func (ix *Index) RateCode(id int64) (domain.RateCode, bool) {
	pos, ok := ix.rateByID[id]
	if !ok {
		return domain.RateCode{}, false
	}
	return ix.rateCodes[pos], true
}

// RoomTypesFor returns the property's room types ordered by id.
func (ix *Index) RoomTypesFor(propertyID int64) []domain.RoomType {
	rooms := ix.roomsOf[propertyID]
	out := make([]domain.RoomType, 0, len(rooms))
	for _, pos := range rooms {
		out = append(out, ix.roomTypes[pos])
	}
	return out
}

// RateCodesFor returns the property's rate codes in source order.
func (ix *Index) RateCodesFor(propertyID int64) []domain.RateCode {
	rates := ix.ratesOf[propertyID]
	out := make([]domain.RateCode, 0, len(rates))
	for _, pos := range rates {
		out = append(out, ix.rateCodes[pos])
	}
	return out
}

// PropertyTokens returns the normalized token set of the property at source position pos.
func (ix *Index) PropertyTokens(pos int) map[string]struct{} { return ix.propertyTokens[pos] }

func (ix *Index) RoomTypeTokens(id int64) map[string]struct{} {
	if pos, ok := ix.roomByID[id]; ok {
		return ix.roomTokens[pos]
	}
	return nil
}

func (ix *Index) RateCodeTokens(id int64) map[string]struct{} {
	if pos, ok := ix.rateByID[id]; ok {
		return ix.rateTokens[pos]
	}
	return nil
}

// PropertiesWithToken lists source positions of properties whose fields contain tok.
func (ix *Index) PropertiesWithToken(tok string) []int {
	return append([]int(nil), ix.propertyByToken[tok]...)
}

func (ix *Index) RoomTypesWithToken(tok string) []int64 {
	var ids []int64
	for _, pos := range ix.roomByToken[tok] {
		ids = append(ids, ix.roomTypes[pos].ID)
	}
	return ids
}

func (ix *Index) RateCodesWithToken(tok string) []int64 {
	var ids []int64
	for _, pos := range ix.rateByToken[tok] {
		ids = append(ids, ix.rateCodes[pos].ID)
	}
	return ids
}

// Data returns the snapshot contents in source order, for serialization.
func (ix *Index) Data() domain.CatalogData {
	return domain.CatalogData{
		Properties: ix.AllProperties(),
		RoomTypes:  append([]domain.RoomType(nil), ix.roomTypes...),
		RateCodes:  append([]domain.RateCode(nil), ix.rateCodes...),
	}
}
