package app

import (
	"time"

	"concierge/internal/catalog"
	"concierge/internal/domain"
)

type MatchStatus string

const (
	// MatchMatched: the hint (or a claimed record) resolved to exactly one best entity.
	MatchMatched MatchStatus = "matched"
	// MatchAmbiguous: several entities tied on the best score; Value is the tie-break winner.
	MatchAmbiguous MatchStatus = "ambiguous"
	// MatchDefaulted: nothing was named and a default rule picked Value.
	MatchDefaulted MatchStatus = "defaulted"
	// MatchUnmatched: a hint was given but nothing matched it; Value holds the fallback, if any.
	MatchUnmatched MatchStatus = "unmatched"
	// MatchNone: nothing was named and there is no default.
	MatchNone MatchStatus = "none"
)

type Match[T any] struct {
	Status MatchStatus `json:"status"`
	Value  *T          `json:"value,omitempty"`
	Hint   string      `json:"hint,omitempty"`
	Tied   int         `json:"tied,omitempty"` // entities sharing the best score
}

// Found reports whether the match carries an entity.
func (m Match[T]) Found() bool { return m.Value != nil }

// EntityResolution is the outcome of resolving all three entity kinds for one turn.
type EntityResolution struct {
	Property Match[domain.Property] `json:"property"`
	RoomType Match[domain.RoomType] `json:"roomType"`
	RateCode Match[domain.RateCode] `json:"rateCode"`
}

// EntityMatcher resolves user references against a catalog snapshot. It holds
// no state; every method is a pure function of its arguments.
type EntityMatcher struct{}

// Resolve runs property, room-type and rate-code resolution in dependency order.
// checkIn may be zero, in which case rate-code windows are not checked.
func (EntityMatcher) Resolve(ix *catalog.Index, h domain.EntityHints, adults, children int, checkIn time.Time) EntityResolution {
	var m EntityMatcher
	var out EntityResolution
	out.Property = m.MatchProperty(ix, h.Property, h.ClaimedProperty)
	prop := *out.Property.Value
	out.RoomType = m.MatchRoomType(ix, prop, h.RoomType, h.ClaimedRoomType, adults, children)
	out.RateCode = m.MatchRateCode(ix, prop, h.RateCode, h.ClaimedRateCode, checkIn)
	return out
}

// MatchProperty picks the property with the highest token overlap, ties going
// to catalog declaration order. Always returns a property: the default one
// when nothing is named or nothing matches.
func (EntityMatcher) MatchProperty(ix *catalog.Index, hint string, claim *domain.Property) Match[domain.Property] {
	if claim != nil {
		if p, ok := ix.Property(claim.ID); ok {
			return Match[domain.Property]{Status: MatchMatched, Value: &p, Hint: hint}
		}
		hint = joinHint(hint, claim.Name)
	}
	toks := catalog.Tokens(hint)
	def := ix.DefaultProperty()
	if len(toks) == 0 {
		return Match[domain.Property]{Status: MatchDefaulted, Value: &def}
	}

	props := ix.AllProperties()
	best, bestPos, tied := 0, -1, 0
	for pos := range props {
		score := catalog.Overlap(toks, ix.PropertyTokens(pos))
		switch {
		case score > best:
			best, bestPos, tied = score, pos, 1
		case score == best && score > 0:
			tied++
		}
	}
	if bestPos < 0 {
		return Match[domain.Property]{Status: MatchUnmatched, Value: &def, Hint: hint}
	}
	p := props[bestPos]
	return Match[domain.Property]{Status: statusFor(tied), Value: &p, Hint: hint, Tied: tied}
}

// MatchRoomType matches a named room type within the property (ties to the
// lowest id). Without a usable name it auto-selects among rooms that fit the
// party the one with the lowest inventory, ties to the lowest id.
func (EntityMatcher) MatchRoomType(ix *catalog.Index, prop domain.Property, hint string, claim *domain.RoomType, adults, children int) Match[domain.RoomType] {
	rooms := ix.RoomTypesFor(prop.ID) // ordered by id
	if claim != nil {
		if r, ok := ix.RoomType(claim.ID); ok && r.PropertyID == prop.ID {
			return Match[domain.RoomType]{Status: MatchMatched, Value: &r, Hint: hint}
		}
		hint = joinHint(hint, claim.Name)
	}

	if toks := catalog.Tokens(hint); len(toks) > 0 {
		best, bestIdx, tied := 0, -1, 0
		for i, r := range rooms {
			score := catalog.Overlap(toks, ix.RoomTypeTokens(r.ID))
			switch {
			case score > best:
				best, bestIdx, tied = score, i, 1
			case score == best && score > 0:
				tied++
			}
		}
		if bestIdx >= 0 {
			r := rooms[bestIdx]
			return Match[domain.RoomType]{Status: statusFor(tied), Value: &r, Hint: hint, Tied: tied}
		}
		m := autoSelectRoom(rooms, adults, children)
		m.Status, m.Hint = MatchUnmatched, hint
		return m
	}
	return autoSelectRoom(rooms, adults, children)
}

// autoSelectRoom steers toward scarce inventory first.
func autoSelectRoom(rooms []domain.RoomType, adults, children int) Match[domain.RoomType] {
	if adults < 1 {
		adults = 1
	}
	if children < 0 {
		children = 0
	}
	party := adults + children
	var pick *domain.RoomType
	for i := range rooms {
		r := rooms[i]
		if r.Occupancy < party {
			continue
		}
		if pick == nil || r.Inventory < pick.Inventory {
			pick = &r
		}
	}
	if pick == nil {
		return Match[domain.RoomType]{Status: MatchNone}
	}
	return Match[domain.RoomType]{Status: MatchDefaulted, Value: pick}
}

// MatchRateCode matches by token overlap within the property's applicable
// rate codes, ties to declaration order. No hint or no match yields no value.
func (EntityMatcher) MatchRateCode(ix *catalog.Index, prop domain.Property, hint string, claim *domain.RateCode, checkIn time.Time) Match[domain.RateCode] {
	applies := func(rc domain.RateCode) bool { return checkIn.IsZero() || rc.Applies(checkIn) }
	if claim != nil {
		if rc, ok := ix.RateCode(claim.ID); ok && rc.PropertyID == prop.ID && applies(rc) {
			return Match[domain.RateCode]{Status: MatchMatched, Value: &rc, Hint: hint}
		}
		hint = joinHint(hint, claim.Name)
	}
	toks := catalog.Tokens(hint)
	if len(toks) == 0 {
		return Match[domain.RateCode]{Status: MatchNone}
	}

	var pick *domain.RateCode
	best, tied := 0, 0
	for _, rc := range ix.RateCodesFor(prop.ID) {
		if !applies(rc) {
			continue
		}
		score := catalog.Overlap(toks, ix.RateCodeTokens(rc.ID))
		switch {
		case score > best:
			rc := rc
			best, pick, tied = score, &rc, 1
		case score == best && score > 0:
			tied++
		}
	}
	if pick == nil {
		return Match[domain.RateCode]{Status: MatchUnmatched, Hint: hint}
	}
	return Match[domain.RateCode]{Status: statusFor(tied), Value: pick, Hint: hint, Tied: tied}
}

func statusFor(tied int) MatchStatus {
	if tied > 1 {
		return MatchAmbiguous
	}
	return MatchMatched
}

func joinHint(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
