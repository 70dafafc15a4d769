package app

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"concierge/internal/domain"
)

/********** alias registries (single source of truth) **********/

var propertyAliases = map[string][]string{
	"id":           {"id", "property_id", "propertyId", "hotel_id"},
	"name":         {"name", "property_name", "propertyName", "title"},
	"city":         {"city", "address.city", "location.city", "town"},
	"country":      {"country", "address.country", "country_code", "countryCode"},
	"address":      {"address", "address.line", "address.addressLine1", "full_address", "street"},
	"timezone":     {"timezone", "time_zone", "tz", "location.timezone"},
	"cancellation": {"cancellation_policy", "cancellationPolicy", "policies.cancellation"},
	"services":     {"mandatory_services", "mandatoryServices", "policies.mandatory_services"},
	"active":       {"active", "is_active", "isActive", "enabled"},
}

var roomTypeAliases = map[string][]string{
	"id":           {"id", "room_type_id", "roomTypeId"},
	"property_id":  {"property_id", "propertyId", "hotel_id"},
	"name":         {"name", "room_name", "roomName"},
	"type":         {"type", "room_type", "roomType", "category"},
	"type_desc":    {"type_description", "typeDescription", "description"},
	"max_adults":   {"max_adults", "maxAdults", "occupancy.adults", "adults"},
	"max_children": {"max_children", "maxChildren", "occupancy.children", "children"},
	"occupancy":    {"occupancy", "max_occupancy", "maxOccupancy", "occupancy.total", "total"},
	"inventory":    {"inventory", "count", "units", "available"},
}

var rateCodeAliases = map[string][]string{
	"id":          {"id", "rate_code_id", "rateCodeId"},
	"property_id": {"property_id", "propertyId", "hotel_id"},
	"name":        {"name", "code", "rate_name", "rateName", "description"},
	"valid_from":  {"valid_from", "validFrom", "start_date", "window.from"},
	"valid_to":    {"valid_to", "validTo", "end_date", "window.to"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// firstAlias returns the first non-nil value among the alias paths of key.
func firstAlias(m map[string]any, aliases map[string][]string, key string) any {
	for _, p := range aliases[key] {
		if v := lookupAny(m, p); v != nil {
			return v
		}
	}
	return nil
}

func aliasStr(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s := strings.TrimSpace(cast.ToString(lookupAny(m, p))); s != "" {
			return s
		}
	}
	return ""
}

func aliasInt(m map[string]any, aliases map[string][]string, key string) int64 {
	n, _ := cast.ToInt64E(firstAlias(m, aliases, key))
	return n
}

func aliasTime(m map[string]any, aliases map[string][]string, key string) *time.Time {
	s := aliasStr(m, aliases, key)
	if s == "" {
		return nil
	}
	t, err := cast.ToTimeE(s)
	if err != nil {
		return nil
	}
	return &t
}

// stringSlice: accept []any with either strings or {name/title}.
func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if s := strings.TrimSpace(cast.ToString(v)); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, it := range raw {
		switch t := it.(type) {
		case string:
			if t != "" {
				out = append(out, t)
			}
		case map[string]any:
			if n := cast.ToString(t["name"]); n != "" {
				out = append(out, n)
			} else if n := cast.ToString(t["title"]); n != "" {
				out = append(out, n)
			}
		}
	}
	return out
}

/********** record mappers **********/

func mapProperty(p map[string]any) (domain.Property, bool) {
	id := aliasInt(p, propertyAliases, "id")
	if id == 0 {
		log.Warn().Interface("keys", keys(p)).Str("context", "mapProperty").Msg("property without id skipped")
		return domain.Property{}, false
	}
	active := true
	if v := firstAlias(p, propertyAliases, "active"); v != nil {
		active = cast.ToBool(v)
	}
	return domain.Property{
		ID:                id,
		Name:              aliasStr(p, propertyAliases, "name"),
		City:              aliasStr(p, propertyAliases, "city"),
		Country:           aliasStr(p, propertyAliases, "country"),
		Address:           aliasStr(p, propertyAliases, "address"),
		Timezone:          aliasStr(p, propertyAliases, "timezone"),
		CancellationRules: aliasStr(p, propertyAliases, "cancellation"),
		MandatoryServices: stringSlice(firstAlias(p, propertyAliases, "services")),
		Active:            active,
	}, true
}

// mapRoomType fills PropertyID from the owning property when the record omits it.
func mapRoomType(propertyID int64, r map[string]any) (domain.RoomType, bool) {
	id := aliasInt(r, roomTypeAliases, "id")
	if id == 0 {
		return domain.RoomType{}, false
	}
	rt := domain.RoomType{
		ID:              id,
		PropertyID:      aliasInt(r, roomTypeAliases, "property_id"),
		Name:            aliasStr(r, roomTypeAliases, "name"),
		Type:            aliasStr(r, roomTypeAliases, "type"),
		TypeDescription: aliasStr(r, roomTypeAliases, "type_desc"),
		MaxAdults:       int(aliasInt(r, roomTypeAliases, "max_adults")),
		MaxChildren:     int(aliasInt(r, roomTypeAliases, "max_children")),
		Occupancy:       int(aliasInt(r, roomTypeAliases, "occupancy")),
		Inventory:       int(aliasInt(r, roomTypeAliases, "inventory")),
	}
	if rt.PropertyID == 0 {
		rt.PropertyID = propertyID
	}
	if rt.Occupancy == 0 {
		rt.Occupancy = rt.MaxAdults + rt.MaxChildren
	}
	return rt, true
}

func mapRateCode(propertyID int64, r map[string]any) (domain.RateCode, bool) {
	id := aliasInt(r, rateCodeAliases, "id")
	if id == 0 {
		return domain.RateCode{}, false
	}
	rc := domain.RateCode{
		ID:         id,
		PropertyID: aliasInt(r, rateCodeAliases, "property_id"),
		Name:       aliasStr(r, rateCodeAliases, "name"),
		ValidFrom:  aliasTime(r, rateCodeAliases, "valid_from"),
		ValidTo:    aliasTime(r, rateCodeAliases, "valid_to"),
	}
	if rc.PropertyID == 0 {
		rc.PropertyID = propertyID
	}
	return rc, true
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
