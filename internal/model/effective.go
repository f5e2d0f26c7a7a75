package model

import (
	"strconv"
	"strings"
)

// Resolve returns the effective value of field for one record: the user's
// override when present and non-blank, otherwise the computed value.
// Computed fallbacks: price_rub uses the record's initial price,
// zakupka_name the record description. Rooms resolve to the extracted text.
func Resolve(field string, overrides map[string]string, ext *ExtractionResult, rec *Record) (string, bool) {
	if v, ok := overrides[field]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	switch field {
	case FieldPriceRub:
		if rec != nil && rec.InitialPrice != nil {
			return strconv.FormatFloat(*rec.InitialPrice, 'f', -1, 64), true
		}
		return "", false
	case FieldZakupkaName:
		if v, ok := ext.Field(FieldZakupkaName); ok {
			return v, true
		}
		if rec != nil && strings.TrimSpace(rec.Description) != "" {
			return rec.Description, true
		}
		return "", false
	}
	return ext.Field(field)
}

// Effective holds the resolved search parameters for link generation.
type Effective struct {
	City      *string  `json:"city"`
	PriceRub  *float64 `json:"price_rub"`
	AreaMinM2 *float64 `json:"area_min_m2"`
	Rooms     *string  `json:"rooms"`
	Floor     *string  `json:"floor"`

	// RoomsParsed is the normalized extraction value, used when Rooms does
	// not parse. Unset when the user overrode rooms.
	RoomsParsed *string `json:"rooms_parsed,omitempty"`
}

// ResolveEffective resolves the link-generation fields. Numeric overrides
// that fail to parse are treated as absent.
func ResolveEffective(overrides map[string]string, ext *ExtractionResult, rec *Record) Effective {
	var eff Effective
	if v, ok := Resolve(FieldCity, overrides, ext, rec); ok {
		eff.City = &v
	}
	eff.PriceRub = resolveFloat(FieldPriceRub, overrides, ext, rec)
	eff.AreaMinM2 = resolveFloat(FieldAreaMinM2, overrides, ext, rec)
	if v, ok := Resolve(FieldRooms, overrides, ext, rec); ok {
		eff.Rooms = &v
	}
	if strings.TrimSpace(overrides[FieldRooms]) == "" {
		if v, ok := ext.Field(FieldRoomsParsed); ok {
			eff.RoomsParsed = &v
		}
	}
	if v, ok := Resolve(FieldFloor, overrides, ext, rec); ok {
		eff.Floor = &v
	}
	return eff
}

// ResolveAll resolves every overridable field; absent values map to nil.
func ResolveAll(overrides map[string]string, ext *ExtractionResult, rec *Record) map[string]*string {
	out := make(map[string]*string, len(overridableFields))
	for field := range overridableFields {
		if v, ok := Resolve(field, overrides, ext, rec); ok {
			out[field] = &v
		} else {
			out[field] = nil
		}
	}
	return out
}

func resolveFloat(field string, overrides map[string]string, ext *ExtractionResult, rec *Record) *float64 {
	v, ok := Resolve(field, overrides, ext, rec)
	if !ok {
		return nil
	}
	f, err := ParseNumber(v)
	if err != nil {
		return nil
	}
	return &f
}

// ParseNumber parses a float accepting a decimal comma and embedded spaces
// ("1 234,5").
func ParseNumber(s string) (float64, error) {
	s = strings.NewReplacer(" ", "", " ", "", ",", ".").Replace(strings.TrimSpace(s))
	return strconv.ParseFloat(s, 64)
}
