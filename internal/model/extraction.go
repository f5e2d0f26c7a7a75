package model

import (
	"strconv"
	"strings"
	"time"
)

// Override field names. Extraction fields share their column names; PriceRub
// has no extracted counterpart and falls back to the record's initial price.
const (
	FieldZakupkaName       = "zakupka_name"
	FieldAddress           = "address"
	FieldCity              = "city"
	FieldPriceRub          = "price_rub"
	FieldAreaMinM2         = "area_min_m2"
	FieldAreaMaxM2         = "area_max_m2"
	FieldRooms             = "rooms"
	FieldRoomsParsed       = "rooms_parsed"
	FieldFloor             = "floor"
	FieldBuildingFloorsMin = "building_floors_min"
	FieldYearBuildStr      = "year_build_str"
	FieldWearPercent       = "wear_percent"
	FieldZakazchik         = "zakazchik"
)

var overridableFields = map[string]bool{
	FieldZakupkaName:       true,
	FieldAddress:           true,
	FieldCity:              true,
	FieldPriceRub:          true,
	FieldAreaMinM2:         true,
	FieldAreaMaxM2:         true,
	FieldRooms:             true,
	FieldFloor:             true,
	FieldBuildingFloorsMin: true,
	FieldYearBuildStr:      true,
	FieldWearPercent:       true,
	FieldZakazchik:         true,
}

// IsOverridableField reports whether name may be used as an override field.
func IsOverridableField(name string) bool {
	return overridableFields[name]
}

// ExtractionResult holds attributes computed by the LLM for one record.
// Every attribute is optional. Rows are written once and never updated;
// corrections go through overrides.
type ExtractionResult struct {
	RegNumber         string    `json:"reg_number" db:"reg_number"`
	ZakupkaName       *string   `json:"zakupka_name" db:"zakupka_name"`
	Address           *string   `json:"address" db:"address"`
	City              *string   `json:"city" db:"city"`
	AreaMinM2         *float64  `json:"area_min_m2" db:"area_min_m2"`
	AreaMaxM2         *float64  `json:"area_max_m2" db:"area_max_m2"`
	Rooms             *string   `json:"rooms" db:"rooms"`
	RoomsParsed       *string   `json:"rooms_parsed" db:"rooms_parsed"`
	Floor             *string   `json:"floor" db:"floor"`
	BuildingFloorsMin *string   `json:"building_floors_min" db:"building_floors_min"`
	YearBuildStr      *string   `json:"year_build_str" db:"year_build_str"`
	WearPercent       *float64  `json:"wear_percent" db:"wear_percent"`
	Zakazchik         *string   `json:"zakazchik" db:"zakazchik"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Field returns the textual form of a computed attribute by its column name.
func (e *ExtractionResult) Field(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	switch name {
	case FieldZakupkaName:
		return derefString(e.ZakupkaName)
	case FieldAddress:
		return derefString(e.Address)
	case FieldCity:
		return derefString(e.City)
	case FieldAreaMinM2:
		return formatFloat(e.AreaMinM2)
	case FieldAreaMaxM2:
		return formatFloat(e.AreaMaxM2)
	case FieldRooms:
		return derefString(e.Rooms)
	case FieldRoomsParsed:
		return derefString(e.RoomsParsed)
	case FieldFloor:
		return derefString(e.Floor)
	case FieldBuildingFloorsMin:
		return derefString(e.BuildingFloorsMin)
	case FieldYearBuildStr:
		return derefString(e.YearBuildStr)
	case FieldWearPercent:
		return formatFloat(e.WearPercent)
	case FieldZakazchik:
		return derefString(e.Zakazchik)
	}
	return "", false
}

func derefString(s *string) (string, bool) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "", false
	}
	return *s, true
}

func formatFloat(f *float64) (string, bool) {
	if f == nil {
		return "", false
	}
	return strconv.FormatFloat(*f, 'f', -1, 64), true
}
