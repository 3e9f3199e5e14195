package models

import (
	"database/sql"
	"fmt"
)

// ConflictType tags the kind of violence a forecast covers.
type ConflictType string

const (
	ConflictStateBased ConflictType = "sb"
	ConflictNonState   ConflictType = "ns"
	ConflictOneSided   ConflictType = "os"
)

// KnownConflictType reports whether the tag is one of the recognized values.
func KnownConflictType(ct ConflictType) bool {
	switch ct {
	case ConflictStateBased, ConflictNonState, ConflictOneSided:
		return true
	}
	return false
}

// GridForecast is one primary-source row: the point forecast for a single
// grid cell at a single month. Immutable once loaded.
type GridForecast struct {
	GridID     int64
	MonthID    int64
	MainMean   sql.NullFloat64 // point estimate, natural scale
	MainMeanLn sql.NullFloat64 // log-scale point estimate
	MainDich   sql.NullFloat64 // binary-threshold probability in [0,1]
	CountryID  sql.NullInt64
}

// UncertaintyRecord holds the source interval bounds for one (grid, month)
// key: a per-conflict-type pair on the log-count scale and a per-conflict-type
// pair on the probability scale. Absence of a record is valid.
type UncertaintyRecord struct {
	GridID  int64
	MonthID int64

	SBBestLower sql.NullFloat64
	SBBestUpper sql.NullFloat64
	NSBestLower sql.NullFloat64
	NSBestUpper sql.NullFloat64
	OSBestLower sql.NullFloat64
	OSBestUpper sql.NullFloat64

	SBProbLower sql.NullFloat64
	SBProbUpper sql.NullFloat64
	NSProbLower sql.NullFloat64
	NSProbUpper sql.NullFloat64
	OSProbLower sql.NullFloat64
	OSProbUpper sql.NullFloat64
}

// ProbBounds returns the probability-scale interval for a conflict type.
func (u *UncertaintyRecord) ProbBounds(ct ConflictType) (lower, upper sql.NullFloat64) {
	switch ct {
	case ConflictNonState:
		return u.NSProbLower, u.NSProbUpper
	case ConflictOneSided:
		return u.OSProbLower, u.OSProbUpper
	default:
		return u.SBProbLower, u.SBProbUpper
	}
}

// CoordinateRecord is the authoritative location of a grid cell. Coordinates
// do not vary by month; at most one record exists per grid id.
type CoordinateRecord struct {
	GridID    int64
	Latitude  float64
	Longitude float64
	CountryID sql.NullInt64
	Row       int64
	Col       int64
}

// Country is one entry in the static country reference table.
type Country struct {
	CountryID int64
	Name      string
	ISOCode   sql.NullString
	GWCode    sql.NullInt64
}

// EnrichedForecast is the output row: one grid cell at one month with
// coordinates, country metadata, and the selected metrics. Every optional
// field is a pointer so the JSON shape is identical across metric
// selections; unselected fields serialize as null, never disappear.
type EnrichedForecast struct {
	GridID  int64 `json:"grid_id"`
	MonthID int64 `json:"month_id"`

	CountryID *int64   `json:"country_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	MainMean   *float64 `json:"main_mean"`
	MainMeanLn *float64 `json:"main_mean_ln"`
	MainDich   *float64 `json:"main_dich"`

	HDI50Lower *float64 `json:"hdi_50_lower"`
	HDI50Upper *float64 `json:"hdi_50_upper"`
	HDI90Lower *float64 `json:"hdi_90_lower"`
	HDI90Upper *float64 `json:"hdi_90_upper"`
	HDI99Lower *float64 `json:"hdi_99_lower"`
	HDI99Upper *float64 `json:"hdi_99_upper"`

	Threshold1 *float64 `json:"threshold_1"`
	Threshold2 *float64 `json:"threshold_2"`
	Threshold3 *float64 `json:"threshold_3"`
	Threshold4 *float64 `json:"threshold_4"`
	Threshold5 *float64 `json:"threshold_5"`
	Threshold6 *float64 `json:"threshold_6"`

	ConflictType *ConflictType `json:"conflict_type"`
	CountryName  *string       `json:"country_name"`
	Year         int           `json:"year"`
	Month        int           `json:"month"`
}

// MetricSelection controls which metric groups a query returns.
type MetricSelection struct {
	IncludeMap        bool
	IncludeHDI50      bool
	IncludeHDI90      bool
	IncludeHDI99      bool
	IncludeThresholds bool
	ConflictTypes     []ConflictType
}

// DefaultMetricSelection mirrors the API defaults: point estimates, the 90%
// band, and thresholds for state-based violence.
func DefaultMetricSelection() MetricSelection {
	return MetricSelection{
		IncludeMap:        true,
		IncludeHDI90:      true,
		IncludeThresholds: true,
		ConflictTypes:     []ConflictType{ConflictStateBased},
	}
}

// Validate rejects selections with no conflict types or unrecognized tags.
func (m MetricSelection) Validate() error {
	if len(m.ConflictTypes) == 0 {
		return fmt.Errorf("at least one conflict type required")
	}
	for _, ct := range m.ConflictTypes {
		if !KnownConflictType(ct) {
			return fmt.Errorf("unknown conflict type %q", ct)
		}
	}
	return nil
}

// HasConflictType reports whether the selection retains the given tag.
func (m MetricSelection) HasConflictType(ct ConflictType) bool {
	for _, c := range m.ConflictTypes {
		if c == ct {
			return true
		}
	}
	return false
}
