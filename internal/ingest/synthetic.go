package ingest

import (
	"database/sql"
	"math"
	"math/rand"

	"github.com/aqib-ilyas/conflictlens/internal/models"
)

// Synthetic dataset bounds. A fixed seed keeps every bootstrap identical, so
// tests and repeat runs see the same numbers.
const (
	syntheticSeed      = 42
	syntheticGridStart = 62356
	syntheticGridCount = 100
	syntheticMonthMin  = 548
	syntheticMonthMax  = 583
)

var syntheticCountries = []models.Country{
	{CountryID: 1, Name: "Testland", ISOCode: sql.NullString{String: "TST", Valid: true}, GWCode: sql.NullInt64{Int64: 101, Valid: true}},
	{CountryID: 2, Name: "Democracia", ISOCode: sql.NullString{String: "DMC", Valid: true}, GWCode: sql.NullInt64{Int64: 102, Valid: true}},
	{CountryID: 3, Name: "Republica", ISOCode: sql.NullString{String: "RPB", Valid: true}, GWCode: sql.NullInt64{Int64: 103, Valid: true}},
	{CountryID: 4, Name: "Federation", ISOCode: sql.NullString{String: "FDR", Valid: true}, GWCode: sql.NullInt64{Int64: 104, Valid: true}},
	{CountryID: 5, Name: "Kingdom", ISOCode: sql.NullString{String: "KNG", Valid: true}, GWCode: sql.NullInt64{Int64: 105, Valid: true}},
}

// Dataset is a complete in-memory bootstrap used when no source files exist
// on disk.
type Dataset struct {
	Forecasts   []models.GridForecast
	Uncertainty []models.UncertaintyRecord
	Coordinates []models.CoordinateRecord
	Countries   []models.Country
}

// SyntheticDataset builds the deterministic fallback dataset: 100 grid cells
// over 36 months spread across 5 placeholder countries. Intensities skew low,
// matching the heavily zero-inflated shape of real conflict forecasts.
func SyntheticDataset() *Dataset {
	rng := rand.New(rand.NewSource(syntheticSeed))

	ds := &Dataset{Countries: syntheticCountries}

	for i := 0; i < syntheticGridCount; i++ {
		gridID := int64(syntheticGridStart + i)
		countryID := int64(i%len(syntheticCountries)) + 1

		ds.Coordinates = append(ds.Coordinates, models.CoordinateRecord{
			GridID:    gridID,
			Latitude:  -30 + rng.Float64()*60,
			Longitude: -40 + rng.Float64()*80,
			CountryID: sql.NullInt64{Int64: countryID, Valid: true},
			Row:       int64(i / 10),
			Col:       int64(i % 10),
		})

		for monthID := int64(syntheticMonthMin); monthID <= syntheticMonthMax; monthID++ {
			mean := lowSkewDraw(rng) * 50
			dich := clampProb(lowSkewDraw(rng))

			ds.Forecasts = append(ds.Forecasts, models.GridForecast{
				GridID:     gridID,
				MonthID:    monthID,
				MainMean:   sql.NullFloat64{Float64: mean, Valid: true},
				MainMeanLn: sql.NullFloat64{Float64: math.Log1p(mean), Valid: true},
				MainDich:   sql.NullFloat64{Float64: dich, Valid: true},
				CountryID:  sql.NullInt64{Int64: countryID, Valid: true},
			})

			ds.Uncertainty = append(ds.Uncertainty, syntheticUncertainty(rng, gridID, monthID, mean, dich))
		}
	}
	return ds
}

func syntheticUncertainty(rng *rand.Rand, gridID, monthID int64, mean, dich float64) models.UncertaintyRecord {
	rec := models.UncertaintyRecord{GridID: gridID, MonthID: monthID}

	best := func() (sql.NullFloat64, sql.NullFloat64) {
		lo := math.Max(0, math.Log1p(mean)-0.05-rng.Float64()*0.3)
		hi := math.Log1p(mean) + 0.05 + rng.Float64()*0.3
		return sql.NullFloat64{Float64: lo, Valid: true}, sql.NullFloat64{Float64: hi, Valid: true}
	}
	prob := func() (sql.NullFloat64, sql.NullFloat64) {
		lo := clampProb(dich - 0.005 - rng.Float64()*0.02)
		hi := clampProb(dich + 0.005 + rng.Float64()*0.02)
		return sql.NullFloat64{Float64: lo, Valid: true}, sql.NullFloat64{Float64: hi, Valid: true}
	}

	rec.SBBestLower, rec.SBBestUpper = best()
	rec.NSBestLower, rec.NSBestUpper = best()
	rec.OSBestLower, rec.OSBestUpper = best()
	rec.SBProbLower, rec.SBProbUpper = prob()
	rec.NSProbLower, rec.NSProbUpper = prob()
	rec.OSProbLower, rec.OSProbUpper = prob()
	return rec
}

// lowSkewDraw concentrates mass near zero: cubing a uniform draw keeps the
// bulk of cells quiet while leaving a tail of higher-intensity ones.
func lowSkewDraw(rng *rand.Rand) float64 {
	u := rng.Float64()
	return u * u * u
}

func clampProb(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
