package forecast

import (
	"log"
	"sync"

	"github.com/aqib-ilyas/conflictlens/internal/metrics"
	"github.com/aqib-ilyas/conflictlens/internal/models"
	"github.com/aqib-ilyas/conflictlens/internal/store"
)

// enrichWorkers bounds the per-record resolution concurrency. Records are
// independent, so the only ordering requirement is the final slice index.
const enrichWorkers = 8

// Enricher joins the primary forecasts with uncertainty intervals,
// coordinates, and country metadata, filling gaps with deterministic
// synthetic fallbacks, and projects the result by metric selection.
type Enricher struct {
	store *store.Store
}

func NewEnricher(s *store.Store) *Enricher {
	return &Enricher{store: s}
}

type key struct {
	grid  int64
	month int64
}

// ForecastsByGrid returns enriched forecasts for specific grid cells,
// optionally restricted to an inclusive month range.
func (e *Enricher) ForecastsByGrid(gridIDs []int64, monthStart, monthEnd *int64, sel models.MetricSelection) ([]models.EnrichedForecast, error) {
	if err := sel.Validate(); err != nil {
		return nil, validationf("metric selection: %v", err)
	}
	for _, id := range gridIDs {
		if id <= 0 {
			return nil, validationf("grid id must be positive, got %d", id)
		}
	}
	if len(gridIDs) == 0 {
		return nil, validationf("at least one grid id required")
	}

	monthIDs, err := e.resolveMonthRange(monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	return e.enrich(gridIDs, monthIDs, sel)
}

// ForecastsByCountry returns enriched forecasts for every grid cell
// attributed to a country.
func (e *Enricher) ForecastsByCountry(countryID int64, monthStart, monthEnd *int64, sel models.MetricSelection) ([]models.EnrichedForecast, error) {
	if err := sel.Validate(); err != nil {
		return nil, validationf("metric selection: %v", err)
	}
	if countryID <= 0 {
		return nil, validationf("country id must be positive, got %d", countryID)
	}

	gridIDs, err := e.store.GridsForCountry(countryID)
	if err != nil {
		return nil, err
	}
	monthIDs, err := e.resolveMonthRange(monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	return e.enrich(gridIDs, monthIDs, sel)
}

// ForecastsByMonth returns enriched forecasts for every grid cell at one
// month, optionally restricted to a country.
func (e *Enricher) ForecastsByMonth(monthID int64, countryID *int64, sel models.MetricSelection) ([]models.EnrichedForecast, error) {
	if err := sel.Validate(); err != nil {
		return nil, validationf("metric selection: %v", err)
	}

	gridIDs, err := e.store.MonthGridIDs(monthID, countryID)
	if err != nil {
		return nil, err
	}
	return e.enrich(gridIDs, []int64{monthID}, sel)
}

// resolveMonthRange expands an optional inclusive [start, end] range into the
// available month ids inside it. Both bounds absent means no month filter.
func (e *Enricher) resolveMonthRange(monthStart, monthEnd *int64) ([]int64, error) {
	if monthStart == nil && monthEnd == nil {
		return nil, nil
	}
	if monthStart != nil && monthEnd != nil && *monthStart > *monthEnd {
		return nil, validationf("month_start %d after month_end %d", *monthStart, *monthEnd)
	}

	all, err := e.store.AvailableMonths()
	if err != nil {
		return nil, err
	}

	var months []int64
	for _, m := range all {
		if monthStart != nil && m < *monthStart {
			continue
		}
		if monthEnd != nil && m > *monthEnd {
			continue
		}
		months = append(months, m)
	}
	return months, nil
}

// enrich drives the full pipeline: key resolution against the primary
// source, then concurrent per-record coordinate, country, and uncertainty
// resolution, then projection. Output order matches primary-source row
// order; either the full set is returned or an error before any record.
func (e *Enricher) enrich(gridIDs, monthIDs []int64, sel models.MetricSelection) ([]models.EnrichedForecast, error) {
	rows, err := e.store.PrimaryRows(gridIDs, monthIDs)
	if err != nil {
		return nil, err
	}

	uncRows, err := e.store.UncertaintyRows(gridIDs, monthIDs)
	if err != nil {
		return nil, err
	}
	uncertainty := make(map[key]*models.UncertaintyRecord, len(uncRows))
	for i := range uncRows {
		u := &uncRows[i]
		uncertainty[key{u.GridID, u.MonthID}] = u
	}

	coordRows, err := e.store.CoordinateRows(gridIDs)
	if err != nil {
		return nil, err
	}
	coords := NewCoordinateResolver(coordRows)

	countryRows, err := e.store.Countries()
	if err != nil {
		return nil, err
	}
	countries := NewCountryResolver(countryRows)

	results := make([]models.EnrichedForecast, len(rows))
	var synthesized int64
	var mu sync.Mutex

	workers := enrichWorkers
	if len(rows) < workers {
		workers = len(rows)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				rec, fromSource := e.buildRecord(rows[i], uncertainty, coords, countries, sel)
				results[i] = rec
				if !fromSource {
					mu.Lock()
					synthesized++
					mu.Unlock()
				}
			}
		}()
	}
	for i := range rows {
		indices <- i
	}
	close(indices)
	wg.Wait()

	metrics.ForecastsEnriched.Add(float64(len(results)))
	metrics.CoordinatesSynthesized.Add(float64(synthesized))
	log.Printf("enriched %d forecasts: %d coordinates from source, %d synthesized",
		len(results), int64(len(results))-synthesized, synthesized)

	return results, nil
}

// buildRecord assembles and projects one enriched record. Pure given the
// snapshot: all fallback derivation is seeded from the record's own values.
func (e *Enricher) buildRecord(
	row models.GridForecast,
	uncertainty map[key]*models.UncertaintyRecord,
	coords *CoordinateResolver,
	countries *CountryResolver,
	sel models.MetricSelection,
) (models.EnrichedForecast, bool) {
	coord, fromSource := coords.Resolve(row.GridID)
	countryID, countryName := countries.Resolve(row.CountryID, coord.CountryID)

	// The dichotomous probability seeds all synthetic uncertainty. A missing
	// value falls back to a nominal low-risk prior.
	p := 0.01
	if row.MainDich.Valid {
		p = row.MainDich.Float64
	}
	bands := ResolveUncertainty(uncertainty[key{row.GridID, row.MonthID}], p, models.ConflictStateBased)
	if bands.HDI90.Source != BoundReal {
		metrics.IntervalsSynthesized.Inc()
	}

	year, month := Calendar(row.MonthID)
	ct := models.ConflictStateBased

	rec := models.EnrichedForecast{
		GridID:       row.GridID,
		MonthID:      row.MonthID,
		CountryID:    countryID,
		CountryName:  countryName,
		Latitude:     ptr(coord.Latitude),
		Longitude:    ptr(coord.Longitude),
		ConflictType: &ct,
		Year:         year,
		Month:        month,
	}

	if row.MainMean.Valid {
		rec.MainMean = ptr(row.MainMean.Float64)
	}
	if row.MainMeanLn.Valid {
		rec.MainMeanLn = ptr(row.MainMeanLn.Float64)
	}
	if row.MainDich.Valid {
		rec.MainDich = ptr(row.MainDich.Float64)
	}

	if bands.HDI50.Present() {
		rec.HDI50Lower = ptr(bands.HDI50.Lower)
		rec.HDI50Upper = ptr(bands.HDI50.Upper)
	}
	if bands.HDI90.Present() {
		rec.HDI90Lower = ptr(bands.HDI90.Lower)
		rec.HDI90Upper = ptr(bands.HDI90.Upper)
	}
	if bands.HDI99.Present() {
		rec.HDI99Lower = ptr(bands.HDI99.Lower)
		rec.HDI99Upper = ptr(bands.HDI99.Upper)
	}

	rec.Threshold1 = ptr(bands.Thresholds[0])
	rec.Threshold2 = ptr(bands.Thresholds[1])
	rec.Threshold3 = ptr(bands.Thresholds[2])
	rec.Threshold4 = ptr(bands.Thresholds[3])
	rec.Threshold5 = ptr(bands.Thresholds[4])
	rec.Threshold6 = ptr(bands.Thresholds[5])

	Project(&rec, sel)
	return rec, fromSource
}

func ptr[T any](v T) *T { return &v }
