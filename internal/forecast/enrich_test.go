package forecast

import (
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/aqib-ilyas/conflictlens/internal/models"
	"github.com/aqib-ilyas/conflictlens/internal/store"
)

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func ni(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

// setupEnricher builds an enricher over a small in-memory snapshot:
//   - 62356: full coverage, primary country, real 90% band
//   - 62357: no coordinate row, country only via primary
//   - 62358: coordinate row carries the country, primary does not
//   - 62359: nothing but the primary row
func setupEnricher(t *testing.T) *Enricher {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	forecasts := []models.GridForecast{
		{GridID: 62356, MonthID: 548, MainMean: nf(1.5), MainMeanLn: nf(0.916), MainDich: nf(0.01), CountryID: ni(1)},
		{GridID: 62357, MonthID: 548, MainMean: nf(0.2), MainDich: nf(0.37), CountryID: ni(1)},
		{GridID: 62358, MonthID: 548, MainMean: nf(4.0), MainDich: nf(0.8)},
		{GridID: 62359, MonthID: 548},
		{GridID: 62356, MonthID: 549, MainMean: nf(1.6), MainDich: nf(0.02), CountryID: ni(1)},
	}
	if err := st.InsertGridForecasts(forecasts); err != nil {
		t.Fatalf("InsertGridForecasts: %v", err)
	}
	err = st.InsertCoordinates([]models.CoordinateRecord{
		{GridID: 62356, Latitude: 10.25, Longitude: 40.75, CountryID: ni(1)},
		{GridID: 62358, Latitude: -5.5, Longitude: 20.0, CountryID: ni(2)},
	})
	if err != nil {
		t.Fatalf("InsertCoordinates: %v", err)
	}
	err = st.InsertUncertaintyRecords([]models.UncertaintyRecord{
		{GridID: 62356, MonthID: 548, SBProbLower: nf(0.005), SBProbUpper: nf(0.015)},
	})
	if err != nil {
		t.Fatalf("InsertUncertaintyRecords: %v", err)
	}
	err = st.UpsertCountries([]models.Country{
		{CountryID: 1, Name: "Testland"},
		{CountryID: 2, Name: "Democracia"},
	})
	if err != nil {
		t.Fatalf("UpsertCountries: %v", err)
	}
	st.SetLoaded()

	return NewEnricher(st)
}

func TestForecastsByGridFullEnrichment(t *testing.T) {
	e := setupEnricher(t)

	sel := models.DefaultMetricSelection()
	records, err := e.ForecastsByGrid([]int64{62356}, ptr(int64(548)), ptr(int64(548)), sel)
	if err != nil {
		t.Fatalf("ForecastsByGrid: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}

	r := records[0]
	if r.GridID != 62356 || r.MonthID != 548 {
		t.Errorf("key = (%d,%d), want (62356,548)", r.GridID, r.MonthID)
	}
	if r.Latitude == nil || *r.Latitude != 10.25 {
		t.Errorf("Latitude = %v, want 10.25", r.Latitude)
	}
	if r.CountryID == nil || *r.CountryID != 1 {
		t.Errorf("CountryID = %v, want 1", r.CountryID)
	}
	if r.CountryName == nil || *r.CountryName != "Testland" {
		t.Errorf("CountryName = %v, want Testland", r.CountryName)
	}
	if r.HDI90Lower == nil || *r.HDI90Lower != 0.005 {
		t.Errorf("HDI90Lower = %v, want 0.005 (real band)", r.HDI90Lower)
	}
	if r.HDI90Upper == nil || *r.HDI90Upper != 0.015 {
		t.Errorf("HDI90Upper = %v, want 0.015 (real band)", r.HDI90Upper)
	}
	if r.Threshold1 == nil || *r.Threshold1 != 0.01 {
		t.Errorf("Threshold1 = %v, want 0.01", r.Threshold1)
	}
	if r.Year != 2025 || r.Month != 8 {
		t.Errorf("calendar = %d-%02d, want 2025-08", r.Year, r.Month)
	}
	if r.ConflictType == nil || *r.ConflictType != models.ConflictStateBased {
		t.Errorf("ConflictType = %v, want sb", r.ConflictType)
	}
	// Band flags default to the 90% band only.
	if r.HDI50Lower != nil || r.HDI99Lower != nil {
		t.Error("HDI50/HDI99 set, want nil under default selection")
	}
}

func TestForecastsByGridSyntheticFallbacks(t *testing.T) {
	e := setupEnricher(t)

	records, err := e.ForecastsByGrid([]int64{62359}, nil, nil, models.DefaultMetricSelection())
	if err != nil {
		t.Fatalf("ForecastsByGrid: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}

	r := records[0]
	wantLat, wantLon := SyntheticCoordinate(62359)
	if r.Latitude == nil || *r.Latitude != wantLat {
		t.Errorf("Latitude = %v, want synthetic %v", r.Latitude, wantLat)
	}
	if r.Longitude == nil || *r.Longitude != wantLon {
		t.Errorf("Longitude = %v, want synthetic %v", r.Longitude, wantLon)
	}
	if r.CountryID != nil || r.CountryName != nil {
		t.Errorf("country = (%v,%v), want absent", r.CountryID, r.CountryName)
	}
	// No source metrics, so the point estimates stay nil.
	if r.MainMean != nil || r.MainDich != nil {
		t.Errorf("point estimates = (%v,%v), want nil", r.MainMean, r.MainDich)
	}
	// No real 90% band exists for this key.
	if r.HDI90Lower != nil {
		t.Errorf("HDI90Lower = %v, want nil", r.HDI90Lower)
	}
	// Thresholds derive from the fallback prior and are always present.
	if r.Threshold1 == nil || *r.Threshold1 != 0.01 {
		t.Errorf("Threshold1 = %v, want fallback prior 0.01", r.Threshold1)
	}
}

func TestCountryFromCoordinateFallback(t *testing.T) {
	e := setupEnricher(t)

	records, err := e.ForecastsByGrid([]int64{62358}, nil, nil, models.DefaultMetricSelection())
	if err != nil {
		t.Fatalf("ForecastsByGrid: %v", err)
	}
	r := records[0]
	if r.CountryID == nil || *r.CountryID != 2 {
		t.Errorf("CountryID = %v, want 2 from coordinates", r.CountryID)
	}
	if r.CountryName == nil || *r.CountryName != "Democracia" {
		t.Errorf("CountryName = %v, want Democracia", r.CountryName)
	}
}

func TestOutputOrderMatchesSourceRows(t *testing.T) {
	e := setupEnricher(t)

	// Request order differs from insertion order; insertion order must win.
	records, err := e.ForecastsByGrid([]int64{62359, 62356, 62358}, nil, nil, models.DefaultMetricSelection())
	if err != nil {
		t.Fatalf("ForecastsByGrid: %v", err)
	}

	want := []struct{ grid, month int64 }{
		{62356, 548}, {62358, 548}, {62359, 548}, {62356, 549},
	}
	if len(records) != len(want) {
		t.Fatalf("len(records) = %d, want %d", len(records), len(want))
	}
	for i, w := range want {
		if records[i].GridID != w.grid || records[i].MonthID != w.month {
			t.Errorf("records[%d] = (%d,%d), want (%d,%d)",
				i, records[i].GridID, records[i].MonthID, w.grid, w.month)
		}
	}
}

func TestProjectionShapeInvariance(t *testing.T) {
	e := setupEnricher(t)

	sel := models.MetricSelection{
		IncludeHDI50:  true,
		ConflictTypes: []models.ConflictType{models.ConflictStateBased},
	}
	records, err := e.ForecastsByGrid([]int64{62356}, ptr(int64(548)), ptr(int64(548)), sel)
	if err != nil {
		t.Fatalf("ForecastsByGrid: %v", err)
	}
	r := records[0]

	if r.MainMean != nil || r.MainMeanLn != nil {
		t.Error("map group set, want nil when include_map is off")
	}
	if r.MainDich != nil || r.Threshold1 != nil || r.Threshold6 != nil {
		t.Error("threshold group set, want nil when include_thresholds is off")
	}
	if r.HDI90Lower != nil || r.HDI90Upper != nil {
		t.Error("90% band set, want nil when include_hdi_90 is off")
	}
	if r.HDI50Lower == nil || r.HDI50Upper == nil {
		t.Error("50% band nil, want synthesized bounds when include_hdi_50 is on")
	}
	// Identity and geolocation survive every projection.
	if r.GridID != 62356 || r.Latitude == nil {
		t.Error("identity or geolocation lost under projection")
	}
}

func TestEnrichmentAcrossMixedCoverage(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	err = st.InsertGridForecasts([]models.GridForecast{
		{GridID: 62356, MonthID: 548, MainDich: nf(0.01), CountryID: ni(1)},
		{GridID: 62357, MonthID: 548, MainDich: nf(0.02), CountryID: ni(1)},
		{GridID: 62358, MonthID: 548, MainDich: nf(0.03), CountryID: ni(1)},
	})
	if err != nil {
		t.Fatalf("InsertGridForecasts: %v", err)
	}
	err = st.InsertCoordinates([]models.CoordinateRecord{
		{GridID: 62356, Latitude: 1.0, Longitude: 2.0},
		{GridID: 62357, Latitude: 3.0, Longitude: 4.0},
	})
	if err != nil {
		t.Fatalf("InsertCoordinates: %v", err)
	}
	if err := st.UpsertCountries([]models.Country{{CountryID: 1, Name: "Testland"}}); err != nil {
		t.Fatalf("UpsertCountries: %v", err)
	}
	st.SetLoaded()
	e := NewEnricher(st)

	sel := models.MetricSelection{
		IncludeMap:        true,
		IncludeHDI90:      true,
		IncludeThresholds: true,
		ConflictTypes:     []models.ConflictType{models.ConflictStateBased},
	}
	records, err := e.ForecastsByGrid([]int64{62356, 62357, 62358}, ptr(int64(548)), ptr(int64(548)), sel)
	if err != nil {
		t.Fatalf("ForecastsByGrid: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}

	wantDich := map[int64]float64{62356: 0.01, 62357: 0.02, 62358: 0.03}
	for _, r := range records {
		if r.CountryName == nil || *r.CountryName != "Testland" {
			t.Errorf("grid %d CountryName = %v, want Testland", r.GridID, r.CountryName)
		}
		if r.Threshold1 == nil || *r.Threshold1 != wantDich[r.GridID] {
			t.Errorf("grid %d Threshold1 = %v, want %v", r.GridID, r.Threshold1, wantDich[r.GridID])
		}
	}

	// 62358 has no source coordinate; the derived one must be stable.
	var last *models.EnrichedForecast
	for i := range records {
		if records[i].GridID == 62358 {
			last = &records[i]
		}
	}
	if last == nil {
		t.Fatal("grid 62358 missing from results")
	}
	wantLat, wantLon := SyntheticCoordinate(62358)
	if *last.Latitude != wantLat || *last.Longitude != wantLon {
		t.Errorf("grid 62358 coordinate = (%v,%v), want derived (%v,%v)",
			*last.Latitude, *last.Longitude, wantLat, wantLon)
	}
}

func TestForecastsByGridValidation(t *testing.T) {
	e := setupEnricher(t)
	sel := models.DefaultMetricSelection()

	var verr *ValidationError

	_, err := e.ForecastsByGrid(nil, nil, nil, sel)
	if !errors.As(err, &verr) {
		t.Errorf("empty grid ids: error = %v, want ValidationError", err)
	}

	_, err = e.ForecastsByGrid([]int64{-5}, nil, nil, sel)
	if !errors.As(err, &verr) {
		t.Errorf("negative grid id: error = %v, want ValidationError", err)
	}

	_, err = e.ForecastsByGrid([]int64{62356}, ptr(int64(550)), ptr(int64(548)), sel)
	if !errors.As(err, &verr) {
		t.Errorf("inverted month range: error = %v, want ValidationError", err)
	}

	bad := sel
	bad.ConflictTypes = []models.ConflictType{"xx"}
	_, err = e.ForecastsByGrid([]int64{62356}, nil, nil, bad)
	if !errors.As(err, &verr) {
		t.Errorf("unknown conflict type: error = %v, want ValidationError", err)
	}
}

func TestForecastsByGridNotFound(t *testing.T) {
	e := setupEnricher(t)

	_, err := e.ForecastsByGrid([]int64{999999}, nil, nil, models.DefaultMetricSelection())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestForecastsByCountry(t *testing.T) {
	e := setupEnricher(t)

	records, err := e.ForecastsByCountry(1, nil, nil, models.DefaultMetricSelection())
	if err != nil {
		t.Fatalf("ForecastsByCountry: %v", err)
	}
	// Country 1 owns 62356 (two months) and 62357.
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	for _, r := range records {
		if r.CountryID == nil || *r.CountryID != 1 {
			t.Errorf("grid %d CountryID = %v, want 1", r.GridID, r.CountryID)
		}
	}

	if _, err := e.ForecastsByCountry(999, nil, nil, models.DefaultMetricSelection()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown country: error = %v, want ErrNotFound", err)
	}
}

func TestForecastsByMonth(t *testing.T) {
	e := setupEnricher(t)

	records, err := e.ForecastsByMonth(548, nil, models.DefaultMetricSelection())
	if err != nil {
		t.Fatalf("ForecastsByMonth: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("len(records) = %d, want 4", len(records))
	}
	for _, r := range records {
		if r.MonthID != 548 {
			t.Errorf("MonthID = %d, want 548", r.MonthID)
		}
	}

	one := int64(1)
	records, err = e.ForecastsByMonth(548, &one, models.DefaultMetricSelection())
	if err != nil {
		t.Fatalf("ForecastsByMonth filtered: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("filtered len(records) = %d, want 2", len(records))
	}

	if _, err := e.ForecastsByMonth(999, nil, models.DefaultMetricSelection()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown month: error = %v, want ErrNotFound", err)
	}
}

func TestBasicInfo(t *testing.T) {
	e := setupEnricher(t)

	info, err := e.BasicInfo()
	if err != nil {
		t.Fatalf("BasicInfo: %v", err)
	}
	if info.TotalGridCells != 4 {
		t.Errorf("TotalGridCells = %d, want 4", info.TotalGridCells)
	}
	if len(info.AvailableMonths) != 2 {
		t.Errorf("AvailableMonths = %v, want 2 months", info.AvailableMonths)
	}
	if info.DateRange.Start != "2025-08" || info.DateRange.End != "2025-09" {
		t.Errorf("DateRange = %+v, want 2025-08..2025-09", info.DateRange)
	}
	if info.Countries != 2 {
		t.Errorf("Countries = %d, want 2", info.Countries)
	}
}

func TestCountrySummaries(t *testing.T) {
	e := setupEnricher(t)

	summaries, err := e.CountrySummaries()
	if err != nil {
		t.Fatalf("CountrySummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("len(summaries) = %d, want 2", len(summaries))
	}
	byID := make(map[int64]CountrySummary)
	for _, s := range summaries {
		byID[s.CountryID] = s
	}
	if byID[1].Country != "Testland" || byID[1].GridCellsCount != 2 {
		t.Errorf("country 1 = %+v, want Testland with 2 grids", byID[1])
	}
	// Country 2 is only attributed through coordinates, which the primary
	// grouping does not see.
	if byID[2].Country != "Democracia" {
		t.Errorf("country 2 = %+v, want Democracia", byID[2])
	}
}
