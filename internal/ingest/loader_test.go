package ingest

import (
	"compress/gzip"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/aqib-ilyas/conflictlens/internal/store"
)

func setupLoaderStore(t *testing.T) *store.Store {
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
	return st
}

func TestLoadSyntheticFallback(t *testing.T) {
	st := setupLoaderStore(t)

	// Empty data dir: every dataset falls back to the synthetic bootstrap.
	loader := NewLoader(st, t.TempDir())
	if err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !st.Loaded() {
		t.Fatal("store not marked loaded")
	}

	months, err := st.AvailableMonths()
	if err != nil {
		t.Fatalf("AvailableMonths: %v", err)
	}
	if len(months) != 36 || months[0] != 548 || months[35] != 583 {
		t.Errorf("months = %d in [%d,%d], want 36 in [548,583]", len(months), months[0], months[len(months)-1])
	}

	total, err := st.TotalGridCells()
	if err != nil {
		t.Fatalf("TotalGridCells: %v", err)
	}
	if total != 100 {
		t.Errorf("TotalGridCells = %d, want 100", total)
	}

	countries, err := st.Countries()
	if err != nil {
		t.Fatalf("Countries: %v", err)
	}
	if len(countries) != 5 {
		t.Fatalf("len(countries) = %d, want 5", len(countries))
	}
	if countries[0].Name != "Testland" {
		t.Errorf("countries[0].Name = %q, want Testland", countries[0].Name)
	}
}

func TestLoadFromFiles(t *testing.T) {
	st := setupLoaderStore(t)
	dir := t.TempDir()

	writeFileT(t, filepath.Join(dir, ForecastsFile),
		"pg_id,month_id,main_mean,main_dich,country_id\n62356,548,1.5,0.01,57\n")
	writeFileT(t, filepath.Join(dir, CountriesFile),
		"country_id,month_id,country,isoab\n57,548,Kenya,KEN\n")
	writeGzipT(t, filepath.Join(dir, UncertaintyFile),
		"priogrid_id,month_id,pred_ln_sb_prob_hdi_lower,pred_ln_sb_prob_hdi_upper\n62356,548,0.005,0.015\n")
	writeGzipT(t, filepath.Join(dir, CoordinatesFile),
		"priogrid_id,lat,lon,country_id\n62356,10.25,40.75,57\n")

	if err := NewLoader(st, dir).Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	total, err := st.TotalGridCells()
	if err != nil {
		t.Fatalf("TotalGridCells: %v", err)
	}
	if total != 1 {
		t.Errorf("TotalGridCells = %d, want 1", total)
	}

	c, err := st.CoordinateRow(62356)
	if err != nil {
		t.Fatalf("CoordinateRow: %v", err)
	}
	if c == nil || c.Latitude != 10.25 {
		t.Errorf("coordinate = %+v, want lat 10.25", c)
	}

	countries, err := st.Countries()
	if err != nil {
		t.Fatalf("Countries: %v", err)
	}
	if len(countries) != 1 || countries[0].Name != "Kenya" {
		t.Errorf("countries = %+v, want [Kenya]", countries)
	}
}

func TestLoadMissingCountriesKeepsRealDatasets(t *testing.T) {
	st := setupLoaderStore(t)
	dir := t.TempDir()

	// Forecasts, uncertainty, and coordinates are all present; only the
	// countries file is missing. The real rows must survive the fallback.
	writeFileT(t, filepath.Join(dir, ForecastsFile),
		"pg_id,month_id,main_mean,main_dich,country_id\n62356,548,1.5,0.01,57\n")
	writeGzipT(t, filepath.Join(dir, UncertaintyFile),
		"priogrid_id,month_id,pred_ln_sb_prob_hdi_lower,pred_ln_sb_prob_hdi_upper\n62356,548,0.005,0.015\n")
	writeGzipT(t, filepath.Join(dir, CoordinatesFile),
		"priogrid_id,lat,lon,country_id\n62356,10.25,40.75,57\n")

	if err := NewLoader(st, dir).Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	rows, err := st.UncertaintyRows([]int64{62356}, []int64{548})
	if err != nil {
		t.Fatalf("UncertaintyRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].SBProbLower.Float64 != 0.005 || rows[0].SBProbUpper.Float64 != 0.015 {
		t.Errorf("sb prob bounds = (%v, %v), want (0.005, 0.015)",
			rows[0].SBProbLower.Float64, rows[0].SBProbUpper.Float64)
	}

	c, err := st.CoordinateRow(62356)
	if err != nil {
		t.Fatalf("CoordinateRow: %v", err)
	}
	if c == nil || c.Latitude != 10.25 || c.Longitude != 40.75 {
		t.Errorf("coordinate = %+v, want (10.25, 40.75)", c)
	}

	total, err := st.TotalGridCells()
	if err != nil {
		t.Fatalf("TotalGridCells: %v", err)
	}
	if total != 1 {
		t.Errorf("TotalGridCells = %d, want 1", total)
	}

	countries, err := st.Countries()
	if err != nil {
		t.Fatalf("Countries: %v", err)
	}
	if len(countries) != 5 || countries[0].Name != "Testland" {
		t.Errorf("countries = %+v, want the 5 synthetic entries", countries)
	}
}

func TestLoadPersistsSyntheticFiles(t *testing.T) {
	dir := t.TempDir()

	if err := NewLoader(setupLoaderStore(t), dir).Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, name := range []string{ForecastsFile, CountriesFile, UncertaintyFile, CoordinatesFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not persisted: %v", name, err)
		}
	}

	// A second run must load the persisted files and see the same dataset.
	st := setupLoaderStore(t)
	if err := NewLoader(st, dir).Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	total, err := st.TotalGridCells()
	if err != nil {
		t.Fatalf("TotalGridCells: %v", err)
	}
	if total != 100 {
		t.Errorf("TotalGridCells = %d, want 100", total)
	}

	want := SyntheticDataset()
	rows, err := st.UncertaintyRows([]int64{want.Uncertainty[0].GridID}, []int64{want.Uncertainty[0].MonthID})
	if err != nil {
		t.Fatalf("UncertaintyRows: %v", err)
	}
	if len(rows) != 1 || rows[0].SBProbLower != want.Uncertainty[0].SBProbLower {
		t.Errorf("reloaded uncertainty = %+v, want %+v", rows, want.Uncertainty[0])
	}
}

func writeFileT(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeGzipT(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
}
