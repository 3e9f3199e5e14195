package ingest

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aqib-ilyas/conflictlens/internal/metrics"
	"github.com/aqib-ilyas/conflictlens/internal/models"
	"github.com/aqib-ilyas/conflictlens/internal/store"
)

// Source file names within the data directory. The uncertainty and
// coordinate files ship gzip-compressed.
const (
	ForecastsFile   = "fatalities002_2025_07_t01_pgm.csv"
	CountriesFile   = "fatalities002_2025_07_t01_cm.csv"
	UncertaintyFile = "sample_preds_001_90.csv.gz"
	CoordinatesFile = "sample_preds_001.csv.gz"
)

// Loader reads the source files from a data directory into the store. When a
// file is missing or unreadable the corresponding dataset falls back to the
// synthetic bootstrap, so the service always comes up with data.
type Loader struct {
	store   *store.Store
	dataDir string
}

func NewLoader(st *store.Store, dataDir string) *Loader {
	return &Loader{store: st, dataDir: dataDir}
}

// Load ingests all four datasets and marks the store loaded. Each dataset
// falls back to its synthetic counterpart independently: a missing countries
// or interval file never discards the real rows of the others. Only a missing
// primary forecast file replaces the whole snapshot, since synthetic grid ids
// only join synthetic coordinates, intervals, and countries.
func (l *Loader) Load() error {
	forecasts, err := loadFile(l, ForecastsFile, ParseForecastsCSV)
	if err != nil {
		log.Printf("ingest: forecasts unavailable (%v), using synthetic dataset", err)
		ds := SyntheticDataset()
		l.persist(ds, ForecastsFile, CountriesFile, UncertaintyFile, CoordinatesFile)
		return l.insert(ds.Forecasts, ds.Countries, ds.Uncertainty, ds.Coordinates)
	}

	var synth *Dataset
	synthetic := func() *Dataset {
		if synth == nil {
			synth = SyntheticDataset()
		}
		return synth
	}

	countries, err := loadFile(l, CountriesFile, ParseCountriesCSV)
	if err != nil {
		log.Printf("ingest: countries unavailable (%v), using synthetic countries", err)
		countries = synthetic().Countries
		l.persist(synth, CountriesFile)
	}

	uncertainty, err := loadFile(l, UncertaintyFile, ParseUncertaintyCSV)
	if err != nil {
		log.Printf("ingest: uncertainty unavailable (%v), using synthetic intervals", err)
		uncertainty = synthetic().Uncertainty
		l.persist(synth, UncertaintyFile)
	}

	coordinates, err := loadFile(l, CoordinatesFile, ParseCoordinatesCSV)
	if err != nil {
		log.Printf("ingest: coordinates unavailable (%v), using synthetic coordinates", err)
		coordinates = synthetic().Coordinates
		l.persist(synth, CoordinatesFile)
	}

	return l.insert(forecasts, countries, uncertainty, coordinates)
}

func (l *Loader) insert(forecasts []models.GridForecast, countries []models.Country, uncertainty []models.UncertaintyRecord, coordinates []models.CoordinateRecord) error {
	if err := l.store.InsertGridForecasts(forecasts); err != nil {
		return fmt.Errorf("insert forecasts: %w", err)
	}
	if err := l.store.UpsertCountries(countries); err != nil {
		return fmt.Errorf("insert countries: %w", err)
	}
	if err := l.store.InsertUncertaintyRecords(uncertainty); err != nil {
		return fmt.Errorf("insert uncertainty: %w", err)
	}
	if err := l.store.InsertCoordinates(coordinates); err != nil {
		return fmt.Errorf("insert coordinates: %w", err)
	}

	metrics.DatasetRowsLoaded.WithLabelValues("forecasts").Set(float64(len(forecasts)))
	metrics.DatasetRowsLoaded.WithLabelValues("countries").Set(float64(len(countries)))
	metrics.DatasetRowsLoaded.WithLabelValues("uncertainty").Set(float64(len(uncertainty)))
	metrics.DatasetRowsLoaded.WithLabelValues("coordinates").Set(float64(len(coordinates)))

	l.store.SetLoaded()
	log.Printf("ingest: loaded %d forecasts, %d countries, %d uncertainty rows, %d coordinates",
		len(forecasts), len(countries), len(uncertainty), len(coordinates))
	return nil
}

func loadFile[T any](l *Loader, name string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	path := filepath.Join(l.dataDir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", name, err)
		}
		defer gz.Close()
		r = gz
	}

	rows, err := parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: no usable rows", name)
	}
	return rows, nil
}
