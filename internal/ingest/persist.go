package ingest

import (
	"compress/gzip"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// persist writes the named synthetic datasets back to the data directory, so
// later runs reload the same bootstrap instead of regenerating it. Existing
// files are left alone, and a write failure only logs: persistence is a
// convenience, not a requirement for serving.
func (l *Loader) persist(ds *Dataset, names ...string) {
	for _, name := range names {
		path := filepath.Join(l.dataDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := writeDatasetFile(path, name, ds); err != nil {
			log.Printf("ingest: persist %s: %v", name, err)
			continue
		}
		log.Printf("ingest: persisted synthetic %s", name)
	}
}

func writeDatasetFile(path, name string, ds *Dataset) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(name, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	cw := csv.NewWriter(w)
	switch name {
	case ForecastsFile:
		err = writeForecastRows(cw, ds)
	case CountriesFile:
		err = writeCountryRows(cw, ds)
	case UncertaintyFile:
		err = writeUncertaintyRows(cw, ds)
	case CoordinatesFile:
		err = writeCoordinateRows(cw, ds)
	default:
		err = fmt.Errorf("unknown dataset file %s", name)
	}
	if err == nil {
		cw.Flush()
		err = cw.Error()
	}
	if gz != nil {
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeForecastRows(cw *csv.Writer, ds *Dataset) error {
	if err := cw.Write([]string{"pg_id", "month_id", "main_mean", "main_mean_ln", "main_dich", "country_id"}); err != nil {
		return err
	}
	for _, f := range ds.Forecasts {
		err := cw.Write([]string{
			strconv.FormatInt(f.GridID, 10),
			strconv.FormatInt(f.MonthID, 10),
			floatField(f.MainMean),
			floatField(f.MainMeanLn),
			floatField(f.MainDich),
			intField(f.CountryID),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeCountryRows(cw *csv.Writer, ds *Dataset) error {
	if err := cw.Write([]string{"country_id", "country", "isoab", "gwcode"}); err != nil {
		return err
	}
	for _, c := range ds.Countries {
		iso := ""
		if c.ISOCode.Valid {
			iso = c.ISOCode.String
		}
		err := cw.Write([]string{
			strconv.FormatInt(c.CountryID, 10),
			c.Name,
			iso,
			intField(c.GWCode),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeUncertaintyRows(cw *csv.Writer, ds *Dataset) error {
	head := []string{
		"priogrid_id", "month_id",
		"pred_ln_sb_best_hdi_lower", "pred_ln_sb_best_hdi_upper",
		"pred_ln_ns_best_hdi_lower", "pred_ln_ns_best_hdi_upper",
		"pred_ln_os_best_hdi_lower", "pred_ln_os_best_hdi_upper",
		"pred_ln_sb_prob_hdi_lower", "pred_ln_sb_prob_hdi_upper",
		"pred_ln_ns_prob_hdi_lower", "pred_ln_ns_prob_hdi_upper",
		"pred_ln_os_prob_hdi_lower", "pred_ln_os_prob_hdi_upper",
	}
	if err := cw.Write(head); err != nil {
		return err
	}
	for _, u := range ds.Uncertainty {
		err := cw.Write([]string{
			strconv.FormatInt(u.GridID, 10),
			strconv.FormatInt(u.MonthID, 10),
			floatField(u.SBBestLower), floatField(u.SBBestUpper),
			floatField(u.NSBestLower), floatField(u.NSBestUpper),
			floatField(u.OSBestLower), floatField(u.OSBestUpper),
			floatField(u.SBProbLower), floatField(u.SBProbUpper),
			floatField(u.NSProbLower), floatField(u.NSProbUpper),
			floatField(u.OSProbLower), floatField(u.OSProbUpper),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeCoordinateRows(cw *csv.Writer, ds *Dataset) error {
	if err := cw.Write([]string{"priogrid_id", "lat", "lon", "row", "col", "country_id"}); err != nil {
		return err
	}
	for _, c := range ds.Coordinates {
		err := cw.Write([]string{
			strconv.FormatInt(c.GridID, 10),
			strconv.FormatFloat(c.Latitude, 'g', -1, 64),
			strconv.FormatFloat(c.Longitude, 'g', -1, 64),
			strconv.FormatInt(c.Row, 10),
			strconv.FormatInt(c.Col, 10),
			intField(c.CountryID),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func floatField(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'g', -1, 64)
}

func intField(v sql.NullInt64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.Int64, 10)
}
