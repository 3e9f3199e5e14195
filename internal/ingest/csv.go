package ingest

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aqib-ilyas/conflictlens/internal/models"
)

// header maps column names to indices, so parsers tolerate column reordering
// between data releases.
type header map[string]int

func readHeader(record []string) header {
	h := make(header, len(record))
	for i, name := range record {
		h[strings.TrimSpace(name)] = i
	}
	return h
}

func (h header) str(record []string, names ...string) string {
	for _, n := range names {
		if i, ok := h[n]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
	}
	return ""
}

func (h header) nullFloat(record []string, names ...string) sql.NullFloat64 {
	s := h.str(record, names...)
	if s == "" {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func (h header) nullInt(record []string, names ...string) sql.NullInt64 {
	s := h.str(record, names...)
	if s == "" {
		return sql.NullInt64{}
	}
	// Country ids sometimes arrive as "57.0" in exported frames.
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return sql.NullInt64{Int64: int64(v), Valid: true}
	}
	return sql.NullInt64{}
}

func (h header) int64(record []string, names ...string) (int64, error) {
	s := h.str(record, names...)
	if s == "" {
		return 0, fmt.Errorf("missing column %v", names)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %v=%q: %w", names, s, err)
	}
	return int64(v), nil
}

// ParseForecastsCSV parses the primary point-forecast file. Row order is
// preserved; it becomes the source row order downstream.
func ParseForecastsCSV(r io.Reader) ([]models.GridForecast, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := readHeader(head)

	var rows []models.GridForecast
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}

		gridID, err := h.int64(record, "pg_id", "priogrid_id")
		if err != nil {
			continue
		}
		monthID, err := h.int64(record, "month_id")
		if err != nil {
			continue
		}

		rows = append(rows, models.GridForecast{
			GridID:     gridID,
			MonthID:    monthID,
			MainMean:   h.nullFloat(record, "main_mean"),
			MainMeanLn: h.nullFloat(record, "main_mean_ln"),
			MainDich:   h.nullFloat(record, "main_dich"),
			CountryID:  h.nullInt(record, "country_id"),
		})
	}
	return rows, nil
}

// ParseCountriesCSV parses the country-month file into a deduplicated
// country directory. The file carries one row per country per month; the
// first row seen for a country wins.
func ParseCountriesCSV(r io.Reader) ([]models.Country, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := readHeader(head)

	seen := make(map[int64]bool)
	var countries []models.Country
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		id, err := h.int64(record, "country_id")
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true

		c := models.Country{CountryID: id, Name: h.str(record, "country", "name")}
		if iso := h.str(record, "isoab", "iso_code"); iso != "" {
			c.ISOCode = sql.NullString{String: iso, Valid: true}
		}
		c.GWCode = h.nullInt(record, "gwcode", "gw_code")
		countries = append(countries, c)
	}
	return countries, nil
}

// ParseUncertaintyCSV parses the interval file: per-conflict-type HDI bounds
// on the log-count ("best") and probability scales.
func ParseUncertaintyCSV(r io.Reader) ([]models.UncertaintyRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := readHeader(head)

	var rows []models.UncertaintyRecord
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		gridID, err := h.int64(record, "priogrid_id", "pg_id")
		if err != nil {
			continue
		}
		monthID, err := h.int64(record, "month_id")
		if err != nil {
			continue
		}

		rows = append(rows, models.UncertaintyRecord{
			GridID:  gridID,
			MonthID: monthID,

			SBBestLower: h.nullFloat(record, "pred_ln_sb_best_hdi_lower"),
			SBBestUpper: h.nullFloat(record, "pred_ln_sb_best_hdi_upper"),
			NSBestLower: h.nullFloat(record, "pred_ln_ns_best_hdi_lower"),
			NSBestUpper: h.nullFloat(record, "pred_ln_ns_best_hdi_upper"),
			OSBestLower: h.nullFloat(record, "pred_ln_os_best_hdi_lower"),
			OSBestUpper: h.nullFloat(record, "pred_ln_os_best_hdi_upper"),

			SBProbLower: h.nullFloat(record, "pred_ln_sb_prob_hdi_lower"),
			SBProbUpper: h.nullFloat(record, "pred_ln_sb_prob_hdi_upper"),
			NSProbLower: h.nullFloat(record, "pred_ln_ns_prob_hdi_lower"),
			NSProbUpper: h.nullFloat(record, "pred_ln_ns_prob_hdi_upper"),
			OSProbLower: h.nullFloat(record, "pred_ln_os_prob_hdi_lower"),
			OSProbUpper: h.nullFloat(record, "pred_ln_os_prob_hdi_upper"),
		})
	}
	return rows, nil
}

// ParseCoordinatesCSV parses the coordinate file. Two shapes exist in the
// wild: a plain CSV with named columns, and a sample-trajectory export where
// each line embeds bracketed arrays and the metadata lives in the trailing
// seven fields (country_id, lat, lon, row, col, month_id, priogrid_id).
// Coordinates do not vary by month, so the first row per grid id wins.
func ParseCoordinatesCSV(r io.Reader) ([]models.CoordinateRecord, error) {
	br := bufio.NewReader(r)

	first, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read first line: %w", err)
	}

	if strings.Contains(first, "[") {
		return parseTrailingCoordinates(first, br)
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return parseNamedCoordinates(strings.NewReader(first + string(rest)))
}

func parseNamedCoordinates(r io.Reader) ([]models.CoordinateRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := readHeader(head)

	seen := make(map[int64]bool)
	var rows []models.CoordinateRecord
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		gridID, err := h.int64(record, "priogrid_id", "pg_id")
		if err != nil || seen[gridID] {
			continue
		}

		lat := h.nullFloat(record, "lat", "latitude")
		lon := h.nullFloat(record, "lon", "longitude")
		if !lat.Valid || !lon.Valid {
			continue
		}
		seen[gridID] = true

		c := models.CoordinateRecord{
			GridID:    gridID,
			Latitude:  lat.Float64,
			Longitude: lon.Float64,
			CountryID: h.nullInt(record, "country_id"),
		}
		if v := h.nullInt(record, "row", "grid_row"); v.Valid {
			c.Row = v.Int64
		}
		if v := h.nullInt(record, "col", "grid_col"); v.Valid {
			c.Col = v.Int64
		}
		rows = append(rows, c)
	}
	return rows, nil
}

// parseTrailingCoordinates handles the array-export shape by splitting each
// line on commas and reading the trailing seven metadata fields. Lines that
// do not parse are skipped rather than failing the load.
func parseTrailingCoordinates(first string, br *bufio.Reader) ([]models.CoordinateRecord, error) {
	seen := make(map[int64]bool)
	var rows []models.CoordinateRecord

	line := first
	// Skip a header line if present.
	if strings.Contains(line, "pred_ln_sb_best") || strings.Contains(line, "priogrid_id") {
		var err error
		line, err = br.ReadString('\n')
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
	}

	for {
		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) >= 10 {
			n := len(parts)
			countryID, err1 := strconv.ParseInt(strings.TrimSpace(parts[n-7]), 10, 64)
			lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[n-6]), 64)
			lon, err3 := strconv.ParseFloat(strings.TrimSpace(parts[n-5]), 64)
			row, err4 := strconv.ParseInt(strings.TrimSpace(parts[n-4]), 10, 64)
			col, err5 := strconv.ParseInt(strings.TrimSpace(parts[n-3]), 10, 64)
			gridID, err6 := strconv.ParseInt(strings.TrimSpace(parts[n-1]), 10, 64)

			if err1 == nil && err2 == nil && err3 == nil && err4 == nil && err5 == nil && err6 == nil && !seen[gridID] {
				seen[gridID] = true
				rows = append(rows, models.CoordinateRecord{
					GridID:    gridID,
					Latitude:  lat,
					Longitude: lon,
					CountryID: sql.NullInt64{Int64: countryID, Valid: true},
					Row:       row,
					Col:       col,
				})
			}
		}

		next, err := br.ReadString('\n')
		if err == io.EOF {
			if strings.TrimSpace(next) != "" {
				line = next
				continue
			}
			break
		}
		if err != nil {
			return nil, err
		}
		line = next
	}
	return rows, nil
}
