package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/aqib-ilyas/conflictlens/internal/models"
)

// ErrNotLoaded is returned for data queries made before the source datasets
// have been loaded into the store.
var ErrNotLoaded = errors.New("source data not loaded")

// ErrNotFound is returned when a query matches no primary-source rows.
var ErrNotFound = errors.New("not found")

type Store struct {
	db     *sql.DB
	loaded atomic.Bool
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SetLoaded marks the dataset snapshot as complete. Queries against primary
// data fail with ErrNotLoaded until this is called.
func (s *Store) SetLoaded() {
	s.loaded.Store(true)
}

func (s *Store) Loaded() bool {
	return s.loaded.Load()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// InsertGridForecasts bulk-inserts primary forecast rows in a single
// transaction, preserving slice order as row order.
func (s *Store) InsertGridForecasts(rows []models.GridForecast) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO grid_forecasts (pg_id, month_id, main_mean, main_mean_ln, main_dich, country_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pg_id, month_id) DO NOTHING
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.GridID, r.MonthID, r.MainMean, r.MainMeanLn, r.MainDich, r.CountryID); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert forecast pg=%d month=%d: %w", r.GridID, r.MonthID, err)
		}
	}
	return tx.Commit()
}

// InsertUncertaintyRecords bulk-inserts interval rows.
func (s *Store) InsertUncertaintyRecords(rows []models.UncertaintyRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO uncertainty_intervals (
			pg_id, month_id,
			sb_best_lower, sb_best_upper, ns_best_lower, ns_best_upper, os_best_lower, os_best_upper,
			sb_prob_lower, sb_prob_upper, ns_prob_lower, ns_prob_upper, os_prob_lower, os_prob_upper
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pg_id, month_id) DO NOTHING
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.GridID, r.MonthID,
			r.SBBestLower, r.SBBestUpper, r.NSBestLower, r.NSBestUpper, r.OSBestLower, r.OSBestUpper,
			r.SBProbLower, r.SBProbUpper, r.NSProbLower, r.NSProbUpper, r.OSProbLower, r.OSProbUpper,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert interval pg=%d month=%d: %w", r.GridID, r.MonthID, err)
		}
	}
	return tx.Commit()
}

// InsertCoordinates bulk-inserts coordinate rows. Later duplicates for a grid
// id are ignored so the first row seen stays authoritative.
func (s *Store) InsertCoordinates(rows []models.CoordinateRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO grid_coordinates (pg_id, latitude, longitude, country_id, grid_row, grid_col)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pg_id) DO NOTHING
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.GridID, r.Latitude, r.Longitude, r.CountryID, r.Row, r.Col); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert coordinate pg=%d: %w", r.GridID, err)
		}
	}
	return tx.Commit()
}

// UpsertCountries inserts or replaces country directory entries.
func (s *Store) UpsertCountries(rows []models.Country) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO countries (country_id, name, iso_code, gw_code)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(country_id) DO UPDATE SET
			name = excluded.name,
			iso_code = excluded.iso_code,
			gw_code = excluded.gw_code
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.Exec(c.CountryID, c.Name, c.ISOCode, c.GWCode); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert country %d: %w", c.CountryID, err)
		}
	}
	return tx.Commit()
}

// PrimaryRows returns forecast rows for the given grid ids, optionally
// restricted to the given month ids, in source row order. Returns ErrNotFound
// when nothing matches.
func (s *Store) PrimaryRows(gridIDs, monthIDs []int64) ([]models.GridForecast, error) {
	if !s.loaded.Load() {
		return nil, ErrNotLoaded
	}
	if len(gridIDs) == 0 {
		return nil, ErrNotFound
	}

	query := `
		SELECT pg_id, month_id, main_mean, main_mean_ln, main_dich, country_id
		FROM grid_forecasts
		WHERE pg_id IN (` + placeholders(len(gridIDs)) + `)`
	args := int64Args(gridIDs)

	if len(monthIDs) > 0 {
		query += ` AND month_id IN (` + placeholders(len(monthIDs)) + `)`
		args = append(args, int64Args(monthIDs)...)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.GridForecast
	for rows.Next() {
		var f models.GridForecast
		if err := rows.Scan(&f.GridID, &f.MonthID, &f.MainMean, &f.MainMeanLn, &f.MainDich, &f.CountryID); err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no forecast rows for requested grids: %w", ErrNotFound)
	}
	return results, nil
}

// MonthGridIDs returns the grid ids with primary rows at a month, in source
// row order, optionally restricted to one country.
func (s *Store) MonthGridIDs(monthID int64, countryID *int64) ([]int64, error) {
	if !s.loaded.Load() {
		return nil, ErrNotLoaded
	}

	query := `SELECT pg_id FROM grid_forecasts WHERE month_id = ?`
	args := []any{monthID}
	if countryID != nil {
		query += ` AND country_id = ?`
		args = append(args, *countryID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no forecast rows for month %d: %w", monthID, ErrNotFound)
	}
	return ids, nil
}

// UncertaintyRows returns interval rows for the given grids and months.
// An empty result is valid and returns an empty slice.
func (s *Store) UncertaintyRows(gridIDs, monthIDs []int64) ([]models.UncertaintyRecord, error) {
	if !s.loaded.Load() {
		return nil, ErrNotLoaded
	}
	if len(gridIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT pg_id, month_id,
			sb_best_lower, sb_best_upper, ns_best_lower, ns_best_upper, os_best_lower, os_best_upper,
			sb_prob_lower, sb_prob_upper, ns_prob_lower, ns_prob_upper, os_prob_lower, os_prob_upper
		FROM uncertainty_intervals
		WHERE pg_id IN (` + placeholders(len(gridIDs)) + `)`
	args := int64Args(gridIDs)

	if len(monthIDs) > 0 {
		query += ` AND month_id IN (` + placeholders(len(monthIDs)) + `)`
		args = append(args, int64Args(monthIDs)...)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.UncertaintyRecord
	for rows.Next() {
		var u models.UncertaintyRecord
		if err := rows.Scan(&u.GridID, &u.MonthID,
			&u.SBBestLower, &u.SBBestUpper, &u.NSBestLower, &u.NSBestUpper, &u.OSBestLower, &u.OSBestUpper,
			&u.SBProbLower, &u.SBProbUpper, &u.NSProbLower, &u.NSProbUpper, &u.OSProbLower, &u.OSProbUpper,
		); err != nil {
			return nil, err
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// CoordinateRow returns the authoritative coordinate for a grid id, or nil
// when the source has none.
func (s *Store) CoordinateRow(gridID int64) (*models.CoordinateRecord, error) {
	if !s.loaded.Load() {
		return nil, ErrNotLoaded
	}

	row := s.db.QueryRow(`
		SELECT pg_id, latitude, longitude, country_id, grid_row, grid_col
		FROM grid_coordinates
		WHERE pg_id = ?
	`, gridID)

	var c models.CoordinateRecord
	err := row.Scan(&c.GridID, &c.Latitude, &c.Longitude, &c.CountryID, &c.Row, &c.Col)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CoordinateRows returns coordinates for the given grid ids keyed by grid id.
// Grids without source coordinates are simply absent from the map.
func (s *Store) CoordinateRows(gridIDs []int64) (map[int64]models.CoordinateRecord, error) {
	if !s.loaded.Load() {
		return nil, ErrNotLoaded
	}
	if len(gridIDs) == 0 {
		return map[int64]models.CoordinateRecord{}, nil
	}

	rows, err := s.db.Query(`
		SELECT pg_id, latitude, longitude, country_id, grid_row, grid_col
		FROM grid_coordinates
		WHERE pg_id IN (`+placeholders(len(gridIDs))+`)
	`, int64Args(gridIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coords := make(map[int64]models.CoordinateRecord)
	for rows.Next() {
		var c models.CoordinateRecord
		if err := rows.Scan(&c.GridID, &c.Latitude, &c.Longitude, &c.CountryID, &c.Row, &c.Col); err != nil {
			return nil, err
		}
		coords[c.GridID] = c
	}
	return coords, rows.Err()
}

// GridsForCountry returns the grid ids attributed to a country, preferring
// the primary source and falling back to coordinate attribution. Returns
// ErrNotFound when the country maps to no grids.
func (s *Store) GridsForCountry(countryID int64) ([]int64, error) {
	if !s.loaded.Load() {
		return nil, ErrNotLoaded
	}

	ids, err := s.distinctGrids(`
		SELECT DISTINCT pg_id FROM grid_forecasts WHERE country_id = ? ORDER BY pg_id
	`, countryID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids, err = s.distinctGrids(`
			SELECT DISTINCT pg_id FROM grid_coordinates WHERE country_id = ? ORDER BY pg_id
		`, countryID)
		if err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no grid cells for country %d: %w", countryID, ErrNotFound)
	}
	return ids, nil
}

func (s *Store) distinctGrids(query string, args ...any) ([]int64, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountryGridCounts returns the number of distinct grid cells attributed to
// each country id, from the primary source with coordinate fallback.
func (s *Store) CountryGridCounts() (map[int64]int, error) {
	if !s.loaded.Load() {
		return nil, ErrNotLoaded
	}

	counts := make(map[int64]int)
	rows, err := s.db.Query(`
		SELECT country_id, COUNT(DISTINCT pg_id)
		FROM grid_forecasts
		WHERE country_id IS NOT NULL
		GROUP BY country_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(counts) > 0 {
		return counts, nil
	}

	rows, err = s.db.Query(`
		SELECT country_id, COUNT(DISTINCT pg_id)
		FROM grid_coordinates
		WHERE country_id IS NOT NULL
		GROUP BY country_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// Countries returns the country directory ordered by id.
func (s *Store) Countries() ([]models.Country, error) {
	if !s.loaded.Load() {
		return nil, ErrNotLoaded
	}

	rows, err := s.db.Query(`SELECT country_id, name, iso_code, gw_code FROM countries ORDER BY country_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []models.Country
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.CountryID, &c.Name, &c.ISOCode, &c.GWCode); err != nil {
			return nil, err
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

// AvailableMonths returns the distinct month ids in the primary source,
// ascending.
func (s *Store) AvailableMonths() ([]int64, error) {
	if !s.loaded.Load() {
		return nil, ErrNotLoaded
	}

	rows, err := s.db.Query(`SELECT DISTINCT month_id FROM grid_forecasts ORDER BY month_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var months []int64
	for rows.Next() {
		var m int64
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

// TotalGridCells returns the number of distinct grid cells in the primary
// source.
func (s *Store) TotalGridCells() (int, error) {
	if !s.loaded.Load() {
		return 0, ErrNotLoaded
	}

	var n int
	err := s.db.QueryRow(`SELECT COUNT(DISTINCT pg_id) FROM grid_forecasts`).Scan(&n)
	return n, err
}

// CountRows returns the row count of a dataset table, for load reporting.
func (s *Store) CountRows(table string) (int, error) {
	switch table {
	case "grid_forecasts", "uncertainty_intervals", "grid_coordinates", "countries":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n)
	return n, err
}
