package forecast

const (
	apiVersion  = "1.0.0"
	dataVersion = "2025.07"
)

// Info summarizes the loaded dataset snapshot.
type Info struct {
	AvailableMonths []int64   `json:"available_months"`
	TotalGridCells  int       `json:"total_grid_cells"`
	Countries       int       `json:"countries_available"`
	DateRange       DateRange `json:"date_range"`
	APIVersion      string    `json:"api_version"`
	DataVersion     string    `json:"data_version"`
}

// DateRange is the calendar span of the available months, "YYYY-MM".
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CountrySummary is one country directory entry with its grid coverage.
type CountrySummary struct {
	CountryID      int64   `json:"country_id"`
	Country        string  `json:"country"`
	ISOCode        *string `json:"iso_code"`
	GridCellsCount int     `json:"grid_cells_count"`
}

// BasicInfo reports the available months, grid totals, and calendar range.
func (e *Enricher) BasicInfo() (Info, error) {
	months, err := e.store.AvailableMonths()
	if err != nil {
		return Info{}, err
	}
	total, err := e.store.TotalGridCells()
	if err != nil {
		return Info{}, err
	}
	countries, err := e.store.Countries()
	if err != nil {
		return Info{}, err
	}

	info := Info{
		AvailableMonths: months,
		TotalGridCells:  total,
		Countries:       len(countries),
		APIVersion:      apiVersion,
		DataVersion:     dataVersion,
	}
	if len(months) > 0 {
		info.DateRange = DateRange{
			Start: CalendarString(months[0]),
			End:   CalendarString(months[len(months)-1]),
		}
	}
	return info, nil
}

// CountrySummaries returns the country directory with grid-cell counts.
// Countries with no attributed grids report a count of zero.
func (e *Enricher) CountrySummaries() ([]CountrySummary, error) {
	countries, err := e.store.Countries()
	if err != nil {
		return nil, err
	}
	counts, err := e.store.CountryGridCounts()
	if err != nil {
		return nil, err
	}

	summaries := make([]CountrySummary, 0, len(countries))
	for _, c := range countries {
		s := CountrySummary{
			CountryID:      c.CountryID,
			Country:        c.Name,
			GridCellsCount: counts[c.CountryID],
		}
		if c.ISOCode.Valid {
			iso := c.ISOCode.String
			s.ISOCode = &iso
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
