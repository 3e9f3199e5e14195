package api

import (
	"github.com/aqib-ilyas/conflictlens/internal/forecast"
	"github.com/aqib-ilyas/conflictlens/internal/models"
)

// ForecastResponse is the envelope for all forecast queries. Data preserves
// the primary-source row order.
type ForecastResponse struct {
	Data          []models.EnrichedForecast `json:"data"`
	TotalCells    int                       `json:"total_cells"`
	MonthsCovered []int64                   `json:"months_covered"`
}

func newForecastResponse(records []models.EnrichedForecast) ForecastResponse {
	cells := make(map[int64]bool)
	monthSeen := make(map[int64]bool)
	var months []int64
	for i := range records {
		cells[records[i].GridID] = true
		if !monthSeen[records[i].MonthID] {
			monthSeen[records[i].MonthID] = true
			months = append(months, records[i].MonthID)
		}
	}
	if records == nil {
		records = []models.EnrichedForecast{}
	}
	if months == nil {
		months = []int64{}
	}
	return ForecastResponse{Data: records, TotalCells: len(cells), MonthsCovered: months}
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status      string         `json:"status"`
	DataLoaded  bool           `json:"data_loaded"`
	DatasetRows map[string]int `json:"dataset_rows,omitempty"`
}

type dashboardData struct {
	Info        forecast.Info
	Countries   []forecast.CountrySummary
	LatestMonth int64
	LatestLabel string
}
