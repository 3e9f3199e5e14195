package forecast

import "github.com/aqib-ilyas/conflictlens/internal/models"

// Project nulls out every metric field whose owning group is not selected.
// The record's shape never changes; unselected fields become nil and still
// serialize. The map group owns the point estimates, the threshold group owns
// the dichotomous probability and all six threshold slots, and each band flag
// owns exactly its own pair. Identity and geolocation fields are always kept.
func Project(rec *models.EnrichedForecast, sel models.MetricSelection) {
	if !sel.IncludeMap {
		rec.MainMean = nil
		rec.MainMeanLn = nil
	}
	if !sel.IncludeHDI50 {
		rec.HDI50Lower = nil
		rec.HDI50Upper = nil
	}
	if !sel.IncludeHDI90 {
		rec.HDI90Lower = nil
		rec.HDI90Upper = nil
	}
	if !sel.IncludeHDI99 {
		rec.HDI99Lower = nil
		rec.HDI99Upper = nil
	}
	if !sel.IncludeThresholds {
		rec.MainDich = nil
		rec.Threshold1 = nil
		rec.Threshold2 = nil
		rec.Threshold3 = nil
		rec.Threshold4 = nil
		rec.Threshold5 = nil
		rec.Threshold6 = nil
	}
}
