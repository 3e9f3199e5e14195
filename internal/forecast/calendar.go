package forecast

import "fmt"

// The month index is a linear count where id 548 falls in August 2025.
const (
	epochMonthID = 548
	epochYear    = 2025
	epochMonth   = 8
)

// Calendar converts a month id to its calendar year and month (1-12).
// Uses floor division so ids before the epoch map correctly.
func Calendar(monthID int64) (year, month int) {
	off := monthID - epochMonthID + int64(epochMonth) - 1
	y := off / 12
	m := off % 12
	if m < 0 {
		m += 12
		y--
	}
	return epochYear + int(y), int(m) + 1
}

// CalendarString formats a month id as "YYYY-MM".
func CalendarString(monthID int64) string {
	y, m := Calendar(monthID)
	return fmt.Sprintf("%d-%02d", y, m)
}
