package subscription

import (
	"time"

	"github.com/HenrikVollan/KakaoBoks/app/models"
)

// NextFromSchedule advances a billing anchor by exactly one frequency
// interval. Renewals always advance from the previous scheduled date, never
// from processing time, so late webhook delivery cannot drift the schedule.
// Monthly cycles use calendar-month arithmetic (Jan 31 + 1 month = Mar 2,
// per time.AddDate normalization).
func NextFromSchedule(frequency string, from time.Time) time.Time {
	switch frequency {
	case models.FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case models.FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	default:
		return from.AddDate(0, 1, 0)
	}
}
