// Package schedule holds the cron fan-out configuration: cadences and their
// reporting windows, the profiles that expand one firing into many jobs, and
// the bounded state machine behind the pipeline test harness.
package schedule

import (
	"fmt"
	"time"

	"github.com/caseworks/report-engine/internal/domain/model"
)

// Cadence names one cron registration.
type Cadence string

const (
	CadenceDaily     Cadence = "daily"
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
	CadenceTest      Cadence = "test"
)

// Cadences lists the production cadences in registration order. The test
// cadence is driven by the harness, not the cron registry.
func Cadences() []Cadence {
	return []Cadence{CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceQuarterly, CadenceYearly}
}

// Valid reports whether the cadence is known, the test driver included.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceQuarterly, CadenceYearly, CadenceTest:
		return true
	}
	return false
}

// DefaultSpec returns the cron expression used when configuration does not
// override the cadence. Firings are staggered so the heavier windows run
// after the daily batch.
func (c Cadence) DefaultSpec() string {
	switch c {
	case CadenceDaily:
		return "0 2 * * *"
	case CadenceWeekly:
		return "0 3 * * 1"
	case CadenceMonthly:
		return "0 4 1 * *"
	case CadenceQuarterly:
		return "0 5 1 1,4,7,10 *"
	case CadenceYearly:
		return "0 6 1 1 *"
	default:
		return ""
	}
}

// Window computes the reporting date range for a firing at now. Ranges are
// date-granular and inclusive on both ends.
func Window(c Cadence, now time.Time) (model.DateRange, error) {
	today := midnight(now)
	switch c {
	case CadenceDaily:
		y := today.AddDate(0, 0, -1)
		return model.DateRange{Start: y, End: y}, nil
	case CadenceWeekly:
		// Previous ISO week, Monday through Sunday.
		offset := (int(today.Weekday()) + 6) % 7
		thisMonday := today.AddDate(0, 0, -offset)
		return model.DateRange{
			Start: thisMonday.AddDate(0, 0, -7),
			End:   thisMonday.AddDate(0, 0, -1),
		}, nil
	case CadenceMonthly:
		firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return model.DateRange{
			Start: firstOfMonth.AddDate(0, -1, 0),
			End:   firstOfMonth.AddDate(0, 0, -1),
		}, nil
	case CadenceQuarterly:
		qStartMonth := time.Month((int(today.Month())-1)/3*3 + 1)
		qStart := time.Date(today.Year(), qStartMonth, 1, 0, 0, 0, 0, time.UTC)
		return model.DateRange{
			Start: qStart.AddDate(0, -3, 0),
			End:   qStart.AddDate(0, 0, -1),
		}, nil
	case CadenceYearly:
		jan1 := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return model.DateRange{
			Start: jan1.AddDate(-1, 0, 0),
			End:   jan1.AddDate(0, 0, -1),
		}, nil
	case CadenceTest:
		return model.DateRange{Start: today, End: today}, nil
	default:
		return model.DateRange{}, fmt.Errorf("unknown cadence %q", string(c))
	}
}

func midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
