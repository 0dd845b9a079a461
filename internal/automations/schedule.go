// Package automations runs scheduled jobs that create funding transactions:
// recurring service lines and periodic contract billing.
package automations

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/robfig/cron/v3"
)

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// maxCronLookback bounds the backwards search for the previous cron
// occurrence. Expressions that fire less than once a year are never due.
const maxCronLookback = 400 * 24 * time.Hour

var ErrNoOccurrence = errors.New("schedule has no occurrence in range")

// Schedule resolves occurrence times for one automation in its timezone.
type Schedule struct {
	freq       models.Frequency
	loc        *time.Location
	hour       int
	minute     int
	dayOfWeek  int
	dayOfMonth int
	spec       cron.Schedule
}

// ValidateConfig checks the schedule fields required by the frequency.
func ValidateConfig(a *models.Automation) error {
	_, err := ParseSchedule(a)
	return err
}

// ParseSchedule validates the schedule fields of a and builds a Schedule.
func ParseSchedule(a *models.Automation) (*Schedule, error) {
	tz := a.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, respond.Invalid("timezone", "unknown timezone "+strconv.Quote(tz))
	}
	s := &Schedule{freq: a.Frequency, loc: loc}

	if a.Frequency != models.FrequencyCron {
		tod := a.TimeOfDay
		if tod == "" {
			tod = "00:00"
		}
		if !timeOfDayRe.MatchString(tod) {
			return nil, respond.Invalid("time_of_day", "must be HH:MM")
		}
		s.hour, _ = strconv.Atoi(tod[:2])
		s.minute, _ = strconv.Atoi(tod[3:])
	}

	switch a.Frequency {
	case models.FrequencyDaily:
	case models.FrequencyWeekly:
		if a.DayOfWeek == nil || *a.DayOfWeek < 0 || *a.DayOfWeek > 6 {
			return nil, respond.Invalid("day_of_week", "weekly automations need a day between 0 (Sunday) and 6")
		}
		s.dayOfWeek = *a.DayOfWeek
	case models.FrequencyMonthly:
		if a.DayOfMonth == nil || *a.DayOfMonth < 1 || *a.DayOfMonth > 31 {
			return nil, respond.Invalid("day_of_month", "monthly automations need a day between 1 and 31")
		}
		s.dayOfMonth = *a.DayOfMonth
	case models.FrequencyCron:
		spec, err := cron.ParseStandard(a.CronExpression)
		if err != nil {
			return nil, respond.Invalid("cron_expression", fmt.Sprintf("invalid cron expression: %v", err))
		}
		s.spec = spec
	default:
		return nil, respond.Invalid("frequency", "must be daily, weekly, monthly or cron")
	}
	return s, nil
}

func (s *Schedule) at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, s.hour, s.minute, 0, 0, s.loc)
}

// monthDay is the scheduled day in the given month, clamped to its length.
func (s *Schedule) monthDay(y int, m time.Month) time.Time {
	last := time.Date(y, m+1, 0, 0, 0, 0, 0, s.loc).Day()
	d := s.dayOfMonth
	if d > last {
		d = last
	}
	return s.at(y, m, d)
}

// Next returns the first occurrence strictly after t.
func (s *Schedule) Next(t time.Time) time.Time {
	t = t.In(s.loc)
	y, m, d := t.Date()

	switch s.freq {
	case models.FrequencyDaily:
		next := s.at(y, m, d)
		if !next.After(t) {
			next = s.at(y, m, d+1)
		}
		return next
	case models.FrequencyWeekly:
		ahead := (s.dayOfWeek - int(t.Weekday()) + 7) % 7
		next := s.at(y, m, d+ahead)
		if !next.After(t) {
			next = s.at(y, m, d+ahead+7)
		}
		return next
	case models.FrequencyMonthly:
		next := s.monthDay(y, m)
		if !next.After(t) {
			next = s.monthDay(y, m+1)
		}
		return next
	default:
		return s.spec.Next(t)
	}
}

// Prev returns the latest occurrence at or before t.
func (s *Schedule) Prev(t time.Time) (time.Time, error) {
	t = t.In(s.loc)
	y, m, d := t.Date()

	switch s.freq {
	case models.FrequencyDaily:
		prev := s.at(y, m, d)
		if prev.After(t) {
			prev = s.at(y, m, d-1)
		}
		return prev, nil
	case models.FrequencyWeekly:
		behind := (int(t.Weekday()) - s.dayOfWeek + 7) % 7
		prev := s.at(y, m, d-behind)
		if prev.After(t) {
			prev = s.at(y, m, d-behind-7)
		}
		return prev, nil
	case models.FrequencyMonthly:
		prev := s.monthDay(y, m)
		if prev.After(t) {
			prev = s.monthDay(y, m-1)
		}
		return prev, nil
	default:
		return s.prevCron(t)
	}
}

// prevCron widens a window behind t until it holds an occurrence, then walks
// forward to the last one not after t.
func (s *Schedule) prevCron(t time.Time) (time.Time, error) {
	for back := time.Hour; back <= maxCronLookback; back *= 2 {
		cur := s.spec.Next(t.Add(-back))
		if cur.IsZero() || cur.After(t) {
			continue
		}
		for {
			n := s.spec.Next(cur)
			if n.IsZero() || n.After(t) {
				return cur, nil
			}
			cur = n
		}
	}
	return time.Time{}, ErrNoOccurrence
}

// IsDue reports whether a has an occurrence at or before now that has not
// run yet. Automations that never ran count from their creation time.
func IsDue(a *models.Automation, now time.Time) (bool, error) {
	if !a.IsEnabled {
		return false, nil
	}
	s, err := ParseSchedule(a)
	if err != nil {
		return false, err
	}
	prev, err := s.Prev(now)
	if errors.Is(err, ErrNoOccurrence) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	since := a.CreatedAt
	if a.LastRunAt != nil {
		since = *a.LastRunAt
	}
	return prev.After(since), nil
}

// NextRun is the first occurrence of a after the given time.
func NextRun(a *models.Automation, after time.Time) (time.Time, error) {
	s, err := ParseSchedule(a)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(after), nil
}
