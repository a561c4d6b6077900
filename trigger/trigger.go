// Package trigger implements the Time/Trigger service (spec.md §4.2): given
// an ordered set of wall-clock times-of-day in a fixed IANA zone, it answers
// "what is the current notification window" for any instant.
package trigger

import (
	"fmt"
	"sort"
	"time"
)

// Info is the four-tuple a Trigger computation yields for a given instant.
type Info struct {
	Previous        time.Time
	Current         time.Time
	Next            time.Time
	ShiftedPrevious time.Time
}

// Service computes Trigger Info against a fixed ordered list of
// times-of-day, in a fixed zone, with a configured check-update interval.
type Service struct {
	zone               *time.Location
	times              []timeOfDay
	checkUpdatesPeriod time.Duration
}

type timeOfDay struct {
	hour, minute int
}

// New builds a Service from an ordered (or unordered — it is sorted here)
// list of "HH:MM" strings. Returns an error if times is empty or any entry
// is malformed — spec.md §4.2's "missing/empty T is a configuration error".
func New(zone *time.Location, times []string, checkUpdatesInterval time.Duration) (*Service, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("trigger: no trigger times configured")
	}
	parsed := make([]timeOfDay, 0, len(times))
	for _, s := range times {
		var h, m int
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return nil, fmt.Errorf("trigger: invalid time-of-day %q: %w", s, err)
		}
		if h < 0 || h > 23 || m < 0 || m > 59 {
			return nil, fmt.Errorf("trigger: time-of-day %q out of range", s)
		}
		parsed = append(parsed, timeOfDay{hour: h, minute: m})
	}
	sort.Slice(parsed, func(i, j int) bool {
		if parsed[i].hour != parsed[j].hour {
			return parsed[i].hour < parsed[j].hour
		}
		return parsed[i].minute < parsed[j].minute
	})
	return &Service{zone: zone, times: parsed, checkUpdatesPeriod: checkUpdatesInterval}, nil
}

// At computes Info for the given instant, converted into the Service's
// configured zone.
func (s *Service) At(now time.Time) Info {
	now = now.In(s.zone)

	occurrences := s.occurrencesAround(now)

	var current time.Time
	idx := -1
	for i, occ := range occurrences {
		if !occ.After(now) {
			current = occ
			idx = i
		} else {
			break
		}
	}

	previous := occurrences[idx-1]
	next := occurrences[idx+1]

	return Info{
		Previous:        previous,
		Current:         current,
		Next:            next,
		ShiftedPrevious: previous.Add(-2 * s.checkUpdatesPeriod),
	}
}

// occurrencesAround returns the full list of trigger occurrences across two
// days before today through one day after (in the Service's zone), sorted
// ascending. The two-day lookback guarantees a "previous" occurrence is
// always available even when only a single trigger-of-day is configured —
// with one trigger, "current" can be as far back as yesterday's occurrence,
// so "previous" then needs the day before that.
func (s *Service) occurrencesAround(now time.Time) []time.Time {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, s.zone)

	var occs []time.Time
	for _, dayOffset := range []int{-2, -1, 0, 1} {
		day := today.AddDate(0, 0, dayOffset)
		for _, t := range s.times {
			occs = append(occs, time.Date(
				day.Year(), day.Month(), day.Day(), t.hour, t.minute, 0, 0, s.zone,
			))
		}
	}
	sort.Slice(occs, func(i, j int) bool { return occs[i].Before(occs[j]) })
	return occs
}
