package parking

import "time"

// civil strips a time down to its calendar date, as UTC midnight.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// today is the calendar date of now in the service location.
func (s *Service) today(now time.Time) time.Time {
	return civil(now.In(s.loc))
}

// endOfDate is the midnight that closes the given calendar date.
func (s *Service) endOfDate(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
}

// addMonths moves a date by n calendar months, clamping to the last day of
// the target month (Jan 31 + 1 month is Feb 28/29).
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}
