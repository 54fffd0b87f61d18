package sla

import "time"

// AddBusinessHours returns the instant at which exactly hours of business
// time have elapsed since start. Nights, weekends and holidays are skipped
// without consuming budget; a walk reaching the end of a window resumes at
// the start of the next business day. For hours <= 0 start is returned as is.
//
// Partial hours carry over: the minutes left in a window are consumed and the
// rest continues at the next opening, so 17:59 plus one hour ends at 08:59 on
// the next business day.
//
// Whenever the budget runs out exactly at the end of a window the result is
// the next business day's opening instant, so a positive allowance never
// lands outside business hours.
func (c *Calendar) AddBusinessHours(start time.Time, hours int) time.Time {
	if hours <= 0 {
		return start
	}
	remaining := time.Duration(hours) * time.Hour
	cursor := start.In(c.location)

	for {
		y, m, d := cursor.Date()
		if c.isBusinessDate(y, m, d) {
			open, close := c.window(y, m, d)
			from := cursor
			if from.Before(open) {
				from = open
			}
			if from.Before(close) {
				available := close.Sub(from)
				if remaining < available {
					return from.Add(remaining)
				}
				remaining -= available
				if remaining == 0 {
					return c.nextOpening(close)
				}
			}
		}
		cursor = time.Date(y, m, d+1, 0, 0, 0, 0, c.location)
	}
}

// nextOpening returns the first business window opening strictly after the
// day containing t.
func (c *Calendar) nextOpening(t time.Time) time.Time {
	y, m, d := t.In(c.location).Date()
	for {
		d++
		next := time.Date(y, m, d, 0, 0, 0, 0, c.location)
		ny, nm, nd := next.Date()
		if c.isBusinessDate(ny, nm, nd) {
			open, _ := c.window(ny, nm, nd)
			return open
		}
	}
}

// BusinessTime returns the business time between from and to, or zero when
// to is not after from.
func (c *Calendar) BusinessTime(from, to time.Time) time.Duration {
	if !to.After(from) {
		return 0
	}
	from = from.In(c.location)
	to = to.In(c.location)

	var total time.Duration
	y, m, d := from.Date()
	endY, endM, endD := to.Date()
	lastDay := time.Date(endY, endM, endD, 0, 0, 0, 0, c.location)

	for day := time.Date(y, m, d, 0, 0, 0, 0, c.location); !day.After(lastDay); {
		dy, dm, dd := day.Date()
		if c.isBusinessDate(dy, dm, dd) {
			open, close := c.window(dy, dm, dd)
			lo, hi := open, close
			if from.After(lo) {
				lo = from
			}
			if to.Before(hi) {
				hi = to
			}
			if hi.After(lo) {
				total += hi.Sub(lo)
			}
		}
		day = time.Date(dy, dm, dd+1, 0, 0, 0, 0, c.location)
	}
	return total
}

// BusinessHoursElapsed is BusinessTime expressed in fractional hours.
func (c *Calendar) BusinessHoursElapsed(from, to time.Time) float64 {
	return c.BusinessTime(from, to).Hours()
}
