package sla

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultStartHour = 8
	DefaultEndHour   = 18
)

var (
	// ErrEmptyCalendar is returned when a holiday table has no years. Running
	// without holidays would treat every holiday as a business day.
	ErrEmptyCalendar = errors.New("sla: holiday table is empty")
	// ErrInvalidCalendar wraps malformed holiday entries or business windows.
	ErrInvalidCalendar = errors.New("sla: invalid calendar")
)

type monthDay struct {
	month time.Month
	day   int
}

// HolidayTable is the on-disk form of a business calendar: holidays are
// "MM-DD" strings grouped by year.
type HolidayTable struct {
	Version  string           `yaml:"version"`
	Timezone string           `yaml:"timezone"`
	Years    map[int][]string `yaml:"years"`
}

// Calendar is an immutable business calendar. It is safe for concurrent use.
type Calendar struct {
	version   string
	location  *time.Location
	startHour int
	endHour   int
	workdays  [7]bool
	holidays  map[int]map[monthDay]struct{}
	years     []int
}

// CalendarOption customizes a Calendar built by NewCalendar.
type CalendarOption func(*Calendar)

// WithBusinessWindow overrides the daily window [start, end).
func WithBusinessWindow(startHour, endHour int) CalendarOption {
	return func(c *Calendar) {
		c.startHour = startHour
		c.endHour = endHour
	}
}

// WithWorkdays overrides the business week.
func WithWorkdays(days ...time.Weekday) CalendarOption {
	return func(c *Calendar) {
		c.workdays = [7]bool{}
		for _, d := range days {
			c.workdays[d] = true
		}
	}
}

// WithLocation overrides the time zone declared by the holiday table.
func WithLocation(loc *time.Location) CalendarOption {
	return func(c *Calendar) {
		if loc != nil {
			c.location = loc
		}
	}
}

// NewCalendar validates table and builds a Calendar with a Monday-Friday,
// 08:00-18:00 business window unless overridden.
func NewCalendar(table HolidayTable, opts ...CalendarOption) (*Calendar, error) {
	if len(table.Years) == 0 {
		return nil, ErrEmptyCalendar
	}

	cal := &Calendar{
		version:   table.Version,
		location:  time.UTC,
		startHour: DefaultStartHour,
		endHour:   DefaultEndHour,
		holidays:  make(map[int]map[monthDay]struct{}, len(table.Years)),
	}
	for d := time.Monday; d <= time.Friday; d++ {
		cal.workdays[d] = true
	}
	if tz := strings.TrimSpace(table.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidCalendar, tz, err)
		}
		cal.location = loc
	}
	for _, opt := range opts {
		opt(cal)
	}

	if cal.startHour < 0 || cal.endHour > 24 || cal.startHour >= cal.endHour {
		return nil, fmt.Errorf("%w: business window [%d,%d)", ErrInvalidCalendar, cal.startHour, cal.endHour)
	}
	hasWorkday := false
	for _, ok := range cal.workdays {
		hasWorkday = hasWorkday || ok
	}
	if !hasWorkday {
		return nil, fmt.Errorf("%w: no business days configured", ErrInvalidCalendar)
	}

	for year, entries := range table.Years {
		days := make(map[monthDay]struct{}, len(entries))
		for _, entry := range entries {
			md, err := parseMonthDay(year, entry)
			if err != nil {
				return nil, err
			}
			days[md] = struct{}{}
		}
		cal.holidays[year] = days
		cal.years = append(cal.years, year)
	}
	sort.Ints(cal.years)
	return cal, nil
}

func parseMonthDay(year int, raw string) (monthDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return monthDay{}, fmt.Errorf("%w: holiday %q in %d: want MM-DD", ErrInvalidCalendar, raw, year)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return monthDay{}, fmt.Errorf("%w: holiday %q in %d: %v", ErrInvalidCalendar, raw, year, err)
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return monthDay{}, fmt.Errorf("%w: holiday %q in %d: %v", ErrInvalidCalendar, raw, year, err)
	}
	// time.Date normalizes out-of-range values, so a mismatch means the date does not exist.
	parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if parsed.Year() != year || int(parsed.Month()) != month || parsed.Day() != day {
		return monthDay{}, fmt.Errorf("%w: holiday %q does not exist in %d", ErrInvalidCalendar, raw, year)
	}
	return monthDay{month: time.Month(month), day: day}, nil
}

// Version returns the holiday table version label.
func (c *Calendar) Version() string { return c.version }

// Location returns the time zone business hours are measured in.
func (c *Calendar) Location() *time.Location { return c.location }

// Window returns the daily business window [start, end) in hours.
func (c *Calendar) Window() (startHour, endHour int) { return c.startHour, c.endHour }

// Years returns the years with configured holidays, ascending.
func (c *Calendar) Years() []int {
	out := make([]int, len(c.years))
	copy(out, c.years)
	return out
}

// Covers reports whether the holiday table has an entry for year. Outside
// covered years IsBusinessDay only checks the weekday.
func (c *Calendar) Covers(year int) bool {
	_, ok := c.holidays[year]
	return ok
}

// Holidays returns the holidays configured for year in chronological order.
func (c *Calendar) Holidays(year int) []time.Time {
	days := c.holidays[year]
	out := make([]time.Time, 0, len(days))
	for md := range days {
		out = append(out, time.Date(year, md.month, md.day, 0, 0, 0, 0, c.location))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// IsHoliday reports whether t's calendar day is a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	y, m, d := t.In(c.location).Date()
	return c.isHolidayDate(y, m, d)
}

// IsBusinessDay reports whether t falls on a business weekday that is not a holiday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	y, m, d := t.In(c.location).Date()
	return c.isBusinessDate(y, m, d)
}

// IsWithinBusinessHours reports whether t is on a business day and its hour
// lies in the business window.
func (c *Calendar) IsWithinBusinessHours(t time.Time) bool {
	local := t.In(c.location)
	if !c.IsBusinessDay(local) {
		return false
	}
	h := local.Hour()
	return h >= c.startHour && h < c.endHour
}

func (c *Calendar) isHolidayDate(y int, m time.Month, d int) bool {
	days, ok := c.holidays[y]
	if !ok {
		return false
	}
	_, ok = days[monthDay{month: m, day: d}]
	return ok
}

func (c *Calendar) isBusinessDate(y int, m time.Month, d int) bool {
	weekday := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Weekday()
	if !c.workdays[weekday] {
		return false
	}
	return !c.isHolidayDate(y, m, d)
}

// window returns the business window bounds of the given calendar day.
func (c *Calendar) window(y int, m time.Month, d int) (open, close time.Time) {
	open = time.Date(y, m, d, c.startHour, 0, 0, 0, c.location)
	close = time.Date(y, m, d, c.endHour, 0, 0, 0, c.location)
	return open, close
}
