package sla

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultHolidayTable(t *testing.T) {
	cal, err := LoadCalendar("")
	if err != nil {
		t.Fatalf("LoadCalendar: %v", err)
	}
	for year := 2023; year <= 2027; year++ {
		if !cal.Covers(year) {
			t.Errorf("default calendar does not cover %d", year)
		}
		if len(cal.Holidays(year)) == 0 {
			t.Errorf("no holidays for %d", year)
		}
	}
	if cal.Location().String() != "America/Bogota" {
		t.Errorf("location = %s", cal.Location())
	}
	newYear := time.Date(2025, time.January, 1, 10, 0, 0, 0, cal.Location())
	if !cal.IsHoliday(newYear) {
		t.Errorf("expected %s to be a holiday", newYear)
	}
}

func writeTable(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "holidays.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}
	return path
}

func TestLoadCalendarFromFile(t *testing.T) {
	path := writeTable(t, `version: acme-1
timezone: UTC
years:
  2025:
    - "01-01"
    - "03-24"
`)
	cal, err := LoadCalendar(path, WithBusinessWindow(9, 17))
	if err != nil {
		t.Fatalf("LoadCalendar: %v", err)
	}
	if cal.Version() != "acme-1" {
		t.Errorf("version = %s", cal.Version())
	}
	if start, end := cal.Window(); start != 9 || end != 17 {
		t.Errorf("window = [%d,%d)", start, end)
	}
	holidays := cal.Holidays(2025)
	if len(holidays) != 2 || holidays[0].Month() != time.January || holidays[1].Day() != 24 {
		t.Errorf("holidays = %v", holidays)
	}
}

func TestLoadCalendarErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"empty", "version: x\n", ErrEmptyCalendar},
		{"unknown field", "version: x\nyears:\n  2025: [\"01-01\"]\nregion: co\n", ErrInvalidCalendar},
		{"invalid month", "years:\n  2025: [\"13-01\"]\n", ErrInvalidCalendar},
		{"invalid day", "years:\n  2025: [\"02-30\"]\n", ErrInvalidCalendar},
		{"not yaml", "years: [\n", ErrInvalidCalendar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCalendar(writeTable(t, tt.body))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadCalendar error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCalendarMissingFile(t *testing.T) {
	_, err := LoadCalendar(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want not exist", err)
	}
}
