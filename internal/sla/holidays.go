package sla

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

//go:embed holidays/colombia.yaml
var defaultHolidayTable []byte

// ParseHolidayTable decodes a YAML holiday table. Unknown keys are rejected
// so a typo cannot silently drop a year.
func ParseHolidayTable(data []byte) (HolidayTable, error) {
	var table HolidayTable
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&table); err != nil {
		return HolidayTable{}, fmt.Errorf("%w: decode holiday table: %v", ErrInvalidCalendar, err)
	}
	if len(table.Years) == 0 {
		return HolidayTable{}, ErrEmptyCalendar
	}
	return table, nil
}

// LoadHolidayTable reads and decodes the holiday table at path.
func LoadHolidayTable(path string) (HolidayTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HolidayTable{}, fmt.Errorf("read holiday table %s: %w", path, err)
	}
	return ParseHolidayTable(data)
}

// DefaultHolidayTable returns the embedded Colombian holiday table.
func DefaultHolidayTable() (HolidayTable, error) {
	return ParseHolidayTable(defaultHolidayTable)
}

// LoadCalendar builds a calendar from the table at path, or from the
// embedded default when path is empty.
func LoadCalendar(path string, opts ...CalendarOption) (*Calendar, error) {
	var (
		table HolidayTable
		err   error
	)
	if path == "" {
		table, err = DefaultHolidayTable()
	} else {
		table, err = LoadHolidayTable(path)
	}
	if err != nil {
		return nil, err
	}
	return NewCalendar(table, opts...)
}
