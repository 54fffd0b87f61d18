package dto

import "time"

// PriorityAllowanceResponse is one row of the allowance table.
type PriorityAllowanceResponse struct {
	Priority string `json:"priority"`
	Hours    int    `json:"hours"`
}

// CalendarResponse describes the active business calendar.
type CalendarResponse struct {
	Version   string   `json:"version"`
	Timezone  string   `json:"timezone"`
	StartHour int      `json:"start_hour"`
	EndHour   int      `json:"end_hour"`
	Years     []int    `json:"years"`
	Holidays  []string `json:"holidays,omitempty"`
}

// DashboardResponse aggregates the ticket base.
type DashboardResponse struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	Resolved    int            `json:"resolved"`
	ByPriority  map[string]int `json:"by_priority"`
	ByStatus    map[string]int `json:"by_status"`
	ByModule    map[string]int `json:"by_module"`
	ByRisk      map[string]int `json:"by_risk"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// ImportResponse summarizes a CSV import.
type ImportResponse struct {
	Imported int                 `json:"imported"`
	Skipped  int                 `json:"skipped"`
	Failed   int                 `json:"failed"`
	Keys     []string            `json:"keys"`
	Errors   []ImportRowResponse `json:"errors"`
}

// ImportRowResponse describes one rejected line.
type ImportRowResponse struct {
	Line    int    `json:"line"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}
