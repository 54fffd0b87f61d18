package domain

import "time"

// Comment is a note appended to an incident thread.
type Comment struct {
	ID        string
	TicketID  string
	Author    string
	Body      string
	CreatedAt time.Time
}
