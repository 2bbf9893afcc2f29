package models

import "time"

// Lead is the contact captured when a visitor submits the question form.
type Lead struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"visitorId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Source    string    `json:"source"`
	Variant   string    `json:"variant"`
	CreatedAt time.Time `json:"createdAt"`
}

// InsightEmail is a formatted result addressed to the visitor.
type InsightEmail struct {
	To        string            `json:"to"`
	FirstName string            `json:"firstName"`
	Variant   string            `json:"variant"`
	Fields    map[string]string `json:"fields"`
}
