package flow

import "strings"

// DisclaimerForm is the signed disclaimer.
type DisclaimerForm struct {
	Signature string `json:"signature" validate:"required,max=200"`
	Date      string `json:"date" validate:"required,max=32"`
	Agreed    bool   `json:"agreed"`
}

func (f *DisclaimerForm) normalize() {
	f.Signature = strings.TrimSpace(f.Signature)
	f.Date = strings.TrimSpace(f.Date)
}

// QuestionForm is the question plus the contact details used to deliver insights.
type QuestionForm struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Question  string `json:"question" validate:"required,max=2000"`
}

func (f *QuestionForm) normalize() {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.TrimSpace(f.Email)
	f.Question = strings.TrimSpace(f.Question)
}
