package capturelead

type Input struct {
	LeadID    string `json:"leadId"`
	VisitorID string `json:"visitorId"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Source    string `json:"source"`
	Variant   string `json:"variant"`
}

type Output struct {
	LeadID   string   `json:"leadId"`
	Captured bool     `json:"captured"`
	Sinks    []string `json:"sinks"`
}
