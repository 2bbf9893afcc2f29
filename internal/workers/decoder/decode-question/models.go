package decodequestion

type Input struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	Question  string `json:"question" validate:"required,max=2000"`
	Source    string `json:"source"`
	Variant   string `json:"variant"`
}

type Output struct {
	Status     string            `json:"status"`
	Fields     map[string]string `json:"fields,omitempty"`
	Message    string            `json:"message,omitempty"`
	Definitive bool              `json:"definitive"`
	Variant    string            `json:"variant"`
}
