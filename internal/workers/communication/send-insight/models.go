package sendinsight

type Input struct {
	To        string            `json:"to" validate:"required,email"`
	FirstName string            `json:"firstName" validate:"required,max=100"`
	Variant   string            `json:"variant" validate:"required"`
	Fields    map[string]string `json:"fields" validate:"required,min=1"`
}

type Output struct {
	Sent      bool   `json:"sent"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message,omitempty"`
}
