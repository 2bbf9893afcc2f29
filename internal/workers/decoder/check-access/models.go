package checkaccess

type Input struct {
	VisitorID string `json:"visitorId"`
}

type Output struct {
	Decision    string `json:"decision"`
	Grant       string `json:"grant"`
	ButtonLabel string `json:"buttonLabel"`
	Cached      bool   `json:"cached"`
}

// cachedDecision is the Redis value for one visitor.
type cachedDecision struct {
	Decision    string `json:"decision"`
	Grant       string `json:"grant"`
	ButtonLabel string `json:"buttonLabel"`
}
