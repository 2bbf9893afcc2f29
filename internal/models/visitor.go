package models

import (
	"fmt"
	"time"
)

// Page is the visitor's position in the decoder flow.
type Page int

const (
	PageWelcome Page = iota
	PageDisclaimer
	PageForm
	PagePayment
	PageResult
)

var pageNames = [...]string{"welcome", "disclaimer", "form", "payment", "result"}

func (p Page) String() string {
	if p < PageWelcome || p > PageResult {
		return fmt.Sprintf("page(%d)", int(p))
	}
	return pageNames[p]
}

// ParsePage is the inverse of Page.String.
func ParsePage(s string) (Page, error) {
	for i, name := range pageNames {
		if name == s {
			return Page(i), nil
		}
	}
	return PageWelcome, fmt.Errorf("unknown page %q", s)
}

func (p Page) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Page) UnmarshalText(b []byte) error {
	parsed, err := ParsePage(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Entitlement determines whether a visitor may decode without paying.
// SubscriptionActive holds only while now < SubscriptionExpiry.
type Entitlement struct {
	SubscriptionActive    bool       `json:"subscriptionActive"`
	SubscriptionExpiry    *time.Time `json:"subscriptionExpiry,omitempty"`
	SingleCreditAvailable bool       `json:"singleCreditAvailable"`
	FreeQueryUsed         bool       `json:"freeQueryUsed"`
}

// Subscribed reports an active, unexpired subscription at now.
func (e Entitlement) Subscribed(now time.Time) bool {
	return e.SubscriptionActive && e.SubscriptionExpiry != nil && now.Before(*e.SubscriptionExpiry)
}

// Profile is the contact data collected on the question form.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Source    string `json:"source"`
}

// QuestionRequest is one question handed to the decoder.
type QuestionRequest struct {
	FirstName string `json:"firstName"`
	Question  string `json:"question"`
	Source    string `json:"source,omitempty"`
}

type ResultStatus string

const (
	ResultPending ResultStatus = "pending"
	ResultReady   ResultStatus = "ready"
	ResultHarmful ResultStatus = "harmful"
	ResultCrisis  ResultStatus = "crisis"
	ResultFailed  ResultStatus = "failed"
)

// DecodeResult is what the Result page renders. Fields holds formatted text
// keyed by variant field name. StartedAt and CreditSpent are only set while
// the result is pending.
type DecodeResult struct {
	Status      ResultStatus      `json:"status"`
	Fields      map[string]string `json:"fields,omitempty"`
	Message     string            `json:"message,omitempty"`
	FirstName   string            `json:"firstName,omitempty"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CreditSpent bool              `json:"creditSpent,omitempty"`
	DecodedAt   time.Time         `json:"decodedAt"`
}

// IsPendingSince reports whether r is the pending result of the request
// started at t.
func (r *DecodeResult) IsPendingSince(t time.Time) bool {
	return r != nil && r.Status == ResultPending && r.StartedAt != nil && r.StartedAt.Equal(t)
}

// PendingQuestion is the form stashed while the visitor is sent to payment.
type PendingQuestion struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Question  string `json:"question"`
}

// Visitor is the server-side session record that replaces browser storage.
type Visitor struct {
	ID               string           `json:"id"`
	Page             Page             `json:"page"`
	Entitlement      Entitlement      `json:"entitlement"`
	Profile          Profile          `json:"profile"`
	DisclaimerAgreed bool             `json:"disclaimerAgreed"`
	Signature        string           `json:"signature,omitempty"`
	SignedDate       string           `json:"signedDate,omitempty"`
	Pending          *PendingQuestion `json:"pendingQuestion,omitempty"`
	Result           *DecodeResult    `json:"result,omitempty"`
	FlashMessage     string           `json:"flashMessage,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// NewVisitor returns a fresh record on the Welcome page.
func NewVisitor(id string, now time.Time) *Visitor {
	return &Visitor{ID: id, Page: PageWelcome, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy.
func (v *Visitor) Clone() *Visitor {
	if v == nil {
		return nil
	}
	out := *v
	if v.Entitlement.SubscriptionExpiry != nil {
		exp := *v.Entitlement.SubscriptionExpiry
		out.Entitlement.SubscriptionExpiry = &exp
	}
	if v.Pending != nil {
		p := *v.Pending
		out.Pending = &p
	}
	if v.Result != nil {
		r := *v.Result
		if v.Result.Fields != nil {
			r.Fields = make(map[string]string, len(v.Result.Fields))
			for k, val := range v.Result.Fields {
				r.Fields[k] = val
			}
		}
		if v.Result.StartedAt != nil {
			started := *v.Result.StartedAt
			r.StartedAt = &started
		}
		out.Result = &r
	}
	return &out
}
