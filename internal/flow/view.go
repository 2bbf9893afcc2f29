package flow

import (
	"net/url"
	"strings"
	"time"

	"breakfear-decoder/internal/access"
	"breakfear-decoder/internal/models"
	"breakfear-decoder/internal/safety"
	"breakfear-decoder/pkg/registry"
)

const (
	labelRevealNext    = "Reveal My Next Insight"
	labelFirstFree     = "Enter the Decoder Portal (First Insight Free)"
	labelUnlockHidden  = "Unlock Your Hidden Message ($7)"
	labelAskAnother    = "Ask Another Question"
	labelUnlockNext    = "Unlock Your Next Insight"
	labelMonthlyOption = "Reveal Unlimited Messages ($25/mo)"
	labelSingleOption  = "Unlock Your Next Insight ($7)"

	loadingMessage = "Your answer is materializing from the ether. Please wait a moment."
)

// PaymentLinks are the hosted checkout links and the page they return to.
type PaymentLinks struct {
	MonthlyURL string
	SingleURL  string
	ReturnURL  string
}

// For builds the checkout link for tag. The success URL carries the purchase
// tag and the session so the return can be matched to the visitor.
func (l PaymentLinks) For(tag access.PaymentTag, visitorID string) string {
	base := l.SingleURL
	if tag == access.TagMonthly {
		base = l.MonthlyURL
	}
	if base == "" {
		return ""
	}

	success := url.Values{}
	success.Set("purchase", string(tag))
	success.Set("session", visitorID)
	successURL := l.ReturnURL + "?" + success.Encode()

	q := url.Values{}
	q.Set("client_reference_id", visitorID)
	q.Set("success_url", successURL)

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// View is the rendering state of one visitor.
type View struct {
	VisitorID   string          `json:"visitorId"`
	Page        Page            `json:"page"`
	Profile     models.Profile  `json:"profile"`
	Entitlement EntitlementView `json:"entitlement"`
	Form        *FormView       `json:"form,omitempty"`
	Payment     *PaymentView    `json:"payment,omitempty"`
	Result      *ResultView     `json:"result,omitempty"`
}

type EntitlementView struct {
	Subscribed         bool       `json:"subscribed"`
	SubscriptionExpiry *time.Time `json:"subscriptionExpiry,omitempty"`
	SingleCredit       bool       `json:"singleCredit"`
	FreeQueryUsed      bool       `json:"freeQueryUsed"`
}

type FormView struct {
	ButtonLabel    string                  `json:"buttonLabel"`
	Pending        *models.PendingQuestion `json:"pendingQuestion,omitempty"`
	SuccessMessage string                  `json:"successMessage,omitempty"`
}

type PaymentView struct {
	MonthlyURL   string `json:"monthlyUrl"`
	MonthlyLabel string `json:"monthlyLabel"`
	SingleURL    string `json:"singleUrl"`
	SingleLabel  string `json:"singleLabel"`
}

type ResultField struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

type ResultView struct {
	Status        models.ResultStatus `json:"status"`
	Loading       bool                `json:"loading"`
	FirstName     string              `json:"firstName,omitempty"`
	Fields        []ResultField       `json:"fields,omitempty"`
	Message       string              `json:"message,omitempty"`
	Support       string              `json:"support,omitempty"`
	NextStepLabel string              `json:"nextStepLabel,omitempty"`
}

// FormButtonLabel picks the submit copy for the visitor's entitlement.
func FormButtonLabel(e models.Entitlement, now time.Time) string {
	switch {
	case e.Subscribed(now) || e.SingleCreditAvailable:
		return labelRevealNext
	case !e.FreeQueryUsed:
		return labelFirstFree
	default:
		return labelUnlockHidden
	}
}

func buildView(v *models.Visitor, variant registry.Variant, links PaymentLinks, flash string, now time.Time) *View {
	ent := v.Entitlement
	view := &View{
		VisitorID: v.ID,
		Page:      v.Page,
		Profile:   v.Profile,
		Entitlement: EntitlementView{
			Subscribed:         ent.Subscribed(now),
			SubscriptionExpiry: ent.SubscriptionExpiry,
			SingleCredit:       ent.SingleCreditAvailable,
			FreeQueryUsed:      ent.FreeQueryUsed,
		},
	}

	switch v.Page {
	case models.PageForm:
		view.Form = &FormView{
			ButtonLabel:    FormButtonLabel(ent, now),
			Pending:        v.Pending,
			SuccessMessage: flash,
		}
	case models.PagePayment:
		view.Payment = &PaymentView{
			MonthlyURL:   links.For(access.TagMonthly, v.ID),
			MonthlyLabel: labelMonthlyOption,
			SingleURL:    links.For(access.TagSingle, v.ID),
			SingleLabel:  labelSingleOption,
		}
	case models.PageResult:
		view.Result = resultView(v.Result, variant, ent.Subscribed(now))
	}
	return view
}

func resultView(r *models.DecodeResult, variant registry.Variant, subscribed bool) *ResultView {
	if r == nil {
		return nil
	}

	out := &ResultView{
		Status:    r.Status,
		FirstName: r.FirstName,
		Message:   r.Message,
	}

	switch r.Status {
	case models.ResultPending:
		out.Loading = true
		out.Message = loadingMessage
		return out
	case models.ResultHarmful, models.ResultCrisis:
		out.Support = safety.Support
	case models.ResultReady:
		for _, f := range variant.Fields {
			out.Fields = append(out.Fields, ResultField{Name: f.Name, Label: f.Label, Text: r.Fields[f.Name]})
		}
	}

	out.NextStepLabel = labelUnlockNext
	if subscribed {
		out.NextStepLabel = labelAskAnother
	}
	return out
}
