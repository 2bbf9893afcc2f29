// Package flow drives one visitor through the decoder pages.
package flow

import (
	"fmt"

	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/models"
)

type Page = models.Page

type Event int

const (
	EventProceed Event = iota
	EventConsent
	EventSubmitAllowed
	EventSubmitPaywalled
	EventPaymentReturned
	EventAskAnother
	EventAskPaywalled
)

var eventNames = [...]string{
	"proceed", "consent", "submit_allowed", "submit_paywalled",
	"payment_returned", "ask_another", "ask_paywalled",
}

func (e Event) String() string {
	if e < EventProceed || e > EventAskPaywalled {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

// Transition returns the page reached from `from` on ev, or INVALID_TRANSITION.
func Transition(from Page, ev Event) (Page, error) {
	// A payment return lands on a fresh load, whatever page was stored.
	if ev == EventPaymentReturned {
		return models.PageForm, nil
	}

	switch from {
	case models.PageWelcome:
		if ev == EventProceed {
			return models.PageDisclaimer, nil
		}
	case models.PageDisclaimer:
		if ev == EventConsent {
			return models.PageForm, nil
		}
	case models.PageForm:
		switch ev {
		case EventSubmitAllowed:
			return models.PageResult, nil
		case EventSubmitPaywalled:
			return models.PagePayment, nil
		}
	case models.PagePayment:
		// only a payment return leaves the payment page
	case models.PageResult:
		switch ev {
		case EventAskAnother:
			return models.PageForm, nil
		case EventAskPaywalled:
			return models.PagePayment, nil
		}
	}
	return from, errors.NewInvalidTransitionError(from.String(), ev.String())
}
