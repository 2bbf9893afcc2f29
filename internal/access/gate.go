// Package access decides whether a visitor may decode a question directly or
// must pay first, and applies payment results to the visitor's entitlement.
package access

import (
	"time"

	"breakfear-decoder/internal/models"
)

type Outcome int

const (
	AllowDirect Outcome = iota
	RequirePayment
)

func (o Outcome) String() string {
	if o == AllowDirect {
		return "allow_direct"
	}
	return "require_payment"
}

// Grant names the entitlement that allowed the request.
type Grant int

const (
	GrantNone Grant = iota
	GrantSubscription
	GrantSingleCredit
	GrantFreeQuery
)

func (g Grant) String() string {
	switch g {
	case GrantSubscription:
		return "subscription"
	case GrantSingleCredit:
		return "single_credit"
	case GrantFreeQuery:
		return "free_query"
	default:
		return "none"
	}
}

type Decision struct {
	Outcome Outcome
	Grant   Grant
}

// Decide applies subscription > single credit > free query > payment.
func Decide(e models.Entitlement, now time.Time) Decision {
	switch {
	case e.Subscribed(now):
		return Decision{Outcome: AllowDirect, Grant: GrantSubscription}
	case e.SingleCreditAvailable:
		return Decision{Outcome: AllowDirect, Grant: GrantSingleCredit}
	case !e.FreeQueryUsed:
		return Decision{Outcome: AllowDirect, Grant: GrantFreeQuery}
	default:
		return Decision{Outcome: RequirePayment, Grant: GrantNone}
	}
}

// Normalize drops a subscription whose expiry has passed, clearing the expiry.
func Normalize(e models.Entitlement, now time.Time) models.Entitlement {
	if e.SubscriptionActive && !e.Subscribed(now) {
		e.SubscriptionActive = false
		e.SubscriptionExpiry = nil
	}
	if !e.SubscriptionActive {
		e.SubscriptionExpiry = nil
	}
	return e
}

// ConsumeOnGrant applies the side effect due when access is granted: a single
// credit is spent immediately.
func ConsumeOnGrant(e models.Entitlement, d Decision) models.Entitlement {
	if d.Outcome == AllowDirect && d.Grant == GrantSingleCredit {
		e.SingleCreditAvailable = false
	}
	return e
}

// Settle marks the free query used once the AI produced a definitive outcome
// (complete result or harmful flag). Failures leave it untouched.
func Settle(e models.Entitlement, d Decision, definitive bool) models.Entitlement {
	if definitive && d.Grant == GrantFreeQuery {
		e.FreeQueryUsed = true
	}
	return e
}

// Refund restores a single credit spent on a request that never settled.
func Refund(e models.Entitlement, creditSpent bool) models.Entitlement {
	if creditSpent {
		e.SingleCreditAvailable = true
	}
	return e
}
