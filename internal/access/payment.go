package access

import (
	"sync"
	"time"

	"breakfear-decoder/internal/models"
)

// PaymentTag is the purchase query parameter carried on the payment return URL.
type PaymentTag string

const (
	TagNone    PaymentTag = ""
	TagSingle  PaymentTag = "single"
	TagMonthly PaymentTag = "monthly"
)

// SubscriptionPeriod is the length of a monthly purchase (2,592,000,000 ms).
const SubscriptionPeriod = 30 * 24 * time.Hour

// ParseTag reports whether raw is a known tag.
func ParseTag(raw string) (PaymentTag, bool) {
	switch PaymentTag(raw) {
	case TagSingle, TagMonthly:
		return PaymentTag(raw), true
	default:
		return TagNone, false
	}
}

// ApplyPayment updates e for a returned purchase. Monthly always resets the
// expiry to now+30 days. Absent or unknown tags leave e unchanged and report false.
func ApplyPayment(e models.Entitlement, tag PaymentTag, now time.Time) (models.Entitlement, bool) {
	switch tag {
	case TagSingle:
		e.SingleCreditAvailable = true
		return e, true
	case TagMonthly:
		expiry := now.Add(SubscriptionPeriod)
		e.SubscriptionActive = true
		e.SubscriptionExpiry = &expiry
		return e, true
	default:
		return e, false
	}
}

// SuccessMessage is the one-time notice shown on the form after a purchase.
func SuccessMessage(tag PaymentTag) string {
	switch tag {
	case TagSingle:
		return "Payment successful! You may now ask your next question."
	case TagMonthly:
		return "Welcome, subscriber! You now have unlimited access for the month."
	default:
		return ""
	}
}

// Signal is a one-shot payment redirect tag.
type Signal struct {
	mu    sync.Mutex
	raw   string
	taken bool
}

func NewSignal(raw string) *Signal {
	return &Signal{raw: raw}
}

// Take yields the raw tag on the first call and nothing afterwards.
func (s *Signal) Take() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken || s.raw == "" {
		s.taken = true
		return "", false
	}
	s.taken = true
	return s.raw, true
}
