// Package payments applies purchases confirmed by Stripe webhooks.
package payments

import (
	"context"
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"breakfear-decoder/internal/access"
	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// Granter applies a purchase to a visitor.
type Granter interface {
	GrantPurchase(ctx context.Context, visitorID string, tag access.PaymentTag) error
}

type WebhookProcessor struct {
	secret  string
	granter Granter
	logger  logger.Logger
}

func NewWebhookProcessor(secret string, granter Granter, log logger.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		secret:  secret,
		granter: granter,
		logger:  log.WithFields(map[string]interface{}{"component": "payments"}),
	}
}

// Process verifies the payload signature and applies completed checkouts.
// Other event types are acknowledged without effect.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return errors.NewWebhookInvalidError(err)
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return errors.NewWebhookInvalidError(fmt.Errorf("parse checkout session: %w", err))
		}
		return p.applyCheckout(ctx, event.ID, &session)
	default:
		p.logger.Debug("ignoring stripe event", map[string]interface{}{"eventId": event.ID, "type": string(event.Type)})
		return nil
	}
}

func (p *WebhookProcessor) applyCheckout(ctx context.Context, eventID string, session *stripe.CheckoutSession) error {
	if session.ClientReferenceID == "" {
		p.logger.Warn("checkout without visitor reference", map[string]interface{}{"eventId": eventID})
		return nil
	}

	tag, ok := PurchaseTag(session)
	if !ok {
		p.logger.Warn("checkout without purchase tag", map[string]interface{}{"eventId": eventID})
		return nil
	}

	if err := p.granter.GrantPurchase(ctx, session.ClientReferenceID, tag); err != nil {
		return err
	}
	p.logger.Info("purchase granted from webhook", map[string]interface{}{
		"eventId":   eventID,
		"visitorId": session.ClientReferenceID,
		"tag":       string(tag),
	})
	return nil
}

// PurchaseTag reads the purchase metadata, falling back to the checkout mode.
func PurchaseTag(session *stripe.CheckoutSession) (access.PaymentTag, bool) {
	if raw, ok := session.Metadata["purchase"]; ok {
		return access.ParseTag(raw)
	}
	switch session.Mode {
	case stripe.CheckoutSessionModeSubscription:
		return access.TagMonthly, true
	case stripe.CheckoutSessionModePayment:
		return access.TagSingle, true
	default:
		return access.TagNone, false
	}
}
