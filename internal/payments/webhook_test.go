package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"breakfear-decoder/internal/access"
	apperrors "breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
)

const testSecret = "whsec_test"

type MockGranter struct {
	mock.Mock
}

func (m *MockGranter) GrantPurchase(ctx context.Context, visitorID string, tag access.PaymentTag) error {
	return m.Called(ctx, visitorID, tag).Error(0)
}

func createEventPayload(t *testing.T, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_123",
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func sign(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestProcess_CheckoutCompleted(t *testing.T) {
	tests := []struct {
		name   string
		object map[string]interface{}
		tag    access.PaymentTag
	}{
		{
			name:   "metadata monthly",
			object: map[string]interface{}{"id": "cs_1", "object": "checkout.session", "client_reference_id": "visitor-1", "metadata": map[string]string{"purchase": "monthly"}},
			tag:    access.TagMonthly,
		},
		{
			name:   "payment mode is a single purchase",
			object: map[string]interface{}{"id": "cs_2", "object": "checkout.session", "client_reference_id": "visitor-1", "mode": "payment"},
			tag:    access.TagSingle,
		},
		{
			name:   "subscription mode is monthly",
			object: map[string]interface{}{"id": "cs_3", "object": "checkout.session", "client_reference_id": "visitor-1", "mode": "subscription"},
			tag:    access.TagMonthly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			granter := &MockGranter{}
			granter.On("GrantPurchase", mock.Anything, "visitor-1", tt.tag).Return(nil).Once()

			p := NewWebhookProcessor(testSecret, granter, logger.NewTestLogger(t))
			payload := createEventPayload(t, "checkout.session.completed", tt.object)

			require.NoError(t, p.Process(context.Background(), payload, sign(payload, testSecret)))
			granter.AssertExpectations(t)
		})
	}
}

func TestProcess_BadSignature(t *testing.T) {
	granter := &MockGranter{}
	p := NewWebhookProcessor(testSecret, granter, logger.NewTestLogger(t))
	payload := createEventPayload(t, "checkout.session.completed", map[string]interface{}{"client_reference_id": "visitor-1"})

	err := p.Process(context.Background(), payload, sign(payload, "whsec_other"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeWebhookInvalid))
	granter.AssertNotCalled(t, "GrantPurchase", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_IgnoredEvents(t *testing.T) {
	granter := &MockGranter{}
	p := NewWebhookProcessor(testSecret, granter, logger.NewTestLogger(t))

	payloads := [][]byte{
		createEventPayload(t, "invoice.paid", map[string]interface{}{"id": "in_1", "object": "invoice"}),
		createEventPayload(t, "checkout.session.completed", map[string]interface{}{"id": "cs_1", "object": "checkout.session", "mode": "payment"}),
		createEventPayload(t, "checkout.session.completed", map[string]interface{}{"id": "cs_2", "object": "checkout.session", "client_reference_id": "v", "metadata": map[string]string{"purchase": "yearly"}}),
	}
	for _, payload := range payloads {
		assert.NoError(t, p.Process(context.Background(), payload, sign(payload, testSecret)))
	}
	granter.AssertNotCalled(t, "GrantPurchase", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_GrantFailure(t *testing.T) {
	granter := &MockGranter{}
	granter.On("GrantPurchase", mock.Anything, "visitor-1", access.TagSingle).
		Return(apperrors.NewStoreFailedError("save", errors.New("redis down")))

	p := NewWebhookProcessor(testSecret, granter, logger.NewTestLogger(t))
	payload := createEventPayload(t, "checkout.session.completed",
		map[string]interface{}{"id": "cs_1", "object": "checkout.session", "client_reference_id": "visitor-1", "metadata": map[string]string{"purchase": "single"}})

	err := p.Process(context.Background(), payload, sign(payload, testSecret))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreFailed))
}

func TestPurchaseTag(t *testing.T) {
	tag, ok := PurchaseTag(&stripe.CheckoutSession{Metadata: map[string]string{"purchase": "single"}})
	assert.True(t, ok)
	assert.Equal(t, access.TagSingle, tag)

	_, ok = PurchaseTag(&stripe.CheckoutSession{Mode: stripe.CheckoutSessionModeSetup})
	assert.False(t, ok)
}
