package leads

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/models"
	"breakfear-decoder/pkg/registry"
)

type MockSender struct{ mock.Mock }

func (m *MockSender) Send(ctx context.Context, to, subject, text, html string) (string, error) {
	args := m.Called(ctx, to, subject, text, html)
	return args.String(0), args.Error(1)
}

func createTestInsight() models.InsightEmail {
	return models.InsightEmail{
		To:        "ada@example.com",
		FirstName: "Ada",
		Variant:   "portal",
		Fields: map[string]string{
			"insight":                  "Fear is loud <today>.",
			"task":                     "Take one slow breath.",
			"thoughtProvokingQuestion": "  ",
		},
	}
}

func TestRenderInsight(t *testing.T) {
	v, ok := registry.Default().Get("portal")
	require.True(t, ok)

	text, html, err := RenderInsight(*v, createTestInsight())
	require.NoError(t, err)

	assert.Contains(t, text, "Hello Ada,")
	assert.Contains(t, text, "Your Insight\nFear is loud <today>.")
	assert.Less(t, strings.Index(text, "Your Insight"), strings.Index(text, "Your Micro-Task"))
	assert.NotContains(t, text, "A Question for Reflection")

	assert.Contains(t, html, "<h3>Your Micro-Task</h3>")
	assert.Contains(t, html, "Fear is loud &lt;today&gt;.")
}

func TestInsightMailer_Deliver(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, "ada@example.com", insightSubject, mock.Anything, mock.Anything).
		Return("msg-1", nil)

	m := NewInsightMailer(sender, registry.Default(), logger.NewTestLogger(t))
	id, err := m.Deliver(context.Background(), createTestInsight())

	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	sender.AssertExpectations(t)
}

func TestInsightMailer_SendFailure(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("throttled"))

	err := NewInsightMailer(sender, registry.Default(), logger.NewNoOpLogger()).
		SendInsight(context.Background(), createTestInsight())

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotificationSendFailed))
}

func TestInsightMailer_UnknownVariant(t *testing.T) {
	sender := new(MockSender)
	msg := createTestInsight()
	msg.Variant = "missing"

	err := NewInsightMailer(sender, registry.Default(), logger.NewNoOpLogger()).SendInsight(context.Background(), msg)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeVariantNotFound))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
