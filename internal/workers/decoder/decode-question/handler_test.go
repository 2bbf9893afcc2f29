package decodequestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/decoder"
	"breakfear-decoder/internal/models"
	"breakfear-decoder/internal/safety"
	"breakfear-decoder/pkg/registry"
)

type MockDecoder struct {
	mock.Mock
}

func (m *MockDecoder) Decode(ctx context.Context, v registry.Variant, req models.QuestionRequest) (*decoder.Outcome, error) {
	args := m.Called(ctx, v, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decoder.Outcome), args.Error(1)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{Timeout: 10 * time.Second, DefaultVariant: "portal", DefaultSource: "web"}
}

func createTestHandler(t *testing.T, dec Decoder) *Handler {
	return NewHandler(createTestConfig(), dec, registry.Default(), logger.NewTestLogger(t))
}

func variantWithID(id string) interface{} {
	return mock.MatchedBy(func(v registry.Variant) bool { return v.ID == id })
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		input      *Input
		variant    string
		source     string
		outcome    *decoder.Outcome
		definitive bool
	}{
		{
			name:    "ready with defaults",
			input:   &Input{FirstName: " Ada ", Question: " Why do I freeze? "},
			variant: "portal",
			source:  "web",
			outcome: &decoder.Outcome{
				Status: models.ResultReady,
				Fields: map[string]string{"insight": "Fear is loud."},
			},
			definitive: true,
		},
		{
			name:       "harmful is output, not an error",
			input:      &Input{FirstName: "Ada", Question: "Something unsafe", Variant: "breakthrough", Source: "partner"},
			variant:    "breakthrough",
			source:     "partner",
			outcome:    &decoder.Outcome{Status: models.ResultHarmful, Message: safety.Message},
			definitive: true,
		},
		{
			name:       "crisis is not definitive",
			input:      &Input{FirstName: "Ada", Question: "I want to die", Variant: "breakthrough"},
			variant:    "breakthrough",
			source:     "web",
			outcome:    &decoder.Outcome{Status: models.ResultCrisis, Message: safety.Message},
			definitive: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := new(MockDecoder)
			dec.On("Decode", mock.Anything, variantWithID(tt.variant), mock.MatchedBy(func(req models.QuestionRequest) bool {
				return req.FirstName == "Ada" && req.Source == tt.source && req.Question != "" && req.Question[0] != ' '
			})).Return(tt.outcome, nil)

			output, err := createTestHandler(t, dec).Execute(context.Background(), tt.input)

			require.NoError(t, err)
			assert.Equal(t, string(tt.outcome.Status), output.Status)
			assert.Equal(t, tt.outcome.Message, output.Message)
			assert.Equal(t, tt.definitive, output.Definitive)
			assert.Equal(t, tt.variant, output.Variant)
			dec.AssertExpectations(t)
		})
	}
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
		field string
	}{
		{"missing first name", &Input{Question: "Why?"}, "firstName"},
		{"blank question", &Input{FirstName: "Ada", Question: "   "}, "question"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := new(MockDecoder)
			_, err := createTestHandler(t, dec).Execute(context.Background(), tt.input)

			require.Error(t, err)
			std := apperrors.AsStandard(err)
			assert.Equal(t, apperrors.ErrCodeValidationFailed, std.Code)
			assert.Contains(t, std.Metadata, tt.field)
			dec.AssertNotCalled(t, "Decode", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_Execute_UnknownVariant(t *testing.T) {
	_, err := createTestHandler(t, new(MockDecoder)).Execute(context.Background(),
		&Input{FirstName: "Ada", Question: "Why?", Variant: "nope"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeVariantNotFound))
}

func TestHandler_Execute_DecoderErrorPassesThrough(t *testing.T) {
	dec := new(MockDecoder)
	dec.On("Decode", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.NewAITimeoutError(errors.New("deadline exceeded")))

	_, err := createTestHandler(t, dec).Execute(context.Background(), &Input{FirstName: "Ada", Question: "Why?"})

	require.Error(t, err)
	std := apperrors.AsStandard(err)
	assert.Equal(t, apperrors.ErrCodeAITimeout, std.Code)
	assert.True(t, std.Retryable)
}
