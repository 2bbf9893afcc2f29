// Package decoder turns a visitor question into a formatted decoder result.
package decoder

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/metrics"
	"breakfear-decoder/internal/common/observability"
	"breakfear-decoder/internal/common/validation"
	"breakfear-decoder/internal/formatter"
	"breakfear-decoder/internal/models"
	"breakfear-decoder/internal/safety"
	"breakfear-decoder/pkg/registry"
)

// Outcome is a definitive decoder answer. Failures are returned as errors.
type Outcome struct {
	Status  models.ResultStatus `json:"status"`
	Fields  map[string]string   `json:"fields,omitempty"`
	Message string              `json:"message,omitempty"`
}

// Definitive reports whether the outcome settles a free query.
func (o *Outcome) Definitive() bool {
	return o != nil && (o.Status == models.ResultReady || o.Status == models.ResultHarmful)
}

type Service struct {
	client   Client
	provider string
	timeout  time.Duration
	logger   logger.Logger
}

func NewService(client Client, provider string, timeout time.Duration, log logger.Logger) *Service {
	return &Service{
		client:   client,
		provider: provider,
		timeout:  timeout,
		logger:   log.WithFields(map[string]interface{}{"component": "decoder", "provider": provider}),
	}
}

// Decode screens, calls the client and formats a complete result.
func (s *Service) Decode(ctx context.Context, v registry.Variant, req models.QuestionRequest) (*Outcome, error) {
	if (safety.Filter{Enabled: v.CrisisFilter}).Screen(req.Question) {
		metrics.CrisisShortCircuits.Inc()
		metrics.DecodeRequests.WithLabelValues(string(models.ResultCrisis)).Inc()
		s.logger.Warn("crisis language detected, skipping decoder call", map[string]interface{}{"variant": v.ID})
		return &Outcome{Status: models.ResultCrisis, Message: safety.Message}, nil
	}

	ctx, span := observability.StartSpan(ctx, "decoder.generate",
		attribute.String("variant", v.ID),
		attribute.String("provider", s.provider),
	)
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := s.client.Generate(ctx, BuildPrompt(v, req))
	metrics.AIDuration.WithLabelValues(s.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		stdErr := classifyCallError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stdErr.Code))
		metrics.DecodeRequests.WithLabelValues("failed").Inc()
		s.logger.Error("decoder call failed", map[string]interface{}{
			"variant": v.ID,
			"code":    stdErr.Code,
			"error":   err.Error(),
		})
		return nil, stdErr
	}

	out, err := Classify(v, raw)
	if err != nil {
		span.SetStatus(codes.Error, "incomplete")
		metrics.DecodeRequests.WithLabelValues("incomplete").Inc()
		s.logger.Warn("decoder returned an incomplete result", map[string]interface{}{
			"variant": v.ID,
			"error":   err.Error(),
		})
		return nil, err
	}

	metrics.DecodeRequests.WithLabelValues(string(out.Status)).Inc()
	s.logger.Info("question decoded", map[string]interface{}{
		"variant":  v.ID,
		"status":   out.Status,
		"duration": time.Since(start).Milliseconds(),
	})
	return out, nil
}

func classifyCallError(ctx context.Context, err error) *errors.StandardError {
	var stdErr *errors.StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return errors.NewAITimeoutError(err)
	}
	return errors.NewAICallFailedError(err)
}

// Classify sorts a raw result into harmful or complete. A result that is
// neither is an INCOMPLETE_AI_RESPONSE error.
func Classify(v registry.Variant, raw map[string]interface{}) (*Outcome, error) {
	if raw == nil {
		return nil, errors.NewIncompleteAIResponseError(v.FieldNames())
	}

	result, err := validation.ValidateDocument(v.OutputSchema(), raw)
	if err != nil {
		return nil, errors.NewAICallFailedError(err)
	}

	if harmful(raw) {
		return &Outcome{Status: models.ResultHarmful, Message: safety.Message}, nil
	}

	texts := make(map[string]string, len(v.Fields))
	var missing []string
	for _, f := range v.Fields {
		s, ok := raw[f.Name].(string)
		if !ok || strings.TrimSpace(s) == "" {
			missing = append(missing, f.Name)
			continue
		}
		texts[f.Name] = s
	}

	if !result.Valid || len(missing) > 0 {
		e := errors.NewIncompleteAIResponseError(missing)
		if !result.Valid {
			e.WithMetadata("schemaErrors", result.GetErrorMessages())
		}
		return nil, e
	}

	return &Outcome{
		Status: models.ResultReady,
		Fields: formatter.FormatResult(v, texts),
	}, nil
}

func harmful(raw map[string]interface{}) bool {
	for _, key := range []string{"isHarmful", "harmful"} {
		if b, ok := raw[key].(bool); ok && b {
			return true
		}
	}
	return false
}
