package decodequestion

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/metrics"
	"breakfear-decoder/internal/common/validation"
	"breakfear-decoder/internal/decoder"
	"breakfear-decoder/internal/models"
	"breakfear-decoder/pkg/registry"
)

const TaskType = "decoder.decode-question"

type Decoder interface {
	Decode(ctx context.Context, v registry.Variant, req models.QuestionRequest) (*decoder.Outcome, error)
}

// Handler decodes a question outside the visitor flow. No entitlement is read
// or spent; the calling process owns access control.
type Handler struct {
	config    *Config
	decoder   Decoder
	registry  *registry.VariantRegistry
	validator *validation.Validator
	errors    *errors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, dec Decoder, reg *registry.VariantRegistry, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		decoder:   dec,
		registry:  reg,
		validator: validation.NewValidator(),
		errors:    errors.NewErrorHandler(l),
		logger:    l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewValidationError("Failed to parse job variables",
			map[string]string{"variables": err.Error()}))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.errors.CompleteJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// Execute returns harmful and crisis outcomes as regular output; only
// incomplete or failed AI calls are errors.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.Question = strings.TrimSpace(input.Question)
	if err := h.validator.Struct(input); err != nil {
		fields := map[string]string{"input": err.Error()}
		if fe, ok := err.(*validation.FormError); ok {
			fields = fe.Errors
		}
		return nil, errors.NewValidationError("firstName and question are required", fields)
	}

	variantID := input.Variant
	if variantID == "" {
		variantID = h.config.DefaultVariant
	}
	v, ok := h.registry.Get(variantID)
	if !ok {
		return nil, errors.NewVariantNotFoundError(variantID)
	}

	source := input.Source
	if source == "" {
		source = h.config.DefaultSource
	}

	outcome, err := h.decoder.Decode(ctx, *v, models.QuestionRequest{
		FirstName: input.FirstName,
		Question:  input.Question,
		Source:    source,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		Status:     string(outcome.Status),
		Fields:     outcome.Fields,
		Message:    outcome.Message,
		Definitive: outcome.Definitive(),
		Variant:    v.ID,
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.AsStandard(err).Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}
