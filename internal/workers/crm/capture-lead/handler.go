package capturelead

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/metrics"
	"breakfear-decoder/internal/common/validation"
	"breakfear-decoder/internal/models"
)

const TaskType = "crm.capture-lead"

// Recorder stores a lead in every configured sink.
type Recorder interface {
	CaptureAll(ctx context.Context, lead models.Lead) error
	Sinks() []string
}

// Handler runs lead capture as a job. Unlike the visitor flow, a sink failure
// fails the job so the engine can retry it; every sink upserts.
type Handler struct {
	config    *Config
	recorder  Recorder
	validator *validation.Validator
	errors    *errors.ErrorHandler
	now       func() time.Time
	logger    logger.Logger
}

func NewHandler(config *Config, recorder Recorder, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		recorder:  recorder,
		validator: validation.NewValidator(),
		errors:    errors.NewErrorHandler(l),
		now:       func() time.Time { return time.Now().UTC() },
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.TrimSpace(input.Email)
	if err := h.validator.Struct(input); err != nil {
		fields := map[string]string{"input": err.Error()}
		if fe, ok := err.(*validation.FormError); ok {
			fields = fe.Errors
		}
		return nil, errors.NewValidationError("Invalid lead", fields)
	}

	lead := models.Lead{
		ID:        input.LeadID,
		VisitorID: input.VisitorID,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Source:    input.Source,
		Variant:   input.Variant,
		CreatedAt: h.now(),
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Source == "" {
		lead.Source = h.config.DefaultSource
	}

	if err := h.recorder.CaptureAll(ctx, lead); err != nil {
		return nil, err
	}

	h.logger.Info("lead captured", map[string]interface{}{"leadId": lead.ID, "sinks": h.recorder.Sinks()})
	return &Output{LeadID: lead.ID, Captured: true, Sinks: h.recorder.Sinks()}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.AsStandard(err).Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}
