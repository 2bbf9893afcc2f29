package sendinsight

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/metrics"
	"breakfear-decoder/internal/common/validation"
	"breakfear-decoder/internal/models"
)

const TaskType = "communication.send-insight"

// Mailer renders and delivers an insight e-mail.
type Mailer interface {
	Deliver(ctx context.Context, msg models.InsightEmail) (string, error)
}

type Handler struct {
	config    *Config
	mailer    Mailer
	validator *validation.Validator
	errors    *errors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, mailer Mailer, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		mailer:    mailer,
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if !h.config.Enabled {
		h.logger.Info("worker disabled by configuration", nil)
		return &Output{Sent: false, Message: "insight e-mail disabled"}, nil
	}

	if err := h.validator.Struct(input); err != nil {
		fields := map[string]string{"input": err.Error()}
		if fe, ok := err.(*validation.FormError); ok {
			fields = fe.Errors
		}
		return nil, errors.NewValidationError("Invalid insight e-mail request", fields)
	}

	id, err := h.mailer.Deliver(ctx, models.InsightEmail{
		To:        input.To,
		FirstName: input.FirstName,
		Variant:   input.Variant,
		Fields:    input.Fields,
	})
	if err != nil {
		return nil, err
	}
	return &Output{Sent: true, MessageID: id}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.AsStandard(err).Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}
