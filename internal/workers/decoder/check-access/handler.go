package checkaccess

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"

	"breakfear-decoder/internal/access"
	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/metrics"
	"breakfear-decoder/internal/flow"
)

const TaskType = "decoder.check-access"

// Handler reports what the access gate would decide for a visitor right now.
// It never consumes anything.
type Handler struct {
	config *Config
	store  access.Store
	redis  redis.Cmdable
	errors *errors.ErrorHandler
	now    func() time.Time
	logger logger.Logger
}

func NewHandler(config *Config, store access.Store, rdb redis.Cmdable, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		store:  store,
		redis:  rdb,
		errors: errors.NewErrorHandler(l),
		now:    func() time.Time { return time.Now().UTC() },
		logger: l,
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
	id := strings.TrimSpace(input.VisitorID)
	if id == "" {
		return nil, errors.NewValidationError("visitorId is required", map[string]string{"visitorId": "This field is required"})
	}

	cacheKey := h.config.KeyPrefix + id
	if h.redis != nil {
		if val, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
			var cached cachedDecision
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return &Output{Decision: cached.Decision, Grant: cached.Grant, ButtonLabel: cached.ButtonLabel, Cached: true}, nil
			}
		} else if err != redis.Nil {
			h.logger.WithError(err).Warn("access cache read failed", map[string]interface{}{"visitorId": id})
		}
	}

	v, err := h.store.Load(ctx, id)
	if err != nil {
		return nil, errors.NewAccessCheckFailedError(err)
	}

	now := h.now()
	ent := access.Normalize(v.Entitlement, now)
	d := access.Decide(ent, now)
	cached := cachedDecision{
		Decision:    d.Outcome.String(),
		Grant:       d.Grant.String(),
		ButtonLabel: flow.FormButtonLabel(ent, now),
	}

	if h.redis != nil {
		data, _ := json.Marshal(cached)
		if err := h.redis.Set(ctx, cacheKey, data, h.config.CacheTTL).Err(); err != nil {
			h.logger.WithError(err).Warn("access cache write failed", map[string]interface{}{"visitorId": id})
		}
	}

	return &Output{Decision: cached.Decision, Grant: cached.Grant, ButtonLabel: cached.ButtonLabel}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.AsStandard(err).Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}
