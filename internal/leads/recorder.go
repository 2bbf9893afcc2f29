package leads

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/metrics"
	"breakfear-decoder/internal/models"
)

// Recorder fans a lead out to every sink in parallel.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
	logger  logger.Logger
}

func NewRecorder(timeout time.Duration, log logger.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:   sinks,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"component": "leads"}),
	}
}

// Sinks names the configured sinks.
func (r *Recorder) Sinks() []string {
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	return names
}

// Capture is best effort: failures are logged and counted only.
func (r *Recorder) Capture(ctx context.Context, lead models.Lead) {
	_ = r.CaptureAll(ctx, lead)
}

// CaptureAll stores lead in every sink and joins the LEAD_CAPTURE_FAILED errors.
func (r *Recorder) CaptureAll(ctx context.Context, lead models.Lead) error {
	if len(r.sinks) == 0 {
		return nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	errs := make([]error, len(r.sinks))
	var wg sync.WaitGroup
	for i, sink := range r.sinks {
		wg.Add(1)
		go func(i int, sink Sink) {
			defer wg.Done()
			if err := sink.Store(ctx, lead); err != nil {
				metrics.LeadSinkFailures.WithLabelValues(sink.Name()).Inc()
				r.logger.Warn("lead sink failed", map[string]interface{}{
					"sink":      sink.Name(),
					"visitorId": lead.VisitorID,
					"error":     err.Error(),
				})
				errs[i] = errors.NewLeadCaptureFailedError(sink.Name(), err)
			}
		}(i, sink)
	}
	wg.Wait()

	return stderrors.Join(errs...)
}
