package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"breakfear-decoder/internal/access"
	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/metrics"
	"breakfear-decoder/internal/common/observability"
	"breakfear-decoder/internal/common/validation"
	"breakfear-decoder/internal/decoder"
	"breakfear-decoder/internal/models"
	"breakfear-decoder/internal/safety"
	"breakfear-decoder/pkg/registry"
)

const (
	unknownDecodeError = "An unknown error occurred while decoding your question."

	defaultPendingTimeout = 3 * time.Minute
)

// Decoder answers one question for a variant.
type Decoder interface {
	Decode(ctx context.Context, v registry.Variant, req models.QuestionRequest) (*decoder.Outcome, error)
}

// LeadSink records contact details. Capture is best effort and never fails the flow.
type LeadSink interface {
	Capture(ctx context.Context, lead models.Lead)
}

// InsightSender delivers a ready result by e-mail.
type InsightSender interface {
	SendInsight(ctx context.Context, msg models.InsightEmail) error
}

type Options struct {
	Variant registry.Variant
	Links   PaymentLinks
	Source  string
	Now     func() time.Time
	// PendingTimeout bounds how long a pending result blocks the visitor.
	// It should exceed the decoder deadline.
	PendingTimeout time.Duration
}

// Service applies page events to stored visitors. Each operation holds the
// visitor's lock for its load/modify/save; Submit releases it during the AI call
// and relies on the pending result to reject a second submission.
type Service struct {
	store     access.Store
	decoder   Decoder
	leads     LeadSink
	insights  InsightSender
	variant   registry.Variant
	links     PaymentLinks
	source    string
	validator *validation.Validator
	locks     *visitorLocks
	obs       *observability.Observability
	now       func() time.Time
	logger    logger.Logger

	pendingTimeout time.Duration
}

func NewService(store access.Store, dec Decoder, opts Options, log logger.Logger) *Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	pendingTimeout := opts.PendingTimeout
	if pendingTimeout <= 0 {
		pendingTimeout = defaultPendingTimeout
	}
	return &Service{
		store:     store,
		decoder:   dec,
		variant:   opts.Variant,
		links:     opts.Links,
		source:    opts.Source,
		validator: validation.NewValidator(),
		locks:     newVisitorLocks(),
		now:       now,
		logger:    log.WithFields(map[string]interface{}{"component": "flow", "variant": opts.Variant.ID}),

		pendingTimeout: pendingTimeout,
	}
}

func (s *Service) WithLeadSink(l LeadSink) *Service {
	s.leads = l
	return s
}

func (s *Service) WithInsightSender(i InsightSender) *Service {
	s.insights = i
	return s
}

func (s *Service) WithObservability(o *observability.Observability) *Service {
	s.obs = o
	return s
}

// Variant is the flow variant this service runs.
func (s *Service) Variant() registry.Variant {
	return s.variant
}

// View renders the visitor. A pending payment success message is shown once.
func (s *Service) View(ctx context.Context, visitorID string) (*View, error) {
	unlock := s.locks.Lock(visitorID)
	defer unlock()

	v, err := s.load(ctx, visitorID)
	if err != nil {
		return nil, err
	}

	flash := ""
	if v.FlashMessage != "" && v.Page == models.PageForm {
		flash = v.FlashMessage
		v.FlashMessage = ""
		if err := s.save(ctx, v); err != nil {
			return nil, err
		}
	}
	return s.render(v, flash), nil
}

// Begin moves Welcome to Disclaimer.
func (s *Service) Begin(ctx context.Context, visitorID string) (*View, error) {
	return s.apply(ctx, "begin", visitorID, func(v *models.Visitor) error {
		return s.move(v, EventProceed)
	})
}

// Consent records the signed disclaimer and opens the form.
func (s *Service) Consent(ctx context.Context, visitorID string, form DisclaimerForm) (*View, error) {
	return s.apply(ctx, "consent", visitorID, func(v *models.Visitor) error {
		if _, err := Transition(v.Page, EventConsent); err != nil {
			return err
		}

		form.normalize()
		if err := s.validator.Struct(&form); err != nil {
			return errors.NewValidationError("Please provide your signature and the date.", fieldErrors(err))
		}
		if !form.Agreed {
			return errors.NewConsentRequiredError()
		}

		v.DisclaimerAgreed = true
		v.Signature = form.Signature
		v.SignedDate = form.Date
		return s.move(v, EventConsent)
	})
}

// Submit runs the gate for a question and, when allowed, decodes it.
func (s *Service) Submit(ctx context.Context, visitorID string, form QuestionForm) (*View, error) {
	start := time.Now()

	form.normalize()
	if err := s.validator.Struct(&form); err != nil {
		s.obs.RecordOperation(ctx, "submit", "invalid", time.Since(start))
		return nil, errors.NewValidationError("Please complete your first name, email and question.", fieldErrors(err))
	}

	t, view, err := s.admit(ctx, visitorID, form)
	if err != nil || view != nil {
		status := "paywalled"
		if err != nil {
			status = string(errors.AsStandard(err).Code)
		} else if view.Page == models.PageResult {
			status = "crisis"
		}
		s.obs.RecordOperation(ctx, "submit", status, time.Since(start))
		return view, err
	}

	req := models.QuestionRequest{FirstName: form.FirstName, Question: form.Question, Source: s.sourceTag()}
	outcome, decodeErr := s.decode(ctx, visitorID, req)

	// The result is stored even when the caller has gone away.
	view, err = s.settle(context.WithoutCancel(ctx), visitorID, t, form, outcome, decodeErr)
	status := "ready"
	if decodeErr != nil {
		status = "failed"
	} else if outcome != nil {
		status = string(outcome.Status)
	}
	s.obs.RecordOperation(ctx, "submit", status, time.Since(start))
	return view, err
}

// ticket identifies one admitted question between admit and settle.
type ticket struct {
	decision  access.Decision
	startedAt time.Time
}

// admit is the first half of Submit. It returns a view when the request ends
// without an AI call (paywall or crisis); otherwise the visitor is left on a
// pending Result and the ticket for settle is returned.
func (s *Service) admit(ctx context.Context, visitorID string, form QuestionForm) (ticket, *View, error) {
	unlock := s.locks.Lock(visitorID)
	defer unlock()

	v, err := s.load(ctx, visitorID)
	if err != nil {
		return ticket{}, nil, err
	}
	if v.Page == models.PageResult && v.Result != nil && v.Result.Status == models.ResultPending {
		return ticket{}, nil, errors.NewRequestInFlightError()
	}
	if v.Page != models.PageForm {
		return ticket{}, nil, errors.NewInvalidTransitionError(v.Page.String(), EventSubmitAllowed.String())
	}

	v.Profile = models.Profile{
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Email:     form.Email,
		Source:    s.sourceTag(),
	}
	v.FlashMessage = ""
	s.captureLead(ctx, v)

	now := s.now()
	if (safety.Filter{Enabled: s.variant.CrisisFilter}).Screen(form.Question) {
		metrics.CrisisShortCircuits.Inc()
		s.logger.Warn("crisis language detected", map[string]interface{}{"visitorId": v.ID})
		v.Result = &models.DecodeResult{
			Status:    models.ResultCrisis,
			Message:   safety.Message,
			FirstName: form.FirstName,
			DecodedAt: now,
		}
		if err := s.move(v, EventSubmitAllowed); err != nil {
			return ticket{}, nil, err
		}
		if err := s.save(ctx, v); err != nil {
			return ticket{}, nil, err
		}
		return ticket{}, s.render(v, ""), nil
	}

	d := access.Decide(v.Entitlement, now)
	metrics.AccessDecisions.WithLabelValues(d.Outcome.String(), d.Grant.String()).Inc()
	s.logger.Info("access decided", map[string]interface{}{
		"visitorId": v.ID,
		"decision":  d.Outcome.String(),
		"grant":     d.Grant.String(),
	})

	if d.Outcome == access.RequirePayment {
		v.Pending = &models.PendingQuestion{
			FirstName: form.FirstName,
			LastName:  form.LastName,
			Email:     form.Email,
			Question:  form.Question,
		}
		if err := s.move(v, EventSubmitPaywalled); err != nil {
			return ticket{}, nil, err
		}
		if err := s.save(ctx, v); err != nil {
			return ticket{}, nil, err
		}
		return ticket{decision: d}, s.render(v, ""), nil
	}

	before := v.Entitlement
	v.Entitlement = access.ConsumeOnGrant(v.Entitlement, d)
	v.Pending = nil
	v.Result = &models.DecodeResult{
		Status:      models.ResultPending,
		FirstName:   form.FirstName,
		StartedAt:   &now,
		CreditSpent: before.SingleCreditAvailable && !v.Entitlement.SingleCreditAvailable,
	}
	if err := s.move(v, EventSubmitAllowed); err != nil {
		return ticket{}, nil, err
	}
	if err := s.save(ctx, v); err != nil {
		return ticket{}, nil, err
	}
	return ticket{decision: d, startedAt: now}, nil, nil
}

// decode calls the decoder and turns a panic into an internal error so the
// pending result is still settled.
func (s *Service) decode(ctx context.Context, visitorID string, req models.QuestionRequest) (outcome *decoder.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("decoder panicked", map[string]interface{}{"visitorId": visitorID, "panic": fmt.Sprint(r)})
			outcome = nil
			err = errors.NewInternalError(fmt.Errorf("decoder panic: %v", r))
		}
	}()
	return s.decoder.Decode(ctx, s.variant, req)
}

// settle stores the decoder outcome and, for a definitive one, spends the free
// query. An outcome for a request that already expired is dropped.
func (s *Service) settle(ctx context.Context, visitorID string, t ticket, form QuestionForm, outcome *decoder.Outcome, decodeErr error) (*View, error) {
	unlock := s.locks.Lock(visitorID)
	defer unlock()

	v, err := s.store.Load(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	v.Entitlement = access.Normalize(v.Entitlement, s.now())
	if !v.Result.IsPendingSince(t.startedAt) {
		s.logger.Warn("dropping late decoder outcome", map[string]interface{}{"visitorId": v.ID})
		s.expirePending(v)
		return s.render(v, ""), nil
	}
	creditSpent := v.Result.CreditSpent
	unsettled := v.Entitlement

	result := &models.DecodeResult{FirstName: form.FirstName, DecodedAt: s.now()}
	switch {
	case decodeErr != nil:
		result.Status = models.ResultFailed
		result.Message = failureMessage(decodeErr)
		s.logger.WithError(decodeErr).Warn("decode failed", map[string]interface{}{"visitorId": v.ID})
	case outcome == nil:
		result.Status = models.ResultFailed
		result.Message = unknownDecodeError
	default:
		result.Status = outcome.Status
		result.Fields = outcome.Fields
		result.Message = outcome.Message
	}

	v.Result = result
	v.Entitlement = access.Settle(v.Entitlement, t.decision, decodeErr == nil && outcome.Definitive())
	if err := s.save(ctx, v); err != nil {
		s.logger.WithError(err).Error("decode result not stored", map[string]interface{}{"visitorId": v.ID})
		v.Result = &models.DecodeResult{
			Status:    models.ResultFailed,
			Message:   unknownDecodeError,
			FirstName: form.FirstName,
			DecodedAt: s.now(),
		}
		v.Entitlement = access.Refund(unsettled, creditSpent)
		if retryErr := s.save(ctx, v); retryErr != nil {
			s.logger.WithError(retryErr).Error("failed result not stored", map[string]interface{}{"visitorId": v.ID})
		}
		return nil, err
	}

	if result.Status == models.ResultReady {
		s.sendInsight(ctx, v)
	}
	return s.render(v, ""), nil
}

// ReturnFromPayment consumes the redirect signal once and applies it.
func (s *Service) ReturnFromPayment(ctx context.Context, visitorID string, sig *access.Signal) (*View, error) {
	return s.apply(ctx, "payment_return", visitorID, func(v *models.Visitor) error {
		raw, ok := sig.Take()
		if !ok {
			return nil
		}

		tag, known := access.ParseTag(raw)
		metrics.PaymentSignals.WithLabelValues(raw, "redirect").Inc()
		if !known {
			s.logger.Warn("ignoring unknown purchase tag", map[string]interface{}{"visitorId": v.ID, "tag": raw})
			return nil
		}

		v.Entitlement, _ = access.ApplyPayment(v.Entitlement, tag, s.now())
		v.FlashMessage = access.SuccessMessage(tag)
		s.logger.Info("payment applied", map[string]interface{}{"visitorId": v.ID, "tag": string(tag)})
		return s.move(v, EventPaymentReturned)
	})
}

// GrantPurchase applies a purchase confirmed out of band (payment webhook)
// without moving the visitor.
func (s *Service) GrantPurchase(ctx context.Context, visitorID string, tag access.PaymentTag) error {
	_, err := s.apply(ctx, "payment_webhook", visitorID, func(v *models.Visitor) error {
		metrics.PaymentSignals.WithLabelValues(string(tag), "webhook").Inc()
		v.Entitlement, _ = access.ApplyPayment(v.Entitlement, tag, s.now())
		return nil
	})
	return err
}

// AskAnother leaves Result for the form when the gate would allow a question,
// or for the payment page otherwise.
func (s *Service) AskAnother(ctx context.Context, visitorID string) (*View, error) {
	return s.apply(ctx, "ask_another", visitorID, func(v *models.Visitor) error {
		if v.Result != nil && v.Result.Status == models.ResultPending {
			return errors.NewRequestInFlightError()
		}

		ev := EventAskAnother
		if access.Decide(v.Entitlement, s.now()).Outcome == access.RequirePayment {
			ev = EventAskPaywalled
		}
		if err := s.move(v, ev); err != nil {
			return err
		}
		v.Result = nil
		return nil
	})
}

// apply runs mutate under the visitor lock and saves when it succeeds.
func (s *Service) apply(ctx context.Context, op, visitorID string, mutate func(v *models.Visitor) error) (*View, error) {
	start := time.Now()
	unlock := s.locks.Lock(visitorID)
	defer unlock()

	v, err := s.load(ctx, visitorID)
	if err != nil {
		s.obs.RecordOperation(ctx, op, "error", time.Since(start))
		return nil, err
	}

	if err := mutate(v); err != nil {
		s.obs.RecordOperation(ctx, op, string(errors.AsStandard(err).Code), time.Since(start))
		return nil, err
	}

	if err := s.save(ctx, v); err != nil {
		s.obs.RecordOperation(ctx, op, "error", time.Since(start))
		return nil, err
	}
	s.obs.RecordOperation(ctx, op, "ok", time.Since(start))

	flash := ""
	if v.Page == models.PageForm {
		flash = v.FlashMessage
	}
	return s.render(v, flash), nil
}

func (s *Service) move(v *models.Visitor, ev Event) error {
	next, err := Transition(v.Page, ev)
	if err != nil {
		return err
	}
	s.logger.Debug("page transition", map[string]interface{}{
		"visitorId": v.ID,
		"from":      v.Page.String(),
		"to":        next.String(),
		"event":     ev.String(),
	})
	v.Page = next
	return nil
}

func (s *Service) load(ctx context.Context, visitorID string) (*models.Visitor, error) {
	v, err := s.store.Load(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	v.Entitlement = access.Normalize(v.Entitlement, s.now())
	s.expirePending(v)
	return v, nil
}

// expirePending fails a pending result that outlived the pending timeout, so
// an interrupted Submit cannot block the visitor. A credit spent on it is
// returned.
func (s *Service) expirePending(v *models.Visitor) {
	r := v.Result
	if r == nil || r.Status != models.ResultPending {
		return
	}
	now := s.now()
	if r.StartedAt != nil && now.Sub(*r.StartedAt) < s.pendingTimeout {
		return
	}

	s.logger.Warn("expiring stale pending result", map[string]interface{}{"visitorId": v.ID, "creditRefunded": r.CreditSpent})
	v.Entitlement = access.Refund(v.Entitlement, r.CreditSpent)
	v.Result = &models.DecodeResult{
		Status:    models.ResultFailed,
		Message:   errors.NewAITimeoutError(nil).Message,
		FirstName: r.FirstName,
		DecodedAt: now,
	}
}

func (s *Service) save(ctx context.Context, v *models.Visitor) error {
	v.UpdatedAt = s.now()
	return s.store.Save(ctx, v)
}

func (s *Service) render(v *models.Visitor, flash string) *View {
	return buildView(v, s.variant, s.links, flash, s.now())
}

func (s *Service) sourceTag() string {
	if s.source == "" {
		return "web"
	}
	return s.source
}

func (s *Service) captureLead(ctx context.Context, v *models.Visitor) {
	if s.leads == nil {
		return
	}
	s.leads.Capture(ctx, models.Lead{
		ID:        uuid.NewString(),
		VisitorID: v.ID,
		FirstName: v.Profile.FirstName,
		LastName:  v.Profile.LastName,
		Email:     v.Profile.Email,
		Source:    v.Profile.Source,
		Variant:   s.variant.ID,
		CreatedAt: s.now(),
	})
}

func (s *Service) sendInsight(ctx context.Context, v *models.Visitor) {
	if s.insights == nil || v.Profile.Email == "" {
		return
	}
	err := s.insights.SendInsight(ctx, models.InsightEmail{
		To:        v.Profile.Email,
		FirstName: v.Profile.FirstName,
		Variant:   s.variant.ID,
		Fields:    v.Result.Fields,
	})
	if err != nil {
		s.logger.WithError(err).Warn("insight e-mail not sent", map[string]interface{}{"visitorId": v.ID})
	}
}

func failureMessage(err error) string {
	stdErr := errors.AsStandard(err)
	if stdErr == nil || stdErr.Code == errors.ErrCodeInternal {
		return unknownDecodeError
	}
	return stdErr.Message
}

func fieldErrors(err error) map[string]string {
	if fe, ok := err.(*validation.FormError); ok {
		return fe.Errors
	}
	return map[string]string{"form": err.Error()}
}
