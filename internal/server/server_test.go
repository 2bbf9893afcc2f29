package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"breakfear-decoder/internal/access"
	apperrors "breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/decoder"
	"breakfear-decoder/internal/flow"
	"breakfear-decoder/internal/models"
	"breakfear-decoder/pkg/registry"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// ==========================
// Mocks
// ==========================

type stubDecoder struct{}

func (stubDecoder) Decode(_ context.Context, _ registry.Variant, req models.QuestionRequest) (*decoder.Outcome, error) {
	return &decoder.Outcome{
		Status: models.ResultReady,
		Fields: map[string]string{
			"insight":                  "Fear is loud.",
			"task":                     "Breathe once.",
			"thoughtProvokingQuestion": "What if you stayed?",
		},
	}, nil
}

type MockWebhook struct {
	mock.Mock
}

func (m *MockWebhook) Process(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

// ==========================
// Test Helpers
// ==========================

func createTestServer(t *testing.T) (*Server, *access.MemoryStore) {
	t.Helper()
	v, ok := registry.Default().Get("portal")
	require.True(t, ok)

	store := access.NewMemoryStore()
	svc := flow.NewService(store, stubDecoder{}, flow.Options{
		Variant: *v,
		Links: flow.PaymentLinks{
			MonthlyURL: "https://buy.stripe.com/monthly",
			SingleURL:  "https://buy.stripe.com/single",
			ReturnURL:  "https://decoder.example.com/return",
		},
		Now: func() time.Time { return testNow },
	}, logger.NewTestLogger(t))

	return New(svc, Options{}, logger.NewTestLogger(t)), store
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", CookieName)
	return nil
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) flow.View {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view flow.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ==========================
// Session
// ==========================

func TestSession_IssuesCookieOnFirstContact(t *testing.T) {
	srv, _ := createTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/session", nil, nil)
	view := decodeView(t, rec)
	cookie := sessionCookie(t, rec)

	assert.Equal(t, models.PageWelcome, view.Page)
	assert.Equal(t, cookie.Value, view.VisitorID)
	assert.True(t, cookie.HttpOnly)

	rec = do(t, h, http.MethodGet, "/api/v1/session", nil, cookie)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, cookie.Value, decodeView(t, rec).VisitorID)
}

func TestSession_ReplacesMalformedCookie(t *testing.T) {
	srv, _ := createTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/session", nil, &http.Cookie{Name: CookieName, Value: "not-a-uuid"})
	assert.NotEqual(t, "not-a-uuid", sessionCookie(t, rec).Value)
}

func TestSession_FullJourney(t *testing.T) {
	srv, store := createTestServer(t)
	h := srv.Handler()

	cookie := sessionCookie(t, do(t, h, http.MethodGet, "/api/v1/session", nil, nil))

	view := decodeView(t, do(t, h, http.MethodPost, "/api/v1/session/begin", nil, cookie))
	assert.Equal(t, models.PageDisclaimer, view.Page)

	view = decodeView(t, do(t, h, http.MethodPost, "/api/v1/session/consent",
		flow.DisclaimerForm{Signature: "Ada Lovelace", Date: "2025-03-01", Agreed: true}, cookie))
	assert.Equal(t, models.PageForm, view.Page)

	view = decodeView(t, do(t, h, http.MethodPost, "/api/v1/session/questions",
		flow.QuestionForm{FirstName: "Ada", Email: "ada@example.com", Question: "Why do I freeze?"}, cookie))
	assert.Equal(t, models.PageResult, view.Page)
	require.NotNil(t, view.Result)
	assert.Equal(t, models.ResultReady, view.Result.Status)
	assert.True(t, view.Entitlement.FreeQueryUsed)

	view = decodeView(t, do(t, h, http.MethodPost, "/api/v1/session/next", nil, cookie))
	assert.Equal(t, models.PagePayment, view.Page)
	require.NotNil(t, view.Payment)

	rec := do(t, h, http.MethodGet, "/return?purchase=single", nil, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	v, err := store.Load(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.True(t, v.Entitlement.SingleCreditAvailable)

	view = decodeView(t, do(t, h, http.MethodGet, "/api/v1/session", nil, cookie))
	assert.Equal(t, models.PageForm, view.Page)
	assert.Equal(t, "Payment successful! You may now ask your next question.", view.Form.SuccessMessage)

	view = decodeView(t, do(t, h, http.MethodGet, "/api/v1/session", nil, cookie))
	assert.Empty(t, view.Form.SuccessMessage)
}

func TestReturn_UsesSessionParamWithoutCookie(t *testing.T) {
	srv, store := createTestServer(t)
	id := "6f1c2a3b-4d5e-4f60-8a7b-9c0d1e2f3a4b"

	rec := do(t, srv.Handler(), http.MethodGet, "/return?purchase=monthly&session="+id, nil, nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, id, sessionCookie(t, rec).Value)

	v, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, v.Entitlement.Subscribed(testNow))
	assert.Equal(t, models.PageForm, v.Page)
}

func TestReturn_WithoutSessionStillRedirects(t *testing.T) {
	srv, store := createTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/return?purchase=single", nil, nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Zero(t, store.Len())
}

// ==========================
// Errors
// ==========================

func TestErrors_StatusAndBody(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h http.Handler, c *http.Cookie)
		method string
		path   string
		body   interface{}
		status int
		code   apperrors.ErrorCode
	}{
		{
			name:   "consent on welcome page",
			method: http.MethodPost,
			path:   "/api/v1/session/consent",
			body:   flow.DisclaimerForm{Signature: "Ada", Date: "2025-03-01", Agreed: true},
			status: http.StatusConflict,
			code:   apperrors.ErrCodeInvalidTransition,
		},
		{
			name:   "malformed body",
			method: http.MethodPost,
			path:   "/api/v1/session/questions",
			body:   "not an object",
			status: http.StatusUnprocessableEntity,
			code:   apperrors.ErrCodeValidationFailed,
		},
		{
			name:   "missing fields",
			method: http.MethodPost,
			path:   "/api/v1/session/questions",
			body:   flow.QuestionForm{FirstName: "Ada"},
			status: http.StatusUnprocessableEntity,
			code:   apperrors.ErrCodeValidationFailed,
		},
		{
			name: "consent not agreed",
			setup: func(h http.Handler, c *http.Cookie) {
				do(t, h, http.MethodPost, "/api/v1/session/begin", nil, c)
			},
			method: http.MethodPost,
			path:   "/api/v1/session/consent",
			body:   flow.DisclaimerForm{Signature: "Ada", Date: "2025-03-01"},
			status: http.StatusUnprocessableEntity,
			code:   apperrors.ErrCodeConsentRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := createTestServer(t)
			h := srv.Handler()
			cookie := sessionCookie(t, do(t, h, http.MethodGet, "/api/v1/session", nil, nil))
			if tt.setup != nil {
				tt.setup(h, cookie)
			}

			rec := do(t, h, tt.method, tt.path, tt.body, cookie)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestErrors_ValidationMetadata(t *testing.T) {
	srv, store := createTestServer(t)
	h := srv.Handler()
	cookie := sessionCookie(t, do(t, h, http.MethodGet, "/api/v1/session", nil, nil))

	v := models.NewVisitor(cookie.Value, testNow)
	v.Page = models.PageForm
	require.NoError(t, store.Save(context.Background(), v))

	rec := do(t, h, http.MethodPost, "/api/v1/session/questions", flow.QuestionForm{FirstName: "Ada", Email: "nope"}, cookie)

	body := decodeError(t, rec)
	assert.Equal(t, "Please complete your first name, email and question.", body.Message)
	assert.Contains(t, body.Metadata, "email")
	assert.Contains(t, body.Metadata, "question")
}

// ==========================
// Webhook, proxy, health
// ==========================

func TestWebhook(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"accepted", nil, http.StatusOK},
		{"bad signature", apperrors.NewWebhookInvalidError(errors.New("no signatures found")), http.StatusBadRequest},
		{"store down", apperrors.NewStoreFailedError("save", errors.New("redis down")), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := new(MockWebhook)
			hook.On("Process", mock.Anything, []byte(`{"id":"evt_1"}`), "t=1,v1=abc").Return(tt.err)

			srv, _ := createTestServer(t)
			h := srv.WithWebhook(hook).Handler()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(`{"id":"evt_1"}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			hook.AssertExpectations(t)
		})
	}
}

func TestProxyRoutes(t *testing.T) {
	srv, _ := createTestServer(t)
	h := srv.WithProxy(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).Handler()

	for _, path := range []string{"/api/decoder", "/.netlify/functions/decoder"} {
		rec := do(t, h, http.MethodPost, path, map[string]string{"question": "why?"}, nil)
		assert.Equal(t, http.StatusTeapot, rec.Code, path)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := createTestServer(t)
	healthy := true
	h := srv.WithReadyCheck("store", func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("connection refused")
	}).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready", nil, nil).Code)

	healthy = false
	rec := do(t, h, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", nil, nil).Code)
}
