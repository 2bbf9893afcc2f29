package leads

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/zoho"
	"breakfear-decoder/internal/models"
)

var testCreatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func createTestLead() models.Lead {
	return models.Lead{
		ID:        "lead-1",
		VisitorID: "visitor-1",
		FirstName: "Ada",
		Email:     "Ada@Example.com",
		Source:    "web",
		Variant:   "portal",
		CreatedAt: testCreatedAt,
	}
}

// ==========================
// Mocks
// ==========================

type MockIndexer struct{ mock.Mock }

func (m *MockIndexer) IndexDocument(ctx context.Context, index, id string, doc interface{}) error {
	return m.Called(ctx, index, id, doc).Error(0)
}

type MockCRM struct{ mock.Mock }

func (m *MockCRM) UpsertLead(ctx context.Context, lead *zoho.Lead) (string, error) {
	args := m.Called(ctx, lead)
	return args.String(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx context.Context, eventType, message string) error {
	return m.Called(ctx, eventType, message).Error(0)
}

type recordingSink struct {
	name string
	err  error

	mu    sync.Mutex
	leads []models.Lead
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Store(_ context.Context, lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, lead)
	return s.err
}

// ==========================
// Sinks
// ==========================

func TestPostgresSink_Store(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sqlMock.ExpectExec("INSERT INTO leads (.+) ON CONFLICT \\(email\\) DO UPDATE").
		WithArgs("lead-1", "visitor-1", "Ada", "", "ada@example.com", "web", "portal", testCreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresSink(db).Store(context.Background(), createTestLead()))
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestPostgresSink_StoreError(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sqlMock.ExpectExec("INSERT INTO leads").WillReturnError(errors.New("db down"))

	assert.Error(t, NewPostgresSink(db).Store(context.Background(), createTestLead()))
}

func TestIndexSink_UsesLowercaseEmailAsID(t *testing.T) {
	indexer := new(MockIndexer)
	lead := createTestLead()
	indexer.On("IndexDocument", mock.Anything, "decoder-leads", "ada@example.com", lead).Return(nil)

	require.NoError(t, NewIndexSink(indexer, "").Store(context.Background(), lead))
	indexer.AssertExpectations(t)
}

func TestCRMSink_LastNameFallsBackToFirstName(t *testing.T) {
	crm := new(MockCRM)
	crm.On("UpsertLead", mock.Anything, mock.MatchedBy(func(l *zoho.Lead) bool {
		return l.LastName == "Ada" && l.FirstName == "Ada" && l.Email == "Ada@Example.com" &&
			l.LeadSource == "BreakFear Decoder (web)"
	})).Return("zoho-1", nil)

	require.NoError(t, NewCRMSink(crm).Store(context.Background(), createTestLead()))
	crm.AssertExpectations(t)
}

func TestCRMSink_KeepsLastName(t *testing.T) {
	crm := new(MockCRM)
	crm.On("UpsertLead", mock.Anything, mock.MatchedBy(func(l *zoho.Lead) bool {
		return l.LastName == "Lovelace"
	})).Return("", errors.New("quota"))

	lead := createTestLead()
	lead.LastName = "Lovelace"
	assert.EqualError(t, NewCRMSink(crm).Store(context.Background(), lead), "quota")
}

func TestEventSink_PublishesLeadJSON(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, EventLeadCaptured, mock.MatchedBy(func(msg string) bool {
		var got models.Lead
		return json.Unmarshal([]byte(msg), &got) == nil && got.VisitorID == "visitor-1"
	})).Return(nil)

	require.NoError(t, NewEventSink(pub).Store(context.Background(), createTestLead()))
	pub.AssertExpectations(t)
}

// ==========================
// Recorder
// ==========================

func TestRecorder_FansOutToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	r := NewRecorder(time.Second, logger.NewTestLogger(t), a, b)

	require.NoError(t, r.CaptureAll(context.Background(), createTestLead()))
	assert.Len(t, a.leads, 1)
	assert.Len(t, b.leads, 1)
	assert.Equal(t, []string{"a", "b"}, r.Sinks())
}

func TestRecorder_OneFailureDoesNotStopOthers(t *testing.T) {
	bad := &recordingSink{name: "zoho", err: errors.New("unauthorized")}
	good := &recordingSink{name: "postgres"}
	r := NewRecorder(0, logger.NewTestLogger(t), bad, good)

	err := r.CaptureAll(context.Background(), createTestLead())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLeadCaptureFailed))
	assert.Len(t, good.leads, 1)

	// Capture swallows the same failure.
	r.Capture(context.Background(), createTestLead())
	assert.Len(t, good.leads, 2)
}

func TestRecorder_NoSinks(t *testing.T) {
	r := NewRecorder(time.Second, logger.NewNoOpLogger())
	assert.NoError(t, r.CaptureAll(context.Background(), createTestLead()))
	assert.Empty(t, r.Sinks())
}
