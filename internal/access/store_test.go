package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/models"
)

func createTestVisitor() *models.Visitor {
	expiry := testNow.Add(SubscriptionPeriod)
	return &models.Visitor{
		ID:   "visitor-1",
		Page: models.PageResult,
		Entitlement: models.Entitlement{
			SubscriptionActive: true,
			SubscriptionExpiry: &expiry,
			FreeQueryUsed:      true,
		},
		Profile: models.Profile{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
			Source:    "web",
		},
		DisclaimerAgreed: true,
		Signature:        "Ada Lovelace",
		SignedDate:       "2025-03-01",
		Pending:          &models.PendingQuestion{FirstName: "Ada", Email: "ada@example.com", Question: "Why do I freeze?"},
		Result: &models.DecodeResult{
			Status:    models.ResultReady,
			Fields:    map[string]string{"insight": "Fear is loud."},
			FirstName: "Ada",
			DecodedAt: testNow,
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

// ==========================
// MemoryStore
// ==========================

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	v := createTestVisitor()
	require.NoError(t, store.Save(ctx, v))

	loaded, err := store.Load(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v, loaded)
}

func TestMemoryStore_UnknownVisitorIsFresh(t *testing.T) {
	loaded, err := NewMemoryStore().Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", loaded.ID)
	assert.Equal(t, models.PageWelcome, loaded.Page)
	assert.Equal(t, models.Entitlement{}, loaded.Entitlement)
}

func TestMemoryStore_CopiesOnSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	v := createTestVisitor()
	require.NoError(t, store.Save(ctx, v))
	v.Result.Fields["insight"] = "mutated"

	loaded, err := store.Load(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fear is loud.", loaded.Result.Fields["insight"])
}

// ==========================
// RedisStore
// ==========================

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "decoder:visitor:", time.Hour), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStore(t)

	v := createTestVisitor()
	require.NoError(t, store.Save(ctx, v))

	assert.Equal(t, "true", mr.HGet("decoder:visitor:visitor-1", "subscription_active"))
	assert.Equal(t, "result", mr.HGet("decoder:visitor:visitor-1", "page"))
	assert.Equal(t, time.Hour, mr.TTL("decoder:visitor:visitor-1"))

	loaded, err := store.Load(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v, loaded)
}

func TestRedisStore_SaveClearsRemovedFields(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStore(t)

	v := createTestVisitor()
	require.NoError(t, store.Save(ctx, v))

	v.Pending = nil
	v.Entitlement = models.Entitlement{FreeQueryUsed: true}
	require.NoError(t, store.Save(ctx, v))

	assert.Empty(t, mr.HGet("decoder:visitor:visitor-1", "pending_question"))
	assert.Empty(t, mr.HGet("decoder:visitor:visitor-1", "subscription_expiry"))

	loaded, err := store.Load(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.Pending)
	assert.Nil(t, loaded.Entitlement.SubscriptionExpiry)
}

func TestRedisStore_UnknownVisitorIsFresh(t *testing.T) {
	store, _ := newMiniredisStore(t)

	loaded, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, models.PageWelcome, loaded.Page)
}

func TestRedisStore_LoadError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, "decoder:visitor:", time.Hour)

	mock.ExpectHGetAll("decoder:visitor:v1").SetErr(errors.New("connection refused"))

	_, err := store.Load(context.Background(), "v1")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_CorruptPage(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStore(t)
	mr.HSet("decoder:visitor:v2", "page", "nowhere")

	_, err := store.Load(ctx, "v2")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreFailed))
}

// ==========================
// PostgresStore
// ==========================

var visitorColumns = []string{
	"page", "subscription_active", "subscription_expiry", "single_credit", "free_query_used",
	"first_name", "last_name", "email", "source", "disclaimer_agreed", "signature", "signed_date",
	"pending_question", "result", "flash_message", "created_at", "updated_at",
}

func TestPostgresStore_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expiry := testNow.Add(SubscriptionPeriod)
	mock.ExpectQuery("SELECT (.+) FROM visitors WHERE id = \\$1").
		WithArgs("visitor-1").
		WillReturnRows(sqlmock.NewRows(visitorColumns).AddRow(
			"form", true, expiry, false, true,
			"Ada", "Lovelace", "ada@example.com", "web", true, "Ada Lovelace", "2025-03-01",
			[]byte(`{"firstName":"Ada","lastName":"","email":"ada@example.com","question":"Why?"}`), nil,
			"Welcome, subscriber! You now have unlimited access for the month.", testNow, testNow,
		))

	v, err := NewPostgresStore(db).Load(context.Background(), "visitor-1")
	require.NoError(t, err)

	assert.Equal(t, models.PageForm, v.Page)
	assert.True(t, v.Entitlement.SubscriptionActive)
	assert.Equal(t, expiry, *v.Entitlement.SubscriptionExpiry)
	require.NotNil(t, v.Pending)
	assert.Equal(t, "Why?", v.Pending.Question)
	assert.Nil(t, v.Result)
	assert.Equal(t, "Ada", v.Profile.FirstName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM visitors WHERE id = \\$1").
		WithArgs("new").
		WillReturnRows(sqlmock.NewRows(visitorColumns))

	v, err := NewPostgresStore(db).Load(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, models.PageWelcome, v.Page)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM visitors").WillReturnError(errors.New("db down"))

	_, err = NewPostgresStore(db).Load(context.Background(), "v")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreFailed))
}

func TestPostgresStore_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	v := createTestVisitor()
	v.Pending = nil

	mock.ExpectExec("INSERT INTO visitors (.+) ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs(
			"visitor-1", "result", true, sqlmock.AnyArg(), false, true,
			"Ada", "Lovelace", "ada@example.com", "web", true, "Ada Lovelace", "2025-03-01",
			nil, sqlmock.AnyArg(), "", v.CreatedAt, v.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresStore(db).Save(context.Background(), v))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO visitors").WillReturnError(errors.New("constraint"))

	err = NewPostgresStore(db).Save(context.Background(), createTestVisitor())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreFailed))
}
