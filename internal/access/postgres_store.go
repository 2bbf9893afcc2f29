package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	apperrors "breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/models"
)

const selectVisitorSQL = `SELECT page, subscription_active, subscription_expiry, single_credit, free_query_used,
	first_name, last_name, email, source, disclaimer_agreed, signature, signed_date,
	pending_question, result, flash_message, created_at, updated_at
	FROM visitors WHERE id = $1`

const upsertVisitorSQL = `INSERT INTO visitors (id, page, subscription_active, subscription_expiry, single_credit,
	free_query_used, first_name, last_name, email, source, disclaimer_agreed, signature, signed_date,
	pending_question, result, flash_message, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (id) DO UPDATE SET
		page = EXCLUDED.page,
		subscription_active = EXCLUDED.subscription_active,
		subscription_expiry = EXCLUDED.subscription_expiry,
		single_credit = EXCLUDED.single_credit,
		free_query_used = EXCLUDED.free_query_used,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		email = EXCLUDED.email,
		source = EXCLUDED.source,
		disclaimer_agreed = EXCLUDED.disclaimer_agreed,
		signature = EXCLUDED.signature,
		signed_date = EXCLUDED.signed_date,
		pending_question = EXCLUDED.pending_question,
		result = EXCLUDED.result,
		flash_message = EXCLUDED.flash_message,
		updated_at = EXCLUDED.updated_at`

// PostgresStore keeps visitors in the visitors table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) Load(ctx context.Context, visitorID string) (*models.Visitor, error) {
	var (
		page                 string
		expiry               sql.NullTime
		pending, result      []byte
		createdAt, updatedAt time.Time
	)
	v := &models.Visitor{ID: visitorID}

	err := s.db.QueryRowContext(ctx, selectVisitorSQL, visitorID).Scan(
		&page,
		&v.Entitlement.SubscriptionActive,
		&expiry,
		&v.Entitlement.SingleCreditAvailable,
		&v.Entitlement.FreeQueryUsed,
		&v.Profile.FirstName,
		&v.Profile.LastName,
		&v.Profile.Email,
		&v.Profile.Source,
		&v.DisclaimerAgreed,
		&v.Signature,
		&v.SignedDate,
		&pending,
		&result,
		&v.FlashMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewVisitor(visitorID, s.now()), nil
		}
		return nil, apperrors.NewStoreFailedError("load", err)
	}

	if v.Page, err = models.ParsePage(page); err != nil {
		return nil, apperrors.NewStoreFailedError("decode", err)
	}
	if expiry.Valid {
		exp := expiry.Time.UTC()
		v.Entitlement.SubscriptionExpiry = &exp
	}
	if len(pending) > 0 {
		v.Pending = &models.PendingQuestion{}
		if err := json.Unmarshal(pending, v.Pending); err != nil {
			return nil, apperrors.NewStoreFailedError("decode", err)
		}
	}
	if len(result) > 0 {
		v.Result = &models.DecodeResult{}
		if err := json.Unmarshal(result, v.Result); err != nil {
			return nil, apperrors.NewStoreFailedError("decode", err)
		}
	}
	v.CreatedAt = createdAt.UTC()
	v.UpdatedAt = updatedAt.UTC()
	return v, nil
}

func (s *PostgresStore) Save(ctx context.Context, v *models.Visitor) error {
	var expiry sql.NullTime
	if v.Entitlement.SubscriptionExpiry != nil {
		expiry = sql.NullTime{Time: *v.Entitlement.SubscriptionExpiry, Valid: true}
	}

	pending, err := nullableJSON(v.Pending)
	if err != nil {
		return apperrors.NewStoreFailedError("encode", err)
	}
	result, err := nullableJSON(v.Result)
	if err != nil {
		return apperrors.NewStoreFailedError("encode", err)
	}

	_, err = s.db.ExecContext(ctx, upsertVisitorSQL,
		v.ID,
		v.Page.String(),
		v.Entitlement.SubscriptionActive,
		expiry,
		v.Entitlement.SingleCreditAvailable,
		v.Entitlement.FreeQueryUsed,
		v.Profile.FirstName,
		v.Profile.LastName,
		v.Profile.Email,
		v.Profile.Source,
		v.DisclaimerAgreed,
		v.Signature,
		v.SignedDate,
		pending,
		result,
		v.FlashMessage,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewStoreFailedError("save", err)
	}
	return nil
}

func nullableJSON(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *models.PendingQuestion:
		if t == nil {
			return nil, nil
		}
	case *models.DecodeResult:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
