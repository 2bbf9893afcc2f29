package access

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/models"
)

// Hash field names, one hash per visitor.
const (
	fieldPage               = "page"
	fieldSubscriptionActive = "subscription_active"
	fieldSubscriptionExpiry = "subscription_expiry"
	fieldSingleCredit       = "single_credit"
	fieldFreeQueryUsed      = "free_query_used"
	fieldFirstName          = "first_name"
	fieldLastName           = "last_name"
	fieldEmail              = "email"
	fieldSource             = "source"
	fieldDisclaimerAgreed   = "disclaimer_agreed"
	fieldSignature          = "signature"
	fieldSignedDate         = "signed_date"
	fieldPendingQuestion    = "pending_question"
	fieldResult             = "result"
	fieldFlashMessage       = "flash_message"
	fieldCreatedAt          = "created_at"
	fieldUpdatedAt          = "updated_at"
)

// RedisStore keeps each visitor in a Redis hash with a sliding TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) key(visitorID string) string {
	return s.prefix + visitorID
}

func (s *RedisStore) Load(ctx context.Context, visitorID string) (*models.Visitor, error) {
	vals, err := s.client.HGetAll(ctx, s.key(visitorID)).Result()
	if err != nil {
		return nil, apperrors.NewStoreFailedError("load", err)
	}
	if len(vals) == 0 {
		return models.NewVisitor(visitorID, s.now()), nil
	}
	v, err := decodeHash(visitorID, vals)
	if err != nil {
		return nil, apperrors.NewStoreFailedError("decode", err)
	}
	return v, nil
}

// Save replaces the hash atomically so cleared fields do not linger.
func (s *RedisStore) Save(ctx context.Context, v *models.Visitor) error {
	fields, err := encodeHash(v)
	if err != nil {
		return apperrors.NewStoreFailedError("encode", err)
	}
	key := s.key(v.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return apperrors.NewStoreFailedError("save", err)
	}
	return nil
}

func encodeHash(v *models.Visitor) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		fieldPage:               v.Page.String(),
		fieldSubscriptionActive: strconv.FormatBool(v.Entitlement.SubscriptionActive),
		fieldSingleCredit:       strconv.FormatBool(v.Entitlement.SingleCreditAvailable),
		fieldFreeQueryUsed:      strconv.FormatBool(v.Entitlement.FreeQueryUsed),
		fieldFirstName:          v.Profile.FirstName,
		fieldLastName:           v.Profile.LastName,
		fieldEmail:              v.Profile.Email,
		fieldSource:             v.Profile.Source,
		fieldDisclaimerAgreed:   strconv.FormatBool(v.DisclaimerAgreed),
		fieldSignature:          v.Signature,
		fieldSignedDate:         v.SignedDate,
		fieldFlashMessage:       v.FlashMessage,
		fieldCreatedAt:          strconv.FormatInt(v.CreatedAt.UnixMilli(), 10),
		fieldUpdatedAt:          strconv.FormatInt(v.UpdatedAt.UnixMilli(), 10),
	}
	if exp := v.Entitlement.SubscriptionExpiry; exp != nil {
		fields[fieldSubscriptionExpiry] = strconv.FormatInt(exp.UnixMilli(), 10)
	}
	if v.Pending != nil {
		data, err := json.Marshal(v.Pending)
		if err != nil {
			return nil, err
		}
		fields[fieldPendingQuestion] = string(data)
	}
	if v.Result != nil {
		data, err := json.Marshal(v.Result)
		if err != nil {
			return nil, err
		}
		fields[fieldResult] = string(data)
	}
	return fields, nil
}

func decodeHash(id string, vals map[string]string) (*models.Visitor, error) {
	v := &models.Visitor{
		ID:           id,
		Signature:    vals[fieldSignature],
		SignedDate:   vals[fieldSignedDate],
		FlashMessage: vals[fieldFlashMessage],
		Profile: models.Profile{
			FirstName: vals[fieldFirstName],
			LastName:  vals[fieldLastName],
			Email:     vals[fieldEmail],
			Source:    vals[fieldSource],
		},
	}

	if raw, ok := vals[fieldPage]; ok {
		page, err := models.ParsePage(raw)
		if err != nil {
			return nil, err
		}
		v.Page = page
	}

	v.Entitlement.SubscriptionActive = vals[fieldSubscriptionActive] == "true"
	v.Entitlement.SingleCreditAvailable = vals[fieldSingleCredit] == "true"
	v.Entitlement.FreeQueryUsed = vals[fieldFreeQueryUsed] == "true"
	v.DisclaimerAgreed = vals[fieldDisclaimerAgreed] == "true"

	if raw := vals[fieldSubscriptionExpiry]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		exp := time.UnixMilli(ms).UTC()
		v.Entitlement.SubscriptionExpiry = &exp
	}
	if raw := vals[fieldPendingQuestion]; raw != "" {
		var p models.PendingQuestion
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		v.Pending = &p
	}
	if raw := vals[fieldResult]; raw != "" {
		var r models.DecodeResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, err
		}
		v.Result = &r
	}
	v.CreatedAt = parseMillis(vals[fieldCreatedAt])
	v.UpdatedAt = parseMillis(vals[fieldUpdatedAt])
	return v, nil
}

func parseMillis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
