// Package leads records visitor contact details in the configured sinks and
// delivers ready insights by e-mail.
package leads

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"breakfear-decoder/internal/common/zoho"
	"breakfear-decoder/internal/models"
)

// Sink stores one lead.
type Sink interface {
	Name() string
	Store(ctx context.Context, lead models.Lead) error
}

// ==========================
// Postgres
// ==========================

const upsertLeadSQL = `
	INSERT INTO leads (id, visitor_id, first_name, last_name, email, source, variant, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	ON CONFLICT (email) DO UPDATE SET
		visitor_id = EXCLUDED.visitor_id,
		first_name = EXCLUDED.first_name,
		last_name  = EXCLUDED.last_name,
		source     = EXCLUDED.source,
		variant    = EXCLUDED.variant,
		updated_at = EXCLUDED.updated_at`

type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Store(ctx context.Context, lead models.Lead) error {
	_, err := s.db.ExecContext(ctx, upsertLeadSQL,
		lead.ID, lead.VisitorID, lead.FirstName, lead.LastName,
		strings.ToLower(lead.Email), lead.Source, lead.Variant, lead.CreatedAt,
	)
	return err
}

// ==========================
// Elasticsearch
// ==========================

type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

// IndexSink keeps one document per e-mail address.
type IndexSink struct {
	indexer Indexer
	index   string
}

func NewIndexSink(indexer Indexer, index string) *IndexSink {
	if index == "" {
		index = "decoder-leads"
	}
	return &IndexSink{indexer: indexer, index: index}
}

func (s *IndexSink) Name() string { return "elasticsearch" }

func (s *IndexSink) Store(ctx context.Context, lead models.Lead) error {
	return s.indexer.IndexDocument(ctx, s.index, strings.ToLower(lead.Email), lead)
}

// ==========================
// Zoho CRM
// ==========================

type CRMUpserter interface {
	UpsertLead(ctx context.Context, lead *zoho.Lead) (string, error)
}

type CRMSink struct {
	crm CRMUpserter
}

func NewCRMSink(crm CRMUpserter) *CRMSink {
	return &CRMSink{crm: crm}
}

func (s *CRMSink) Name() string { return "zoho" }

func (s *CRMSink) Store(ctx context.Context, lead models.Lead) error {
	// Zoho rejects leads without a last name.
	lastName := lead.LastName
	if lastName == "" {
		lastName = lead.FirstName
	}
	_, err := s.crm.UpsertLead(ctx, &zoho.Lead{
		Email:       lead.Email,
		FirstName:   lead.FirstName,
		LastName:    lastName,
		LeadSource:  "BreakFear Decoder (" + lead.Source + ")",
		Description: "Decoder variant: " + lead.Variant,
	})
	return err
}

// ==========================
// SNS
// ==========================

const EventLeadCaptured = "lead.captured"

type EventPublisher interface {
	Publish(ctx context.Context, eventType, message string) error
}

type EventSink struct {
	publisher EventPublisher
}

func NewEventSink(publisher EventPublisher) *EventSink {
	return &EventSink{publisher: publisher}
}

func (s *EventSink) Name() string { return "sns" }

func (s *EventSink) Store(ctx context.Context, lead models.Lead) error {
	body, err := json.Marshal(lead)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, EventLeadCaptured, string(body))
}
