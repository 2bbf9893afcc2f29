//go:build integration

package leads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakfear-decoder/internal/common/database/pgtest"
	"breakfear-decoder/internal/models"
)

func TestPostgresSink_UpsertsByEmail(t *testing.T) {
	ctx := context.Background()
	db := pgtest.Start(t).DB
	sink := NewPostgresSink(db)

	first := models.Lead{
		ID: "lead-1", VisitorID: "visitor-1", FirstName: "Ada", Email: "Ada@Example.com",
		Source: "web", Variant: "portal", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, sink.Store(ctx, first))

	second := first
	second.ID = "lead-2"
	second.LastName = "Lovelace"
	second.Variant = "breakthrough"
	require.NoError(t, sink.Store(ctx, second))

	var (
		count             int
		id, last, variant string
	)
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&count))
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT id, last_name, variant FROM leads WHERE email = $1`, "ada@example.com").Scan(&id, &last, &variant))

	assert.Equal(t, 1, count)
	assert.Equal(t, "lead-1", id)
	assert.Equal(t, "Lovelace", last)
	assert.Equal(t, "breakthrough", variant)
}
