package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/freelance-market/internal/types"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/market?sslmode=disable", "pgx5://u:p@localhost:5432/market?sslmode=disable"},
		{"postgresql://localhost/market", "pgx5://localhost/market"},
		{"pgx5://localhost/market", "pgx5://localhost/market"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}

func TestStatusArgs(t *testing.T) {
	got := statusArgs(types.JobSources(types.JobOpCancel))
	assert.Equal(t, []string{"open", "closed"}, got)
	assert.Empty(t, statusArgs[types.PaymentStatus](nil))
}

func TestStampColumn(t *testing.T) {
	assert.Equal(t, "accepted_at", stampColumn(string(types.ProposalAccepted)))
	assert.Equal(t, "escrowed_at", stampColumn(string(types.PaymentEscrow)))
	assert.Equal(t, "disputed_at", stampColumn(string(types.PaymentDisputed)))
	assert.Equal(t, "", stampColumn(string(types.ProposalPending)))
}

func TestLimitArg(t *testing.T) {
	assert.Nil(t, limitArg(0))
	assert.Nil(t, limitArg(-3))
	require.NotNil(t, limitArg(25))
	assert.Equal(t, 25, *limitArg(25))
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "migrations/0001_marketplace.up.sql")
	assert.Contains(t, names, "migrations/0001_marketplace.down.sql")
}
