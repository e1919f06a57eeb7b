package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/hedge?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "hedge", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	assert.Equal(t, "postgres://u:p@db:6543/hedge?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, Database: "hedge", User: "u", Password: "p", SSLMode: "require"}))
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
}

func TestOrderIDs(t *testing.T) {
	rec := domain.ExecutionRecord{}
	rec.SetLegs([]domain.LegResult{
		{OrderID: "a", Success: true},
		{Error: "not attempted"},
	})
	assert.Equal(t, []string{"a"}, orderIDs(rec))

	assert.Equal(t, []string{}, orderIDs(domain.ExecutionRecord{}))
}
