package postgres

import (
	"context"
	"testing"

	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	t.Setenv("PHONOGRAPH_TEST_PG_PASSWORD", "from-env")

	tests := []struct {
		name     string
		params   Params
		expected string
	}{
		{
			name: "basic connection",
			params: Params{
				Host:     "localhost",
				Port:     5432,
				Database: "testdb",
				User:     "user",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=testdb sslmode=disable user=user password=pass",
		},
		{
			name: "with custom sslmode",
			params: Params{
				Host:     "prod.example.com",
				Database: "proddb",
				User:     "admin",
				SSLMode:  "require",
			},
			expected: "host=prod.example.com port=5432 dbname=proddb sslmode=require user=admin",
		},
		{
			name:     "defaults",
			params:   Params{Database: "mydb"},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable",
		},
		{
			name:     "password from env",
			params:   Params{Database: "mydb", Password: "${PHONOGRAPH_TEST_PG_PASSWORD}"},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable password=from-env",
		},
		{
			name:     "dsn wins",
			params:   Params{DSN: "postgres://u:${PHONOGRAPH_TEST_PG_PASSWORD}@db/app", Host: "ignored"},
			expected: "postgres://u:from-env@db/app",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildDSN(tt.params))
		})
	}
}

func TestFactory(t *testing.T) {
	r, err := Factory(core.SourceConfig{
		"driver":   "postgres",
		"host":     "db",
		"port":     "6543",
		"database": "census",
		"table":    "acs.households",
	}, nil)
	require.NoError(t, err)

	pg := r.(*Reader)
	assert.Equal(t, 6543, pg.params.Port)
	assert.Equal(t, "SELECT * FROM acs.households LIMIT 10", pg.SelectQuery(10))

	_, err = Factory(core.SourceConfig{"host": "db"}, nil)
	assert.ErrorContains(t, err, "either table or query")
}

func TestReader_NotConnected(t *testing.T) {
	r, err := New(Params{SQLParams: source.SQLParams{Table: "users"}}, nil)
	require.NoError(t, err)

	for _, err := range r.ReadRows(context.Background(), 0) {
		assert.ErrorIs(t, err, core.ErrNotConnected)
	}
	assert.False(t, r.IsConnected())
	assert.NoError(t, r.Disconnect())
}

func TestSelfRegistration(t *testing.T) {
	assert.True(t, source.IsRegistered("postgres"))
}
