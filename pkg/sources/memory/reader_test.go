package memory

import (
	"context"
	"testing"

	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader(t *testing.T) {
	ctx := context.Background()
	r := New([]core.Row{{"id": 1}, {"id": 2, "name": "b"}, {"id": 3}}, nil)

	for _, err := range r.ReadRows(ctx, 0) {
		assert.ErrorIs(t, err, core.ErrNotConnected)
	}

	require.NoError(t, r.Connect(ctx))

	var got []core.Row
	for row, err := range r.ReadRows(ctx, 2) {
		require.NoError(t, err)
		got = append(got, row)
	}
	assert.Equal(t, []core.Row{{"id": 1}, {"id": 2, "name": "b"}}, got)

	schema, err := r.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, schema.Fields())

	require.NoError(t, r.Disconnect())
	_, err = r.Schema(ctx)
	assert.ErrorIs(t, err, core.ErrNotConnected)
}

func TestReader_RowsAreCopies(t *testing.T) {
	ctx := context.Background()
	r := New([]core.Row{{"id": 1}}, core.Schema{"id": "integer"})
	require.NoError(t, r.Connect(ctx))

	for row, err := range r.ReadRows(ctx, 0) {
		require.NoError(t, err)
		row["id"] = 99
	}
	for row, err := range r.ReadRows(ctx, 0) {
		require.NoError(t, err)
		assert.Equal(t, 1, row["id"])
	}
}

func TestFactory(t *testing.T) {
	r, err := source.Open(core.SourceTypeDatabase, core.SourceConfig{
		"driver": "memory",
		"rows": []any{
			map[string]any{"id": "1"},
			map[string]any{"id": "2"},
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))

	n := 0
	for _, err := range r.ReadRows(context.Background(), 0) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 2, n)

	_, err = Factory(core.SourceConfig{}, nil)
	assert.ErrorContains(t, err, "rows is required")
}
