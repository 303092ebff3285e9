package csv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/phonograph/internal/testutil"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func readAll(t *testing.T, r *Reader, limit int) ([]core.Row, error) {
	t.Helper()
	var rows []core.Row
	for row, err := range r.ReadRows(context.Background(), limit) {
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func TestReader_ReadRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
		params  Params
		limit   int
		want    []core.Row
	}{
		{
			name:    "basic",
			content: "id,name\n1,alice\n2,bob\n",
			want:    []core.Row{{"id": "1", "name": "alice"}, {"id": "2", "name": "bob"}},
		},
		{
			name:    "limit",
			content: "id\n1\n2\n3\n",
			limit:   2,
			want:    []core.Row{{"id": "1"}, {"id": "2"}},
		},
		{
			name:    "header only",
			content: "id,name\n",
		},
		{
			name:    "empty file",
			content: "",
		},
		{
			name:    "semicolon delimiter",
			content: "id;city\n1;Lyon\n",
			params:  Params{Delimiter: ";"},
			want:    []core.Row{{"id": "1", "city": "Lyon"}},
		},
		{
			name:    "tab delimiter",
			content: "id\tcity\n1\tOslo\n",
			params:  Params{Delimiter: "tab"},
			want:    []core.Row{{"id": "1", "city": "Oslo"}},
		},
		{
			name:    "empty cells kept by default",
			content: "id,name\n1,\n",
			want:    []core.Row{{"id": "1", "name": ""}},
		},
		{
			name:    "empty cells dropped when configured",
			content: "id,name\n1,\n",
			params:  Params{EmptyAsNull: true},
			want:    []core.Row{{"id": "1"}},
		},
		{
			name:    "ragged rows",
			content: "a,b,c\n1,2\n1,2,3,4\n",
			want:    []core.Row{{"a": "1", "b": "2"}, {"a": "1", "b": "2", "c": "3"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := tt.params
			params.Path = writeFile(t, tt.content)
			r, err := New(params, testutil.NewTestLogger(t))
			require.NoError(t, err)
			require.NoError(t, r.Connect(context.Background()))
			defer func() { _ = r.Disconnect() }()

			got, err := readAll(t, r, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReader_ReadRowsTwice(t *testing.T) {
	r, err := New(Params{Path: writeFile(t, "id\n1\n2\n")}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))
	defer func() { _ = r.Disconnect() }()

	first, err := readAll(t, r, 0)
	require.NoError(t, err)
	second, err := readAll(t, r, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReader_NotConnected(t *testing.T) {
	r, err := New(Params{Path: "unused.csv"}, nil)
	require.NoError(t, err)

	_, err = readAll(t, r, 0)
	assert.ErrorIs(t, err, core.ErrNotConnected)

	_, err = r.Schema(context.Background())
	assert.ErrorIs(t, err, core.ErrNotConnected)

	assert.NoError(t, r.Disconnect())
}

func TestReader_ConnectMissingFile(t *testing.T) {
	r, err := New(Params{Path: filepath.Join(t.TempDir(), "missing.csv")}, nil)
	require.NoError(t, err)

	err = r.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSV file not found")
}

func TestReader_Schema(t *testing.T) {
	r, err := New(Params{Path: writeFile(t, "id,name,age\n1,a,3\n")}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))
	defer func() { _ = r.Disconnect() }()

	schema, err := r.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Schema{"id": "string", "name": "string", "age": "string"}, schema)
}

func TestReader_SchemaDuringIteration(t *testing.T) {
	wide := strings.Repeat("x", 5000)
	r, err := New(Params{Path: writeFile(t, "id,note\n1,"+wide+"\n2,b\n3,c\n")}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))
	defer func() { _ = r.Disconnect() }()

	var ids []string
	for row, err := range r.ReadRows(context.Background(), 0) {
		require.NoError(t, err)
		if len(ids) == 0 {
			schema, err := r.Schema(context.Background())
			require.NoError(t, err)
			assert.Equal(t, core.Schema{"id": "string", "note": "string"}, schema)
		}
		ids = append(ids, row["id"].(string))
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestReader_CancelledContext(t *testing.T) {
	r, err := New(Params{Path: writeFile(t, "id\n1\n")}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))
	defer func() { _ = r.Disconnect() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range r.ReadRows(ctx, 0) {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Params{}, nil)
	assert.ErrorContains(t, err, "path is required")

	_, err = New(Params{Path: "x.csv", Delimiter: ";;"}, nil)
	assert.ErrorContains(t, err, "single character")
}

func TestSelfRegistration(t *testing.T) {
	assert.True(t, source.IsRegistered("csv"))

	r, err := source.Open(core.SourceTypeFile, core.SourceConfig{"path": "people.csv", "delimiter": "|"}, nil)
	require.NoError(t, err)
	require.IsType(t, &Reader{}, r)
	assert.Equal(t, '|', r.(*Reader).comma)
}
