package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/phonograph/internal/testutil"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const censusBody = `[["NAME","B01001_001E","state"],["Alabama","5024279","01"],["Alaska","733391","02"],["Arizona",null,"04"]]`

func serve(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readAll(t *testing.T, r core.SourceReader, limit int) ([]core.Row, error) {
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

func TestReader_Table(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, http.StatusOK, censusBody, &hits)

	r, err := New(Params{URL: srv.URL}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))
	defer func() { _ = r.Disconnect() }()

	rows, err := readAll(t, r, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, core.Row{"NAME": "Alabama", "B01001_001E": "5024279", "state": "01"}, rows[0])
	assert.Nil(t, rows[2]["B01001_001E"])

	limited, err := readAll(t, r, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	schema, err := r.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B01001_001E", "NAME", "state"}, schema.Fields())

	assert.Equal(t, int32(1), hits.Load(), "response is fetched once per connection")
}

func TestReader_Records(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"data": {"items": [{"id": 1, "score": 2.5, "tag": null}, {"id": 2, "tag": "x"}]}}`, nil)

	r, err := New(Params{URL: srv.URL, Format: FormatRecords, RecordsPath: "data.items"}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))

	rows, err := readAll(t, r, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, 2.5, rows[0]["score"])

	schema, err := r.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Schema{"id": "integer", "score": "number", "tag": "string"}, schema)
}

func TestReader_APIKeyAndParams(t *testing.T) {
	t.Setenv("PHONOGRAPH_TEST_CENSUS_KEY", "abc123")

	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query())
		_, _ = w.Write([]byte(`[["NAME"]]`))
	}))
	defer srv.Close()

	r, err := Factory(core.SourceConfig{
		"url":         srv.URL + "/data/2021/acs/acs5",
		"params":      map[string]any{"get": "NAME,B01001_001E", "for": "state:*"},
		"api_key_env": "PHONOGRAPH_TEST_CENSUS_KEY",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))

	rows, err := readAll(t, r, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	q := got.Load().(url.Values)
	assert.Equal(t, []string{"abc123"}, q["key"])
	assert.Equal(t, []string{"state:*"}, q["for"])
}

func TestReader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		params Params
		errMsg string
	}{
		{
			name:   "http error",
			status: http.StatusNotFound,
			body:   "unknown variable",
			errMsg: "404",
		},
		{
			name:   "not json",
			status: http.StatusOK,
			body:   "<html>",
			errMsg: "failed to decode response",
		},
		{
			name:   "table not array",
			status: http.StatusOK,
			body:   `{"a": 1}`,
			errMsg: "must be a JSON array",
		},
		{
			name:   "records path missing",
			status: http.StatusOK,
			body:   `{"data": []}`,
			params: Params{Format: FormatRecords, RecordsPath: "results"},
			errMsg: `key "results" not found`,
		},
		{
			name:   "record not object",
			status: http.StatusOK,
			body:   `[1, 2]`,
			params: Params{Format: FormatRecords},
			errMsg: "record 0 is not an object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.status, tt.body, nil)
			params := tt.params
			params.URL = srv.URL
			params.Timeout = 5 * time.Second

			r, err := New(params, nil)
			require.NoError(t, err)
			require.NoError(t, r.Connect(context.Background()))

			_, err = readAll(t, r, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestReader_NotConnected(t *testing.T) {
	r, err := New(Params{URL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	_, err = readAll(t, r, 0)
	assert.ErrorIs(t, err, core.ErrNotConnected)
}

func TestReader_MissingAPIKey(t *testing.T) {
	r, err := New(Params{URL: "http://127.0.0.1:1", APIKeyEnv: "PHONOGRAPH_TEST_UNSET_KEY"}, nil)
	require.NoError(t, err)
	assert.ErrorContains(t, r.Connect(context.Background()), "PHONOGRAPH_TEST_UNSET_KEY is not set")
}

func TestParams_Defaults(t *testing.T) {
	p := Params{URL: "http://x"}
	require.NoError(t, p.applyDefaults())
	assert.Equal(t, FormatTable, p.Format)
	assert.Equal(t, DefaultTimeout, p.Timeout)
	assert.Equal(t, DefaultRetryMax, p.RetryMax)
	assert.Equal(t, "key", p.APIKeyParam)

	assert.ErrorContains(t, (&Params{}).applyDefaults(), "url is required")
	assert.ErrorContains(t, (&Params{URL: "http://x", Format: "xml"}).applyDefaults(), "unknown response format")
}

func TestSelfRegistration(t *testing.T) {
	assert.True(t, source.IsRegistered("api"))
}
