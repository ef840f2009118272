package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meedprogram/meedkit/pkg/binder"
	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/ledger"
)

type renewRequest struct {
	ID      int64          `json:"-" path:"id"`
	Plan    catalog.Tier   `json:"plan"`
	Period  catalog.Period `json:"period"`
	Payment catalog.Money  `json:"payment"`
}

func jsonRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	return r
}

func TestJSON(t *testing.T) {
	t.Parallel()

	t.Run("decodes tiers by name", func(t *testing.T) {
		t.Parallel()
		var req renewRequest
		err := binder.JSON()(jsonRequest(`{"plan":"pro","period":"yearly","payment":{"amount":1000,"currency":"ETH"}}`), &req)
		require.NoError(t, err)
		assert.Equal(t, catalog.Pro, req.Plan)
		assert.Equal(t, catalog.Yearly, req.Period)
		assert.Equal(t, catalog.Eth(1000), req.Payment)
	})

	t.Run("empty body is skipped", func(t *testing.T) {
		t.Parallel()
		var req renewRequest
		err := binder.JSON()(httptest.NewRequest(http.MethodPost, "/", nil), &req)
		require.NoError(t, err)
		assert.Zero(t, req)
	})

	tests := map[string]struct {
		body        string
		contentType string
		want        error
	}{
		"unknown field":  {`{"plan":"pro","extra":1}`, "application/json", binder.ErrFailedToParseJSON},
		"unknown tier":   {`{"plan":"platinum"}`, "application/json", binder.ErrFailedToParseJSON},
		"trailing data":  {`{"plan":"pro"}{}`, "application/json", binder.ErrFailedToParseJSON},
		"wrong media":    {`plan=pro`, "application/x-www-form-urlencoded", binder.ErrUnsupportedMediaType},
		"missing header": {`{}`, "", binder.ErrMissingContentType},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			var req renewRequest
			assert.ErrorIs(t, binder.JSON()(r, &req), tt.want)
		})
	}
}

func TestPath(t *testing.T) {
	t.Parallel()

	type addressRequest struct {
		Address ledger.Address `path:"address"`
		Plan    catalog.Tier   `path:"plan"`
	}

	var got addressRequest
	var bindErr error
	r := chi.NewRouter()
	r.Get("/subscribers/{address}/{plan}", func(_ http.ResponseWriter, r *http.Request) {
		bindErr = binder.Path(chi.URLParam)(r, &got)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/subscribers/0xABC/enterprise", nil))

	require.NoError(t, bindErr)
	assert.Equal(t, ledger.Address("0xabc"), got.Address)
	assert.Equal(t, catalog.Enterprise, got.Plan)

	var renew renewRequest
	r.Post("/subscriptions/{id}", func(_ http.ResponseWriter, r *http.Request) {
		bindErr = binder.Path(chi.URLParam)(r, &renew)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/subscriptions/nope", nil))
	assert.ErrorIs(t, bindErr, binder.ErrFailedToParsePath)
}

func TestQuery(t *testing.T) {
	t.Parallel()

	type quoteRequest struct {
		Plan   *catalog.Tier  `query:"plan"`
		Period catalog.Period `query:"period"`
		Limit  uint           `query:"limit"`
		Debug  bool           `query:"debug"`
		Skip   string         `query:"-"`
	}

	var req quoteRequest
	r := httptest.NewRequest(http.MethodGet, "/?plan=2&period=monthly&limit=5&debug=true&Skip=x", nil)
	require.NoError(t, binder.Query()(r, &req))
	require.NotNil(t, req.Plan)
	assert.Equal(t, catalog.Pro, *req.Plan)
	assert.Equal(t, catalog.Monthly, req.Period)
	assert.Equal(t, uint(5), req.Limit)
	assert.True(t, req.Debug)
	assert.Empty(t, req.Skip)

	r = httptest.NewRequest(http.MethodGet, "/?limit=-1", nil)
	assert.ErrorIs(t, binder.Query()(r, &req), binder.ErrFailedToParseQuery)

	assert.ErrorIs(t, binder.Query()(r, req), binder.ErrFailedToParseQuery)
}
