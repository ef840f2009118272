package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meedprogram/meedkit/pkg/requestid"
)

func serve(t *testing.T, header string) (seen, echoed string) {
	t.Helper()
	h := requestid.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestid.FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(requestid.Header, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec.Header().Get(requestid.Header)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("reuses valid id", func(t *testing.T) {
		t.Parallel()
		seen, echoed := serve(t, "req-42_a")
		assert.Equal(t, "req-42_a", seen)
		assert.Equal(t, "req-42_a", echoed)
	})

	for name, bad := range map[string]string{
		"missing":  "",
		"spaces":   "a b",
		"markup":   "<script>",
		"too long": strings.Repeat("a", 129),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			seen, echoed := serve(t, bad)
			require.NotEmpty(t, seen)
			assert.NotEqual(t, bad, seen)
			assert.Equal(t, seen, echoed)
		})
	}
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := requestid.LoggerExtractor()

	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(requestid.WithContext(context.Background(), "abc"))
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "abc", attr.Value.String())
}
