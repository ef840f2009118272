package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meedprogram/meedkit/handler"
	"github.com/meedprogram/meedkit/pkg/requestid"
)

type echoRequest struct {
	Name string
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var body handler.JSONResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("binders run in order", func(t *testing.T) {
		t.Parallel()
		first := func(_ *http.Request, v any) error {
			v.(*echoRequest).Name = "first"
			return nil
		}
		second := func(_ *http.Request, v any) error {
			v.(*echoRequest).Name += "+second"
			return nil
		}
		h := handler.Wrap(func(_ handler.Context, req echoRequest) handler.Response {
			return handler.JSON(req.Name)
		}, handler.WithBinders[handler.Context, echoRequest](first, second))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "first+second", decode(t, rec).Data)
	})

	t.Run("bind error goes to error handler", func(t *testing.T) {
		t.Parallel()
		called := false
		h := handler.Wrap(func(handler.Context, echoRequest) handler.Response {
			called = true
			return handler.JSON("unreachable")
		}, handler.WithBinders[handler.Context, echoRequest](func(*http.Request, any) error {
			return handler.ErrBadRequest
		}))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.False(t, called)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decode(t, rec).Error.Code)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		var got error
		h := handler.Wrap(func(handler.Context, echoRequest) handler.Response { return nil },
			handler.WithErrorHandler[handler.Context, echoRequest](func(ctx handler.Context, err error) {
				got = err
				ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
			}))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, got, handler.ErrNilResponse)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("decorators wrap outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[handler.Context, echoRequest] {
			return func(next handler.HandlerFunc[handler.Context, echoRequest]) handler.HandlerFunc[handler.Context, echoRequest] {
				return func(ctx handler.Context, req echoRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		h := handler.Wrap(func(handler.Context, echoRequest) handler.Response {
			order = append(order, "handler")
			return handler.JSON(nil)
		}, handler.WithDecorators(mark("outer"), mark("inner")))

		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"outer", "inner", "handler"}, order)
	})
}

func TestJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	resp := handler.JSON(map[string]int{"credits": 5},
		handler.WithJSONStatus(http.StatusCreated),
		handler.WithJSONMeta(map[string]any{"currency": "ETH"}),
	)
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"credits": float64(5)}, body.Data)
	assert.Equal(t, map[string]any{"currency": "ETH"}, body.Meta)
	assert.Nil(t, body.Error)
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	t.Run("http error keeps status and key", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		err := handler.NewHTTPError(http.StatusConflict, "already_owns_subscription")
		require.NoError(t, handler.JSONError(err).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "already_owns_subscription", decode(t, rec).Error.Code)
	})

	t.Run("plain error is hidden", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, handler.JSONError(errors.New("pq: password leaked")).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "leaked")
	})
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	errDomain := errors.New("credits: insufficient")
	mapper := func(err error) handler.HTTPError {
		if errors.Is(err, errDomain) {
			return handler.NewHTTPError(http.StatusPaymentRequired, "insufficient_credits")
		}
		return handler.ErrInternalServerError
	}

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := handler.Wrap(func(handler.Context, echoRequest) handler.Response {
		return handler.Fail(errors.Join(errors.New("deduct"), errDomain))
	}, handler.WithErrorHandler[handler.Context, echoRequest](handler.NewErrorHandler(log, mapper)))

	req := httptest.NewRequest(http.MethodPost, "/credits", nil)
	req = req.WithContext(requestid.WithContext(req.Context(), "rid-1"))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "insufficient_credits", decode(t, rec).Error.Code)
	assert.True(t, strings.Contains(buf.String(), `"level":"WARN"`))
	assert.Contains(t, buf.String(), `"request_id":"rid-1"`)
	assert.Contains(t, buf.String(), `"key":"insufficient_credits"`)
}

func TestContextValue(t *testing.T) {
	t.Parallel()

	key := handler.NewContextKey("caller")
	assert.Equal(t, "caller", key.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := handler.NewContext(httptest.NewRecorder(), req)
	_, ok := handler.ContextValueOK[string](ctx, key)
	assert.False(t, ok)

	req = req.WithContext(context.WithValue(req.Context(), key, "0xabc"))
	ctx = handler.NewContext(httptest.NewRecorder(), req)
	assert.Equal(t, "0xabc", handler.ContextValue[string](ctx, key))
	assert.Same(t, req, ctx.Request())
}
