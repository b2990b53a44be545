package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/core/apperror"
	"fleetledger/pkg/logger"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func newChain() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), Trace(), Logger(logger.Nop()), ErrorHandler())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(apperror.NewNotFound("stock location", "42"))
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("connection reset"))
	})
	return r
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, errorBody) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(HeaderRequestID, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestErrorRendering(t *testing.T) {
	r := newChain()

	t.Run("app error keeps its status and details", func(t *testing.T) {
		rec, body := get(t, r, "/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, apperror.CodeNotFound, body.Code)
		assert.Equal(t, "42", body.Details["id"])
		assert.NotContains(t, body.Details, "request_id")
	})

	t.Run("plain error is hidden", func(t *testing.T) {
		rec, body := get(t, r, "/plain")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, apperror.CodeInternal, body.Code)
		assert.NotContains(t, body.Message, "connection reset")
		assert.Equal(t, "req-1", body.Details["request_id"])
	})

	t.Run("panic is rendered", func(t *testing.T) {
		rec, body := get(t, r, "/panic")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, apperror.CodeInternal, body.Code)
		assert.Equal(t, "req-1", body.Details["request_id"])
		assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
	})
}
