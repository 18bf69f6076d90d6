package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textile/backend/internal/interfaces/http/dto"
)

// echoLength answers with the number of body bytes it managed to read, or
// 413 when the reader hit the cap.
func echoLength(c *gin.Context) {
	n, err := io.Copy(io.Discard, c.Request.Body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.String(http.StatusRequestEntityTooLarge, "capped at %d", tooLarge.Limit)
		return
	}
	c.String(http.StatusOK, "%d", n)
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	invoice := `{"customer_id":"C","issued_on":"2024-03-10"}`

	tests := []struct {
		name     string
		limit    int64
		body     string
		chunked  bool
		wantCode int
		wantBody string
	}{
		{name: "invoice request within limit", limit: 1024, body: invoice, wantCode: http.StatusOK, wantBody: "44"},
		{name: "declared length over limit", limit: 16, body: invoice, wantCode: http.StatusRequestEntityTooLarge},
		{name: "chunked body capped on read", limit: 16, body: invoice, chunked: true, wantCode: http.StatusRequestEntityTooLarge, wantBody: "capped at 16"},
		{name: "zero disables the limit", limit: 0, body: strings.Repeat("x", 4096), wantCode: http.StatusOK, wantBody: "4096"},
		{name: "empty body", limit: 8, wantCode: http.StatusOK, wantBody: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestID(), BodyLimit(tt.limit))
			r.POST("/api/v1/workflows/sales/invoices", echoLength)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/sales/invoices", strings.NewReader(tt.body))
			if tt.chunked {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestBodyLimit_ErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestID(), BodyLimit(10))
	r.POST("/api/v1/imports", echoLength)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader(strings.Repeat("row,", 20)))
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, resp.Error.Code)
	assert.Equal(t, "req-42", resp.Error.RequestID)
}
