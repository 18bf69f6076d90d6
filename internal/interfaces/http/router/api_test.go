package router

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	importapp "github.com/textile/backend/internal/application/import"
	"github.com/textile/backend/internal/application/invoicing"
	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared/valueobject"
	"github.com/textile/backend/internal/infrastructure/auth"
	"github.com/textile/backend/internal/infrastructure/config"
	"github.com/textile/backend/internal/infrastructure/docstore"
	csvimport "github.com/textile/backend/internal/infrastructure/import"
	"github.com/textile/backend/internal/infrastructure/persistence"
	"github.com/textile/backend/internal/interfaces/http/handler"
	"github.com/textile/backend/internal/interfaces/http/middleware"
)

const apiSecret = "router-test-secret-0123456789abcdef"

type noRows struct{}

func (noRows) Classify(context.Context, string) ([]sales.ImportRow, error) { return nil, nil }

func newAPI(t *testing.T, limiter *middleware.RateLimiter) http.Handler {
	t.Helper()
	store := docstore.NewMemoryStore(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	svc := invoicing.NewService(
		invoicing.Config{Currencies: valueobject.NewCurrencyPolicy("PKR", "PKR", "USD")},
		[]*invoicing.Workflow{{
			Name:     "orders",
			Orders:   persistence.NewDocOrderRepository(store, "orders", nil),
			Invoices: persistence.NewDocInvoiceRepository(store, "invoices", "orders", nil),
			Counter:  sales.CounterInvoice,
		}},
		persistence.NewDocCustomerRepository(store, "customers"),
		persistence.NewDocCounterRepository(store, "", sales.DefaultCounterSeeds()),
		persistence.NewDocSettingsRepository(store, "settings/usdRate"),
		nil,
	)
	ingestion := importapp.NewIngestionService(csvimport.NewNormalizer(1<<20, nil), noRows{}, sales.DefaultImportDefaults(), nil, nil)

	provider := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	engine, err := NewEngine(APIConfig{
		HTTP:          config.HTTPConfig{MaxBodySize: 1 << 20, CORSAllowOrigins: []string{"https://office.example.com"}},
		MaxUploadSize: 1 << 20,
		ServiceName:   "test",
		Validator:     auth.NewJWTService(config.JWTConfig{Enabled: true, Secret: apiSecret}),
		UploadLimiter: limiter,
		Meter:         provider.Meter("test"),
		Profiling:     true,
	}, Handlers{
		Invoices: handler.NewInvoiceHandler(svc),
		Counters: handler.NewCounterHandler(svc),
		Imports:  handler.NewImportHandler(ingestion, 1<<20),
		Health:   handler.NewHealthHandler("test", svc.Workflows(), nil),
	})
	require.NoError(t, err)
	return engine
}

func token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiSecret))
	require.NoError(t, err)
	return s
}

func call(h http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewEngine_Routes(t *testing.T) {
	api := newAPI(t, nil)
	clerk := token(t, "clerk")
	admin := token(t, "boss", auth.RoleAdmin)

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		status int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"api requires a token", http.MethodGet, "/api/v1/workflows/orders/invoices", "", http.StatusUnauthorized},
		{"list invoices", http.MethodGet, "/api/v1/workflows/orders/invoices", clerk, http.StatusOK},
		{"unknown workflow", http.MethodGet, "/api/v1/workflows/nope/invoices", clerk, http.StatusNotFound},
		{"get invoice", http.MethodGet, "/api/v1/workflows/orders/invoices/10000", clerk, http.StatusNotFound},
		{"pdf without renderer", http.MethodGet, "/api/v1/workflows/orders/invoices/10000/pdf", clerk, http.StatusNotFound},
		{"relink", http.MethodPost, "/api/v1/workflows/orders/invoices/10000/relink", clerk, http.StatusNotFound},
		{"delete needs admin", http.MethodDelete, "/api/v1/workflows/orders/invoices/10000", clerk, http.StatusForbidden},
		{"admin delete", http.MethodDelete, "/api/v1/workflows/orders/invoices/10000", admin, http.StatusNotFound},
		{"reserve", http.MethodPost, "/api/v1/counters/orderNumberCounter/reserve", clerk, http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/nothing", clerk, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(api, tt.method, tt.path, tt.bearer)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestNewEngine_CORSPreflight(t *testing.T) {
	api := newAPI(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/workflows/orders/invoices", nil)
	req.Header.Set("Origin", "https://office.example.com")
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://office.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewEngine_UploadRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	defer limiter.Stop()
	api := newAPI(t, limiter)
	clerk := token(t, "clerk")

	send := func() *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "order.csv")
		require.NoError(t, err)
		_, _ = part.Write([]byte("Style\nX1"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+clerk)
		w := httptest.NewRecorder()
		api.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send().Code)
	assert.Equal(t, http.StatusTooManyRequests, send().Code)
}
