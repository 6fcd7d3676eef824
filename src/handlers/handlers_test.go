package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/taxfolio/portfolio/src/database"
	"github.com/username/taxfolio/portfolio/src/processors"
	"github.com/username/taxfolio/portfolio/src/security"
	"github.com/username/taxfolio/portfolio/src/services"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

const transactionsBody = `[
  {"date":"2024-01-02","transaction_type":"CASH","transaction_subtype":"DEPOSIT","amount":1000,"currency":"EUR"},
  {"date":"2024-01-03","isin":"US0378331005","product_name":"Apple","transaction_type":"STOCK","buy_sell":"BUY","quantity":4,"price":100,"currency":"EUR","order_id":"a1"}
]`

type testServer struct {
	router http.Handler
	token  string
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := services.NewPortfolioService(
		db,
		processors.NewTransactionProcessor(nil),
		processors.NewStockProcessor(),
		processors.NewOptionProcessor(),
		processors.NewDividendProcessor(),
		processors.NewFeeProcessor(),
		processors.NewCashFlowProcessor(),
		nil,
		cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval),
		services.PortfolioServiceConfig{ReturnOptions: processors.DefaultReturnOptions()},
	)

	auth := security.NewAuthService(testSecret)
	token, err := auth.GenerateToken(42, time.Hour)
	require.NoError(t, err)

	return &testServer{router: NewRouter(cfg, auth, svc), token: token}
}

func (s *testServer) do(method, path, body, contentType string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	other, err := security.NewAuthService("another-secret-that-is-32-bytes-long!!").GenerateToken(42, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImportTransactions(t *testing.T) {
	srv := newTestServer(t, RouterConfig{MaxImportSizeBytes: 1 << 20})

	rec := srv.do(http.MethodPost, "/api/transactions", transactionsBody, "text/csv")
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = srv.do(http.MethodPost, "/api/transactions", "{not json", "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/api/transactions", `[{"date":"nope","transaction_type":"CASH"}]`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/api/transactions", transactionsBody, "application/json; charset=utf-8")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result services.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Inserted)

	rec = srv.do(http.MethodPost, "/api/transactions", transactionsBody, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 2, result.Duplicates)

	rec = srv.do(http.MethodGet, "/api/transactions", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stored []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Len(t, stored, 2)
}

func TestImportTransactions_TooLarge(t *testing.T) {
	srv := newTestServer(t, RouterConfig{MaxImportSizeBytes: 16})
	rec := srv.do(http.MethodPost, "/api/transactions", transactionsBody, "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHoldingsEndpoints(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	rec := srv.do(http.MethodGet, "/api/portfolio/holdings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/api/portfolio/holdings/export", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(http.MethodPost, "/api/transactions", transactionsBody, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(http.MethodGet, "/api/portfolio/holdings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 2)

	rec = srv.do(http.MethodGet, "/api/portfolio/holdings", "", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = srv.do(http.MethodGet, "/api/portfolio/holdings?as_of=2024-01-02", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/api/portfolio/holdings?as_of=yesterday-ish", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/api/portfolio/holdings?as_of=2999-01-01", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/api/portfolio/holdings/export", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "holdings_")
	assert.NotZero(t, rec.Body.Len())

	rec = srv.do(http.MethodGet, "/api/portfolio/lots", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lots []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lots))
	require.Len(t, lots, 1)
	assert.Equal(t, processors.PriceStatusUnavailable, lots[0]["price_status"])
}

func TestDashboardEndpoints(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})
	for _, path := range []string{
		"/api/portfolio/metrics",
		"/api/portfolio/returns",
		"/api/stock-sales",
		"/api/option-sales",
		"/api/option-holdings",
		"/api/dividend-tax-summary",
		"/api/fees",
	} {
		t.Run(path, func(t *testing.T) {
			rec := srv.do(http.MethodGet, path, "", "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.NotEqual(t, "null\n", rec.Body.String())
		})
	}
}

func TestSnapshotsAndDelete(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	rec := srv.do(http.MethodPost, "/api/snapshots",
		`[{"date":"2024-05-01","portfolio_value":100,"cumulative_cash_flow":100},{"date":"2024-05-02","portfolio_value":105,"cumulative_cash_flow":100}]`,
		"application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodGet, "/api/portfolio/returns", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		DailyChange *float64 `json:"daily_change"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.NotNil(t, summary.DailyChange)
	assert.InDelta(t, 5.0, *summary.DailyChange, 1e-9)

	rec = srv.do(http.MethodDelete, "/api/transactions/all", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(http.MethodGet, "/api/portfolio/returns", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Nil(t, summary.DailyChange)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, RouterConfig{RateLimitPerSecond: 0.001, RateLimitBurst: 1})

	first := httptest.NewRecorder()
	srv.router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	srv.router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func multipartStatement(t *testing.T, source, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if source != "" {
		require.NoError(t, mw.WriteField("source", source))
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="statement"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUploadStatement(t *testing.T) {
	srv := newTestServer(t, RouterConfig{MaxImportSizeBytes: 1 << 20})
	statement := "Data,Hora,Data Valor,Produto,ISIN,Descrição,Taxa,Variação,,Saldo,,ID da Ordem\n" +
		"02-01-2024,09:00,02-01-2024,,,Depósito,,EUR,\"500,00\",EUR,\"500,00\",\n" +
		"03-01-2024,10:00,03-01-2024,ACME,NL0000000001,Compra 4 Acme@50 EUR,,EUR,\"-200,00\",EUR,\"300,00\",o-1\n"

	tests := []struct {
		name        string
		source      string
		contentType string
		content     string
		wantStatus  int
	}{
		{"missing source", "", "text/csv", statement, http.StatusBadRequest},
		{"unknown source", "robinhood", "text/csv", statement, http.StatusBadRequest},
		{"disallowed type", "degiro", "image/png", statement, http.StatusBadRequest},
		{"binary content", "degiro", "text/csv", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", http.StatusBadRequest},
		{"valid degiro", "degiro", "text/csv", statement, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartStatement(t, tt.source, tt.contentType, tt.content)
			rec := srv.do(http.MethodPost, "/api/transactions/upload", body.String(), contentType)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}

	rec := srv.do(http.MethodGet, "/api/transactions", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stored []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	require.Len(t, stored, 2)
	assert.Equal(t, "degiro", stored[0]["source"])
}
