package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/refundmatch/internal/feedback"
	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/logging"
	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type testEnv struct {
	server *Server
	store  *history.MemoryStore
	logger *logging.TestLogger
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := history.NewMemoryStore()
	require.NoError(t, store.UpsertVendor(ctx, history.VendorRecord{
		VendorName:          "ATC TOWER SERVICES LLC",
		VendorKeywords:      []string{"ATC", "SERVICES", "TOWER"},
		DescriptionKeywords: []string{"construction", "tower"},
		SampleCount:         42,
		SuccessRate:         0.9,
		TypicalBasis:        "Out-of-State Services",
	}))
	for _, p := range []history.PatternRecord{
		{ID: "pat-tower", Keywords: []string{"construction", "tower", "wireless"}, SampleCount: 15234, SuccessRate: 0.92, TypicalBasis: "Out-of-State Services"},
		{ID: "pat-chairs", Keywords: []string{"chairs", "office"}, SampleCount: 300, SuccessRate: 0.05},
		{ID: "pat-fiber", Keywords: []string{"fiber", "optic"}, SampleCount: 4, SuccessRate: 0.99},
	} {
		require.NoError(t, store.UpsertPattern(ctx, p))
	}

	logger := logging.NewTestLogger()
	vm := matcher.NewVendorMatcher(store, logger.Underlying())
	pm := matcher.NewPatternMatcher(store, logger.Underlying())
	server, err := NewServer(Services{
		Vendors:   vm,
		Patterns:  pm,
		Precedent: precedent.NewBuilder(vm, pm),
		Learner:   feedback.NewLearner(store, logger.Underlying()),
	}, logger.Logger, nil)
	require.NoError(t, err)
	return &testEnv{server: server, store: store, logger: logger}
}

func (e *testEnv) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer(t *testing.T) {
	store := history.NewMemoryStore()
	vm := matcher.NewVendorMatcher(store, nil)
	pm := matcher.NewPatternMatcher(store, nil)
	services := Services{Vendors: vm, Patterns: pm, Precedent: precedent.NewBuilder(vm, pm)}

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(services, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9191, server.config.Port)
		assert.Equal(t, matcher.DefaultPatternMinOverlap, server.config.PatternMinOverlap)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(services, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when a matcher is missing", func(t *testing.T) {
		_, err := NewServer(Services{Vendors: vm}, logging.NewNop(), nil)
		assert.Error(t, err)
	})

	t.Run("corrections route absent without learner", func(t *testing.T) {
		server, err := NewServer(services, logging.NewNop(), nil)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/corrections", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestRequestLogging(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/health", nil)

	env.logger.AssertField(t, "http request", "request.id", rec.Header().Get(echo.HeaderXRequestID))
	env.logger.AssertField(t, "http request", "status", int64(http.StatusOK))
}

func TestHandlePrecedent(t *testing.T) {
	env := setupTestServer(t)

	t.Run("strong precedent", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/precedent", PrecedentRequest{
			Vendor:      "ATC Tower Services LLC",
			Description: "wireless tower construction",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[PrecedentResponse](t, rec)
		require.NotNil(t, resp.Precedent.VendorMatch)
		assert.Equal(t, matcher.MatchExact, resp.Precedent.VendorMatch.Type)
		require.NotNil(t, resp.Precedent.PatternMatch)
		assert.Equal(t, "pat-tower", resp.Precedent.PatternMatch.Record.ID)
		assert.Equal(t, precedent.StrengthStrong, resp.Strength)
		assert.Equal(t, "exact", resp.Report.VendorMatchType)
		assert.Equal(t, "92%", resp.Report.PatternSuccessRate)
		assert.Contains(t, resp.Summary, "15,234 cases")
	})

	t.Run("novel", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/precedent", PrecedentRequest{Vendor: "Boeing", Description: "jet fuel"})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[PrecedentResponse](t, rec)
		assert.Nil(t, resp.Precedent.VendorMatch)
		assert.Nil(t, resp.Precedent.PatternMatch)
		assert.Equal(t, precedent.NoHistoryMessage, resp.Summary)
		assert.Equal(t, precedent.StrengthNone, resp.Strength)
	})

	t.Run("rejects empty request", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/precedent", PrecedentRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/precedent", "invalid json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleMatchVendor(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/match/vendor", VendorMatchRequest{Vendor: "American Tower Company"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[VendorMatchResponse](t, rec)
	require.NotNil(t, resp.Match)
	assert.Equal(t, matcher.MatchFuzzy, resp.Match.Type)
	assert.Equal(t, []string{"TOWER"}, resp.Match.OverlapKeywords)
	require.NotNil(t, resp.Context)
	assert.Contains(t, *resp.Context, "(Matched on keywords: TOWER)")

	// Raising the threshold leaves only an exact match possible.
	rec = env.do(t, http.MethodPost, "/api/v1/match/vendor", VendorMatchRequest{Vendor: "American Tower Company", MinOverlap: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[VendorMatchResponse](t, rec)
	assert.Nil(t, resp.Match)
	assert.Nil(t, resp.Context)

	rec = env.do(t, http.MethodPost, "/api/v1/match/vendor", VendorMatchRequest{Vendor: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/match/vendor", VendorMatchRequest{Vendor: "x", MinOverlap: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMatchPattern(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/match/pattern", PatternMatchRequest{Description: "Tower construction services"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[PatternMatchResponse](t, rec)
	require.NotNil(t, resp.Match)
	assert.Equal(t, []string{"construction", "tower"}, resp.Match.OverlapKeywords)
	assert.Equal(t, "Out-of-State Services", resp.SuggestedBasis)

	rec = env.do(t, http.MethodPost, "/api/v1/match/pattern", PatternMatchRequest{Description: "tower"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[PatternMatchResponse](t, rec)
	assert.Nil(t, resp.Match)
	assert.Empty(t, resp.SuggestedBasis)

	rec = env.do(t, http.MethodPost, "/api/v1/match/pattern", PatternMatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHighConfidence(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/patterns/high-confidence", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HighConfidenceResponse](t, rec)
	require.Len(t, resp.Patterns, 1)
	assert.Equal(t, "pat-tower", resp.Patterns[0].ID)
	assert.Equal(t, matcher.DefaultHighConfidenceSamples, resp.MinSamples)

	rec = env.do(t, http.MethodGet, "/api/v1/patterns/high-confidence?min_rate=0.9&min_samples=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[HighConfidenceResponse](t, rec)
	require.Len(t, resp.Patterns, 2)
	assert.Equal(t, "pat-fiber", resp.Patterns[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/patterns/high-confidence?min_rate=2", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/patterns/high-confidence?min_samples=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, env.store.Close())
	rec = env.do(t, http.MethodGet, "/api/v1/patterns/high-confidence", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env.logger.AssertLogged(t, zapcore.ErrorLevel, "listing high-confidence patterns")
}

func TestHandleCorrection(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/corrections", feedback.Correction{
		Vendor:      "ATC Tower Services LLC",
		Description: "wireless tower construction",
		Approved:    true,
		RefundBasis: "Out-of-State Services",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[feedback.Outcome](t, rec)
	assert.Equal(t, 43, out.Vendor.SampleCount)
	require.NotNil(t, out.Pattern)
	assert.Equal(t, "pat-tower", out.Pattern.ID)
	assert.Equal(t, 15235, out.Pattern.SampleCount)

	stored, err := env.store.VendorByName(context.Background(), "ATC TOWER SERVICES LLC")
	require.NoError(t, err)
	assert.Equal(t, 43, stored.SampleCount)

	rec = env.do(t, http.MethodPost, "/api/v1/corrections", feedback.Correction{Vendor: "Boeing", Approved: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, env.store.Close())
	rec = env.do(t, http.MethodPost, "/api/v1/corrections", feedback.Correction{Vendor: "Boeing"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/api/v1/match/vendor", VendorMatchRequest{Vendor: "ATC Tower Services LLC"})

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "refundmatch_matcher_matches_total")
}
