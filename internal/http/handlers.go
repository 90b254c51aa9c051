package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/refundmatch/internal/feedback"
	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// PrecedentRequest is the request body for POST /api/v1/precedent.
type PrecedentRequest struct {
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
}

// PrecedentResponse carries the precedent and its derived views.
type PrecedentResponse struct {
	Precedent *precedent.Precedent   `json:"precedent"`
	Strength  precedent.Strength     `json:"strength"`
	Summary   string                 `json:"summary"`
	Report    precedent.ReportFields `json:"report"`
}

// VendorMatchRequest is the request body for POST /api/v1/match/vendor.
// Zero MinOverlap uses the server default.
type VendorMatchRequest struct {
	Vendor     string `json:"vendor"`
	MinOverlap int    `json:"min_overlap,omitempty"`
}

// VendorMatchResponse has a nil match and context when nothing matched.
type VendorMatchResponse struct {
	Match   *matcher.VendorMatch `json:"match"`
	Context *string              `json:"context"`
}

// PatternMatchRequest is the request body for POST /api/v1/match/pattern.
type PatternMatchRequest struct {
	Description string `json:"description"`
	MinOverlap  int    `json:"min_overlap,omitempty"`
}

// PatternMatchResponse has a nil match and context when nothing matched.
type PatternMatchResponse struct {
	Match          *matcher.PatternMatch `json:"match"`
	Context        *string               `json:"context"`
	SuggestedBasis string                `json:"suggested_basis,omitempty"`
}

// HighConfidenceResponse lists patterns above the thresholds.
type HighConfidenceResponse struct {
	MinSuccessRate float64                 `json:"min_success_rate"`
	MinSamples     int                     `json:"min_samples"`
	Patterns       []history.PatternRecord `json:"patterns"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handlePrecedent(c echo.Context) error {
	var req PrecedentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Vendor) == "" && strings.TrimSpace(req.Description) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "vendor or description is required")
	}

	p := s.services.Precedent.Build(c.Request().Context(), req.Vendor, req.Description)
	return c.JSON(http.StatusOK, PrecedentResponse{
		Precedent: p,
		Strength:  p.Strength(),
		Summary:   p.Summary(),
		Report:    p.ReportFields(),
	})
}

func (s *Server) handleMatchVendor(c echo.Context) error {
	var req VendorMatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Vendor) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "vendor field is required")
	}
	if req.MinOverlap < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "min_overlap cannot be negative")
	}
	minOverlap := req.MinOverlap
	if minOverlap == 0 {
		minOverlap = s.config.VendorMinOverlap
	}

	m := s.services.Vendors.Match(c.Request().Context(), req.Vendor, minOverlap)
	return c.JSON(http.StatusOK, VendorMatchResponse{Match: m, Context: matcher.VendorContext(m)})
}

func (s *Server) handleMatchPattern(c echo.Context) error {
	var req PatternMatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Description) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "description field is required")
	}
	if req.MinOverlap < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "min_overlap cannot be negative")
	}
	minOverlap := req.MinOverlap
	if minOverlap == 0 {
		minOverlap = s.config.PatternMinOverlap
	}

	ctx := c.Request().Context()
	m := s.services.Patterns.Match(ctx, req.Description, minOverlap)
	resp := PatternMatchResponse{Match: m, Context: matcher.PatternContext(m)}
	if basis, ok := s.services.Patterns.SuggestRefundBasis(ctx, req.Description); ok {
		resp.SuggestedBasis = basis
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHighConfidence(c echo.Context) error {
	rate := s.config.HighConfidenceRate
	if raw := c.QueryParam("min_rate"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "min_rate must be a number between 0 and 1")
		}
		rate = v
	}
	samples := s.config.HighConfidenceSamples
	if raw := c.QueryParam("min_samples"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "min_samples must be a non-negative integer")
		}
		samples = v
	}

	ctx := c.Request().Context()
	patterns, err := s.services.Patterns.HighConfidencePatterns(ctx, rate, samples)
	if err != nil {
		s.logger.Error(ctx, "listing high-confidence patterns", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "pattern history unavailable")
	}
	if patterns == nil {
		patterns = []history.PatternRecord{}
	}
	return c.JSON(http.StatusOK, HighConfidenceResponse{
		MinSuccessRate: rate,
		MinSamples:     samples,
		Patterns:       patterns,
	})
}

func (s *Server) handleCorrection(c echo.Context) error {
	var req feedback.Correction
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	out, err := s.services.Learner.Apply(ctx, req)
	switch {
	case errors.Is(err, feedback.ErrInvalidCorrection):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error(ctx, "applying correction", zap.String("vendor", req.Vendor), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to apply correction")
	}
	return c.JSON(http.StatusOK, out)
}
