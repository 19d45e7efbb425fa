package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/firmbill/internal/billing/domain"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
	usagedomain "github.com/smallbiznis/firmbill/internal/usage/domain"
)

type recordUsageRequest struct {
	PeriodID string `json:"period_id"`
	Category string `json:"category"`
	Delta    int64  `json:"delta"`
}

func (s *Server) RecordUsage(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	var req recordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.billingSvc.RecordUsage(c.Request.Context(), billingdomain.RecordUsageRequest{
		FirmID:   firmID,
		PeriodID: req.PeriodID,
		Category: entitlementdomain.Category(strings.TrimSpace(req.Category)),
		Delta:    req.Delta,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type correctUsageRequest struct {
	PeriodID string `json:"period_id"`
	Category string `json:"category"`
	Used     int64  `json:"used"`
}

func (s *Server) CorrectUsage(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	var req correctUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.usageSvc.Correct(c.Request.Context(), usagedomain.CorrectRequest{
		FirmID:   firmID,
		PeriodID: req.PeriodID,
		Category: entitlementdomain.Category(strings.TrimSpace(req.Category)),
		Used:     req.Used,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) UsageOverview(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	overview, err := s.billingSvc.Overview(c.Request.Context(), firmID, c.Query("period_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (s *Server) UsageAlerts(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	periodID := strings.TrimSpace(c.Query("period_id"))
	if periodID == "" {
		AbortWithError(c, usagedomain.ErrInvalidPeriod)
		return
	}

	resp, err := s.usageSvc.Classify(c.Request.Context(), firmID, periodID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
