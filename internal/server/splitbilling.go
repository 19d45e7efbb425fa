package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	splitdomain "github.com/smallbiznis/firmbill/internal/splitbilling/domain"
)

func (s *Server) GetSplitConfig(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	cfg, err := s.splitSvc.GetConfig(c.Request.Context(), firmID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

type updateSplitConfigRequest struct {
	BasePlanFirmPays   bool `json:"base_plan_firm_pays"`
	StaffAddonFirmPays bool `json:"staff_addons_firm_pays"`
	SharedSplitPercent int  `json:"shared_resources_split_percentage"`
}

func (s *Server) UpdateSplitConfig(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	var req updateSplitConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	cfg, err := s.splitSvc.UpdateConfig(c.Request.Context(), splitdomain.UpdateConfigRequest{
		FirmID:             firmID,
		BasePlanFirmPays:   req.BasePlanFirmPays,
		StaffAddonFirmPays: req.StaffAddonFirmPays,
		SharedSplitPercent: req.SharedSplitPercent,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

type allocateRequest struct {
	Category    string `json:"category"`
	TotalAmount int64  `json:"total_amount"`
}

func (s *Server) Allocate(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	allocation, err := s.splitSvc.Allocate(c.Request.Context(), firmID,
		splitdomain.CostCategory(strings.TrimSpace(req.Category)), req.TotalAmount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, allocation)
}
