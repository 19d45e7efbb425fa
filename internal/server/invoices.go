package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invoicingdomain "github.com/smallbiznis/firmbill/internal/invoicing/domain"
)

type closeBillingPeriodRequest struct {
	PeriodID string `json:"period_id"`
}

func (s *Server) CloseBillingPeriod(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	var req closeBillingPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	invoice, err := s.invoiceSvc.CloseBillingPeriod(c.Request.Context(), invoicingdomain.CloseBillingPeriodRequest{
		FirmID:   firmID,
		PeriodID: req.PeriodID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invoice)
}

func (s *Server) GetInvoice(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}
	invoiceID, ok := parseIDParam(c, "invoiceId")
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.Get(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if invoice.FirmID != firmID {
		AbortWithError(c, invoicingdomain.ErrInvoiceNotFound)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}
	invoiceID, ok := parseIDParam(c, "invoiceId")
	if !ok {
		return
	}

	existing, err := s.invoiceSvc.Get(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if existing.FirmID != firmID {
		AbortWithError(c, invoicingdomain.ErrInvoiceNotFound)
		return
	}

	invoice, err := s.invoiceSvc.MarkInvoicePaid(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}
