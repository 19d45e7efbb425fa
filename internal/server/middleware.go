package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/firmbill/internal/firmcontext"
	"go.uber.org/zap"
)

// HeaderFirm carries the authenticated firm (tenant) for every API call.
// Authentication itself happens upstream.
const HeaderFirm = "X-Firm-ID"

// FirmContext resolves the firm from the request header and injects it into
// the request context.
func FirmContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderFirm))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		firmID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := firmcontext.WithFirmID(c.Request.Context(), int64(firmID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http.access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func firmFromContext(c *gin.Context) (snowflake.ID, bool) {
	firmID, ok := firmcontext.FirmIDFromContext(c.Request.Context())
	if !ok || firmID == 0 {
		AbortWithError(c, ErrUnauthorized)
		return 0, false
	}
	return firmID, true
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}
