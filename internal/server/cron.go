package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxReportedDripErrors = 10

// RunDripEmails runs one drip pass on demand, outside the scheduler loop.
func (s *Server) RunDripEmails(c *gin.Context) {
	start := s.clock.Now()
	s.log.Info("drip email run requested")

	result, err := s.notificationSvc.ProcessDrip(c.Request.Context())
	duration := s.clock.Now().Sub(start)
	if err != nil {
		s.log.Error("drip email run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":   false,
			"error":     err.Error(),
			"timestamp": s.clock.Now().Format(time.RFC3339),
		})
		return
	}

	s.log.Info("drip email run finished",
		zap.Int("day2_sent", result.Day2Sent),
		zap.Int("day5_sent", result.Day5Sent),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", duration),
	)

	errs := result.Errors
	if len(errs) > maxReportedDripErrors {
		errs = errs[:maxReportedDripErrors]
	}
	if errs == nil {
		errs = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": gin.H{
			"day2EmailsSent": result.Day2Sent,
			"day5EmailsSent": result.Day5Sent,
			"errorCount":     len(result.Errors),
			"errors":         errs,
		},
		"durationMs": duration.Milliseconds(),
		"timestamp":  s.clock.Now().Format(time.RFC3339),
	})
}
