package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

var startedAt = time.Now()

// handleSystemStatus reports process and host health plus audit-trail counts.
func (s *Service) handleSystemStatus(c *gin.Context) {
	status := gin.H{
		"ok":     true,
		"uptime": time.Since(startedAt).Round(time.Second).String(),
		"relay": gin.H{
			"security": s.config.Relay.SecurityWebhookURL != "",
			"payment":  s.config.Relay.PaymentWebhookURL != "",
		},
	}
	if s.sessions != nil {
		status["telemetrySessions"] = s.sessions()
	}

	if info, err := host.Info(); err == nil {
		status["host"] = gin.H{
			"os":       info.OS,
			"platform": info.Platform,
			"uptime":   info.Uptime,
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = gin.H{
			"total":       vm.Total,
			"used":        vm.Used,
			"usedPercent": vm.UsedPercent,
		}
	}

	if s.events != nil {
		ctx := c.Request.Context()
		counts := gin.H{}
		for _, level := range []string{"info", "warning", "error"} {
			if n, err := s.events.CountByLevel(ctx, level); err == nil {
				counts[level] = n
			}
		}
		status["events"] = counts
	}

	c.JSON(http.StatusOK, status)
}
