package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sentinel-server-go/internal/platform/config"
	"sentinel-server-go/internal/platform/errors"
	"sentinel-server-go/internal/platform/logging"
	"sentinel-server-go/internal/platform/storage"
	"sentinel-server-go/internal/relay"
)

// Service is the HTTP transport for the relay endpoints and system status.
type Service struct {
	config   *config.Config
	logger   *logging.Logger
	relay    *relay.Client
	events   *storage.EventRepository
	sessions func() int
}

// NewService creates the relay HTTP service. The sessions counter feeds the
// status endpoint and may be nil.
func NewService(cfg *config.Config, logger *logging.Logger, relayClient *relay.Client, events *storage.EventRepository, sessions func() int) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "http.new", "config is required")
	}
	if relayClient == nil {
		return nil, errors.New(errors.KindConfig, "http.new", "relay client is required")
	}
	return &Service{
		config:   cfg,
		logger:   logger,
		relay:    relayClient,
		events:   events,
		sessions: sessions,
	}, nil
}

// Register mounts the relay routes on the API group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.POST("/security-log", s.handleSecurityLog)
	router.POST("/payment/receipt", s.handlePaymentReceipt)
	router.GET("/system/status", s.handleSystemStatus)

	if s.logger != nil {
		s.logger.InfoTag("HTTP", "relay routes registered")
	}
	return nil
}

// handleSecurityLog forwards a pre-shaped message to the security channel
// verbatim. The webhook URL never leaves the server.
func (s *Service) handleSecurityLog(c *gin.Context) {
	var msg relay.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		s.respondError(c, http.StatusBadRequest, "invalid message payload")
		return
	}

	url := s.config.Relay.SecurityWebhookURL
	if url == "" {
		s.respondError(c, http.StatusInternalServerError, "security webhook not configured")
		return
	}

	if err := s.relay.PostMessage(c.Request.Context(), url, msg); err != nil {
		if s.logger != nil {
			s.logger.WarnTag("HTTP", "security log forward failed: %v", err)
		}
		s.respondError(c, http.StatusInternalServerError, "failed to deliver security log")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handlePaymentReceipt runs the two-phase receipt delivery: a metadata embed
// first, then the proof image as a file attachment. Phase one failures only
// warn; a lost attachment is an error the client must know about.
func (s *Service) handlePaymentReceipt(c *gin.Context) {
	var receipt relay.Receipt
	if err := c.ShouldBindJSON(&receipt); err != nil {
		s.respondError(c, http.StatusBadRequest, "invalid receipt payload")
		return
	}
	if err := receipt.Validate(); err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	url := s.config.Relay.PaymentWebhookURL
	if url == "" {
		s.respondError(c, http.StatusInternalServerError, "payment webhook not configured")
		return
	}

	ctx := c.Request.Context()
	now := time.Now()

	meta := receipt.MetadataMessage(s.config.Relay.PaymentUsername, now)
	if err := s.relay.PostMessage(ctx, url, meta); err != nil && s.logger != nil {
		s.logger.WarnTag("HTTP", "receipt metadata post failed: %v", err)
	}

	mimeType, image, err := relay.ParseImageDataURL(receipt.ImageDataURL)
	if err != nil {
		// metadata already went out, report success with a caveat
		c.JSON(http.StatusOK, gin.H{"ok": true, "warning": "receipt image could not be decoded"})
		return
	}

	attachment := receipt.AttachmentMessage(now)
	if err := s.relay.PostFile(ctx, url, "receipt.png", mimeType, image, attachment); err != nil {
		if s.logger != nil {
			s.logger.WarnTag("HTTP", "receipt image post failed: %v", err)
		}
		s.respondError(c, http.StatusInternalServerError, "failed to deliver receipt image")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Service) respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"ok": false, "error": message})
}
