package events

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"

	"sentinel-server-go/internal/domain/eventbus"
	"sentinel-server-go/internal/platform/logging"
	"sentinel-server-go/internal/platform/storage"
	"sentinel-server-go/internal/relay"
)

// Well-known event type names.
const (
	TypePageLoad          = "page_load"
	TypeFormSubmit        = "form_submit"
	TypeFormValidation    = "form_validation_error"
	TypeXSSAttempt        = "xss_attempt"
	TypeCSRFAttack        = "csrf_attack"
	TypeRateLimitExceeded = "rate_limit_exceeded"
	TypeDomTamper         = "dom_tamper_detected"
	TypeDevtoolsDetected  = "devtools_detected"
	TypeScriptError       = "javascript_error"
	TypePromiseRejection  = "unhandled_promise_rejection"
	TypeSecurityError     = "security_error"
)

// forwardedTypes are always relayed regardless of severity. Together with the
// warning/error rule this bounds relay traffic without dropping anything
// security relevant.
var forwardedTypes = map[string]bool{
	TypePageLoad:          true,
	TypeFormSubmit:        true,
	TypeXSSAttempt:        true,
	TypeCSRFAttack:        true,
	TypeRateLimitExceeded: true,
}

// Options wires the dispatcher's collaborators.
type Options struct {
	Logger     *logging.Logger
	Events     *storage.EventRepository
	Bus        *eventbus.Bus
	Relay      *relay.Client
	WebhookURL string
	Username   string
}

// Logger is the central event dispatcher. Every detector reports here; the
// dispatcher logs locally, persists the audit record, publishes on the bus and
// forwards qualifying events to the external channel. It is constructed once
// at startup and passed explicitly to everything that emits.
type Logger struct {
	opts Options

	// per-page scope, set by WithPage
	page      string
	url       string
	sessionID string
	client    *ClientInfo
}

// NewLogger builds the dispatcher.
func NewLogger(opts Options) *Logger {
	if opts.Username == "" {
		opts.Username = "Sentinel Security Logger"
	}
	return &Logger{opts: opts}
}

// WithPage derives a dispatcher scoped to one page session. The scope feeds
// the embed footer, the client-info field and the default page/url of every
// event logged through it.
func (l *Logger) WithPage(page, url, sessionID string, client ClientInfo) *Logger {
	scoped := *l
	scoped.page = page
	scoped.url = url
	scoped.sessionID = sessionID
	scoped.client = &client
	return &scoped
}

// Log records one event. Local logging and persistence always happen;
// forwarding follows the severity/allow-list policy and never blocks or fails
// the caller.
func (l *Logger) Log(ctx context.Context, eventType string, data map[string]any, level Level) {
	if !level.Valid() {
		level = LevelInfo
	}

	evt := Event{
		Type:      eventType,
		Level:     level,
		Data:      data,
		Page:      l.page,
		URL:       l.url,
		SessionID: l.sessionID,
		Timestamp: time.Now(),
	}
	if page, ok := data["page"].(string); ok && page != "" {
		evt.Page = page
	}

	l.logLocal(evt)
	l.persist(ctx, evt)

	if l.opts.Bus != nil {
		l.opts.Bus.Publish(eventbus.TopicSecurityEvent, evt)
		switch evt.Type {
		case TypeDomTamper:
			l.opts.Bus.Publish(eventbus.TopicTamper, evt)
		case TypeRateLimitExceeded:
			l.opts.Bus.Publish(eventbus.TopicRateLimit, evt)
		}
	}

	if l.shouldForward(evt) {
		go l.forward(evt)
	}
}

func (l *Logger) logLocal(evt Event) {
	if l.opts.Logger == nil {
		return
	}
	msg := logging.FormatLog("Security", "%s: %s page=%s")
	switch evt.Level {
	case LevelError:
		l.opts.Logger.Error(msg, evt.Level, evt.Type, evt.Page)
	case LevelWarning:
		l.opts.Logger.Warn(msg, evt.Level, evt.Type, evt.Page)
	default:
		l.opts.Logger.Info(msg, evt.Level, evt.Type, evt.Page)
	}
}

func (l *Logger) persist(ctx context.Context, evt Event) {
	if l.opts.Events == nil {
		return
	}
	record := storage.SecurityEventRecord{
		Type:      evt.Type,
		Level:     string(evt.Level),
		Page:      evt.Page,
		URL:       evt.URL,
		SessionID: evt.SessionID,
		CreatedAt: evt.Timestamp,
	}
	if len(evt.Data) > 0 {
		if raw, err := sonic.Marshal(evt.Data); err == nil {
			record.Data = datatypes.JSON(raw)
		}
	}
	if err := l.opts.Events.Save(ctx, &record); err != nil && l.opts.Logger != nil {
		l.opts.Logger.WarnTag("Security", "audit persist failed: %v", err)
	}
}

func (l *Logger) shouldForward(evt Event) bool {
	if l.opts.Relay == nil || l.opts.WebhookURL == "" {
		return false
	}
	return evt.Level == LevelWarning || evt.Level == LevelError || forwardedTypes[evt.Type]
}

// forward runs detached from the triggering action. Failures are logged
// locally and never propagate.
func (l *Logger) forward(evt Event) {
	defer func() {
		_ = recover()
	}()

	msg := l.buildMessage(evt)
	if err := l.opts.Relay.PostMessage(context.Background(), l.opts.WebhookURL, msg); err != nil {
		if l.opts.Logger != nil {
			l.opts.Logger.WarnTag("Security", "relay forward failed for %s: %v", evt.Type, err)
		}
	}
}
