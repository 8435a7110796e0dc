package ws

import (
	"context"
	"sync"
	"time"

	"sentinel-server-go/internal/domain/antidebug"
	"sentinel-server-go/internal/domain/events"
	"sentinel-server-go/internal/domain/formguard"
	"sentinel-server-go/internal/domain/integrity"
	"sentinel-server-go/internal/domain/ratelimit"
	"sentinel-server-go/internal/domain/session"
	"sentinel-server-go/internal/platform/config"
	"sentinel-server-go/internal/platform/errors"
	"sentinel-server-go/internal/platform/logging"
	"sentinel-server-go/internal/platform/storage"
)

// Dependencies are the collaborators a telemetry session needs.
type Dependencies struct {
	Config  *config.Config
	Logger  *logging.Logger
	State   *storage.StateRepository
	Events  *events.Logger
	Limiter *ratelimit.Limiter
}

// Session drives one page's telemetry stream: it owns the page identity, the
// detectors bound to it and the directive channel back to the page.
type Session struct {
	conn    *Connection
	deps    Dependencies
	logger  *logging.Logger
	events  *events.Logger
	page    *session.Context
	guard   *formguard.Guard
	monitor *integrity.Monitor
	probe   *antidebug.Probe

	closeOnce sync.Once
}

// NewSession performs the hello handshake: it resumes or mints the page
// identity, scopes the event dispatcher, wires the detectors and sends the
// session directive carrying the CSRF token back to the page. A resumed id
// keeps the tamper latch found, so the remediation reload cannot re-alarm.
func NewSession(ctx context.Context, conn *Connection, hello HelloFrame, deps Dependencies) (*Session, error) {
	page, err := session.Resume(ctx, deps.State, hello.SessionID)
	if err != nil {
		return nil, err
	}

	scoped := deps.Events.WithPage(hello.Page, hello.URL, page.ID(), hello.Client)

	s := &Session{
		conn:   conn,
		deps:   deps,
		logger: deps.Logger,
		events: scoped,
		page:   page,
		guard:  formguard.NewGuard(page, scoped),
	}

	monitor, err := integrity.NewMonitor(ctx, integrity.Options{
		State:     deps.State,
		Sink:      scoped,
		SessionID: page.ID(),
		Baseline:  integrity.Baseline{Title: hello.Title, BodyLength: hello.BodyLength},
		Delay:     deps.Config.Integrity.ReloadDelay,
		Remediate: s.remediate,
	})
	if err != nil {
		return nil, err
	}
	s.monitor = monitor

	s.probe = antidebug.NewProbe(antidebug.Options{
		Sink:      scoped,
		Interval:  deps.Config.AntiDebug.Interval,
		Threshold: deps.Config.AntiDebug.Threshold,
	})

	s.logPageLoad(ctx, hello)

	if err := conn.WriteDirective(Directive{
		Type:      DirectiveSession,
		SessionID: page.ID(),
		CSRFToken: page.CSRFToken(),
	}); err != nil {
		return nil, err
	}

	return s, nil
}

// ID returns the page session identifier.
func (s *Session) ID() string {
	return s.page.ID()
}

// LastActive reports when the page last sent or received anything.
func (s *Session) LastActive() time.Time {
	return s.conn.LastActive()
}

// Run reads telemetry frames until the connection drops or the context ends.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := s.conn.ReadFrame()
		if err != nil {
			// a malformed frame is dropped, a dead socket ends the session
			if errors.IsKind(err, errors.KindValidation) {
				if s.logger != nil {
					s.logger.DebugTag("WS", "session %s sent malformed frame: %v", s.ID(), err)
				}
				continue
			}
			if !s.conn.IsClosed() && s.logger != nil {
				s.logger.DebugTag("WS", "session %s read ended: %v", s.ID(), err)
			}
			return
		}
		s.handleFrame(ctx, frame)
	}
}

// Close tears the session down once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (s *Session) handleFrame(ctx context.Context, frame Frame) {
	switch frame.Type {
	case FrameMutation:
		if frame.Mutation != nil {
			s.handleMutation(ctx, *frame.Mutation)
		}
	case FrameForm:
		if frame.Form != nil {
			s.handleForm(ctx, *frame.Form)
		}
	case FrameProbe:
		if frame.Probe != nil {
			s.probe.Observe(ctx, time.Duration(frame.Probe.DelayMs)*time.Millisecond)
		}
	case FrameKey:
		if frame.Key != nil {
			s.handleKey(*frame.Key)
		}
	case FrameContextMenu:
		_ = s.conn.WriteDirective(Directive{Type: DirectiveSuppress, Key: "contextmenu"})
	case FrameError:
		if frame.Error != nil {
			s.events.Log(ctx, events.TypeScriptError, map[string]any{
				"message": frame.Error.Message,
				"source":  frame.Error.Source,
				"line":    frame.Error.Line,
			}, events.LevelError)
		}
	case FrameRejection:
		if frame.Error != nil {
			s.events.Log(ctx, events.TypePromiseRejection, map[string]any{
				"reason": frame.Error.Reason,
			}, events.LevelError)
		}
	default:
		if s.logger != nil {
			s.logger.DebugTag("WS", "session %s sent unknown frame %q", s.ID(), frame.Type)
		}
	}
}

func (s *Session) handleMutation(ctx context.Context, frame MutationFrame) {
	s.monitor.Inspect(ctx, integrity.MutationBatch{
		Title:            frame.Title,
		BodyLength:       frame.BodyLength,
		BodyText:         frame.BodyText,
		AddedNodes:       frame.AddedNodes,
		AttributeTargets: frame.AttributeTargets,
	})
}

// handleForm runs the submission pipeline: rate limit, then CSRF and input
// screening, answering with a form_result directive either way.
func (s *Session) handleForm(ctx context.Context, frame FormFrame) {
	if !s.deps.Limiter.Allow(ctx, "form_submit:"+s.ID()) {
		s.denyForm("too many submissions, slow down")
		return
	}

	sanitized, err := s.guard.Validate(ctx, formguard.Submission{
		FormID: frame.FormID,
		Token:  frame.Token,
		Fields: frame.Fields,
	})
	if err != nil {
		s.events.Log(ctx, events.TypeFormValidation, map[string]any{
			"form":  frame.FormID,
			"error": err.Error(),
		}, events.LevelError)
		s.denyForm(err.Error())
		return
	}

	s.events.Log(ctx, events.TypeFormSubmit, map[string]any{
		"form":   frame.FormID,
		"fields": len(sanitized),
	}, events.LevelInfo)

	_ = s.conn.WriteDirective(Directive{
		Type:   DirectiveFormResult,
		OK:     boolPtr(true),
		Fields: sanitized,
	})
}

func (s *Session) handleKey(frame KeyFrame) {
	if antidebug.SuppressChord(frame.Key, frame.Ctrl, frame.Shift) {
		_ = s.conn.WriteDirective(Directive{Type: DirectiveSuppress, Key: frame.Key})
	}
}

func (s *Session) denyForm(reason string) {
	_ = s.conn.WriteDirective(Directive{
		Type:  DirectiveFormResult,
		OK:    boolPtr(false),
		Error: reason,
	})
}

func (s *Session) logPageLoad(ctx context.Context, hello HelloFrame) {
	count, last := s.page.VisitMeta()
	data := map[string]any{
		"visitCount": count,
	}
	if last != nil {
		data["lastVisit"] = last.UTC().Format(time.RFC3339)
	}
	if hello.Referrer != "" {
		data["referrer"] = hello.Referrer
	}
	s.events.Log(ctx, events.TypePageLoad, data, events.LevelInfo)
}

// remediate is the tamper response: tell the page to reload itself.
func (s *Session) remediate() {
	_ = s.conn.WriteDirective(Directive{Type: DirectiveReload})
}
