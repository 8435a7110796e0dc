package formguard

import (
	"context"
	"html"
	"regexp"
	"sort"

	"sentinel-server-go/internal/domain/events"
	"sentinel-server-go/internal/domain/session"
	"sentinel-server-go/internal/platform/errors"
)

// suspiciousPatterns is the fixed screening set applied to every string
// field: script tags, javascript: URIs, inline event handlers, embedding
// tags, eval and CSS expression calls.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe`),
	regexp.MustCompile(`(?i)<object`),
	regexp.MustCompile(`(?i)<embed`),
	regexp.MustCompile(`(?i)\beval\(`),
	regexp.MustCompile(`(?i)expression\(`),
}

const sampleLimit = 100

var (
	// ErrTokenMismatch is returned when the submitted CSRF token is not the
	// session's current token. A regenerated token (new session without a
	// form reload) rejects by design; the caller must reload.
	ErrTokenMismatch = errors.New(errors.KindValidation, "form.csrf",
		"security token mismatch, reload the page")

	// ErrInvalidInput is the generic rejection for suspicious field content.
	// It deliberately never names the matched pattern.
	ErrInvalidInput = errors.New(errors.KindValidation, "form.validate",
		"invalid form input detected")
)

// Submission is one form submission to screen.
type Submission struct {
	FormID string
	Token  string
	Fields map[string]string
}

// Guard performs the CSRF check and input screening for form submissions.
type Guard struct {
	session *session.Context
	sink    events.Sink
}

// NewGuard binds a guard to a page session.
func NewGuard(sess *session.Context, sink events.Sink) *Guard {
	return &Guard{session: sess, sink: sink}
}

// Validate applies both duties. On success it returns the sanitized
// (HTML-escaped) field map; on failure it returns one of the package errors
// after emitting the matching event.
func (g *Guard) Validate(ctx context.Context, sub Submission) (map[string]string, error) {
	formID := sub.FormID
	if formID == "" {
		formID = "unknown"
	}

	if !g.session.VerifyToken(sub.Token) {
		g.emit(ctx, events.TypeCSRFAttack, map[string]any{
			"form": formID,
		}, events.LevelError)
		return nil, ErrTokenMismatch
	}

	names := make([]string, 0, len(sub.Fields))
	for name := range sub.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	sanitized := make(map[string]string, len(sub.Fields))
	for _, name := range names {
		value := sub.Fields[name]
		if matchesSuspicious(value) {
			g.emit(ctx, events.TypeXSSAttempt, map[string]any{
				"field": name,
				"value": sample(value),
			}, events.LevelWarning)
			return nil, ErrInvalidInput
		}
		sanitized[name] = html.EscapeString(value)
	}

	return sanitized, nil
}

func matchesSuspicious(value string) bool {
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

func sample(value string) string {
	if len(value) > sampleLimit {
		return value[:sampleLimit]
	}
	return value
}

func (g *Guard) emit(ctx context.Context, eventType string, data map[string]any, level events.Level) {
	if g.sink != nil {
		g.sink.Log(ctx, eventType, data, level)
	}
}
