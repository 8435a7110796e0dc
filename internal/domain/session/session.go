package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/google/uuid"

	"sentinel-server-go/internal/platform/errors"
	"sentinel-server-go/internal/platform/storage"
)

const csrfTokenBytes = 32

// issuedID matches identifiers this server mints; anything else a page echoes
// back is discarded.
var issuedID = regexp.MustCompile(`^session_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Context is the per-page-load identity: an opaque session id, a CSRF token
// regenerated on every load and the persisted visit counter. Created once per
// page load; the token never leaves process memory except to the owning page.
type Context struct {
	id         string
	csrfToken  string
	visitCount int
	lastVisit  *time.Time
}

// New creates a session context. It increments the persisted visit counter
// and records the previous visit timestamp before overwriting it; the counter
// only ever grows.
func New(ctx context.Context, state *storage.StateRepository) (*Context, error) {
	return newContext(ctx, state, "session_"+uuid.NewString())
}

// Resume rebuilds the context for a page that reports an identifier it was
// issued earlier, so session-scoped state (the tamper latch) survives a
// forced reload. An id this server never minted falls back to a fresh one.
// The CSRF token is regenerated either way.
func Resume(ctx context.Context, state *storage.StateRepository, id string) (*Context, error) {
	if !issuedID.MatchString(id) {
		return New(ctx, state)
	}
	return newContext(ctx, state, id)
}

func newContext(ctx context.Context, state *storage.StateRepository, id string) (*Context, error) {
	token, err := generateCSRFToken()
	if err != nil {
		return nil, err
	}

	previous, err := state.GetInt(ctx, storage.ScopePersistent, storage.KeyVisitCount)
	if err != nil {
		return nil, err
	}
	lastVisit, err := state.GetTime(ctx, storage.ScopePersistent, storage.KeyLastVisit)
	if err != nil {
		return nil, err
	}

	count := previous + 1
	if err := state.SetInt(ctx, storage.ScopePersistent, storage.KeyVisitCount, count); err != nil {
		return nil, err
	}
	if err := state.SetTime(ctx, storage.ScopePersistent, storage.KeyLastVisit, time.Now()); err != nil {
		return nil, err
	}

	return &Context{
		id:         id,
		csrfToken:  token,
		visitCount: count,
		lastVisit:  lastVisit,
	}, nil
}

func generateCSRFToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(errors.KindDetection, "session.token", "token generation failed", err)
	}
	return hex.EncodeToString(buf), nil
}

// ID returns the opaque session id.
func (c *Context) ID() string {
	return c.id
}

// CSRFToken returns the session's current token.
func (c *Context) CSRFToken() string {
	return c.csrfToken
}

// VerifyToken compares a submitted token against the session's token in
// constant time.
func (c *Context) VerifyToken(submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(c.csrfToken), []byte(submitted)) == 1
}

// VisitMeta returns the visit counter and the previous visit's timestamp,
// nil on the first ever visit.
func (c *Context) VisitMeta() (int, *time.Time) {
	return c.visitCount, c.lastVisit
}
