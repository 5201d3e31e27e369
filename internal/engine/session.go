package engine

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/photosweep/photosweep/internal/logging"
	"github.com/photosweep/photosweep/internal/metrics"
	"github.com/photosweep/photosweep/internal/photostore"
)

// Token is a cooperative cancellation flag shared by all async work of one
// session. There is no preemption: holders poll it at suspension points and
// discard their results once it reports cancelled.
type Token struct {
	cancelled atomic.Bool
}

// Cancel marks the token cancelled. Idempotent.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether the token was cancelled.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Session identifies one load request. A session that is no longer current
// is superseded, terminally: it is never resumed or reused.
type Session struct {
	ID    int64
	Scope photostore.Scope
	Token *Token
}

// Controller is the single source of truth for which load session is
// current. Background tasks must consult Current before every mutation of
// shared state; anything written on behalf of a non-current session must be
// discarded.
type Controller struct {
	mu      sync.Mutex
	lastID  int64
	current *Session
}

// NewController creates a session controller.
func NewController() *Controller {
	return &Controller{}
}

// Begin supersedes any current session and returns a new one with a
// monotonically increased ID and a fresh cancellation token.
func (c *Controller) Begin(scope photostore.Scope) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Token.Cancel()
		metrics.RecordSessionSuperseded()
		logging.Debug("session superseded",
			zap.Int64("session", c.current.ID),
			zap.Int64("by", c.lastID+1))
	}

	c.lastID++
	c.current = &Session{
		ID:    c.lastID,
		Scope: scope,
		Token: &Token{},
	}
	metrics.RecordSessionStarted()
	return c.current
}

// Current reports whether the given session ID is still the current one.
func (c *Controller) Current(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.ID == id
}

// Session returns the current session, or nil before the first Begin.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
