// Package session owns the identity and role snapshot for one client
// session. Role loading is asynchronous; results belonging to a superseded
// identity are discarded.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazardwatch/apiserver/internal/access"
	"github.com/hazardwatch/apiserver/types"
)

// State is the role-loading state of a session.
type State int

const (
	// Absent means there is no authenticated identity.
	Absent State = iota
	// Loading means an identity is known but its roles are not.
	Loading
	// Ready means roles for the current identity are resolved.
	Ready
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// RoleResolver fetches the role set of an identity.
type RoleResolver interface {
	Resolve(ctx context.Context, identity types.Identity) (types.RoleSet, error)
}

// Snapshot is an immutable view of the session at one instant.
type Snapshot struct {
	State    State
	Identity types.Identity
	Roles    types.RoleSet
	Scope    types.Scope
}

func absentSnapshot() Snapshot {
	return Snapshot{State: Absent, Identity: types.AnonymousIdentity, Scope: types.ScopeNone}
}

// Authenticated reports whether the snapshot carries a verified identity.
func (s Snapshot) Authenticated() bool {
	return s.State != Absent && s.Identity.Authenticated()
}

// IsAdmin reports admin scope. It is false until roles are ready.
func (s Snapshot) IsAdmin() bool {
	return s.State == Ready && access.IsAdmin(s.Scope)
}

// CanMutate reports whether the snapshot may change complaints in category.
func (s Snapshot) CanMutate(category types.Category) bool {
	return s.State == Ready && access.CanMutate(s.Scope, category)
}

// Guard evaluates a page rule. It reports access.Pending while loading.
func (s Snapshot) Guard(rule access.Rule) access.Decision {
	if s.State == Absent {
		return access.Deny
	}
	return access.Guard(s.State == Ready, s.Scope, rule)
}

// Context is the single owner of session state. The zero value is not
// usable; construct it with New.
type Context struct {
	resolver RoleResolver
	logger   *slog.Logger

	mu         sync.Mutex
	generation uint64
	snap       Snapshot
	cancel     context.CancelFunc
	settled    chan struct{}
}

// New returns a session Context in the Absent state.
func New(resolver RoleResolver, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	settled := make(chan struct{})
	close(settled)
	return &Context{
		resolver: resolver,
		logger:   logger,
		snap:     absentSnapshot(),
		settled:  settled,
	}
}

// Apply consumes a session-change event. A nil identity or an
// unauthenticated one signs the session out.
func (c *Context) Apply(ctx context.Context, identity *types.Identity) {
	if identity == nil || !identity.Authenticated() {
		c.SignOut()
		return
	}
	c.SignIn(ctx, *identity)
}

// SignIn replaces the current identity and starts fetching its roles.
// Any fetch still running for a previous identity is cancelled and its
// result ignored.
func (c *Context) SignIn(ctx context.Context, identity types.Identity) {
	c.mu.Lock()
	gen := c.reset()
	c.snap = Snapshot{State: Loading, Identity: identity, Scope: types.ScopeNone}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	settled := make(chan struct{})
	c.settled = settled
	c.mu.Unlock()

	go c.fetch(fetchCtx, gen, identity, settled)
}

// Refresh re-fetches roles for the current identity, as after a token
// refresh. It is a no-op when signed out.
func (c *Context) Refresh(ctx context.Context) {
	c.mu.Lock()
	identity := c.snap.Identity
	signedIn := c.snap.State != Absent
	c.mu.Unlock()
	if signedIn {
		c.SignIn(ctx, identity)
	}
}

// SignOut clears identity and roles. A role fetch still in flight can no
// longer change the snapshot.
func (c *Context) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	c.snap = absentSnapshot()
}

// reset bumps the generation, cancels the running fetch and releases its
// waiters. Caller holds mu.
func (c *Context) reset() uint64 {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	closeOnce(c.settled)
	return c.generation
}

// closeOnce closes ch unless already closed. Caller holds mu.
func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Snapshot returns the current state without blocking.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Wait blocks until the session is not Loading, then returns the snapshot.
// If the identity changes while waiting, it waits for the new one.
func (c *Context) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		snap, settled := c.snap, c.settled
		c.mu.Unlock()
		if snap.State != Loading {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		case <-settled:
		}
	}
}

func (c *Context) fetch(ctx context.Context, gen uint64, identity types.Identity, settled chan struct{}) {
	roles, err := c.resolver.Resolve(ctx, identity)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.logger.Debug("discarding role fetch for superseded session",
			"user_id", identity.UserID, "generation", gen)
		return
	}
	if err != nil {
		c.logger.Warn("role resolution failed, continuing with no roles",
			"user_id", identity.UserID, "error", err)
		roles = types.NewRoleSet()
	}
	c.snap = Snapshot{
		State:    Ready,
		Identity: identity,
		Roles:    roles,
		Scope:    access.DeriveScope(roles),
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	closeOnce(settled)
}

type contextKey struct{}

// WithSnapshot returns a context carrying snap.
func WithSnapshot(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, contextKey{}, snap)
}

// FromContext returns the snapshot stored by WithSnapshot, or an Absent one.
func FromContext(ctx context.Context) Snapshot {
	if snap, ok := ctx.Value(contextKey{}).(Snapshot); ok {
		return snap
	}
	return absentSnapshot()
}

type sessionKey struct{}

// WithSession returns a context carrying the live session so handlers can
// refresh it.
func WithSession(ctx context.Context, sess *Context) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the session stored by WithSession, or nil.
func SessionFromContext(ctx context.Context) *Context {
	sess, _ := ctx.Value(sessionKey{}).(*Context)
	return sess
}
