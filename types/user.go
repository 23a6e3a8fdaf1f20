package types

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account in the system.
// Role assignments are stored separately and never embedded here.
type User struct {
	// ID is the unique identifier of the user.
	ID uuid.UUID `json:"id" db:"id"`

	// Email is the login address of the user.
	Email string `json:"email" db:"email"`

	// FullName is the display name supplied on sign-up.
	FullName string `json:"full_name" db:"full_name"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AuthState describes how far an identity has progressed through sign-in.
type AuthState int

const (
	// AuthAnonymous means no session is present.
	AuthAnonymous AuthState = iota

	// AuthAuthenticating means credentials were presented but not yet verified.
	AuthAuthenticating

	// AuthAuthenticated means the identity carries a verified session.
	AuthAuthenticated
)

// String returns the lower-case name of the state used in logs.
func (s AuthState) String() string {
	switch s {
	case AuthAnonymous:
		return "anonymous"
	case AuthAuthenticating:
		return "authenticating"
	case AuthAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Identity is the opaque user reference emitted by the identity provider.
type Identity struct {
	UserID uuid.UUID
	State  AuthState
}

// AnonymousIdentity is the identity of a request without a session.
var AnonymousIdentity = Identity{State: AuthAnonymous}

// AuthenticatedIdentity returns a verified identity for userID.
func AuthenticatedIdentity(userID uuid.UUID) Identity {
	return Identity{UserID: userID, State: AuthAuthenticated}
}

// Authenticated reports whether the identity carries a verified session.
func (i Identity) Authenticated() bool {
	return i.State == AuthAuthenticated && i.UserID != uuid.Nil
}
