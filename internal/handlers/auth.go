package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/internal/services"
	"github.com/hazardwatch/apiserver/internal/session"
	"github.com/hazardwatch/apiserver/types"
)

const (
	defaultTokenTTL    = 24 * time.Hour
	roleResolveTimeout = 5 * time.Second
)

// AuthHandler provides JWT authentication endpoints.
type AuthHandler struct {
	userService *services.UserService
	secret      []byte
	tokenTTL    time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthHandler{
		userService: userService,
		secret:      []byte(jwtSecret),
		tokenTTL:    tokenTTL,
	}
}

// AuthRouter registers auth routes on the given router. The router must
// already run the Identify middleware.
func AuthRouter(r chi.Router, handler *AuthHandler, throttle func(http.Handler) http.Handler) {
	r.With(throttle).Post("/register", handler.Register)
	r.With(throttle).Post("/login", handler.Login)
	r.With(RequireAuth).Get("/me", handler.Me)
	r.With(RequireAuth).Post("/refresh", handler.Refresh)
}

// Identify verifies an optional bearer token and attaches a resolved
// session snapshot to the request. Requests without a token continue as
// anonymous; a bad token is rejected.
func Identify(jwtSecret string, resolver session.RoleResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if errors.Is(err, errMissingAuthorization) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			userID, err := parseTokenSubject(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			sess := session.New(resolver, logger)
			defer sess.SignOut()

			identity := types.AuthenticatedIdentity(userID)
			snap, err := settle(r.Context(), sess, func(ctx context.Context) {
				sess.Apply(ctx, &identity)
			})
			if err != nil {
				writeRolesUnavailable(w)
				return
			}

			ctx := session.WithSession(session.WithSnapshot(r.Context(), snap), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// settle runs change against sess and waits for its roles to load.
func settle(ctx context.Context, sess *session.Context, change func(context.Context)) (session.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, roleResolveTimeout)
	defer cancel()

	change(ctx)
	return sess.Wait(ctx)
}

func writeRolesUnavailable(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
}

// RequireAuth rejects requests without an authenticated session.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.FromContext(r.Context()).Authenticated() {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Register creates a new user account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.respondWithToken(w, http.StatusCreated, user)
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.respondWithToken(w, http.StatusOK, user)
}

// Refresh re-issues a token and reloads roles for the current session, so
// grants made since sign-in take effect.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap := session.FromContext(r.Context())
	if sess := session.SessionFromContext(r.Context()); sess != nil {
		refreshed, err := settle(r.Context(), sess, sess.Refresh)
		if err != nil {
			writeRolesUnavailable(w)
			return
		}
		snap = refreshed
	}

	user, err := h.userService.GetByID(r.Context(), snap.Identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	token, expiresAt, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{
		AuthResponse: AuthResponse{Token: token, ExpiresAt: expiresAt, User: user},
		Roles:        snap.Roles,
		Scope:        snap.Scope,
		IsAdmin:      snap.IsAdmin(),
	})
}

// Me returns the current user with its roles and derived scope.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	snap := session.FromContext(r.Context())
	user, err := h.userService.GetByID(r.Context(), snap.Identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{
		User:    user,
		Roles:   snap.Roles,
		Scope:   snap.Scope,
		IsAdmin: snap.IsAdmin(),
	})
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, user types.User) {
	token, expiresAt, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      types.User `json:"user"`
}

type RefreshResponse struct {
	AuthResponse
	Roles   types.RoleSet `json:"roles"`
	Scope   types.Scope   `json:"scope"`
	IsAdmin bool          `json:"is_admin"`
}

type MeResponse struct {
	User    types.User    `json:"user"`
	Roles   types.RoleSet `json:"roles"`
	Scope   types.Scope   `json:"scope"`
	IsAdmin bool          `json:"is_admin"`
}

func issueToken(userID uuid.UUID, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.UTC(), nil
}

func parseTokenSubject(tokenString string, secret []byte) (uuid.UUID, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, errors.New("invalid token")
	}
	userID, err := uuid.Parse(strings.TrimSpace(claims.Subject))
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, errors.New("invalid subject")
	}
	return userID, nil
}

var errMissingAuthorization = errors.New("missing authorization")

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errMissingAuthorization
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
