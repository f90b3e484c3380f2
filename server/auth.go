package server

// The authentication gateway that every protected handler calls through.
// It orchestrates authdb, ratelimit and seclog; it owns no state of its own.

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/atlasvans/siteapi/server/authdb"
	"github.com/atlasvans/siteapi/server/ratelimit"
	"github.com/atlasvans/siteapi/server/seclog"
)

// Failure codes surfaced to clients. Unknown-user and wrong-password are
// deliberately the same code, so responses can't be used to enumerate accounts.
// Expired and unknown tokens are likewise indistinguishable.
const (
	FailInvalidCredentials = "INVALID_CREDENTIALS"
	FailRateLimited        = "RATE_LIMITED"
	FailInvalidToken       = "INVALID_TOKEN"
	FailValidation         = "VALIDATION_ERROR"
	FailServer             = "SERVER_ERROR"
)

type AuthFailure struct {
	Code             string
	Status           int
	RemainingMinutes int
}

func failure(code string, status int) *AuthFailure {
	return &AuthFailure{Code: code, Status: status}
}

// BearerToken extracts the candidate token from an Authorization header value.
// A missing header yields an empty token, which never validates.
func BearerToken(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	if strings.HasPrefix(authorization, "Bearer ") {
		return authorization[len("Bearer "):]
	}
	return authorization
}

// ClientIP returns the originating client address. Behind a proxy or serverless
// front, that's the first entry of X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Login authenticates username/password and issues a session token.
// The rate limiter is consulted before we touch credentials, so a blocked
// client can't use login attempts as an oracle for account existence.
func (s *Server) Login(ctx context.Context, username, password, ip, userAgent string) (*authdb.SessionToken, *authdb.AdminUser, *AuthFailure) {
	identifier := ratelimit.IdentifierFor(ip, userAgent, username)
	check := s.Limiter.Check(ctx, identifier)
	if !check.Allowed {
		return nil, nil, &AuthFailure{
			Code:             FailRateLimited,
			Status:           http.StatusTooManyRequests,
			RemainingMinutes: check.RemainingMinutes,
		}
	}

	user := s.Auth.FindByUsername(ctx, username)
	ok := user != nil && s.Auth.VerifyPassword(password, user.PasswordHash)
	if !ok {
		// Missing user and wrong password take the identical path from here
		s.Limiter.RecordAttempt(ctx, identifier, false)
		s.Events.Emit(ctx, seclog.Event{Type: seclog.EventLoginFailure, Username: username, IP: ip})
		return nil, nil, failure(FailInvalidCredentials, http.StatusUnauthorized)
	}

	s.Limiter.RecordAttempt(ctx, identifier, true)
	session, err := s.Auth.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, nil, failure(FailServer, http.StatusInternalServerError)
	}
	s.Events.Emit(ctx, seclog.Event{Type: seclog.EventLoginSuccess, Username: user.Username, IP: ip})
	return session, user, nil
}

// Verify resolves a bearer token to its user.
// Absent and expired tokens produce the same failure.
func (s *Server) Verify(ctx context.Context, token string) (*authdb.AdminUser, *AuthFailure) {
	user := s.Auth.ValidateToken(ctx, token)
	if user == nil {
		return nil, failure(FailInvalidToken, http.StatusUnauthorized)
	}
	return user, nil
}

// ChangePassword requires both a valid token and the current password. On
// success, every prior token is revoked and exactly one replacement is issued,
// so the client keeps an authenticated session without logging in again.
func (s *Server) ChangePassword(ctx context.Context, token, currentPassword, newPassword, ip string) (*authdb.SessionToken, *AuthFailure) {
	user, fail := s.Verify(ctx, token)
	if fail != nil {
		return nil, fail
	}
	if !s.Auth.VerifyPassword(currentPassword, user.PasswordHash) {
		return nil, failure(FailInvalidCredentials, http.StatusUnauthorized)
	}
	if err := authdb.IsPasswordOK(newPassword); err != nil {
		return nil, failure(FailValidation, http.StatusBadRequest)
	}
	changed, err := s.Auth.ChangePassword(ctx, user.ID, newPassword)
	if err != nil || !changed {
		return nil, failure(FailServer, http.StatusInternalServerError)
	}
	if err := s.Auth.RevokeAllTokens(ctx, user.ID); err != nil {
		s.Log.Errorf("Failed to revoke tokens after password change for user %v: %v", user.ID, err)
	}
	session, err := s.Auth.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, failure(FailServer, http.StatusInternalServerError)
	}
	s.Events.Emit(ctx, seclog.Event{Type: seclog.EventPasswordChange, Username: user.Username, IP: ip})
	return session, nil
}

// Logout revokes every token of the resolved user, not just the presented one
func (s *Server) Logout(ctx context.Context, token, ip string) *AuthFailure {
	user, fail := s.Verify(ctx, token)
	if fail != nil {
		return fail
	}
	if err := s.Auth.RevokeAllTokens(ctx, user.ID); err != nil {
		return failure(FailServer, http.StatusInternalServerError)
	}
	s.Events.Emit(ctx, seclog.Event{Type: seclog.EventLogout, Username: user.Username, IP: ip})
	return nil
}
