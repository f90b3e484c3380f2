package authdb

// authdb is the sole authority for admin accounts and their session tokens.
// Both live in kvstore collections, and every mutation goes through the
// store's atomic update so that concurrent handlers can't lose writes.

import (
	"context"
	"time"

	"github.com/atlasvans/siteapi/pkg/kvstore"
	"github.com/atlasvans/siteapi/pkg/pwdhash"
	"github.com/atlasvans/siteapi/pkg/rando"
	"github.com/cyclopcam/logs"
)

// Session tokens are valid for a fixed 7 days from issuance
const TokenLifetime = 7 * 24 * time.Hour

// The username of the automatically created first admin account
const BootstrapUsername = "admin"

type AdminUser struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	PasswordHash       string    `json:"password_hash"`
	Name               string    `json:"name"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type SessionToken struct {
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"` // 256 bits, hex encoded (64 chars)
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

var usersCollection = kvstore.NewCollection("admin-users", func() []AdminUser { return []AdminUser{} })
var tokensCollection = kvstore.NewCollection("admin-tokens", func() []SessionToken { return []SessionToken{} })

type AuthDB struct {
	log   logs.Log
	store *kvstore.Store
}

func NewAuthDB(log logs.Log, store *kvstore.Store) *AuthDB {
	return &AuthDB{
		log:   log,
		store: store,
	}
}

// Bootstrap creates the initial admin account if no accounts exist yet, and
// returns the first account either way. The generated password is emitted once,
// into the startup log. That log line is the only place where the plaintext
// ever leaves the hashing function.
func (a *AuthDB) Bootstrap(ctx context.Context) (*AdminUser, error) {
	password := rando.StrongRandomHex(16)
	created := false
	user, err := kvstore.Update(ctx, a.store, usersCollection, func(users *[]AdminUser) (*AdminUser, error) {
		if len(*users) != 0 {
			return &(*users)[0], nil
		}
		created = true
		now := time.Now().UTC()
		user := AdminUser{
			ID:                 1,
			Username:           BootstrapUsername,
			PasswordHash:       pwdhash.HashPasswordBase64(password),
			Name:               "Administrator",
			MustChangePassword: true,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		*users = append(*users, user)
		return &user, nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		a.log.Infof("Created initial admin user %q with temporary password %v. Change it after first login.", user.Username, password)
	}
	return user, nil
}

// FindByUsername returns the first account with a matching username, or nil.
// Username uniqueness is by convention only, so first match wins.
func (a *AuthDB) FindByUsername(ctx context.Context, username string) *AdminUser {
	users := kvstore.Read(ctx, a.store, usersCollection)
	for i := range users {
		if users[i].Username == username {
			return &users[i]
		}
	}
	return nil
}

// FindByID returns the account with the given id, or nil
func (a *AuthDB) FindByID(ctx context.Context, id int64) *AdminUser {
	users := kvstore.Read(ctx, a.store, usersCollection)
	for i := range users {
		if users[i].ID == id {
			return &users[i]
		}
	}
	return nil
}

// VerifyPassword checks a plaintext candidate against a stored hash,
// in constant time.
func (a *AuthDB) VerifyPassword(candidate, hash string) bool {
	return pwdhash.VerifyHashBase64(candidate, hash)
}

// IssueToken creates a fresh session token for the user. Expired tokens are
// swept from the collection in the same update.
func (a *AuthDB) IssueToken(ctx context.Context, userID int64) (*SessionToken, error) {
	now := time.Now().UTC()
	session := SessionToken{
		UserID:    userID,
		Token:     rando.StrongRandomHex(32),
		IssuedAt:  now,
		ExpiresAt: now.Add(TokenLifetime),
	}
	_, err := kvstore.Update(ctx, a.store, tokensCollection, func(tokens *[]SessionToken) (int, error) {
		live := (*tokens)[:0]
		for _, t := range *tokens {
			if t.ExpiresAt.After(now) {
				live = append(live, t)
			}
		}
		*tokens = append(live, session)
		return len(*tokens), nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ValidateToken resolves a token to its user. Returns nil if the token is
// unknown, expired, or references a user that no longer exists. Expired tokens
// are left in place here; they're swept on the next issuance.
func (a *AuthDB) ValidateToken(ctx context.Context, token string) *AdminUser {
	if token == "" {
		return nil
	}
	tokens := kvstore.Read(ctx, a.store, tokensCollection)
	for _, t := range tokens {
		if t.Token == token {
			if !t.ExpiresAt.After(time.Now()) {
				return nil
			}
			return a.FindByID(ctx, t.UserID)
		}
	}
	return nil
}

// RevokeAllTokens deletes every token belonging to the user.
// Used on logout and on password change, so revocation is account-wide.
func (a *AuthDB) RevokeAllTokens(ctx context.Context, userID int64) error {
	_, err := kvstore.Update(ctx, a.store, tokensCollection, func(tokens *[]SessionToken) (int, error) {
		kept := (*tokens)[:0]
		for _, t := range *tokens {
			if t.UserID != userID {
				kept = append(kept, t)
			}
		}
		*tokens = kept
		return len(*tokens), nil
	})
	return err
}

// ChangePassword stores a new password hash and clears must_change_password.
// Returns false if the user does not exist. Token revocation and reissue is
// the caller's responsibility.
func (a *AuthDB) ChangePassword(ctx context.Context, userID int64, newPassword string) (bool, error) {
	return kvstore.Update(ctx, a.store, usersCollection, func(users *[]AdminUser) (bool, error) {
		for i := range *users {
			if (*users)[i].ID == userID {
				(*users)[i].PasswordHash = pwdhash.HashPasswordBase64(newPassword)
				(*users)[i].MustChangePassword = false
				(*users)[i].UpdatedAt = time.Now().UTC()
				return true, nil
			}
		}
		return false, nil
	})
}
