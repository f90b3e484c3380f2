package authdb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atlasvans/siteapi/pkg/kvstore"
	"github.com/atlasvans/siteapi/pkg/pwdhash"
)

// CreateUser adds a new admin account. The store has no uniqueness constraint
// on usernames (lookup is first-match-wins), so we reject duplicates here, at
// the only place where accounts are created interactively.
func (a *AuthDB) CreateUser(ctx context.Context, username, name, password string) (*AdminUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("Username cannot be empty")
	}
	if err := IsPasswordOK(password); err != nil {
		return nil, err
	}
	return kvstore.Update(ctx, a.store, usersCollection, func(users *[]AdminUser) (*AdminUser, error) {
		maxID := int64(0)
		for _, u := range *users {
			if u.Username == username {
				return nil, errors.New("Username is already taken")
			}
			if u.ID > maxID {
				maxID = u.ID
			}
		}
		now := time.Now().UTC()
		user := AdminUser{
			ID:           maxID + 1,
			Username:     username,
			Name:         name,
			PasswordHash: pwdhash.HashPasswordBase64(password),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		*users = append(*users, user)
		return &user, nil
	})
}

// AllUsers returns every admin account
func (a *AuthDB) AllUsers(ctx context.Context) []AdminUser {
	return kvstore.Read(ctx, a.store, usersCollection)
}
