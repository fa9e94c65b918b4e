// Package store holds the credential store: user records and their pending
// password reset.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"moviecatalog/internal/models"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username or email already in use")
)

// Update lists the mutable account fields. Nil fields are left unchanged.
type Update struct {
	Email    *string
	Password *string
	Birthday *time.Time
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Email == nil && u.Password == nil && u.Birthday == nil
}

// UserStore is implemented by Mongo and Memory. Every method is a single
// atomic operation on one user document.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFields(ctx context.Context, username string, upd Update) (*models.User, error)

	// SetResetToken replaces any pending reset token of the user.
	SetResetToken(ctx context.Context, userID primitive.ObjectID, token models.ResetToken) error
	// ClearResetToken removes the pending token only if its hash is tokenHash.
	ClearResetToken(ctx context.Context, userID primitive.ObjectID, tokenHash string) (bool, error)
	// ReplacePassword sets the password hash and clears the pending token,
	// provided the pending token's hash is still tokenHash and it is unexpired
	// at now. Otherwise it returns ErrNotFound.
	ReplacePassword(ctx context.Context, userID primitive.ObjectID, tokenHash, passwordHash string, now time.Time) (*models.User, error)

	Ping(ctx context.Context) error
}
