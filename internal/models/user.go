package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ResetToken is the pending password reset attached to a user. Only the
// SHA-256 of the mailed secret is kept.
type ResetToken struct {
	UserID    primitive.ObjectID `bson:"userId"`
	TokenHash string             `bson:"token"`
	CreatedAt time.Time          `bson:"createdAt"`
	ExpiresAt time.Time          `bson:"expiryTime"`
}

// Expired reports whether the token is dead at now.
func (t *ResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// User represents a registered account. Field names follow the catalog's
// existing documents.
type User struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Username        string               `bson:"Username" json:"Username"`
	Email           string               `bson:"Email" json:"Email"`
	Password        string               `bson:"Password" json:"-"`
	Birthday        *time.Time           `bson:"Birthday,omitempty" json:"Birthday,omitempty"`
	FavouriteMovies []primitive.ObjectID `bson:"FavouriteMovies" json:"FavouriteMovies"`
	ResetToken      *ResetToken          `bson:"ResetToken,omitempty" json:"-"`
}

// Clone returns a deep copy so callers can't mutate shared state.
func (u *User) Clone() *User {
	c := *u
	if u.Birthday != nil {
		b := *u.Birthday
		c.Birthday = &b
	}
	if u.FavouriteMovies != nil {
		c.FavouriteMovies = append([]primitive.ObjectID(nil), u.FavouriteMovies...)
	}
	if u.ResetToken != nil {
		t := *u.ResetToken
		c.ResetToken = &t
	}
	return &c
}
