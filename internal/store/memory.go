package store

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"moviecatalog/internal/models"
)

// Memory is an in-process UserStore. A single mutex gives every method the
// same single-document atomicity the Mongo store has.
type Memory struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func NewMemory() *Memory {
	return &Memory{users: make(map[primitive.ObjectID]*models.User)}
}

func (s *Memory) find(match func(*models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.Username == username })
}

func (s *Memory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.Email == email })
}

func (s *Memory) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (s *Memory) Create(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, ErrDuplicate
		}
	}
	doc := user.Clone()
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	if doc.FavouriteMovies == nil {
		doc.FavouriteMovies = []primitive.ObjectID{}
	}
	s.users[doc.ID] = doc
	return doc.Clone(), nil
}

func (s *Memory) UpdateFields(_ context.Context, username string, upd Update) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.byUsername(username)
	if target == nil {
		return nil, ErrNotFound
	}
	if upd.Email != nil {
		for _, u := range s.users {
			if u != target && u.Email == *upd.Email {
				return nil, ErrDuplicate
			}
		}
		target.Email = *upd.Email
	}
	if upd.Password != nil {
		target.Password = *upd.Password
	}
	if upd.Birthday != nil {
		b := *upd.Birthday
		target.Birthday = &b
	}
	return target.Clone(), nil
}

func (s *Memory) SetResetToken(_ context.Context, userID primitive.ObjectID, token models.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.ResetToken = &token
	return nil
}

func (s *Memory) ClearResetToken(_ context.Context, userID primitive.ObjectID, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.ResetToken == nil || u.ResetToken.TokenHash != tokenHash {
		return false, nil
	}
	u.ResetToken = nil
	return true, nil
}

func (s *Memory) ReplacePassword(_ context.Context, userID primitive.ObjectID, tokenHash, passwordHash string, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.ResetToken == nil || u.ResetToken.TokenHash != tokenHash || u.ResetToken.Expired(now) {
		return nil, ErrNotFound
	}
	u.Password = passwordHash
	u.ResetToken = nil
	return u.Clone(), nil
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) byUsername(username string) *models.User {
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}
