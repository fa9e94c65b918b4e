package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"moviecatalog/internal/models"
	"moviecatalog/internal/store"
)

const (
	// DefaultResetTTL is how long a mailed reset link stays usable.
	DefaultResetTTL = 10 * time.Minute

	resetSecretBytes = 32
)

// placeholderHash stands in for a missing token so the "no token" path does
// the same comparison as the "wrong secret" path.
var placeholderHash = hashSecret("no-pending-reset")

// IssuedReset is returned once per request. Secret is the only copy of the
// plaintext and must go straight into the recovery link.
type IssuedReset struct {
	UserID    primitive.ObjectID
	Secret    string
	ExpiresAt time.Time
}

// ResetManager owns the pending reset token embedded in each user record.
// A user has at most one pending token: issuing replaces, consuming clears.
type ResetManager struct {
	users store.UserStore
	ttl   time.Duration
	now   func() time.Time
}

func NewResetManager(users store.UserStore, ttl time.Duration) *ResetManager {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &ResetManager{users: users, ttl: ttl, now: time.Now}
}

// TTL returns the validity window of newly issued tokens.
func (m *ResetManager) TTL() time.Duration { return m.ttl }

// RequestReset generates a fresh secret for user and stores its hash,
// replacing any pending token in the same write.
func (m *ResetManager) RequestReset(ctx context.Context, user *models.User) (IssuedReset, error) {
	secret, err := generateSecret()
	if err != nil {
		return IssuedReset{}, err
	}
	now := m.now()
	token := models.ResetToken{
		UserID:    user.ID,
		TokenHash: hashSecret(secret),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.users.SetResetToken(ctx, user.ID, token); err != nil {
		return IssuedReset{}, storageError("store reset token", err)
	}
	zerolog.Ctx(ctx).Info().
		Str("user_id", user.ID.Hex()).
		Time("expires_at", token.ExpiresAt).
		Msg("Password reset token issued")
	return IssuedReset{UserID: user.ID, Secret: secret, ExpiresAt: token.ExpiresAt}, nil
}

// Validate returns the owner of the pending token if secret matches it and
// it has not expired. Every failure is ErrTokenInvalidOrExpired.
func (m *ResetManager) Validate(ctx context.Context, userID primitive.ObjectID, secret string) (*models.User, error) {
	user, err := m.users.FindByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		m.matches(nil, secret)
		return nil, ErrTokenInvalidOrExpired
	}
	if err != nil {
		return nil, storageError("find user", err)
	}
	if err := m.check(ctx, user, secret); err != nil {
		return nil, err
	}
	return user, nil
}

// Consume applies the new password hash the token authorised and clears the
// token in one conditional write. If the token was replaced or consumed in
// the meantime nothing changes and ErrTokenInvalidOrExpired is returned.
func (m *ResetManager) Consume(ctx context.Context, userID primitive.ObjectID, secret, passwordHash string) (*models.User, error) {
	user, err := m.users.ReplacePassword(ctx, userID, hashSecret(secret), passwordHash, m.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTokenInvalidOrExpired
	}
	if err != nil {
		return nil, storageError("replace password", err)
	}
	zerolog.Ctx(ctx).Info().Str("user_id", userID.Hex()).Msg("Password reset token consumed")
	return user, nil
}

func (m *ResetManager) check(ctx context.Context, user *models.User, secret string) error {
	token := user.ResetToken
	matched := m.matches(token, secret)
	if token == nil {
		return ErrTokenInvalidOrExpired
	}
	if token.Expired(m.now()) {
		// Dead tokens are cleared lazily, on the first attempt after expiry.
		if _, err := m.users.ClearResetToken(ctx, user.ID, token.TokenHash); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("user_id", user.ID.Hex()).Msg("Failed to clear expired reset token")
		}
		return ErrTokenInvalidOrExpired
	}
	if !matched || token.UserID != user.ID {
		return ErrTokenInvalidOrExpired
	}
	return nil
}

func (m *ResetManager) matches(token *models.ResetToken, secret string) bool {
	stored := placeholderHash
	if token != nil {
		stored = token.TokenHash
	}
	return subtle.ConstantTimeCompare([]byte(hashSecret(secret)), []byte(stored)) == 1
}

func generateSecret() (string, error) {
	b := make([]byte, resetSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
