package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"moviecatalog/internal/mail"
	"moviecatalog/internal/models"
	"moviecatalog/internal/store"
)

const defaultMailTimeout = 15 * time.Second

// Registration is the input of Register.
type Registration struct {
	Username string
	Password string
	Email    string
	Birthday string
}

// AccountUpdate is the input of UpdateAccount. Empty fields are unchanged.
type AccountUpdate struct {
	Password string
	Email    string
	Birthday string
}

// GatewayConfig wires the collaborators of a Gateway.
type GatewayConfig struct {
	Users       store.UserStore
	Hasher      *Hasher
	Tokens      *TokenIssuer
	Resets      *ResetManager
	Mailer      mail.Sender
	ClientURL   string
	MailTimeout time.Duration
}

// Gateway runs the login, registration and password reset flows.
type Gateway struct {
	users       store.UserStore
	hasher      *Hasher
	tokens      *TokenIssuer
	resets      *ResetManager
	mailer      mail.Sender
	clientURL   string
	mailTimeout time.Duration

	deliveries sync.WaitGroup
}

func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.MailTimeout
	if timeout <= 0 {
		timeout = defaultMailTimeout
	}
	return &Gateway{
		users:       cfg.Users,
		hasher:      cfg.Hasher,
		tokens:      cfg.Tokens,
		resets:      cfg.Resets,
		mailer:      cfg.Mailer,
		clientURL:   strings.TrimRight(cfg.ClientURL, "/"),
		mailTimeout: timeout,
	}
}

// Login checks the password and issues a session token. An unknown username
// and a wrong password are indistinguishable to the caller.
func (g *Gateway) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	logger := zerolog.Ctx(ctx)
	user, err := g.users.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.hasher.verifyDummy(password)
		logger.Info().Str("username", username).Msg("Login failed: unknown username")
		return nil, "", ErrInvalidCredentials
	case err != nil:
		return nil, "", storageError("find user", err)
	}
	if !g.hasher.Verify(password, user.Password) {
		logger.Info().Str("username", username).Msg("Login failed: incorrect password")
		return nil, "", ErrInvalidCredentials
	}
	token, err := g.tokens.Issue(identityOf(user))
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Register validates the input, creates the account and logs it in.
func (g *Gateway) Register(ctx context.Context, in Registration) (*models.User, string, error) {
	violations := check(
		field{param: "Username", value: in.Username, rules: usernameRules},
		field{param: "Password", value: in.Password, secret: true, rules: passwordRules},
		field{param: "Email", value: in.Email, rules: emailRules},
	)
	birthday, ok := parseBirthday(in.Birthday)
	if !ok {
		violations = append(violations, birthdayViolation(in.Birthday))
	}
	if err := validationError(violations); err != nil {
		return nil, "", err
	}

	// Fast path only; the unique indexes decide under concurrency.
	if err := g.conflict(ctx, in.Username, in.Email); err != nil {
		return nil, "", err
	}

	digest, err := g.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", err
	}
	_, err = g.users.Create(ctx, &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: digest,
		Birthday: birthday,
	})
	if errors.Is(err, store.ErrDuplicate) {
		if cerr := g.conflict(ctx, in.Username, in.Email); cerr != nil {
			return nil, "", cerr
		}
		return nil, "", ErrAlreadyExists
	}
	if err != nil {
		return nil, "", storageError("create user", err)
	}
	zerolog.Ctx(ctx).Info().Str("username", in.Username).Msg("User registered")
	return g.Login(ctx, in.Username, in.Password)
}

// RequestReset looks the account up by username, then by email. When found
// a reset link is mailed. Failures after the lookup are logged, not returned.
func (g *Gateway) RequestReset(ctx context.Context, searchTerm string) error {
	logger := zerolog.Ctx(ctx)
	searchTerm = strings.TrimSpace(searchTerm)
	if searchTerm == "" {
		return ErrNotFound
	}
	user, err := g.users.FindByUsername(ctx, searchTerm)
	if errors.Is(err, store.ErrNotFound) {
		user, err = g.users.FindByEmail(ctx, searchTerm)
	}
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storageError("find user", err)
	}

	issued, err := g.resets.RequestReset(ctx, user)
	if err != nil {
		logger.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("Failed to issue password reset token")
		return nil
	}
	g.deliver(ctx, mail.Message{
		To:       user.Email,
		Subject:  "Password Reset Request",
		Template: mail.TemplateRequestReset,
		Data: map[string]any{
			"name":      user.Username,
			"link":      g.resetLink(issued),
			"expiresIn": humanDuration(g.resets.TTL()),
		},
	})
	return nil
}

// ValidateResetToken returns the account the token belongs to.
func (g *Gateway) ValidateResetToken(ctx context.Context, userID, secret string) (*models.User, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		g.resets.matches(nil, secret)
		return nil, ErrTokenInvalidOrExpired
	}
	return g.resets.Validate(ctx, id, secret)
}

// ApplyNewPassword re-validates the reset token itself instead of trusting
// an earlier ValidateResetToken call, then swaps the password and consumes
// the token in one write.
func (g *Gateway) ApplyNewPassword(ctx context.Context, username, secret, newPassword string) (*models.User, error) {
	if err := validationError(check(field{param: "password", value: newPassword, secret: true, rules: passwordRules})); err != nil {
		return nil, err
	}
	user, err := g.users.FindByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		g.resets.matches(nil, secret)
		return nil, ErrTokenInvalidOrExpired
	}
	if err != nil {
		return nil, storageError("find user", err)
	}
	if _, err := g.resets.Validate(ctx, user.ID, secret); err != nil {
		return nil, err
	}
	digest, err := g.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	updated, err := g.resets.Consume(ctx, user.ID, secret, digest)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("username", username).Msg("Password reset")
	g.deliver(ctx, mail.Message{
		To:       updated.Email,
		Subject:  "Password Reset Successfully",
		Template: mail.TemplatePasswordReset,
		Data:     map[string]any{"name": updated.Username},
	})
	return updated, nil
}

// Authenticate resolves a bearer session token to its account.
func (g *Gateway) Authenticate(ctx context.Context, token string) (*models.User, error) {
	id, err := g.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	oid, err := primitive.ObjectIDFromHex(id.UserID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	user, err := g.users.FindByID(ctx, oid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, storageError("find user", err)
	}
	if user.Username != id.Username {
		return nil, ErrTokenInvalid
	}
	return user, nil
}

// Account returns the account of username, provided caller owns it.
func (g *Gateway) Account(ctx context.Context, caller *models.User, username string) (*models.User, error) {
	if caller.Username != username {
		return nil, ErrForbidden
	}
	user, err := g.users.FindByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageError("find user", err)
	}
	return user, nil
}

// UpdateAccount changes the caller's own email, password or birthday. The
// username is immutable.
func (g *Gateway) UpdateAccount(ctx context.Context, caller *models.User, username string, in AccountUpdate) (*models.User, error) {
	if caller.Username != username {
		return nil, ErrForbidden
	}
	var fields []field
	if in.Email != "" {
		fields = append(fields, field{param: "Email", value: in.Email, rules: emailRules})
	}
	if in.Password != "" {
		fields = append(fields, field{param: "Password", value: in.Password, secret: true, rules: passwordRules})
	}
	violations := check(fields...)
	birthday, ok := parseBirthday(in.Birthday)
	if !ok {
		violations = append(violations, birthdayViolation(in.Birthday))
	}
	if err := validationError(violations); err != nil {
		return nil, err
	}

	var upd store.Update
	if in.Email != "" {
		upd.Email = &in.Email
	}
	if in.Password != "" {
		digest, err := g.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		upd.Password = &digest
	}
	upd.Birthday = birthday

	user, err := g.users.UpdateFields(ctx, username, upd)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, store.ErrDuplicate):
		return nil, ErrEmailTaken
	case err != nil:
		return nil, storageError("update user", err)
	}
	return user, nil
}

// conflict reports which of username and email is already taken:
// ErrAlreadyExists for the username, ErrEmailTaken for the email.
func (g *Gateway) conflict(ctx context.Context, username, email string) error {
	if _, err := g.users.FindByUsername(ctx, username); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return storageError("find user", err)
	}
	if _, err := g.users.FindByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return storageError("find user", err)
	}
	return nil
}

// Ping reports whether the credential store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.users.Ping(ctx)
}

// Wait blocks until every queued mail delivery has finished.
func (g *Gateway) Wait() {
	g.deliveries.Wait()
}

// deliver sends msg in the background. The request never waits on it and
// never learns whether it failed.
func (g *Gateway) deliver(ctx context.Context, msg mail.Message) {
	logger := zerolog.Ctx(ctx).With().Str("template", msg.Template).Logger()
	g.deliveries.Add(1)
	go func() {
		defer g.deliveries.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.mailTimeout)
		defer cancel()
		if err := g.mailer.Send(ctx, msg); err != nil {
			logger.Error().Err(fmt.Errorf("%w: %w", ErrDelivery, err)).Msg("Failed to send email")
		}
	}()
}

func (g *Gateway) resetLink(issued IssuedReset) string {
	q := url.Values{}
	q.Set("token", issued.Secret)
	q.Set("id", issued.UserID.Hex())
	return g.clientURL + "/passwordReset?" + q.Encode()
}

func identityOf(u *models.User) Identity {
	return Identity{UserID: u.ID.Hex(), Username: u.Username, Email: u.Email}
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	}
	if m := int(d / time.Minute); m != 1 {
		return fmt.Sprintf("%d minutes", m)
	}
	return "1 minute"
}
