package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"moviecatalog/internal/mail"
	"moviecatalog/internal/models"
	"moviecatalog/internal/store"
)

// outbox records every message instead of sending it.
type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return o.err
}

func (o *outbox) last(t *testing.T) mail.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1]
}

type gatewayFixture struct {
	gw     *Gateway
	users  *store.Memory
	tokens *TokenIssuer
	resets *ResetManager
	mail   *outbox
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	hasher, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	users := store.NewMemory()
	f := &gatewayFixture{
		users:  users,
		tokens: NewTokenIssuer(testSecret, "moviecatalog", DefaultSessionTTL),
		resets: NewResetManager(users, DefaultResetTTL),
		mail:   &outbox{},
	}
	f.gw = NewGateway(GatewayConfig{
		Users:     users,
		Hasher:    hasher,
		Tokens:    f.tokens,
		Resets:    f.resets,
		Mailer:    f.mail,
		ClientURL: "https://movies.example/",
	})
	return f
}

func (f *gatewayFixture) register(t *testing.T, username, password, email string) (*models.User, string) {
	t.Helper()
	user, token, err := f.gw.Register(context.Background(), Registration{Username: username, Password: password, Email: email})
	require.NoError(t, err)
	return user, token
}

// resetSecret requests a reset and pulls the secret out of the mailed link.
func (f *gatewayFixture) resetSecret(t *testing.T, searchTerm string) (secret, userID string) {
	t.Helper()
	require.NoError(t, f.gw.RequestReset(context.Background(), searchTerm))
	f.gw.Wait()
	msg := f.mail.last(t)
	require.Equal(t, mail.TemplateRequestReset, msg.Template)
	link, err := url.Parse(msg.Data["link"].(string))
	require.NoError(t, err)
	return link.Query().Get("token"), link.Query().Get("id")
}

func TestRegisterThenLogin(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	user, regToken := f.register(t, "alice", "Passw0rd!", "alice@example.com")
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "Passw0rd!", user.Password)

	loggedIn, loginToken, err := f.gw.Login(ctx, "alice", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEqual(t, regToken, loginToken)

	regID, err := f.tokens.Verify(regToken)
	require.NoError(t, err)
	loginID, err := f.tokens.Verify(loginToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", regID.Username)
	assert.Equal(t, regID.Username, loginID.Username)
	assert.Equal(t, user.ID.Hex(), loginID.UserID)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	f := newGatewayFixture(t)
	f.register(t, "alice", "Passw0rd!", "alice@example.com")

	_, _, wrongPassword := f.gw.Login(context.Background(), "alice", "nope")
	_, _, unknownUser := f.gw.Login(context.Background(), "mallory", "Passw0rd!")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestRegisterShortUsername(t *testing.T) {
	f := newGatewayFixture(t)

	_, _, err := f.gw.Register(context.Background(), Registration{Username: "bob", Password: "Passw0rd!", Email: "bob@example.com"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, "Username", verr.Violations[0].Param)
	assert.Equal(t, "Username must be at least 4 characters long", verr.Violations[0].Msg)
	assert.Equal(t, "bob", verr.Violations[0].Value)
}

func TestRegisterListsEveryViolation(t *testing.T) {
	f := newGatewayFixture(t)

	_, _, err := f.gw.Register(context.Background(), Registration{Username: "b!", Email: "not-an-email", Birthday: "yesterday"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	var msgs []string
	for _, v := range verr.Violations {
		msgs = append(msgs, v.Msg)
		if v.Param == "Password" {
			assert.Empty(t, v.Value)
		}
	}
	assert.ElementsMatch(t, []string{
		"Username must be at least 4 characters long",
		"Username contains non alphanumeric chars - not allowed",
		"Password is required",
		"Email does not appear to be valid",
		"Birthday must be a date (YYYY-MM-DD)",
	}, msgs)

	// 40 two-byte runes: 80 bytes, past what bcrypt accepts.
	_, _, err = f.gw.Register(context.Background(), Registration{
		Username: "alice", Password: strings.Repeat("é", 40), Email: "alice@example.com",
	})
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, "Password", verr.Violations[0].Param)
	assert.Equal(t, "Password must be at most 72 bytes long", verr.Violations[0].Msg)
	assert.Empty(t, verr.Violations[0].Value)

	_, _, err = f.gw.Register(context.Background(), Registration{
		Username: "alice", Password: strings.Repeat("é", 36), Email: "alice@example.com",
	})
	assert.NoError(t, err)
}

func TestRegisterBirthday(t *testing.T) {
	f := newGatewayFixture(t)

	user, _, err := f.gw.Register(context.Background(), Registration{
		Username: "alice", Password: "Passw0rd!", Email: "alice@example.com", Birthday: "1990-05-17",
	})
	require.NoError(t, err)
	require.NotNil(t, user.Birthday)
	assert.Equal(t, time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC), *user.Birthday)
}

func TestRegisterDuplicate(t *testing.T) {
	f := newGatewayFixture(t)
	f.register(t, "alice", "Passw0rd!", "alice@example.com")

	_, _, err := f.gw.Register(context.Background(), Registration{Username: "alice", Password: "x", Email: "alice2@example.com"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NotErrorIs(t, err, ErrEmailTaken)

	_, _, err = f.gw.Register(context.Background(), Registration{Username: "alicia", Password: "x", Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

// lateEmailStore misses the first email lookup, as if a concurrent
// registration landed between the lookup and the insert.
type lateEmailStore struct {
	*store.Memory
	missed bool
}

func (s *lateEmailStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if !s.missed {
		s.missed = true
		return nil, store.ErrNotFound
	}
	return s.Memory.FindByEmail(ctx, email)
}

func TestRegisterEmailRaceReportsEmail(t *testing.T) {
	hasher, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	users := &lateEmailStore{Memory: store.NewMemory()}
	_, err = users.Create(context.Background(), &models.User{Username: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	gw := NewGateway(GatewayConfig{
		Users:  users,
		Hasher: hasher,
		Tokens: NewTokenIssuer(testSecret, "moviecatalog", DefaultSessionTTL),
		Resets: NewResetManager(users, DefaultResetTTL),
		Mailer: &outbox{},
	})
	_, _, err = gw.Register(context.Background(), Registration{Username: "alicia", Password: "Passw0rd!", Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestResetScenario(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	user, _ := f.register(t, "alice", "Passw0rd!", "alice@example.com")

	secret, userID := f.resetSecret(t, "alice")
	assert.Equal(t, user.ID.Hex(), userID)
	msg := f.mail.last(t)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "10 minutes", msg.Data["expiresIn"])
	assert.Contains(t, msg.Data["link"], "https://movies.example/passwordReset?")

	got, err := f.gw.ValidateResetToken(ctx, userID, secret)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = f.gw.ApplyNewPassword(ctx, "alice", secret, "N3wPassw0rd!")
	require.NoError(t, err)

	_, err = f.gw.ValidateResetToken(ctx, userID, secret)
	assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
	_, err = f.gw.ApplyNewPassword(ctx, "alice", secret, "Again123!")
	assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)

	_, _, err = f.gw.Login(ctx, "alice", "Passw0rd!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.gw.Login(ctx, "alice", "N3wPassw0rd!")
	assert.NoError(t, err)

	f.gw.Wait()
	assert.Equal(t, mail.TemplatePasswordReset, f.mail.last(t).Template)
}

func TestRequestResetByEmail(t *testing.T) {
	f := newGatewayFixture(t)
	user, _ := f.register(t, "alice", "Passw0rd!", "alice@example.com")

	_, userID := f.resetSecret(t, "alice@example.com")
	assert.Equal(t, user.ID.Hex(), userID)
}

func TestRequestResetUnknownUser(t *testing.T) {
	f := newGatewayFixture(t)

	assert.ErrorIs(t, f.gw.RequestReset(context.Background(), "ghost"), ErrNotFound)
	assert.ErrorIs(t, f.gw.RequestReset(context.Background(), "  "), ErrNotFound)
	f.gw.Wait()
	assert.Empty(t, f.mail.sent)
}

func TestRequestResetSwallowsDeliveryFailure(t *testing.T) {
	f := newGatewayFixture(t)
	f.register(t, "alice", "Passw0rd!", "alice@example.com")
	f.mail.err = errors.New("sendgrid: unexpected status 401")

	assert.NoError(t, f.gw.RequestReset(context.Background(), "alice"))
	f.gw.Wait()
	assert.Len(t, f.mail.sent, 1)
}

func TestApplyNewPasswordRequiresToken(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "Passw0rd!", "alice@example.com")
	f.register(t, "carol", "Passw0rd!", "carol@example.com")

	_, err := f.gw.ApplyNewPassword(ctx, "alice", "", "N3wPassw0rd!")
	assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)

	// A token mailed to carol can't reset alice's password.
	carolSecret, _ := f.resetSecret(t, "carol")
	_, err = f.gw.ApplyNewPassword(ctx, "alice", carolSecret, "N3wPassw0rd!")
	assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)

	_, err = f.gw.ApplyNewPassword(ctx, "ghost", carolSecret, "N3wPassw0rd!")
	assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)

	var verr *ValidationError
	_, err = f.gw.ApplyNewPassword(ctx, "carol", carolSecret, "")
	assert.ErrorAs(t, err, &verr)
}

func TestValidateResetTokenBadUserID(t *testing.T) {
	f := newGatewayFixture(t)
	_, err := f.gw.ValidateResetToken(context.Background(), "not-an-object-id", "secret")
	assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
}

func TestAuthenticate(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	user, token := f.register(t, "alice", "Passw0rd!", "alice@example.com")

	got, err := f.gw.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.gw.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	orphan, err := f.tokens.Issue(Identity{UserID: "64f1c2a9e4b0a1b2c3d4e5f6", Username: "ghost"})
	require.NoError(t, err)
	_, err = f.gw.Authenticate(ctx, orphan)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAccountAccess(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	alice, _ := f.register(t, "alice", "Passw0rd!", "alice@example.com")
	f.register(t, "carol", "Passw0rd!", "carol@example.com")

	got, err := f.gw.Account(ctx, alice, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = f.gw.Account(ctx, alice, "carol")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateAccount(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	alice, _ := f.register(t, "alice", "Passw0rd!", "alice@example.com")
	f.register(t, "carol", "Passw0rd!", "carol@example.com")

	updated, err := f.gw.UpdateAccount(ctx, alice, "alice", AccountUpdate{Email: "alice@movies.example", Password: "Other1234"})
	require.NoError(t, err)
	assert.Equal(t, "alice@movies.example", updated.Email)
	_, _, err = f.gw.Login(ctx, "alice", "Other1234")
	assert.NoError(t, err)

	_, err = f.gw.UpdateAccount(ctx, alice, "alice", AccountUpdate{Email: "carol@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	var verr *ValidationError
	_, err = f.gw.UpdateAccount(ctx, alice, "alice", AccountUpdate{Email: "nope"})
	assert.ErrorAs(t, err, &verr)

	_, err = f.gw.UpdateAccount(ctx, alice, "carol", AccountUpdate{Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "10 minutes", humanDuration(10*time.Minute))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "1 hour", humanDuration(time.Hour))
	assert.Equal(t, "2 hours", humanDuration(2*time.Hour))
}
