package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/auth/session"
	"github.com/frahmantamala/pentest-portal/internal/user"
	"golang.org/x/crypto/bcrypt"
)

const stateTTL = 10 * time.Minute

var (
	errSSODisabled        = internal.NewNotFoundError("single sign-on is not configured", internal.ErrCodeSSODisabled)
	errLocalLoginDisabled = internal.NewForbiddenError("password login is disabled", internal.ErrCodeLocalLoginDisabled)
)

type UserService interface {
	UpsertFromProfile(ctx context.Context, profile user.Profile) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

type Options struct {
	LocalLoginEnabled bool
	BCryptCost        int
}

type Service struct {
	users    UserService
	tokens   TokenGenerator
	sessions session.Store
	idp      IdentityProvider
	opts     Options
	logger   *slog.Logger
}

// NewService wires authentication. idp may be nil when only local login is
// enabled.
func NewService(users UserService, tokens TokenGenerator, sessions session.Store, idp IdentityProvider, opts Options, logger *slog.Logger) *Service {
	if opts.BCryptCost == 0 {
		opts.BCryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		idp:      idp,
		opts:     opts,
		logger:   logger,
	}
}

// LocalLogin checks an email/password pair against the stored bcrypt hash.
func (s *Service) LocalLogin(ctx context.Context, dto LoginDTO) (*LoginResult, error) {
	if !s.opts.LocalLoginEnabled {
		return nil, errLocalLoginDisabled
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.HasPassword() {
		s.logger.InfoContext(ctx, "local login rejected", "email", dto.Email)
		return nil, internal.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.InfoContext(ctx, "local login rejected", "email", dto.Email)
		return nil, internal.ErrInvalidCredentials
	}

	return s.startSession(ctx, u, "local")
}

// BeginLogin returns the provider URL to redirect to. The state is stored
// server side and consumed by CompleteLogin.
func (s *Service) BeginLogin(ctx context.Context) (string, error) {
	if s.idp == nil {
		return "", errSSODisabled
	}

	state, err := GenerateRandomToken()
	if err != nil {
		return "", internal.NewInternalError("failed to generate state", err)
	}
	if err := s.sessions.Set(ctx, session.StateKey(state), []byte("1"), stateTTL); err != nil {
		return "", internal.NewInternalError("failed to store login state", err)
	}

	return s.idp.AuthCodeURL(state), nil
}

func (s *Service) CompleteLogin(ctx context.Context, state, code string) (*LoginResult, error) {
	if s.idp == nil {
		return nil, errSSODisabled
	}
	if state == "" || code == "" {
		return nil, internal.ErrInvalidToken
	}

	if _, err := s.sessions.Take(ctx, session.StateKey(state)); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.logger.WarnContext(ctx, "oidc callback with unknown state")
			return nil, internal.ErrInvalidToken
		}
		return nil, internal.NewInternalError("failed to read login state", err)
	}

	identity, err := s.idp.Exchange(ctx, code)
	if err != nil {
		s.logger.WarnContext(ctx, "oidc exchange failed", "error", err)
		return nil, internal.ErrInvalidToken.WithCause(err)
	}

	u, err := s.users.UpsertFromProfile(ctx, user.Profile{
		ID:              identity.Subject,
		Email:           identity.Email,
		FirstName:       identity.FirstName,
		LastName:        identity.LastName,
		ProfileImageURL: identity.ProfileImageURL,
	})
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, u, "oidc")
}

func (s *Service) startSession(ctx context.Context, u *user.User, provider string) (*LoginResult, error) {
	sessionID := newSessionID()
	token, expiresAt, err := s.tokens.Generate(u.ID, u.Email, sessionID)
	if err != nil {
		return nil, internal.NewInternalError("failed to sign session token", err)
	}

	record, err := json.Marshal(Session{
		ID:        sessionID,
		UserID:    u.ID,
		Provider:  provider,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, internal.NewInternalError("failed to encode session", err)
	}
	if err := s.sessions.Set(ctx, session.SessionKey(sessionID), record, time.Until(expiresAt)); err != nil {
		return nil, internal.NewInternalError("failed to store session", err)
	}

	s.logger.InfoContext(ctx, "session started", "user_id", u.ID, "provider", provider)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

// Authenticate resolves a token into the caller. The user row is re-read on
// every call so role changes apply to the very next request.
func (s *Service) Authenticate(ctx context.Context, token string) (*internal.Principal, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	raw, err := s.sessions.Get(ctx, session.SessionKey(claims.ID))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, internal.ErrUnauthenticated
		}
		return nil, internal.NewInternalError("failed to read session", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.UserID != claims.UserID {
		return nil, internal.ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return nil, internal.ErrUnauthenticated
		}
		return nil, err
	}

	return u.Principal(sess.ID), nil
}

// Logout revokes the session behind token. Unknown or expired tokens are
// not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, session.SessionKey(claims.ID)); err != nil {
		return internal.NewInternalError("failed to revoke session", err)
	}
	s.logger.InfoContext(ctx, "session revoked", "user_id", claims.UserID)
	return nil
}

func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.opts.BCryptCost)
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateRandomToken generates a cryptographically secure random token
func GenerateRandomToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
