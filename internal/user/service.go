package user

import (
	"context"
	"log/slog"
	"strings"

	"github.com/frahmantamala/pentest-portal/internal"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
)

type RepositoryAPI interface {
	Upsert(ctx context.Context, u *userDatamodel.User) (*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User) error
	GetByID(ctx context.Context, id string) (*userDatamodel.User, error)
	GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	List(ctx context.Context) ([]*userDatamodel.User, error)
	UpdateRole(ctx context.Context, id string, role string) (bool, error)
}

type Service struct {
	repo              RepositoryAPI
	publisher         events.Publisher
	roleSwitchEnabled bool
	logger            *slog.Logger
}

func NewService(repo RepositoryAPI, publisher events.Publisher, roleSwitchEnabled bool, logger *slog.Logger) *Service {
	return &Service{
		repo:              repo,
		publisher:         publisher,
		roleSwitchEnabled: roleSwitchEnabled,
		logger:            logger,
	}
}

// UpsertFromProfile records a login. Existing users keep their role; new
// users start as clients.
func (s *Service) UpsertFromProfile(ctx context.Context, profile Profile) (*User, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	row, err := s.repo.Upsert(ctx, &userDatamodel.User{
		ID:              profile.ID,
		Email:           strings.ToLower(profile.Email),
		FirstName:       profile.FirstName,
		LastName:        profile.LastName,
		ProfileImageURL: profile.ProfileImageURL,
		Role:            string(internal.RoleClient),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to upsert user", "error", err, "user_id", profile.ID)
		return nil, internal.NewInternalError("failed to store user", err)
	}

	return FromDataModel(row), nil
}

// CreateLocal stores a password-login user. Used by the seeder.
func (s *Service) CreateLocal(ctx context.Context, u *User) error {
	if err := validateRole(string(u.Role)); err != nil {
		return err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	existing, err := s.repo.GetByEmail(ctx, u.Email)
	if err != nil {
		return internal.NewInternalError("failed to load user", err)
	}
	if existing != nil {
		return internal.ErrEmailTaken
	}
	if err := s.repo.Create(ctx, ToDataModel(u)); err != nil {
		return internal.NewInternalError("failed to create user", err)
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load user", "error", err, "user_id", id)
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return nil, internal.ErrUserNotFound
	}
	return FromDataModel(row), nil
}

// GetByEmail returns nil, nil when no user has the address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	row, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return nil, nil
	}
	return FromDataModel(row), nil
}

func (s *Service) List(ctx context.Context, p *internal.Principal) ([]*User, error) {
	if !p.IsAdmin() {
		return nil, internal.ErrAccessDenied
	}

	rows, err := s.repo.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list users", "error", err)
		return nil, internal.NewInternalError("failed to list users", err)
	}

	users := make([]*User, 0, len(rows))
	for _, row := range rows {
		users = append(users, FromDataModel(row))
	}
	return users, nil
}

// SwitchOwnRole is the self-service role change. It only exists while the
// demo switch is enabled; an invalid role leaves the stored role untouched.
func (s *Service) SwitchOwnRole(ctx context.Context, p *internal.Principal, role string) (*User, error) {
	if p == nil {
		return nil, internal.ErrUnauthenticated
	}
	if !s.roleSwitchEnabled {
		s.logger.WarnContext(ctx, "self role switch attempted while disabled", "user_id", p.UserID)
		return nil, internal.ErrAccessDenied
	}
	return s.setRole(ctx, p.UserID, p.UserID, role)
}

// SetRole is the administrative path and is always available to admins.
func (s *Service) SetRole(ctx context.Context, p *internal.Principal, targetID, role string) (*User, error) {
	if !p.IsAdmin() {
		return nil, internal.ErrAccessDenied
	}
	return s.setRole(ctx, p.UserID, targetID, role)
}

func (s *Service) setRole(ctx context.Context, actorID, targetID, role string) (*User, error) {
	if err := validateRole(role); err != nil {
		s.logger.InfoContext(ctx, "role change rejected", "user_id", targetID, "role", role)
		return nil, err
	}

	before, err := s.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateRole(ctx, targetID, role)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update role", "error", err, "user_id", targetID)
		return nil, internal.NewInternalError("failed to update role", err)
	}
	if !updated {
		return nil, internal.ErrUserNotFound
	}

	after, err := s.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "role changed",
		"user_id", targetID,
		"actor_id", actorID,
		"from", before.Role,
		"to", after.Role)

	if s.publisher != nil {
		event := events.NewDomainEvent(events.EventTypeRoleChanged, actorID, "user", targetID, map[string]interface{}{
			"from": string(before.Role),
			"to":   string(after.Role),
		})
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish role change", "error", err)
		}
	}

	return after, nil
}

func validateRole(role string) error {
	if err := (RoleRequest{Role: role}).Validate(); err != nil {
		return err
	}
	return nil
}
