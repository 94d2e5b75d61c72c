package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ehr/mockserver/internal/platform/apierror"
)

type Service struct {
	repo     Repository
	logger   zerolog.Logger
	validate *validator.Validate
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, validate: validator.New()}
}

// check trims u and reports every failing field.
func (s *Service) check(u *User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	err := s.validate.Struct(u)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierror.Internal(err)
	}
	errorCode := apierror.ErrInvalidField
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if fe.Tag() == "required" {
			errorCode = apierror.ErrMissingRequiredFields
			details = append(details, field+" is required")
			continue
		}
		details = append(details, fmt.Sprintf("%s must be a valid %s", field, fe.Tag()))
	}
	return apierror.Validation(errorCode, "invalid user", details...)
}

func (s *Service) fail(op string, id int64, err error) error {
	if errors.Is(err, ErrNotFound) {
		return apierror.NotFound(apierror.ErrUserNotFound, fmt.Sprintf("user %d not found", id))
	}
	s.logger.Error().Err(err).Str("op", op).Msg("user store failure")
	return apierror.Internal(err)
}

func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.fail("list", 0, err)
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.fail("get", id, err)
	}
	return u, nil
}

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	if err := s.check(u); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return s.fail("create", 0, err)
	}
	return nil
}

func (s *Service) UpdateUser(ctx context.Context, u *User) error {
	if err := s.check(u); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return s.fail("update", u.ID, err)
	}
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.fail("delete", id, err)
	}
	return nil
}
