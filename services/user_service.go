package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/Dosada05/tcg-tournaments/repositories"
)

type UpdateUserInput struct {
	Username *string          `json:"username,omitempty"`
	Email    *string          `json:"email,omitempty"`
	Password *string          `json:"password,omitempty"`
	Role     *models.UserRole `json:"role,omitempty"`
}

type UserService interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	// Update меняет профиль. Роль может менять только администратор.
	Update(ctx context.Context, id int, input UpdateUserInput, actorRole models.UserRole) (*models.User, error)
	Delete(ctx context.Context, id int) error
}

type userService struct {
	userRepo repositories.UserRepository
}

func NewUserService(userRepo repositories.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) GetByID(ctx context.Context, id int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	return users, nil
}

func (s *userService) Update(ctx context.Context, id int, input UpdateUserInput, actorRole models.UserRole) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}

	v := &validator{}
	if input.Username != nil {
		user.Username = strings.TrimSpace(*input.Username)
		v.check(user.Username != "", "username is required")
	}
	if input.Email != nil {
		user.Email = normalizeEmail(*input.Email)
		v.check(isValidEmail(user.Email), "a valid email is required")
	}
	if input.Password != nil {
		v.check(len(*input.Password) >= minPasswordLength, ErrPasswordTooShort.Error())
	}
	if input.Role != nil {
		if actorRole != models.RoleAdmin {
			return nil, ErrForbiddenOperation
		}
		v.check(input.Role.Valid(), "role must be admin or player")
		user.Role = *input.Role
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	if input.Password != nil {
		hashed, err := hashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hashed
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, translateRepoError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) Delete(ctx context.Context, id int) error {
	return translateRepoError(s.userRepo.Delete(ctx, id))
}
