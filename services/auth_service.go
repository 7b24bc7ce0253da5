package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/Dosada05/tcg-tournaments/repositories"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type SignupInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthService interface {
	Signup(ctx context.Context, input SignupInput) (*models.User, error)
	Login(ctx context.Context, input LoginInput) (*models.User, error)
}

type authService struct {
	userRepo repositories.UserRepository
}

func NewAuthService(userRepo repositories.UserRepository) AuthService {
	return &authService{
		userRepo: userRepo,
	}
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup создает учетную запись игрока. Роль при самостоятельной регистрации всегда player.
func (s *authService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	user := &models.User{
		Username: strings.TrimSpace(input.Username),
		Email:    normalizeEmail(input.Email),
		Role:     models.RolePlayer,
	}

	v := &validator{}
	v.check(user.Username != "", "username is required")
	v.check(isValidEmail(user.Email), "a valid email is required")
	v.check(len(input.Password) >= minPasswordLength, ErrPasswordTooShort.Error())
	if err := v.err(); err != nil {
		return nil, err
	}

	hashed, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hashed

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, translateRepoError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrAuthInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrAuthInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}
