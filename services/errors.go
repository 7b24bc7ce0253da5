package services

import (
	"errors"
	"strings"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден
	ErrNotFound             = errors.New("requested resource not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrMatchNotFound        = errors.New("match not found")
	ErrGameTableNotFound    = errors.New("game table not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed                  = errors.New("validation failed")
	ErrPasswordTooShort                  = errors.New("password must be at least 6 characters long")
	ErrInvalidPaymentStatus              = errors.New("invalid payment status")
	ErrPaymentGenerationFailed           = errors.New("payment could not be generated, please try again")
	ErrSelfMatch                         = errors.New("a player cannot play against themselves")
	ErrWinnerNotParticipant              = errors.New("winner must be a participant")
	ErrTournamentInvalidStatus           = errors.New("invalid tournament status provided")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrArchiveNotConfigured              = errors.New("results archive storage is not configured")

	// Ошибки конфликтов
	ErrRegistrationNotOpen     = errors.New("registration is not open")
	ErrTournamentFull          = errors.New("tournament capacity reached")
	ErrRegistrationConflict    = errors.New("user is already registered for this tournament")
	ErrUserEmailConflict       = errors.New("email address is already in use")
	ErrGameTableNumberConflict = errors.New("game table number is already in use")
	ErrResourceInUse           = errors.New("resource is still referenced by other records")

	// Ошибки аутентификации и авторизации
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")
)

// ValidationError собирает все нарушения входных данных.
// Клиенту показывается только первое сообщение.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return ErrValidationFailed.Error()
	}
	return e.Messages[0]
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func (e *ValidationError) String() string {
	return strings.Join(e.Messages, "; ")
}
