package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/Dosada05/tcg-tournaments/live"
	"github.com/Dosada05/tcg-tournaments/repositories"
)

const publishTimeout = 2 * time.Second

type validator struct {
	messages []string
}

func (v *validator) check(ok bool, message string) {
	if !ok {
		v.messages = append(v.messages, message)
	}
}

func (v *validator) err() error {
	if len(v.messages) == 0 {
		return nil
	}
	return &ValidationError{Messages: v.messages}
}

func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// translateRepoError сводит ошибки репозиториев к ошибкам сервисного слоя.
func translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrRegistrationUserInvalid):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrTournamentNotFound),
		errors.Is(err, repositories.ErrRegistrationTournamentInvalid),
		errors.Is(err, repositories.ErrMatchTournamentInvalid):
		return ErrTournamentNotFound
	case errors.Is(err, repositories.ErrRegistrationNotFound):
		return ErrRegistrationNotFound
	case errors.Is(err, repositories.ErrMatchNotFound):
		return ErrMatchNotFound
	case errors.Is(err, repositories.ErrGameTableNotFound),
		errors.Is(err, repositories.ErrMatchTableInvalid):
		return ErrGameTableNotFound
	case errors.Is(err, repositories.ErrMatchPlayerInvalid):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrMatchSamePlayers):
		return ErrSelfMatch
	case errors.Is(err, repositories.ErrMatchWinnerInvalid):
		return ErrWinnerNotParticipant
	case errors.Is(err, repositories.ErrRegistrationCapacityReached):
		return ErrTournamentFull
	case errors.Is(err, repositories.ErrRegistrationConflict):
		return ErrRegistrationConflict
	case errors.Is(err, repositories.ErrUserEmailConflict):
		return ErrUserEmailConflict
	case errors.Is(err, repositories.ErrGameTableNumberConflict):
		return ErrGameTableNumberConflict
	case errors.Is(err, repositories.ErrUserInUse),
		errors.Is(err, repositories.ErrGameTableInUse):
		return ErrResourceInUse
	case errors.Is(err, repositories.ErrTournamentCheckViolated):
		return &ValidationError{Messages: []string{err.Error()}}
	}
	return err
}

// publish отправляет событие после успешной записи. Ошибка доставки только логируется:
// запись уже зафиксирована, а рассылка best-effort.
func publish(ctx context.Context, publisher live.Publisher, logger *slog.Logger, event live.Event) {
	if publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := publisher.Publish(pubCtx, event); err != nil {
		logger.Warn("failed to publish live event", slog.String("type", event.Type), slog.Any("error", err))
	}
}
