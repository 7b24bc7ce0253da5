package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/Dosada05/tcg-tournaments/repositories"
	"github.com/Dosada05/tcg-tournaments/storage"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	maxTournamentNameLength   = 100
	maxTournamentFormatLength = 100
	archiveUploadTimeout      = 30 * time.Second
)

type CreateTournamentInput struct {
	Name        string          `json:"name"`
	Format      *string         `json:"format,omitempty"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	EntryFee    decimal.Decimal `json:"entry_fee"`
	MaxPlayers  *int            `json:"max_players,omitempty"`
}

type UpdateTournamentInput struct {
	Name        *string                  `json:"name,omitempty"`
	Format      *string                  `json:"format,omitempty"`
	ScheduledAt *time.Time               `json:"scheduled_at,omitempty"`
	EntryFee    *decimal.Decimal         `json:"entry_fee,omitempty"`
	MaxPlayers  *int                     `json:"max_players,omitempty"`
	Status      *models.TournamentStatus `json:"status,omitempty"`
}

type ListTournamentsFilter struct {
	Status *models.TournamentStatus
}

// TournamentResults - снимок завершенного турнира для архива.
type TournamentResults struct {
	Tournament    *models.Tournament     `json:"tournament"`
	Registrations []*models.Registration `json:"registrations"`
	Matches       []*models.Match        `json:"matches"`
	GeneratedAt   time.Time              `json:"generated_at"`
}

type TournamentService interface {
	Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]*models.Tournament, error)
	Update(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error)
	Delete(ctx context.Context, id int) error
	ArchiveResults(ctx context.Context, id int) (*storage.UploadResult, error)
}

type tournamentService struct {
	tournamentRepo repositories.TournamentRepository
	regRepo        repositories.RegistrationRepository
	matchRepo      repositories.MatchRepository
	uploader       storage.FileUploader
	logger         *slog.Logger
	now            func() time.Time
}

// NewTournamentService. uploader может быть nil, тогда архив результатов отключен.
func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	regRepo repositories.RegistrationRepository,
	matchRepo repositories.MatchRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		tournamentRepo: tournamentRepo,
		regRepo:        regRepo,
		matchRepo:      matchRepo,
		uploader:       uploader,
		logger:         logger,
		now:            time.Now,
	}
}

func validateTournament(t *models.Tournament) error {
	v := &validator{}
	name := strings.TrimSpace(t.Name)
	v.check(name != "", "name is required")
	v.check(utf8.RuneCountInString(name) <= maxTournamentNameLength, "name must not exceed 100 characters")
	if t.Format != nil {
		v.check(utf8.RuneCountInString(*t.Format) <= maxTournamentFormatLength, "format must not exceed 100 characters")
	}
	v.check(!t.ScheduledAt.IsZero(), "scheduled_at is required")
	v.check(!t.EntryFee.IsNegative(), "entry_fee must not be negative")
	v.check(t.EntryFee.Equal(t.EntryFee.Round(2)), "entry_fee must have at most 2 decimal places")
	v.check(t.MaxPlayers >= models.MinMaxPlayers, "max_players must be at least 2")
	v.check(t.Status.Valid(), ErrTournamentInvalidStatus.Error())
	return v.err()
}

func (s *tournamentService) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	t := &models.Tournament{
		Name:        strings.TrimSpace(input.Name),
		Format:      normalizeOptional(input.Format),
		ScheduledAt: input.ScheduledAt,
		EntryFee:    input.EntryFee,
		MaxPlayers:  models.DefaultMaxPlayers,
		Status:      models.TournamentStatusOpen,
	}
	if input.MaxPlayers != nil {
		t.MaxPlayers = *input.MaxPlayers
	}
	if err := validateTournament(t); err != nil {
		return nil, err
	}

	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		return nil, translateRepoError(err)
	}
	s.logger.Info("tournament created", slog.Int("tournament_id", t.ID), slog.String("name", t.Name))
	return t, nil
}

func (s *tournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return t, nil
}

func (s *tournamentService) List(ctx context.Context, filter ListTournamentsFilter) ([]*models.Tournament, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, ErrTournamentInvalidStatus
	}
	tournaments, err := s.tournamentRepo.List(ctx, repositories.TournamentFilter{Status: filter.Status})
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	return tournaments, nil
}

func (s *tournamentService) Update(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	previousStatus := t.Status

	if input.Name != nil {
		t.Name = strings.TrimSpace(*input.Name)
	}
	if input.Format != nil {
		t.Format = normalizeOptional(input.Format)
	}
	if input.ScheduledAt != nil {
		t.ScheduledAt = *input.ScheduledAt
	}
	if input.EntryFee != nil {
		t.EntryFee = *input.EntryFee
	}
	if input.MaxPlayers != nil {
		t.MaxPlayers = *input.MaxPlayers
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, ErrTournamentInvalidStatus
		}
		if !previousStatus.CanTransitionTo(*input.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrTournamentInvalidStatusTransition, previousStatus, *input.Status)
		}
		t.Status = *input.Status
	}
	if err := validateTournament(t); err != nil {
		return nil, err
	}

	if input.MaxPlayers != nil {
		active, err := s.regRepo.CountActiveByTournament(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to count registrations for tournament %d: %w", id, err)
		}
		if t.MaxPlayers < active {
			return nil, &ValidationError{Messages: []string{
				fmt.Sprintf("max_players cannot be lower than the %d active registrations", active),
			}}
		}
	}

	if err := s.tournamentRepo.Update(ctx, t); err != nil {
		return nil, translateRepoError(err)
	}

	if previousStatus != t.Status {
		s.logger.Info("tournament status changed",
			slog.Int("tournament_id", t.ID),
			slog.String("from", string(previousStatus)),
			slog.String("to", string(t.Status)),
		)
		if t.Status == models.TournamentStatusFinished {
			s.archiveOnFinish(ctx, t.ID)
		}
	}
	return t, nil
}

func (s *tournamentService) Delete(ctx context.Context, id int) error {
	if err := s.tournamentRepo.Delete(ctx, id); err != nil {
		return translateRepoError(err)
	}
	s.logger.Info("tournament deleted", slog.Int("tournament_id", id))
	return nil
}

func (s *tournamentService) ArchiveResults(ctx context.Context, id int) (*storage.UploadResult, error) {
	if s.uploader == nil {
		return nil, ErrArchiveNotConfigured
	}

	results := &TournamentResults{GeneratedAt: s.now().UTC()}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gCtx, id)
		if err != nil {
			return translateRepoError(err)
		}
		results.Tournament = t
		return nil
	})
	g.Go(func() error {
		regs, err := s.regRepo.List(gCtx, repositories.RegistrationFilter{TournamentID: &id})
		if err != nil {
			return fmt.Errorf("failed to load registrations: %w", err)
		}
		results.Registrations = regs
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.List(gCtx, repositories.MatchFilter{TournamentID: &id})
		if err != nil {
			return fmt.Errorf("failed to load matches: %w", err)
		}
		results.Matches = matches
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Вложенный турнир в каждой регистрации дублирует корень снимка.
	for _, reg := range results.Registrations {
		reg.Tournament = nil
	}

	body, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode results of tournament %d: %w", id, err)
	}

	key := fmt.Sprintf("tournaments/%d/results-%d.json", id, results.GeneratedAt.Unix())
	uploaded, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to upload results of tournament %d: %w", id, err)
	}

	s.logger.Info("tournament results archived",
		slog.Int("tournament_id", id),
		slog.String("key", uploaded.Key),
		slog.String("location", uploaded.Location),
	)
	return uploaded, nil
}

// archiveOnFinish выгружает результаты при завершении турнира. Ошибки не отменяют смену статуса.
func (s *tournamentService) archiveOnFinish(ctx context.Context, id int) {
	if s.uploader == nil {
		s.logger.Info("results archive skipped: storage is not configured", slog.Int("tournament_id", id))
		return
	}
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveUploadTimeout)
	defer cancel()
	if _, err := s.ArchiveResults(archiveCtx, id); err != nil {
		s.logger.Error("failed to archive finished tournament", slog.Int("tournament_id", id), slog.Any("error", err))
	}
}
