package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tcg-tournaments/live"
	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/Dosada05/tcg-tournaments/repositories"
	"golang.org/x/sync/errgroup"
)

type CreateMatchInput struct {
	TournamentID int        `json:"tournament_id"`
	TableID      int        `json:"table_id"`
	Player1ID    int        `json:"player1_id"`
	Player2ID    int        `json:"player2_id"`
	Round        int        `json:"round"`
	StartTime    *time.Time `json:"start_time,omitempty"`
}

type UpdateMatchInput struct {
	WinnerID *int       `json:"winner_id,omitempty"`
	IsDraw   *bool      `json:"is_draw,omitempty"`
	EndTime  *time.Time `json:"end_time,omitempty"`
}

type MatchListFilter struct {
	TournamentID *int
	Round        *int
}

type MatchService interface {
	Create(ctx context.Context, input CreateMatchInput) (*models.Match, error)
	GetByID(ctx context.Context, id int) (*models.Match, error)
	List(ctx context.Context, filter MatchListFilter) ([]*models.Match, error)
	// Update фиксирует результат матча и рассылает событие, если назначен победитель.
	Update(ctx context.Context, id int, input UpdateMatchInput) (*models.Match, error)
	Delete(ctx context.Context, id int) error
}

type matchService struct {
	matchRepo      repositories.MatchRepository
	tournamentRepo repositories.TournamentRepository
	tableRepo      repositories.GameTableRepository
	userRepo       repositories.UserRepository
	publisher      live.Publisher
	logger         *slog.Logger
	now            func() time.Time
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	tableRepo repositories.GameTableRepository,
	userRepo repositories.UserRepository,
	publisher live.Publisher,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		matchRepo:      matchRepo,
		tournamentRepo: tournamentRepo,
		tableRepo:      tableRepo,
		userRepo:       userRepo,
		publisher:      publisher,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *matchService) Create(ctx context.Context, input CreateMatchInput) (*models.Match, error) {
	// Игра против самого себя отклоняется до любых обращений к базе.
	if input.Player1ID == input.Player2ID {
		return nil, ErrSelfMatch
	}

	v := &validator{}
	v.check(input.TournamentID > 0, "tournament_id must be a positive integer")
	v.check(input.TableID > 0, "table_id must be a positive integer")
	v.check(input.Player1ID > 0 && input.Player2ID > 0, "player ids must be positive integers")
	v.check(input.Round >= 1, "round must be at least 1")
	if err := v.err(); err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.tournamentRepo.GetByID(gCtx, input.TournamentID)
		return translateRepoError(err)
	})
	g.Go(func() error {
		_, err := s.tableRepo.GetByID(gCtx, input.TableID)
		return translateRepoError(err)
	})
	for _, playerID := range []int{input.Player1ID, input.Player2ID} {
		playerID := playerID
		g.Go(func() error {
			_, err := s.userRepo.GetByID(gCtx, playerID)
			return translateRepoError(err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	match := &models.Match{
		TournamentID: input.TournamentID,
		TableID:      input.TableID,
		Player1ID:    input.Player1ID,
		Player2ID:    input.Player2ID,
		Round:        input.Round,
		StartTime:    s.now().UTC(),
	}
	if input.StartTime != nil {
		match.StartTime = *input.StartTime
	}

	if err := s.matchRepo.Create(ctx, match); err != nil {
		return nil, translateRepoError(err)
	}

	s.logger.Info("match created",
		slog.Int("match_id", match.ID),
		slog.Int("tournament_id", match.TournamentID),
		slog.Int("round", match.Round),
	)
	return match, nil
}

func (s *matchService) GetByID(ctx context.Context, id int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return match, nil
}

func (s *matchService) List(ctx context.Context, filter MatchListFilter) ([]*models.Match, error) {
	matches, err := s.matchRepo.List(ctx, repositories.MatchFilter{
		TournamentID: filter.TournamentID,
		Round:        filter.Round,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return matches, nil
}

func (s *matchService) Update(ctx context.Context, id int, input UpdateMatchInput) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}

	if input.WinnerID != nil && input.IsDraw != nil && *input.IsDraw {
		return nil, &ValidationError{Messages: []string{"winner_id and is_draw cannot be set together"}}
	}

	previousWinner := match.WinnerID
	// Победитель и ничья взаимоисключающие: новое значение одного снимает другое.
	if input.WinnerID != nil {
		if !match.HasParticipant(*input.WinnerID) {
			return nil, ErrWinnerNotParticipant
		}
		winner := *input.WinnerID
		match.WinnerID = &winner
		match.IsDraw = false
	}
	if input.IsDraw != nil {
		match.IsDraw = *input.IsDraw
		if match.IsDraw {
			match.WinnerID = nil
		}
	}
	if input.EndTime != nil {
		endTime := *input.EndTime
		match.EndTime = &endTime
	}
	if match.Finished() && match.EndTime == nil {
		endTime := s.now().UTC()
		match.EndTime = &endTime
	}

	if previousWinner != nil && match.WinnerID != nil && *previousWinner != *match.WinnerID {
		s.logger.Warn("finished match winner changed",
			slog.Int("match_id", match.ID),
			slog.Int("previous_winner_id", *previousWinner),
			slog.Int("winner_id", *match.WinnerID),
		)
	}

	if err := s.matchRepo.Update(ctx, match); err != nil {
		return nil, translateRepoError(err)
	}

	if input.WinnerID != nil {
		publish(ctx, s.publisher, s.logger, live.NewMatchFinishedEvent(match.ID, match.WinnerID, s.now()))
	}
	return match, nil
}

func (s *matchService) Delete(ctx context.Context, id int) error {
	if err := s.matchRepo.Delete(ctx, id); err != nil {
		return translateRepoError(err)
	}
	s.logger.Info("match deleted", slog.Int("match_id", id))
	return nil
}
