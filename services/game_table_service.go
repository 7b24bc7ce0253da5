package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/Dosada05/tcg-tournaments/repositories"
)

type GameTableInput struct {
	TableNumber  *int    `json:"table_number,omitempty"`
	LocationInfo *string `json:"location_info,omitempty"`
	Status       *string `json:"status,omitempty"`
}

type GameTableService interface {
	Create(ctx context.Context, input GameTableInput) (*models.GameTable, error)
	GetByID(ctx context.Context, id int) (*models.GameTable, error)
	List(ctx context.Context) ([]*models.GameTable, error)
	Update(ctx context.Context, id int, input GameTableInput) (*models.GameTable, error)
	Delete(ctx context.Context, id int) error
}

type gameTableService struct {
	repo repositories.GameTableRepository
}

func NewGameTableService(repo repositories.GameTableRepository) GameTableService {
	return &gameTableService{repo: repo}
}

func applyGameTableInput(table *models.GameTable, input GameTableInput) error {
	if input.TableNumber != nil {
		table.TableNumber = *input.TableNumber
	}
	if input.LocationInfo != nil {
		table.LocationInfo = normalizeOptional(input.LocationInfo)
	}
	if input.Status != nil {
		table.Status = strings.TrimSpace(*input.Status)
	}

	v := &validator{}
	v.check(table.TableNumber > 0, "table_number must be a positive integer")
	v.check(table.Status != "", "status must not be empty")
	return v.err()
}

func (s *gameTableService) Create(ctx context.Context, input GameTableInput) (*models.GameTable, error) {
	if input.TableNumber == nil {
		return nil, &ValidationError{Messages: []string{"table_number is required"}}
	}
	table := &models.GameTable{Status: models.GameTableStatusAvailable}
	if err := applyGameTableInput(table, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, table); err != nil {
		return nil, translateRepoError(err)
	}
	return table, nil
}

func (s *gameTableService) GetByID(ctx context.Context, id int) (*models.GameTable, error) {
	table, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return table, nil
}

func (s *gameTableService) List(ctx context.Context) ([]*models.GameTable, error) {
	tables, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list game tables: %w", err)
	}
	return tables, nil
}

func (s *gameTableService) Update(ctx context.Context, id int, input GameTableInput) (*models.GameTable, error) {
	table, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if err := applyGameTableInput(table, input); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, table); err != nil {
		return nil, translateRepoError(err)
	}
	return table, nil
}

func (s *gameTableService) Delete(ctx context.Context, id int) error {
	return translateRepoError(s.repo.Delete(ctx, id))
}
