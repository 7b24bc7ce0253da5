package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tcg-tournaments/models"
)

var (
	ErrGameTableNotFound       = errors.New("game table not found")
	ErrGameTableNumberConflict = errors.New("game table number conflict")
	ErrGameTableInUse          = errors.New("game table is referenced by matches")
)

type GameTableRepository interface {
	Create(ctx context.Context, table *models.GameTable) error
	GetByID(ctx context.Context, id int) (*models.GameTable, error)
	List(ctx context.Context) ([]*models.GameTable, error)
	Update(ctx context.Context, table *models.GameTable) error
	Delete(ctx context.Context, id int) error
}

type postgresGameTableRepository struct {
	db *sql.DB
}

func NewPostgresGameTableRepository(db *sql.DB) GameTableRepository {
	return &postgresGameTableRepository{db: db}
}

func (r *postgresGameTableRepository) Create(ctx context.Context, table *models.GameTable) error {
	query := `
		INSERT INTO game_tables (table_number, location_info, status)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query, table.TableNumber, table.LocationInfo, table.Status).Scan(&table.ID)
	return r.handleGameTableError(err)
}

func (r *postgresGameTableRepository) GetByID(ctx context.Context, id int) (*models.GameTable, error) {
	query := `SELECT id, table_number, location_info, status FROM game_tables WHERE id = $1`

	var t models.GameTable
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.TableNumber, &t.LocationInfo, &t.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameTableNotFound
		}
		return nil, fmt.Errorf("failed to get game table %d: %w", id, err)
	}
	return &t, nil
}

func (r *postgresGameTableRepository) List(ctx context.Context) ([]*models.GameTable, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, table_number, location_info, status FROM game_tables ORDER BY table_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list game tables: %w", err)
	}
	defer rows.Close()

	tables := make([]*models.GameTable, 0)
	for rows.Next() {
		var t models.GameTable
		if err := rows.Scan(&t.ID, &t.TableNumber, &t.LocationInfo, &t.Status); err != nil {
			return nil, fmt.Errorf("failed to scan game table row: %w", err)
		}
		tables = append(tables, &t)
	}
	return tables, rows.Err()
}

func (r *postgresGameTableRepository) Update(ctx context.Context, table *models.GameTable) error {
	query := `UPDATE game_tables SET table_number = $1, location_info = $2, status = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, table.TableNumber, table.LocationInfo, table.Status, table.ID)
	if err != nil {
		return r.handleGameTableError(err)
	}
	return checkAffectedRows(result, ErrGameTableNotFound)
}

func (r *postgresGameTableRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM game_tables WHERE id = $1`, id)
	if err != nil {
		return r.handleGameTableError(err)
	}
	return checkAffectedRows(result, ErrGameTableNotFound)
}

func (r *postgresGameTableRepository) handleGameTableError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := asPQError(err); ok {
		switch pqErr.Code {
		case pqUniqueViolation:
			if pqErr.Constraint == "game_tables_table_number_key" {
				return ErrGameTableNumberConflict
			}
		case pqForeignKeyViolation:
			return ErrGameTableInUse
		}
	}
	return fmt.Errorf("game table repository: %w", err)
}
