package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dosada05/tcg-tournaments/models"
)

var (
	ErrTournamentNotFound      = errors.New("tournament not found")
	ErrTournamentCheckViolated = errors.New("tournament violates a table constraint")
)

type TournamentFilter struct {
	Status *models.TournamentStatus
}

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter TournamentFilter) ([]*models.Tournament, error)
	Update(ctx context.Context, t *models.Tournament) error
	Delete(ctx context.Context, id int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const selectTournamentSQL = `
		SELECT id, name, format, scheduled_at, entry_fee, max_players, status, created_at
		FROM tournaments`

func scanTournament(row rowScanner, t *models.Tournament) error {
	return row.Scan(
		&t.ID,
		&t.Name,
		&t.Format,
		&t.ScheduledAt,
		&t.EntryFee,
		&t.MaxPlayers,
		&t.Status,
		&t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, format, scheduled_at, entry_fee, max_players, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name,
		t.Format,
		t.ScheduledAt,
		t.EntryFee,
		t.MaxPlayers,
		t.Status,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	var t models.Tournament
	err := scanTournament(r.db.QueryRowContext(ctx, selectTournamentSQL+` WHERE id = $1`, id), &t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return &t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter TournamentFilter) ([]*models.Tournament, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(selectTournamentSQL)

	args := []interface{}{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		queryBuilder.WriteString(" WHERE status = $" + strconv.Itoa(len(args)))
	}
	queryBuilder.WriteString(" ORDER BY scheduled_at DESC, id DESC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := scanTournament(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) Update(ctx context.Context, t *models.Tournament) error {
	query := `
		UPDATE tournaments
		SET name = $1, format = $2, scheduled_at = $3, entry_fee = $4, max_players = $5, status = $6
		WHERE id = $7`

	result, err := r.db.ExecContext(ctx, query,
		t.Name, t.Format, t.ScheduledAt, t.EntryFee, t.MaxPlayers, t.Status, t.ID)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := asPQError(err); ok && pqErr.Code == pqCheckViolation {
		return fmt.Errorf("%w: %s", ErrTournamentCheckViolated, pqErr.Constraint)
	}
	return fmt.Errorf("tournament repository: %w", err)
}
