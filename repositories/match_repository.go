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
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchTournamentInvalid = errors.New("match tournament conflict or invalid")
	ErrMatchTableInvalid      = errors.New("match table conflict or invalid")
	ErrMatchPlayerInvalid     = errors.New("match player conflict or invalid")
	ErrMatchSamePlayers       = errors.New("match players must be distinct")
	ErrMatchWinnerInvalid     = errors.New("match winner must be one of the players")
)

type MatchFilter struct {
	TournamentID *int
	Round        *int
}

type MatchRepository interface {
	Create(ctx context.Context, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	List(ctx context.Context, filter MatchFilter) ([]*models.Match, error)
	Update(ctx context.Context, match *models.Match) error
	Delete(ctx context.Context, id int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const selectMatchSQL = `
		SELECT id, tournament_id, table_id, player1_id, player2_id, round, start_time, end_time, winner_id, is_draw
		FROM matches`

func scanMatch(row rowScanner, m *models.Match) error {
	return row.Scan(
		&m.ID,
		&m.TournamentID,
		&m.TableID,
		&m.Player1ID,
		&m.Player2ID,
		&m.Round,
		&m.StartTime,
		&m.EndTime,
		&m.WinnerID,
		&m.IsDraw,
	)
}

func (r *postgresMatchRepository) Create(ctx context.Context, match *models.Match) error {
	query := `
		INSERT INTO matches (tournament_id, table_id, player1_id, player2_id, round, start_time, end_time, winner_id, is_draw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		match.TournamentID,
		match.TableID,
		match.Player1ID,
		match.Player2ID,
		match.Round,
		match.StartTime,
		match.EndTime,
		match.WinnerID,
		match.IsDraw,
	).Scan(&match.ID)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	var m models.Match
	err := scanMatch(r.db.QueryRowContext(ctx, selectMatchSQL+` WHERE id = $1`, id), &m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return &m, nil
}

func (r *postgresMatchRepository) List(ctx context.Context, filter MatchFilter) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(selectMatchSQL)

	var conditions []string
	args := []interface{}{}
	if filter.TournamentID != nil {
		args = append(args, *filter.TournamentID)
		conditions = append(conditions, "tournament_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Round != nil {
		args = append(args, *filter.Round)
		conditions = append(conditions, "round = $"+strconv.Itoa(len(args)))
	}
	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY start_time DESC, id DESC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var m models.Match
		if err := scanMatch(rows, &m); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, &m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) Update(ctx context.Context, match *models.Match) error {
	query := `
		UPDATE matches
		SET end_time = $1, winner_id = $2, is_draw = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, match.EndTime, match.WinnerID, match.IsDraw, match.ID)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := asPQError(err); ok {
		switch pqErr.Constraint {
		case "matches_tournament_id_fkey":
			return ErrMatchTournamentInvalid
		case "matches_table_id_fkey":
			return ErrMatchTableInvalid
		case "matches_player1_id_fkey", "matches_player2_id_fkey", "matches_winner_id_fkey":
			return ErrMatchPlayerInvalid
		case "chk_matches_distinct_players":
			return ErrMatchSamePlayers
		case "chk_matches_winner_participant":
			return ErrMatchWinnerInvalid
		}
	}
	return fmt.Errorf("match repository: %w", err)
}
