package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/lib/pq"
)

var (
	ErrRegistrationNotFound          = errors.New("registration not found")
	ErrRegistrationConflict          = errors.New("registration conflict: user already registered for this tournament")
	ErrRegistrationCapacityReached   = errors.New("registration rejected: tournament capacity reached")
	ErrRegistrationTournamentInvalid = errors.New("registration tournament conflict or invalid")
	ErrRegistrationUserInvalid       = errors.New("registration user conflict or invalid")
)

type RegistrationFilter struct {
	TournamentID  *int
	UserID        *int
	PaymentStatus *models.PaymentStatus
	// WithPaymentRef оставляет только регистрации с внешним идентификатором платежа.
	WithPaymentRef bool
}

type RegistrationRepository interface {
	// CreateWithinCapacity атомарно проверяет заполненность турнира и вставляет регистрацию.
	// Возвращает количество активных регистраций после вставки.
	CreateWithinCapacity(ctx context.Context, reg *models.Registration) (int, error)
	GetByID(ctx context.Context, id int) (*models.Registration, error)
	FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Registration, error)
	CountActiveByTournament(ctx context.Context, tournamentID int) (int, error)
	List(ctx context.Context, filter RegistrationFilter) ([]*models.Registration, error)
	// UpdateWithinCapacity сохраняет изменения, возвращающие регистрацию в активное состояние,
	// только если в турнире есть свободное место. Возвращает количество активных после обновления.
	UpdateWithinCapacity(ctx context.Context, reg *models.Registration) (int, error)
	Update(ctx context.Context, reg *models.Registration) error
	Delete(ctx context.Context, id int) error
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func activeStatusArray() interface{} {
	statuses := make([]string, len(models.ActivePaymentStatuses))
	for i, s := range models.ActivePaymentStatuses {
		statuses[i] = string(s)
	}
	return pq.Array(statuses)
}

func (r *postgresRegistrationRepository) CreateWithinCapacity(ctx context.Context, reg *models.Registration) (int, error) {
	var active int

	err := withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		maxPlayers, err := lockTournament(ctx, tx, reg.TournamentID)
		if err != nil {
			return err
		}

		active, err = countActive(ctx, tx, reg.TournamentID)
		if err != nil {
			return err
		}
		if active >= maxPlayers {
			return ErrRegistrationCapacityReached
		}

		query := `
			INSERT INTO registrations (tournament_id, user_id, payment_status, payment_ref, provider_status, decklist)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`
		err = tx.QueryRowContext(ctx, query,
			reg.TournamentID,
			reg.UserID,
			reg.PaymentStatus,
			reg.PaymentRef,
			reg.ProviderStatus,
			reg.Decklist,
		).Scan(&reg.ID, &reg.CreatedAt)
		if err != nil {
			return r.handleRegistrationError(err)
		}

		if reg.PaymentStatus.Active() {
			active++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return active, nil
}

// UpdateWithinCapacity сохраняет регистрацию, которая снова занимает место, под той же
// блокировкой турнира, что и CreateWithinCapacity. Сама регистрация в подсчет не входит.
func (r *postgresRegistrationRepository) UpdateWithinCapacity(ctx context.Context, reg *models.Registration) (int, error) {
	var active int

	err := withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		maxPlayers, err := lockTournament(ctx, tx, reg.TournamentID)
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM registrations WHERE tournament_id = $1 AND payment_status = ANY($2) AND id <> $3`,
			reg.TournamentID, activeStatusArray(), reg.ID,
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("failed to count active registrations for tournament %d: %w", reg.TournamentID, err)
		}
		if active >= maxPlayers {
			return ErrRegistrationCapacityReached
		}

		if err := updateRegistration(ctx, tx, reg); err != nil {
			return err
		}
		if reg.PaymentStatus.Active() {
			active++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return active, nil
}

// lockTournament блокирует строку турнира до конца транзакции и возвращает лимит игроков.
func lockTournament(ctx context.Context, tx *sql.Tx, tournamentID int) (int, error) {
	var maxPlayers int
	err := tx.QueryRowContext(ctx,
		`SELECT max_players FROM tournaments WHERE id = $1 FOR UPDATE`, tournamentID,
	).Scan(&maxPlayers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrRegistrationTournamentInvalid
		}
		return 0, fmt.Errorf("failed to lock tournament %d: %w", tournamentID, err)
	}
	return maxPlayers, nil
}

func countActive(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	var count int
	err := exec.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE tournament_id = $1 AND payment_status = ANY($2)`,
		tournamentID, activeStatusArray(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active registrations for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresRegistrationRepository) CountActiveByTournament(ctx context.Context, tournamentID int) (int, error) {
	return countActive(ctx, r.db, tournamentID)
}

const selectRegistrationSQL = `
		SELECT r.id, r.tournament_id, r.user_id, r.payment_status, r.payment_ref, r.provider_status, r.decklist, r.created_at,
		       u.id, u.username, u.email, u.role, u.created_at,
		       t.id, t.name, t.format, t.scheduled_at, t.entry_fee, t.max_players, t.status, t.created_at
		FROM registrations r
		JOIN users u ON u.id = r.user_id
		JOIN tournaments t ON t.id = r.tournament_id`

func scanRegistrationWithDetails(row rowScanner) (*models.Registration, error) {
	var reg models.Registration
	var u models.User
	var t models.Tournament

	err := row.Scan(
		&reg.ID, &reg.TournamentID, &reg.UserID, &reg.PaymentStatus, &reg.PaymentRef, &reg.ProviderStatus, &reg.Decklist, &reg.CreatedAt,
		&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt,
		&t.ID, &t.Name, &t.Format, &t.ScheduledAt, &t.EntryFee, &t.MaxPlayers, &t.Status, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.User = &u
	reg.Tournament = &t
	return &reg, nil
}

func (r *postgresRegistrationRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Registration, error) {
	reg, err := scanRegistrationWithDetails(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	return r.findOne(ctx, selectRegistrationSQL+` WHERE r.id = $1`, id)
}

func (r *postgresRegistrationRepository) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Registration, error) {
	return r.findOne(ctx, selectRegistrationSQL+` WHERE r.user_id = $1 AND r.tournament_id = $2`, userID, tournamentID)
}

func (r *postgresRegistrationRepository) List(ctx context.Context, filter RegistrationFilter) ([]*models.Registration, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(selectRegistrationSQL)

	var conditions []string
	args := []interface{}{}
	if filter.TournamentID != nil {
		args = append(args, *filter.TournamentID)
		conditions = append(conditions, "r.tournament_id = $"+strconv.Itoa(len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, "r.user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.PaymentStatus != nil {
		args = append(args, *filter.PaymentStatus)
		conditions = append(conditions, "r.payment_status = $"+strconv.Itoa(len(args)))
	}
	if filter.WithPaymentRef {
		conditions = append(conditions, "r.payment_ref IS NOT NULL")
	}
	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY r.created_at DESC, r.id DESC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistrationWithDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		registrations = append(registrations, reg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return registrations, nil
}

func (r *postgresRegistrationRepository) Update(ctx context.Context, reg *models.Registration) error {
	return updateRegistration(ctx, r.db, reg)
}

func updateRegistration(ctx context.Context, exec SQLExecutor, reg *models.Registration) error {
	query := `
		UPDATE registrations
		SET payment_status = $1, payment_ref = $2, provider_status = $3, decklist = $4
		WHERE id = $5`

	result, err := exec.ExecContext(ctx, query,
		reg.PaymentStatus, reg.PaymentRef, reg.ProviderStatus, reg.Decklist, reg.ID)
	if err != nil {
		return fmt.Errorf("failed to update registration %d: %w", reg.ID, err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) handleRegistrationError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := asPQError(err); ok {
		switch pqErr.Code {
		case pqUniqueViolation:
			if pqErr.Constraint == "registrations_tournament_id_user_id_key" {
				return ErrRegistrationConflict
			}
		case pqForeignKeyViolation:
			switch pqErr.Constraint {
			case "registrations_user_id_fkey":
				return ErrRegistrationUserInvalid
			case "registrations_tournament_id_fkey":
				return ErrRegistrationTournamentInvalid
			}
		}
	}
	return fmt.Errorf("registration repository: %w", err)
}
