package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tcg-tournaments/live"
	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/Dosada05/tcg-tournaments/payments"
	"github.com/Dosada05/tcg-tournaments/repositories"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPaymentTimeout = 15 * time.Second
	cancelPaymentTimeout  = 10 * time.Second
)

type CreateRegistrationInput struct {
	TournamentID int     `json:"tournament_id"`
	UserID       int     `json:"user_id"`
	Decklist     *string `json:"decklist,omitempty"`
}

// UpdateRegistrationInput - частичное обновление. Турнир и игрок регистрации неизменяемы.
type UpdateRegistrationInput struct {
	PaymentStatus *models.PaymentStatus `json:"payment_status,omitempty"`
	PaymentRef    *string               `json:"payment_ref,omitempty"`
	Decklist      *string               `json:"decklist,omitempty"`
}

type RegistrationListFilter struct {
	TournamentID  *int
	UserID        *int
	PaymentStatus *models.PaymentStatus
}

// RegistrationReceipt - созданная регистрация вместе с реквизитами PIX для оплаты.
type RegistrationReceipt struct {
	*models.Registration
	Pix *payments.Payment `json:"pix"`
}

type CapacitySnapshot struct {
	TournamentID   int  `json:"tournament_id"`
	CurrentPlayers int  `json:"current_players"`
	MaxPlayers     int  `json:"max_players"`
	IsFull         bool `json:"is_full"`
}

type RegistrationService interface {
	Create(ctx context.Context, input CreateRegistrationInput) (*RegistrationReceipt, error)
	GetByID(ctx context.Context, id int) (*models.Registration, error)
	List(ctx context.Context, filter RegistrationListFilter) ([]*models.Registration, error)
	Update(ctx context.Context, id int, input UpdateRegistrationInput) (*models.Registration, error)
	Delete(ctx context.Context, id int) error
	Capacity(ctx context.Context, tournamentID int) (*CapacitySnapshot, error)
	// SyncPendingPayments сверяет ожидающие оплаты с провайдером и возвращает число обновленных регистраций.
	SyncPendingPayments(ctx context.Context) (int, error)
}

type RegistrationServiceConfig struct {
	PaymentTimeout time.Duration
}

type registrationService struct {
	regRepo        repositories.RegistrationRepository
	userRepo       repositories.UserRepository
	tournamentRepo repositories.TournamentRepository
	gateway        payments.Gateway
	publisher      live.Publisher
	admission      *admissionLocks
	paymentTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func NewRegistrationService(
	regRepo repositories.RegistrationRepository,
	userRepo repositories.UserRepository,
	tournamentRepo repositories.TournamentRepository,
	gateway payments.Gateway,
	publisher live.Publisher,
	cfg RegistrationServiceConfig,
	logger *slog.Logger,
) RegistrationService {
	timeout := cfg.PaymentTimeout
	if timeout <= 0 {
		timeout = defaultPaymentTimeout
	}
	return &registrationService{
		regRepo:        regRepo,
		userRepo:       userRepo,
		tournamentRepo: tournamentRepo,
		gateway:        gateway,
		publisher:      publisher,
		admission:      newAdmissionLocks(),
		paymentTimeout: timeout,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *registrationService) Create(ctx context.Context, input CreateRegistrationInput) (*RegistrationReceipt, error) {
	v := &validator{}
	v.check(input.TournamentID > 0, "tournament_id must be a positive integer")
	v.check(input.UserID > 0, "user_id must be a positive integer")
	if err := v.err(); err != nil {
		return nil, err
	}

	var (
		user       *models.User
		tournament *models.Tournament
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.userRepo.GetByID(gCtx, input.UserID)
		if err != nil {
			return translateRepoError(err)
		}
		user = u
		return nil
	})
	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gCtx, input.TournamentID)
		if err != nil {
			return translateRepoError(err)
		}
		tournament = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if tournament.Status != models.TournamentStatusOpen {
		return nil, ErrRegistrationNotOpen
	}

	unlock := s.admission.Lock(tournament.ID)
	defer unlock()

	active, err := s.regRepo.CountActiveByTournament(ctx, tournament.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count registrations for tournament %d: %w", tournament.ID, err)
	}
	if active >= tournament.MaxPlayers {
		return nil, ErrTournamentFull
	}

	_, err = s.regRepo.FindByUserAndTournament(ctx, user.ID, tournament.ID)
	switch {
	case err == nil:
		return nil, ErrRegistrationConflict
	case !errors.Is(err, repositories.ErrRegistrationNotFound):
		return nil, fmt.Errorf("failed to check existing registration: %w", err)
	}

	payment, err := s.requestPayment(ctx, user, tournament)
	if err != nil {
		return nil, err
	}

	ref := payment.ID
	providerStatus := payment.ProviderStatus
	reg := &models.Registration{
		TournamentID:   tournament.ID,
		UserID:         user.ID,
		PaymentStatus:  payment.Status,
		PaymentRef:     &ref,
		ProviderStatus: &providerStatus,
		Decklist:       normalizeOptional(input.Decklist),
	}

	active, err = s.regRepo.CreateWithinCapacity(ctx, reg)
	if err != nil {
		// Платеж уже выставлен, а места нет: отменяем его, чтобы игрок не заплатил зря.
		s.cancelPayment(ctx, payment.ID, tournament.ID)
		translated := translateRepoError(err)
		if errors.Is(translated, ErrTournamentFull) || errors.Is(translated, ErrRegistrationConflict) {
			return nil, translated
		}
		return nil, fmt.Errorf("failed to persist registration: %w", translated)
	}

	reg.User = user
	reg.Tournament = tournament

	s.logger.Info("registration created",
		slog.Int("registration_id", reg.ID),
		slog.Int("tournament_id", tournament.ID),
		slog.Int("user_id", user.ID),
		slog.String("payment_ref", ref),
	)
	s.publishCapacity(ctx, tournament.ID, active, tournament.MaxPlayers)

	return &RegistrationReceipt{Registration: reg, Pix: payment}, nil
}

func (s *registrationService) requestPayment(ctx context.Context, user *models.User, tournament *models.Tournament) (*payments.Payment, error) {
	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	payment, err := s.gateway.CreatePayment(payCtx, payments.PaymentRequest{
		Amount:      tournament.EntryFee,
		Description: fmt.Sprintf("Registration for tournament: %s", tournament.Name),
		PayerEmail:  user.Email,
	})
	if err != nil {
		if errors.Is(err, payments.ErrNotConfigured) {
			s.logger.Error("payment provider is not configured", slog.Int("tournament_id", tournament.ID))
		} else {
			s.logger.Warn("failed to create PIX payment",
				slog.Int("tournament_id", tournament.ID),
				slog.Int("user_id", user.ID),
				slog.Any("error", err),
			)
		}
		return nil, ErrPaymentGenerationFailed
	}

	s.logger.Info("PIX payment generated", slog.String("payment_ref", payment.ID), slog.Int("tournament_id", tournament.ID))
	return payment, nil
}

func (s *registrationService) cancelPayment(ctx context.Context, paymentID string, tournamentID int) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelPaymentTimeout)
	defer cancel()

	if err := s.gateway.CancelPayment(cancelCtx, paymentID); err != nil {
		s.logger.Error("failed to cancel payment after rejected registration",
			slog.String("payment_ref", paymentID),
			slog.Int("tournament_id", tournamentID),
			slog.Any("error", err),
		)
		return
	}
	s.logger.Warn("payment cancelled after rejected registration",
		slog.String("payment_ref", paymentID),
		slog.Int("tournament_id", tournamentID),
	)
}

func (s *registrationService) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	reg, err := s.regRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return reg, nil
}

func (s *registrationService) List(ctx context.Context, filter RegistrationListFilter) ([]*models.Registration, error) {
	if filter.PaymentStatus != nil && !filter.PaymentStatus.Valid() {
		return nil, ErrInvalidPaymentStatus
	}
	regs, err := s.regRepo.List(ctx, repositories.RegistrationFilter{
		TournamentID:  filter.TournamentID,
		UserID:        filter.UserID,
		PaymentStatus: filter.PaymentStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return regs, nil
}

func (s *registrationService) Update(ctx context.Context, id int, input UpdateRegistrationInput) (*models.Registration, error) {
	if input.PaymentStatus != nil && !input.PaymentStatus.Valid() {
		return nil, ErrInvalidPaymentStatus
	}

	reg, err := s.regRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}

	wasActive := reg.PaymentStatus.Active()
	becomesActive := wasActive
	if input.PaymentStatus != nil {
		becomesActive = input.PaymentStatus.Active()
		reg.PaymentStatus = *input.PaymentStatus
	}
	if input.PaymentRef != nil {
		reg.PaymentRef = normalizeOptional(input.PaymentRef)
	}
	if input.Decklist != nil {
		reg.Decklist = normalizeOptional(input.Decklist)
	}

	// Возврат регистрации в активное состояние занимает место, поэтому идет через прием.
	if !wasActive && becomesActive {
		unlock := s.admission.Lock(reg.TournamentID)
		defer unlock()

		if _, err := s.regRepo.UpdateWithinCapacity(ctx, reg); err != nil {
			return nil, translateRepoError(err)
		}
	} else if err := s.regRepo.Update(ctx, reg); err != nil {
		return nil, translateRepoError(err)
	}

	if wasActive != becomesActive {
		s.logger.Info("registration payment status changed",
			slog.Int("registration_id", reg.ID),
			slog.String("payment_status", string(reg.PaymentStatus)),
		)
		s.refreshCapacity(ctx, reg.TournamentID)
	}
	return reg, nil
}

func (s *registrationService) Delete(ctx context.Context, id int) error {
	reg, err := s.regRepo.GetByID(ctx, id)
	if err != nil {
		return translateRepoError(err)
	}
	if err := s.regRepo.Delete(ctx, id); err != nil {
		return translateRepoError(err)
	}

	s.logger.Info("registration deleted", slog.Int("registration_id", id), slog.Int("tournament_id", reg.TournamentID))
	s.refreshCapacity(ctx, reg.TournamentID)
	return nil
}

func (s *registrationService) Capacity(ctx context.Context, tournamentID int) (*CapacitySnapshot, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	active, err := s.regRepo.CountActiveByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count registrations for tournament %d: %w", tournamentID, err)
	}
	return &CapacitySnapshot{
		TournamentID:   tournamentID,
		CurrentPlayers: active,
		MaxPlayers:     tournament.MaxPlayers,
		IsFull:         active >= tournament.MaxPlayers,
	}, nil
}

func (s *registrationService) SyncPendingPayments(ctx context.Context) (int, error) {
	pending := models.PaymentPending
	regs, err := s.regRepo.List(ctx, repositories.RegistrationFilter{
		PaymentStatus:  &pending,
		WithPaymentRef: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending registrations: %w", err)
	}

	updated := 0
	touched := make(map[int]struct{})
	for _, reg := range regs {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}

		payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
		payment, err := s.gateway.GetPayment(payCtx, *reg.PaymentRef)
		cancel()
		if err != nil {
			s.logger.Warn("failed to fetch payment status",
				slog.Int("registration_id", reg.ID),
				slog.String("payment_ref", *reg.PaymentRef),
				slog.Any("error", err),
			)
			continue
		}

		if payment.Status == reg.PaymentStatus && reg.ProviderStatus != nil && *reg.ProviderStatus == payment.ProviderStatus {
			continue
		}

		wasActive := reg.PaymentStatus.Active()
		providerStatus := payment.ProviderStatus
		reg.PaymentStatus = payment.Status
		reg.ProviderStatus = &providerStatus
		if err := s.regRepo.Update(ctx, reg); err != nil {
			s.logger.Error("failed to store synced payment status",
				slog.Int("registration_id", reg.ID),
				slog.Any("error", err),
			)
			continue
		}
		updated++
		if wasActive != reg.PaymentStatus.Active() {
			touched[reg.TournamentID] = struct{}{}
		}
	}

	for tournamentID := range touched {
		s.refreshCapacity(ctx, tournamentID)
	}
	if updated > 0 {
		s.logger.Info("pending payments synchronized", slog.Int("checked", len(regs)), slog.Int("updated", updated))
	}
	return updated, nil
}

// refreshCapacity пересчитывает заполненность и рассылает ее наблюдателям.
func (s *registrationService) refreshCapacity(ctx context.Context, tournamentID int) {
	snapshot, err := s.Capacity(ctx, tournamentID)
	if err != nil {
		s.logger.Warn("failed to refresh tournament capacity", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	s.publishCapacity(ctx, tournamentID, snapshot.CurrentPlayers, snapshot.MaxPlayers)
}

func (s *registrationService) publishCapacity(ctx context.Context, tournamentID, current, maxPlayers int) {
	publish(ctx, s.publisher, s.logger, live.NewTournamentStatusEvent(tournamentID, current, maxPlayers, s.now()))
}
