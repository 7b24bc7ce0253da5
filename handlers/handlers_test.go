package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/tcg-tournaments/middleware"
	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/Dosada05/tcg-tournaments/payments"
	"github.com/Dosada05/tcg-tournaments/services"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRegistrationService struct {
	services.RegistrationService
	created *services.CreateRegistrationInput
	create  func(services.CreateRegistrationInput) (*services.RegistrationReceipt, error)
	list    func(services.RegistrationListFilter) ([]*models.Registration, error)
}

func (s *stubRegistrationService) Create(ctx context.Context, input services.CreateRegistrationInput) (*services.RegistrationReceipt, error) {
	s.created = &input
	return s.create(input)
}

func (s *stubRegistrationService) List(ctx context.Context, filter services.RegistrationListFilter) ([]*models.Registration, error) {
	return s.list(filter)
}

type stubMatchService struct {
	services.MatchService
	update func(id int, input services.UpdateMatchInput) (*models.Match, error)
	create func(input services.CreateMatchInput) (*models.Match, error)
}

func (s *stubMatchService) Update(ctx context.Context, id int, input services.UpdateMatchInput) (*models.Match, error) {
	return s.update(id, input)
}

func (s *stubMatchService) Create(ctx context.Context, input services.CreateMatchInput) (*models.Match, error) {
	return s.create(input)
}

type stubAuthService struct {
	login func(services.LoginInput) (*models.User, error)
}

func (s *stubAuthService) Signup(ctx context.Context, input services.SignupInput) (*models.User, error) {
	return nil, errors.New("not used")
}

func (s *stubAuthService) Login(ctx context.Context, input services.LoginInput) (*models.User, error) {
	return s.login(input)
}

func asCaller(r *http.Request, id int, role models.UserRole) *http.Request {
	return r.WithContext(middleware.WithClaims(r.Context(), jwt.MapClaims{"user_id": float64(id), "role": string(role)}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestMapServiceErrorToHTTP(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{services.ErrTournamentNotFound, http.StatusNotFound},
		{services.ErrRegistrationNotFound, http.StatusNotFound},
		{services.ErrMatchNotFound, http.StatusNotFound},
		{services.ErrGameTableNotFound, http.StatusNotFound},
		{services.ErrUserNotFound, http.StatusNotFound},
		{services.ErrTournamentFull, http.StatusConflict},
		{services.ErrRegistrationConflict, http.StatusConflict},
		{services.ErrRegistrationNotOpen, http.StatusConflict},
		{services.ErrUserEmailConflict, http.StatusConflict},
		{services.ErrGameTableNumberConflict, http.StatusConflict},
		{services.ErrSelfMatch, http.StatusBadRequest},
		{services.ErrWinnerNotParticipant, http.StatusBadRequest},
		{services.ErrPaymentGenerationFailed, http.StatusBadRequest},
		{services.ErrInvalidPaymentStatus, http.StatusBadRequest},
		{fmt.Errorf("%w: open -> finished", services.ErrTournamentInvalidStatusTransition), http.StatusBadRequest},
		{&services.ValidationError{Messages: []string{"name is required"}}, http.StatusBadRequest},
		{services.ErrAuthInvalidCredentials, http.StatusUnauthorized},
		{services.ErrForbiddenOperation, http.StatusForbidden},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			mapServiceErrorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestServerErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	mapServiceErrorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, decodeError(t, rec), "pq")
}

func TestValidationErrorShowsFirstMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	err := &services.ValidationError{Messages: []string{"name is required", "scheduled_at is required"}}

	mapServiceErrorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), err)

	assert.Equal(t, "name is required", decodeError(t, rec))
}

func TestCreateRegistrationDefaultsToCaller(t *testing.T) {
	svc := &stubRegistrationService{create: func(in services.CreateRegistrationInput) (*services.RegistrationReceipt, error) {
		ref := "9001"
		return &services.RegistrationReceipt{
			Registration: &models.Registration{ID: 1, TournamentID: in.TournamentID, UserID: in.UserID, PaymentStatus: models.PaymentPending, PaymentRef: &ref},
			Pix:          &payments.Payment{ID: ref, Status: models.PaymentPending, QRCode: "000201"},
		}, nil
	}}
	h := NewRegistrationHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/registrations", strings.NewReader(`{"tournament_id": 4}`))
	rec := httptest.NewRecorder()
	h.Create(rec, asCaller(req, 12, models.RolePlayer))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, 12, svc.created.UserID)

	var body struct {
		Registration struct {
			ID            int    `json:"id"`
			UserID        int    `json:"user_id"`
			PaymentStatus string `json:"payment_status"`
			Pix           struct {
				QRCode string `json:"qr_code"`
			} `json:"pix"`
		} `json:"registration"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 12, body.Registration.UserID)
	assert.Equal(t, "pending", body.Registration.PaymentStatus)
	assert.Equal(t, "000201", body.Registration.Pix.QRCode)
}

func TestCreateRegistrationForAnotherPlayer(t *testing.T) {
	svc := &stubRegistrationService{create: func(in services.CreateRegistrationInput) (*services.RegistrationReceipt, error) {
		return &services.RegistrationReceipt{Registration: &models.Registration{ID: 2, UserID: in.UserID}}, nil
	}}
	h := NewRegistrationHandler(svc)
	body := `{"tournament_id": 4, "user_id": 30}`

	rec := httptest.NewRecorder()
	h.Create(rec, asCaller(httptest.NewRequest(http.MethodPost, "/registrations", strings.NewReader(body)), 12, models.RolePlayer))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, svc.created)

	rec = httptest.NewRecorder()
	h.Create(rec, asCaller(httptest.NewRequest(http.MethodPost, "/registrations", strings.NewReader(body)), 1, models.RoleAdmin))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 30, svc.created.UserID)
}

func TestCreateRegistrationServiceErrors(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{services.ErrTournamentFull, http.StatusConflict, "tournament capacity reached"},
		{services.ErrRegistrationConflict, http.StatusConflict, "user is already registered for this tournament"},
		{services.ErrRegistrationNotOpen, http.StatusConflict, "registration is not open"},
		{services.ErrPaymentGenerationFailed, http.StatusBadRequest, "payment could not be generated, please try again"},
		{services.ErrTournamentNotFound, http.StatusNotFound, services.ErrTournamentNotFound.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			h := NewRegistrationHandler(&stubRegistrationService{create: func(services.CreateRegistrationInput) (*services.RegistrationReceipt, error) {
				return nil, tt.err
			}})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/registrations", strings.NewReader(`{"tournament_id": 4}`))
			h.Create(rec, asCaller(req, 12, models.RolePlayer))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec))
		})
	}
}

func TestCreateRegistrationRejectsUnknownField(t *testing.T) {
	h := NewRegistrationHandler(&stubRegistrationService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/registrations", strings.NewReader(`{"tournament_id": 4, "payment_status": "paid"}`))
	h.Create(rec, asCaller(req, 12, models.RolePlayer))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "payment_status")
}

func TestListRegistrationsScopedToPlayer(t *testing.T) {
	var got services.RegistrationListFilter
	h := NewRegistrationHandler(&stubRegistrationService{list: func(f services.RegistrationListFilter) ([]*models.Registration, error) {
		got = f
		return []*models.Registration{}, nil
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/registrations?user_id=99&tournament_id=4", nil)
	h.List(rec, asCaller(req, 12, models.RolePlayer))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.UserID)
	assert.Equal(t, 12, *got.UserID)
	require.NotNil(t, got.TournamentID)
	assert.Equal(t, 4, *got.TournamentID)
}

func routeParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestUpdateMatchWinner(t *testing.T) {
	end := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)
	h := NewMatchHandler(&stubMatchService{update: func(id int, in services.UpdateMatchInput) (*models.Match, error) {
		if *in.WinnerID != 5 && *in.WinnerID != 9 {
			return nil, services.ErrWinnerNotParticipant
		}
		return &models.Match{ID: id, Player1ID: 5, Player2ID: 9, WinnerID: in.WinnerID, EndTime: &end}, nil
	}})

	rec := httptest.NewRecorder()
	h.Update(rec, routeParam(httptest.NewRequest(http.MethodPatch, "/matches/3", strings.NewReader(`{"winner_id": 9}`)), "matchID", "3"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"winner_id": 9`)

	rec = httptest.NewRecorder()
	h.Update(rec, routeParam(httptest.NewRequest(http.MethodPatch, "/matches/3", strings.NewReader(`{"winner_id": 7}`)), "matchID", "3"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "winner must be a participant", decodeError(t, rec))

	rec = httptest.NewRecorder()
	h.Update(rec, routeParam(httptest.NewRequest(http.MethodPatch, "/matches/x", strings.NewReader(`{}`)), "matchID", "x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSelfMatch(t *testing.T) {
	h := NewMatchHandler(&stubMatchService{create: func(services.CreateMatchInput) (*models.Match, error) {
		return nil, services.ErrSelfMatch
	}})

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/matches", strings.NewReader(
		`{"tournament_id": 1, "table_id": 1, "player1_id": 5, "player2_id": 5, "round": 1}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginIssuesToken(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{login: func(in services.LoginInput) (*models.User, error) {
		if in.Password != "secret1" {
			return nil, services.ErrAuthInvalidCredentials
		}
		return &models.User{ID: 8, Username: "ana", Email: in.Email, Role: models.RolePlayer}, nil
	}}, "jwt-secret")
	fixed := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ana@example.com","password":"secret1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	claims := jwt.MapClaims{}
	parser := jwt.Parser{SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(body.Token, claims, func(*jwt.Token) (interface{}, error) { return []byte("jwt-secret"), nil })
	require.NoError(t, err)
	assert.Equal(t, float64(8), claims["user_id"])
	assert.Equal(t, "player", claims["role"])
	assert.Equal(t, float64(fixed.Add(24*time.Hour).Unix()), claims["exp"])

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ana@example.com","password":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ana@example.com"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"empty list same host", nil, "http://api.local:8080", true},
		{"empty list other host", nil, "http://evil.example", false},
		{"listed origin", []string{"http://localhost:5173"}, "http://localhost:5173", true},
		{"unlisted origin", []string{"http://localhost:5173"}, "http://api.local:8080", false},
		{"wildcard", []string{"*"}, "http://evil.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://api.local:8080/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(req))
		})
	}
}
