package handlers

import (
	"net/http"

	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/Dosada05/tcg-tournaments/services"
)

type RegistrationHandler struct {
	registrationService services.RegistrationService
}

func NewRegistrationHandler(rs services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrationService: rs}
}

// Create обрабатывает POST /registrations.
// Игрок регистрирует только себя, администратор может указать любого user_id.
func (h *RegistrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := currentCaller(w, r)
	if !ok {
		return
	}

	var input services.CreateRegistrationInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if input.UserID == 0 {
		input.UserID = who.ID
	}
	if input.UserID != who.ID && !who.isAdmin() {
		forbiddenResponse(w, r, "players can only register themselves")
		return
	}

	receipt, err := h.registrationService.Create(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"registration": receipt}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByID обрабатывает GET /registrations/{registrationID}
func (h *RegistrationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	who, ok := currentCaller(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	reg, err := h.registrationService.GetByID(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if reg.UserID != who.ID && !who.isAdmin() {
		forbiddenResponse(w, r, "you can only view your own registrations")
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"registration": reg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// List обрабатывает GET /registrations. Игрок видит только свои регистрации.
func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := currentCaller(w, r)
	if !ok {
		return
	}

	var filter services.RegistrationListFilter
	var err error
	if filter.TournamentID, err = optionalIntQuery(r, "tournament_id"); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if filter.UserID, err = optionalIntQuery(r, "user_id"); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("payment_status"); raw != "" {
		status := models.PaymentStatus(raw)
		filter.PaymentStatus = &status
	}
	if !who.isAdmin() {
		filter.UserID = &who.ID
	}

	regs, err := h.registrationService.List(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"registrations": regs}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Update обрабатывает PATCH /registrations/{registrationID}. Ручная смена статуса оплаты организатором.
func (h *RegistrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.UpdateRegistrationInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	reg, err := h.registrationService.Update(r.Context(), id, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"registration": reg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Delete обрабатывает DELETE /registrations/{registrationID}
func (h *RegistrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.registrationService.Delete(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SyncPayments обрабатывает POST /registrations/sync-payments: внеочередная сверка с провайдером.
func (h *RegistrationHandler) SyncPayments(w http.ResponseWriter, r *http.Request) {
	updated, err := h.registrationService.SyncPendingPayments(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"updated": updated}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
