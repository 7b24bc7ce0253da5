package handlers

import (
	"net/http"

	"github.com/Dosada05/tcg-tournaments/services"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(us services.UserService) *UserHandler {
	return &UserHandler{userService: us}
}

// Me обрабатывает GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	who, ok := currentCaller(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetByID(r.Context(), who.ID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"users": users}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByID обрабатывает GET /users/{userID}: свой профиль или любой для администратора.
func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	who, ok := currentCaller(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if id != who.ID && !who.isAdmin() {
		forbiddenResponse(w, r, "you can only view your own profile")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Update обрабатывает PATCH /users/{userID}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	who, ok := currentCaller(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if id != who.ID && !who.isAdmin() {
		forbiddenResponse(w, r, "you can only update your own profile")
		return
	}

	var input services.UpdateUserInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.userService.Update(r.Context(), id, input, who.Role)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.userService.Delete(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
