package handlers

import (
	"net/http"

	"github.com/Dosada05/tcg-tournaments/services"
)

type GameTableHandler struct {
	gameTableService services.GameTableService
}

func NewGameTableHandler(gs services.GameTableService) *GameTableHandler {
	return &GameTableHandler{gameTableService: gs}
}

func (h *GameTableHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.GameTableInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	table, err := h.gameTableService.Create(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"game_table": table}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *GameTableHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	table, err := h.gameTableService.GetByID(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"game_table": table}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *GameTableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.gameTableService.List(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"game_tables": tables}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *GameTableHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.GameTableInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	table, err := h.gameTableService.Update(r.Context(), id, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"game_table": table}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *GameTableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.gameTableService.Delete(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
